package weaponRepository

const (
	queryCreateDetection = `
		INSERT INTO detections (
			id,
			filename,
			timestamp,
			detected_classes,
			threat_level,
			confidence,
			image_path,
			total_detections
		) VALUES (
			:id,
			:filename,
			:timestamp,
			:detected_classes,
			:threat_level,
			:confidence,
			:image_path,
			:total_detections
		)
	`

	queryGetDetectionByID = `
		SELECT
			id,
			filename,
			timestamp,
			detected_classes,
			threat_level,
			confidence,
			image_path,
			total_detections
		FROM detections
		WHERE id = :id
	`

	queryListDetections = `
		SELECT
			id,
			filename,
			timestamp,
			detected_classes,
			threat_level,
			confidence,
			image_path,
			total_detections
		FROM detections
		WHERE (CAST(:threat_level AS TEXT) = '' OR threat_level = :threat_level)
		ORDER BY timestamp DESC, id DESC
		LIMIT :limit OFFSET :offset
	`

	queryGetStats = `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE timestamp >= date_trunc('day', NOW())) AS today,
			COUNT(*) FILTER (WHERE timestamp >= date_trunc('week', NOW())) AS this_week,
			COUNT(*) FILTER (WHERE threat_level = 'critical') AS critical
		FROM detections
	`
)
