package weaponRepository

import (
	"WeaponGuard/internal/api/weapon"
	"WeaponGuard/internal/entity"
	contextPkg "WeaponGuard/pkg/context"
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

type DetectionDB struct {
	ID              sql.NullString  `db:"id"`
	Filename        sql.NullString  `db:"filename"`
	Timestamp       time.Time       `db:"timestamp"`
	DetectedClasses []byte          `db:"detected_classes"`
	ThreatLevel     sql.NullString  `db:"threat_level"`
	Confidence      sql.NullFloat64 `db:"confidence"`
	ImagePath       sql.NullString  `db:"image_path"`
	TotalDetections sql.NullInt64   `db:"total_detections"`
}

type DetectionStatsDB struct {
	Total    int64 `db:"total"`
	Today    int64 `db:"today"`
	ThisWeek int64 `db:"this_week"`
	Critical int64 `db:"critical"`
}

func (r *detectionRepository) CreateDetection(c context.Context, record entity.DetectionRecord) error {
	requestID := contextPkg.GetRequestID(c)

	detections := record.Detections
	if detections == nil {
		detections = []entity.Detection{}
	}
	detectedClasses, err := jsoniter.Marshal(detections)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to encode detected classes for CreateDetection")
		return err
	}

	argsKV := map[string]interface{}{
		"id":               record.ID,
		"filename":         record.Filename,
		"timestamp":        record.Timestamp,
		"detected_classes": string(detectedClasses),
		"threat_level":     string(record.ThreatLevel),
		"confidence":       record.Confidence,
		"image_path":       sql.NullString{String: record.ImagePath, Valid: record.ImagePath != ""},
		"total_detections": record.TotalDetections,
	}

	query, args, err := sqlx.Named(queryCreateDetection, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to build SQL query for CreateDetection")
		return err
	}
	query = r.q.Rebind(query)

	if _, err = r.q.ExecContext(c, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Database error when creating detection")
		return err
	}

	return nil
}

func (r *detectionRepository) GetDetectionByID(c context.Context, id string) (entity.DetectionRecord, error) {
	requestID := contextPkg.GetRequestID(c)
	var detection DetectionDB

	query, args, err := sqlx.Named(queryGetDetectionByID, map[string]interface{}{"id": id})
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetDetectionByID named query preparation err")
		return entity.DetectionRecord{}, err
	}
	query = r.q.Rebind(query)

	if err := r.q.QueryRowxContext(c, query, args...).StructScan(&detection); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.WithFields(logrus.Fields{
				"request_id":   requestID,
				"detection_id": id,
			}).Warn("GetDetectionByID no rows found")
			return entity.DetectionRecord{}, weapon.ErrDetectionNotFound
		}
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetDetectionByID execution err")
		return entity.DetectionRecord{}, err
	}

	return r.makeDetectionRecord(detection), nil
}

func (r *detectionRepository) ListDetections(c context.Context, filter ListFilter) ([]entity.DetectionRecord, error) {
	requestID := contextPkg.GetRequestID(c)
	var detections []DetectionDB

	argsKV := map[string]interface{}{
		"threat_level": filter.ThreatLevel,
		"limit":        filter.Limit,
		"offset":       filter.Offset,
	}

	query, args, err := sqlx.Named(queryListDetections, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("ListDetections named query preparation err")
		return nil, err
	}
	query = r.q.Rebind(query)

	if err := r.q.SelectContext(c, &detections, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("ListDetections execution err")
		return nil, err
	}

	result := make([]entity.DetectionRecord, 0, len(detections))
	for _, detection := range detections {
		result = append(result, r.makeDetectionRecord(detection))
	}

	return result, nil
}

func (r *detectionRepository) GetStats(c context.Context) (entity.DetectionStats, error) {
	requestID := contextPkg.GetRequestID(c)
	var stats DetectionStatsDB

	if err := r.q.QueryRowxContext(c, queryGetStats).StructScan(&stats); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetStats execution err")
		return entity.DetectionStats{}, err
	}

	return entity.DetectionStats{
		Total:    stats.Total,
		Today:    stats.Today,
		ThisWeek: stats.ThisWeek,
		Critical: stats.Critical,
	}, nil
}

func (r *detectionRepository) makeDetectionRecord(d DetectionDB) entity.DetectionRecord {
	detections := []entity.Detection{}
	if len(d.DetectedClasses) > 0 {
		if err := jsoniter.Unmarshal(d.DetectedClasses, &detections); err != nil {
			r.log.WithFields(logrus.Fields{
				"detection_id": d.ID.String,
				"error":        err.Error(),
			}).Warn("Stored detected classes could not be decoded")
			detections = []entity.Detection{}
		}
	}

	return entity.DetectionRecord{
		ID:              d.ID.String,
		Filename:        d.Filename.String,
		Timestamp:       d.Timestamp,
		Detections:      detections,
		ThreatLevel:     entity.ThreatLevel(d.ThreatLevel.String),
		Confidence:      d.Confidence.Float64,
		ImagePath:       d.ImagePath.String,
		TotalDetections: int(d.TotalDetections.Int64),
	}
}
