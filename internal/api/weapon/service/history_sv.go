package weaponService

import (
	"WeaponGuard/internal/api/weapon"
	weaponRepository "WeaponGuard/internal/api/weapon/repository"
	"WeaponGuard/internal/entity"
	contextPkg "WeaponGuard/pkg/context"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

const defaultHistoryLimit = 20

func (s *weaponService) ListDetections(ctx context.Context, query weapon.ListDetectionsQuery) (*weapon.DetectionHistoryResponse, error) {
	requestID := contextPkg.GetRequestID(ctx)

	repo, err := s.historyClient(requestID)
	if err != nil {
		return nil, err
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	records, err := repo.Detection.ListDetections(ctx, weaponRepository.ListFilter{
		Limit:       limit,
		Offset:      query.Offset,
		ThreatLevel: query.ThreatLevel,
	})
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to list detections")
		return nil, err
	}

	data := make([]weapon.DetectionRecordResponse, 0, len(records))
	for _, record := range records {
		data = append(data, s.makeRecordResponse(requestID, record))
	}

	return &weapon.DetectionHistoryResponse{
		Data:   data,
		Limit:  limit,
		Offset: query.Offset,
	}, nil
}

func (s *weaponService) GetDetection(ctx context.Context, id string) (*weapon.DetectionRecordResponse, error) {
	requestID := contextPkg.GetRequestID(ctx)

	repo, err := s.historyClient(requestID)
	if err != nil {
		return nil, err
	}

	record, err := repo.Detection.GetDetectionByID(ctx, id)
	if err != nil {
		return nil, err
	}

	resp := s.makeRecordResponse(requestID, record)
	return &resp, nil
}

func (s *weaponService) GetStats(ctx context.Context) (*weapon.DetectionStatsResponse, error) {
	requestID := contextPkg.GetRequestID(ctx)

	repo, err := s.historyClient(requestID)
	if err != nil {
		return nil, err
	}

	stats, err := repo.Detection.GetStats(ctx)
	if err != nil {
		return nil, err
	}

	return &weapon.DetectionStatsResponse{Data: stats}, nil
}

func (s *weaponService) historyClient(requestID string) (weaponRepository.Client, error) {
	if s.weaponRepository == nil {
		return weaponRepository.Client{}, weapon.ErrHistoryUnavailable
	}

	repo, err := s.weaponRepository.NewClient(false)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to create new client")
		return weaponRepository.Client{}, err
	}
	return repo, nil
}

func (s *weaponService) makeRecordResponse(requestID string, record entity.DetectionRecord) weapon.DetectionRecordResponse {
	resp := weapon.DetectionRecordResponse{
		ID:              record.ID,
		Filename:        record.Filename,
		Timestamp:       record.Timestamp,
		Detections:      record.Detections,
		ThreatLevel:     record.ThreatLevel,
		Confidence:      record.Confidence,
		TotalDetections: record.TotalDetections,
	}
	if resp.Detections == nil {
		resp.Detections = []entity.Detection{}
	}

	if s.s3 != nil && record.ImagePath != "" {
		url, err := s.s3.PresignUrl(record.ImagePath)
		if err != nil {
			s.log.WithFields(logrus.Fields{
				"request_id":   requestID,
				"detection_id": record.ID,
				"error":        err.Error(),
			}).Warn("Failed to presign annotated image")
		} else {
			resp.ImageURL = url
		}
	}

	return resp
}
