package weaponService

import (
	"WeaponGuard/internal/api/weapon"
	"WeaponGuard/internal/entity"
	contextPkg "WeaponGuard/pkg/context"
	"WeaponGuard/pkg/response"
	"errors"
	"fmt"
	"image"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

const annotatedMimeType = "image/jpeg"

type cachedReport struct {
	Response  weapon.DetectResponse `json:"response"`
	ImagePath string                `json:"image_path,omitempty"`
}

func (s *weaponService) Detect(ctx context.Context, req weapon.DetectRequest) (*weapon.DetectResponse, error) {
	requestID := contextPkg.GetRequestID(ctx)
	start := time.Now()

	if len(req.Data) == 0 {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"filename":   req.Filename,
		}).Warn("Empty image received")
		return nil, weapon.ErrEmptyFile
	}

	img, format, err := s.utils.DecodeImage(req.Data)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"filename":   req.Filename,
			"error":      err.Error(),
		}).Warn("Failed to decode image")
		return nil, err
	}

	if !s.model.Loaded() {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      fmt.Sprint(s.model.Err()),
		}).Error("Detection requested while model is not loaded")
		return nil, weapon.ErrModelUnavailable
	}

	var hash string
	if req.Source == weapon.SourceUpload && s.cache != nil {
		hash = s.utils.HashBytes(req.Data)
		if resp, ok := s.cachedDetection(ctx, hash, req, start); ok {
			return resp, nil
		}
	}

	raws, err := s.model.Model().Detect(ctx, img)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Model inference failed")
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %v", ctxErr, err)
		}
		return nil, response.Wrap(weapon.ErrProcessing, err)
	}

	detections, kept := postProcess(raws, s.model.Names(), s.classMap)
	threatLevel := CalculateThreatLevel(detections)

	annotated, err := s.renderAnnotated(requestID, img, kept, detectionClasses(detections))
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to encode annotated image")
		return nil, response.Wrap(weapon.ErrProcessing, err)
	}

	bounds := img.Bounds()
	resp := &weapon.DetectResponse{
		Filename:       req.Filename,
		Detections:     detections,
		AnnotatedImage: s.utils.ToDataURI(annotatedMimeType, annotated),
		ThreatLevel:    threatLevel,
		ProcessingInfo: weapon.ProcessingInfo{
			ModelType:        s.model.Type(),
			TotalDetections:  len(detections),
			ImageSize:        [2]int{bounds.Dx(), bounds.Dy()},
			ProcessingTimeMs: time.Since(start).Milliseconds(),
		},
	}

	s.log.WithFields(logrus.Fields{
		"request_id":       requestID,
		"filename":         req.Filename,
		"format":           format,
		"source":           req.Source,
		"raw_detections":   len(raws),
		"total_detections": len(detections),
		"threat_level":     threatLevel,
	}).Info("Detection completed")

	if req.Source != weapon.SourceUpload {
		return resp, nil
	}

	imagePath := ""
	if id, ok := s.newDetectionID(requestID); ok {
		imagePath = s.storeAnnotated(ctx, id, annotated)
		if s.recordDetection(ctx, id, resp, imagePath) {
			resp.DetectionID = id
		} else if s.weaponRepository != nil && imagePath != "" {
			s.discardAnnotated(ctx, id, imagePath)
			imagePath = ""
		}
	}

	if hash != "" {
		s.storeReport(ctx, hash, resp, imagePath)
	}

	return resp, nil
}

// renderAnnotated draws the kept boxes under their resolved class names and
// encodes the result. Any rendering failure falls back to the unmodified input.
func (s *weaponService) renderAnnotated(requestID string, img image.Image, raws []entity.RawDetection, labels []string) ([]byte, error) {
	rendered, err := s.render(img, raws, labels)
	if err == nil {
		data, encErr := s.utils.EncodeJPEG(rendered)
		if encErr == nil {
			return data, nil
		}
		err = encErr
	}

	s.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"error":      err.Error(),
	}).Warn("Rendering failed, returning original image")

	return s.utils.EncodeJPEG(img)
}

func (s *weaponService) render(img image.Image, raws []entity.RawDetection, labels []string) (out image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render panic: %v", r)
		}
	}()

	out, err = s.model.Model().Render(img, raws, labels)
	if err == nil && out == nil {
		err = errors.New("renderer returned no image")
	}
	return out, err
}

func detectionClasses(detections []entity.Detection) []string {
	classes := make([]string, len(detections))
	for i, d := range detections {
		classes[i] = d.Class
	}
	return classes
}

func (s *weaponService) newDetectionID(requestID string) (string, bool) {
	if s.weaponRepository == nil && s.s3 == nil {
		return "", false
	}

	id, err := s.utils.NewULIDFromTimestamp(time.Now())
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to generate ULID")
		return "", false
	}
	return id, true
}

// storeAnnotated uploads the annotated JPEG and returns its object key, or ""
// when storage is disabled or the upload failed.
func (s *weaponService) storeAnnotated(ctx context.Context, id string, annotated []byte) string {
	if s.s3 == nil {
		return ""
	}

	key, err := s.s3.UploadImage(ctx, fmt.Sprintf("annotated/%s.jpg", id), annotated, annotatedMimeType)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id":   contextPkg.GetRequestID(ctx),
			"detection_id": id,
			"error":        err.Error(),
		}).Error("Failed to upload annotated image")
		return ""
	}
	return key
}

// discardAnnotated removes an upload whose history row could not be written.
func (s *weaponService) discardAnnotated(ctx context.Context, id, imagePath string) {
	if err := s.s3.DeleteFile(imagePath); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id":   contextPkg.GetRequestID(ctx),
			"detection_id": id,
			"image_path":   imagePath,
			"error":        err.Error(),
		}).Warn("Failed to remove orphaned annotated image")
	}
}

func (s *weaponService) recordDetection(ctx context.Context, id string, resp *weapon.DetectResponse, imagePath string) bool {
	if s.weaponRepository == nil {
		return false
	}
	requestID := contextPkg.GetRequestID(ctx)

	repo, err := s.weaponRepository.NewClient(true)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to create new client")
		return false
	}
	defer repo.Rollback()

	record := entity.DetectionRecord{
		ID:              id,
		Filename:        resp.Filename,
		Timestamp:       time.Now().UTC(),
		Detections:      resp.Detections,
		ThreatLevel:     resp.ThreatLevel,
		Confidence:      maxConfidence(resp.Detections),
		ImagePath:       imagePath,
		TotalDetections: resp.ProcessingInfo.TotalDetections,
	}

	if err := repo.Detection.CreateDetection(ctx, record); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id":   requestID,
			"detection_id": id,
			"error":        err.Error(),
		}).Error("Failed to record detection")
		return false
	}

	if err := repo.Commit(); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id":   requestID,
			"detection_id": id,
			"error":        err.Error(),
		}).Error("Failed to commit transaction")
		return false
	}

	return true
}

func (s *weaponService) cachedDetection(ctx context.Context, hash string, req weapon.DetectRequest, start time.Time) (*weapon.DetectResponse, bool) {
	requestID := contextPkg.GetRequestID(ctx)

	raw, err := s.cache.GetReport(ctx, hash)
	if err != nil {
		return nil, false
	}

	var cached cachedReport
	if err := jsoniter.Unmarshal(raw, &cached); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Warn("Discarding unreadable cached report")
		return nil, false
	}

	resp := cached.Response
	resp.Filename = req.Filename
	resp.DetectionID = ""
	resp.ProcessingInfo.Cached = true
	resp.ProcessingInfo.ProcessingTimeMs = time.Since(start).Milliseconds()
	if resp.Detections == nil {
		resp.Detections = []entity.Detection{}
	}

	if id, ok := s.newDetectionID(requestID); ok && s.recordDetection(ctx, id, &resp, cached.ImagePath) {
		resp.DetectionID = id
	}

	s.log.WithFields(logrus.Fields{
		"request_id":   requestID,
		"filename":     req.Filename,
		"threat_level": resp.ThreatLevel,
	}).Info("Detection served from cache")

	return &resp, true
}

func (s *weaponService) storeReport(ctx context.Context, hash string, resp *weapon.DetectResponse, imagePath string) {
	entry := cachedReport{Response: *resp, ImagePath: imagePath}
	entry.Response.DetectionID = ""

	payload, err := jsoniter.Marshal(entry)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"error":      err.Error(),
		}).Warn("Failed to encode report for cache")
		return
	}

	if err := s.cache.SetReport(ctx, hash, payload); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"error":      err.Error(),
		}).Warn("Failed to cache report")
	}
}
