package weapon

import (
	"WeaponGuard/internal/entity"
	"time"
)

type DetectionSource string

const (
	SourceUpload DetectionSource = "upload"
	SourceStream DetectionSource = "stream"
)

type DetectRequest struct {
	Filename string
	Data     []byte
	Source   DetectionSource
}

type ProcessingInfo struct {
	ModelType        string `json:"model_type"`
	TotalDetections  int    `json:"total_detections"`
	ImageSize        [2]int `json:"image_size"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
	Cached           bool   `json:"cached,omitempty"`
}

type DetectResponse struct {
	DetectionID    string             `json:"detection_id,omitempty"`
	Filename       string             `json:"filename"`
	Detections     []entity.Detection `json:"detections"`
	AnnotatedImage string             `json:"annotated_image"`
	ThreatLevel    entity.ThreatLevel `json:"threat_level"`
	ProcessingInfo ProcessingInfo     `json:"processing_info"`
}

type ModelStatus struct {
	Loaded    bool   `json:"model_loaded"`
	ModelType string `json:"model_type,omitempty"`
	Error     string `json:"error,omitempty"`
}

type RootResponse struct {
	Message     string `json:"message"`
	ModelLoaded bool   `json:"model_loaded"`
}

type HealthResponse struct {
	Status        string   `json:"status"`
	ModelLoaded   bool     `json:"model_loaded"`
	WeaponClasses []string `json:"weapon_classes"`
}

type ListDetectionsQuery struct {
	Limit       int    `query:"limit" validate:"omitempty,min=1,max=100"`
	Offset      int    `query:"offset" validate:"omitempty,min=0"`
	ThreatLevel string `query:"threat_level" validate:"omitempty,oneof=low medium high critical"`
}

type DetectionRecordResponse struct {
	ID              string             `json:"id"`
	Filename        string             `json:"filename"`
	Timestamp       time.Time          `json:"timestamp"`
	Detections      []entity.Detection `json:"detections"`
	ThreatLevel     entity.ThreatLevel `json:"threat_level"`
	Confidence      float64            `json:"confidence"`
	TotalDetections int                `json:"total_detections"`
	ImageURL        string             `json:"image_url,omitempty"`
}

type DetectionHistoryResponse struct {
	Data   []DetectionRecordResponse `json:"data"`
	Limit  int                       `json:"limit"`
	Offset int                       `json:"offset"`
}

type DetectionStatsResponse struct {
	Data entity.DetectionStats `json:"data"`
}

type StreamErrorResponse struct {
	Error string `json:"error"`
}
