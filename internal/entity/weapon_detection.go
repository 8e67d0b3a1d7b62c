package entity

import "time"

// RawDetection is one box as emitted by the detection model, in input image pixels.
type RawDetection struct {
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Confidence float64 `json:"confidence"`
	ClassIndex int     `json:"class_index"`
}

type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Detection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
}

type ThreatLevel string

const (
	ThreatLevelLow      ThreatLevel = "low"
	ThreatLevelMedium   ThreatLevel = "medium"
	ThreatLevelHigh     ThreatLevel = "high"
	ThreatLevelCritical ThreatLevel = "critical"
)

// DetectionRecord is a row of the detections history table.
type DetectionRecord struct {
	ID              string      `json:"id"`
	Filename        string      `json:"filename"`
	Timestamp       time.Time   `json:"timestamp"`
	Detections      []Detection `json:"detections"`
	ThreatLevel     ThreatLevel `json:"threat_level"`
	Confidence      float64     `json:"confidence"`
	ImagePath       string      `json:"image_path,omitempty"`
	TotalDetections int         `json:"total_detections"`
}

type DetectionStats struct {
	Total    int64 `json:"total"`
	Today    int64 `json:"today"`
	ThisWeek int64 `json:"this_week"`
	Critical int64 `json:"critical"`
}
