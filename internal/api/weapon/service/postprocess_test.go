package weaponService

import (
	"WeaponGuard/internal/api/weapon"
	"WeaponGuard/internal/entity"
	"WeaponGuard/pkg/model"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostProcessConfidenceThreshold(t *testing.T) {
	raws := []entity.RawDetection{
		{X1: 10, Y1: 20, X2: 110, Y2: 220, Confidence: 0.3, ClassIndex: 3},
		{X1: 10, Y1: 20, X2: 110, Y2: 220, Confidence: 0.3001, ClassIndex: 3},
		{X1: 0, Y1: 0, X2: 5, Y2: 5, Confidence: 0.1, ClassIndex: 4},
	}

	detections := PostProcess(raws, weapon.WeaponClasses, weapon.DefaultClassMap())
	require.Len(t, detections, 1)

	d := detections[0]
	assert.Equal(t, "handgun", d.Class)
	assert.Equal(t, 0.3001, d.Confidence)
	assert.Equal(t, entity.BBox{X: 10, Y: 20, Width: 100, Height: 200}, d.BBox)
}

func TestPostProcessClassOverrides(t *testing.T) {
	raws := []entity.RawDetection{
		{X1: 0, Y1: 0, X2: 10, Y2: 10, Confidence: 0.9, ClassIndex: 76}, // scissors
		{X1: 0, Y1: 0, X2: 10, Y2: 10, Confidence: 0.9, ClassIndex: 39}, // bottle
		{X1: 0, Y1: 0, X2: 10, Y2: 10, Confidence: 0.9, ClassIndex: 20}, // elephant
		{X1: 0, Y1: 0, X2: 10, Y2: 10, Confidence: 0.9, ClassIndex: 500},
		{X1: 0, Y1: 0, X2: 10, Y2: 10, Confidence: 0.9, ClassIndex: 8},
	}

	detections := PostProcess(raws, model.YOLOClasses, weapon.DefaultClassMap())
	require.Len(t, detections, 2)
	assert.Equal(t, "knife", detections[0].Class)
	assert.Equal(t, "sword", detections[1].Class)
}

func TestPostProcessDropsMalformedBoxes(t *testing.T) {
	raws := []entity.RawDetection{
		{X1: 50, Y1: 0, X2: 10, Y2: 10, Confidence: 0.9, ClassIndex: 0},
		{X1: 0, Y1: 50, X2: 10, Y2: 10, Confidence: 0.9, ClassIndex: 0},
		{X1: 5, Y1: 5, X2: 5, Y2: 5, Confidence: 0.9, ClassIndex: 0},
	}

	detections := PostProcess(raws, weapon.WeaponClasses, weapon.DefaultClassMap())
	require.Len(t, detections, 1)
	assert.Equal(t, 0.0, detections[0].BBox.Width)
}

func TestPostProcessEmpty(t *testing.T) {
	detections := PostProcess(nil, nil, weapon.DefaultClassMap())
	assert.NotNil(t, detections)
	assert.Empty(t, detections)
}

func TestPostProcessKeepsRawAligned(t *testing.T) {
	raws := []entity.RawDetection{
		{X1: 0, Y1: 0, X2: 10, Y2: 10, Confidence: 0.2, ClassIndex: 3},
		{X1: 1, Y1: 1, X2: 11, Y2: 11, Confidence: 0.7, ClassIndex: 4},
	}

	detections, kept := postProcess(raws, weapon.WeaponClasses, weapon.DefaultClassMap())
	require.Len(t, kept, 1)
	require.Len(t, detections, 1)
	assert.Equal(t, raws[1], kept[0])
}

func TestCalculateThreatLevel(t *testing.T) {
	det := func(class string, conf float64) entity.Detection {
		return entity.Detection{Class: class, Confidence: conf}
	}

	tests := []struct {
		name       string
		detections []entity.Detection
		want       entity.ThreatLevel
	}{
		{name: "empty", detections: nil, want: entity.ThreatLevelLow},
		{name: "handgun and knife", detections: []entity.Detection{det("handgun", 0.5), det("knife", 0.45)}, want: entity.ThreatLevelMedium},
		{name: "low confidence sniper", detections: []entity.Detection{det("sniper", 0.35)}, want: entity.ThreatLevelCritical},
		{name: "any critical class", detections: []entity.Detection{det("knife", 0.31), det("bazooka", 0.31)}, want: entity.ThreatLevelCritical},
		{name: "very confident knife", detections: []entity.Detection{det("knife", 0.81)}, want: entity.ThreatLevelCritical},
		{name: "shotgun", detections: []entity.Detection{det("shotgun", 0.31)}, want: entity.ThreatLevelHigh},
		{name: "three detections", detections: []entity.Detection{det("knife", 0.31), det("knife", 0.32), det("sword", 0.33)}, want: entity.ThreatLevelHigh},
		{name: "confident handgun", detections: []entity.Detection{det("handgun", 0.61)}, want: entity.ThreatLevelHigh},
		{name: "two low detections", detections: []entity.Detection{det("knife", 0.31), det("sword", 0.32)}, want: entity.ThreatLevelMedium},
		{name: "single medium", detections: []entity.Detection{det("handgun", 0.41)}, want: entity.ThreatLevelMedium},
		{name: "single low", detections: []entity.Detection{det("knife", 0.4)}, want: entity.ThreatLevelLow},
		{name: "boundary 0.8 is not critical", detections: []entity.Detection{det("handgun", 0.8)}, want: entity.ThreatLevelHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CalculateThreatLevel(tt.detections))
		})
	}
}
