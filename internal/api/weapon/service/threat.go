package weaponService

import (
	"WeaponGuard/internal/api/weapon"
	"WeaponGuard/internal/entity"
)

// CalculateThreatLevel evaluates the threat table top to bottom; the first
// matching row wins.
func CalculateThreatLevel(detections []entity.Detection) entity.ThreatLevel {
	if len(detections) == 0 {
		return entity.ThreatLevelLow
	}

	var criticalCount, highCount int
	var maxConf float64
	for _, d := range detections {
		if _, ok := weapon.CriticalClasses[d.Class]; ok {
			criticalCount++
		}
		if _, ok := weapon.HighClasses[d.Class]; ok {
			highCount++
		}
		if d.Confidence > maxConf {
			maxConf = d.Confidence
		}
	}

	switch {
	case criticalCount > 0 || maxConf > 0.8:
		return entity.ThreatLevelCritical
	case highCount > 0 || len(detections) > 2 || maxConf > 0.6:
		return entity.ThreatLevelHigh
	case len(detections) > 1 || maxConf > 0.4:
		return entity.ThreatLevelMedium
	default:
		return entity.ThreatLevelLow
	}
}

func maxConfidence(detections []entity.Detection) float64 {
	var m float64
	for _, d := range detections {
		if d.Confidence > m {
			m = d.Confidence
		}
	}
	return m
}
