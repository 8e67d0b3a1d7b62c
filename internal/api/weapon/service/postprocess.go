package weaponService

import (
	"WeaponGuard/internal/api/weapon"
	"WeaponGuard/internal/entity"
)

// ConfidenceThreshold is the exclusive lower bound for a detection to be reported.
const ConfidenceThreshold = 0.3

// PostProcess filters raw model boxes by confidence and maps them onto the
// weapon taxonomy. The result is never nil and keeps the model's order.
func PostProcess(raws []entity.RawDetection, modelNames []string, classMap weapon.ClassMap) []entity.Detection {
	detections, _ := postProcess(raws, modelNames, classMap)
	return detections
}

// postProcess also returns the raw boxes that survived, index aligned with
// the detections, so only reported boxes get drawn.
func postProcess(raws []entity.RawDetection, modelNames []string, classMap weapon.ClassMap) ([]entity.Detection, []entity.RawDetection) {
	detections := make([]entity.Detection, 0, len(raws))
	kept := make([]entity.RawDetection, 0, len(raws))

	for _, raw := range raws {
		if raw.Confidence <= ConfidenceThreshold {
			continue
		}
		if raw.X2 < raw.X1 || raw.Y2 < raw.Y1 {
			continue
		}

		class, ok := classMap.Resolve(raw.ClassIndex, modelNames)
		if !ok {
			continue
		}

		detections = append(detections, entity.Detection{
			Class:      class,
			Confidence: raw.Confidence,
			BBox: entity.BBox{
				X:      raw.X1,
				Y:      raw.Y1,
				Width:  raw.X2 - raw.X1,
				Height: raw.Y2 - raw.Y1,
			},
		})
		kept = append(kept, raw)
	}

	return detections, kept
}
