package model

import (
	"WeaponGuard/internal/entity"
	"image"
	"regexp"
	"sort"
	"strconv"

	"github.com/chewxy/math32"
	"github.com/nfnt/resize"
)

const (
	maxDetections = 300
	padValue      = float32(114.0 / 255.0)
)

// letterbox records how an image was fitted into the square model input.
type letterbox struct {
	scale      float32
	padX, padY float32
	srcW, srcH int
}

// toSource maps a model-space coordinate pair back to source image pixels.
func (lb letterbox) toSource(x, y float32) (float64, float64) {
	sx := (x - lb.padX) / lb.scale
	sy := (y - lb.padY) / lb.scale
	sx = math32.Max(0, math32.Min(sx, float32(lb.srcW)))
	sy = math32.Max(0, math32.Min(sy, float32(lb.srcH)))
	return float64(sx), float64(sy)
}

// letterboxInput resizes img to fit size x size keeping its aspect ratio, pads
// the rest with grey and writes planar RGB floats in [0,1] into dst.
func letterboxInput(img image.Image, size int, dst []float32) letterbox {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	scale := math32.Min(float32(size)/float32(w), float32(size)/float32(h))
	nw := int(math32.Floor(float32(w)*scale + 0.5))
	nh := int(math32.Floor(float32(h)*scale + 0.5))
	nw = max(1, min(nw, size))
	nh = max(1, min(nh, size))

	resized := resize.Resize(uint(nw), uint(nh), img, resize.Bilinear)
	padX := (size - nw) / 2
	padY := (size - nh) / 2

	channel := size * size
	for i := range dst[:channel*3] {
		dst[i] = padValue
	}

	rb := resized.Bounds()
	for y := 0; y < nh; y++ {
		for x := 0; x < nw; x++ {
			r, g, bl, _ := resized.At(rb.Min.X+x, rb.Min.Y+y).RGBA()
			i := (y+padY)*size + x + padX
			dst[i] = float32(r>>8) / 255.0
			dst[channel+i] = float32(g>>8) / 255.0
			dst[2*channel+i] = float32(bl>>8) / 255.0
		}
	}

	return letterbox{
		scale: scale,
		padX:  float32(padX),
		padY:  float32(padY),
		srcW:  w,
		srcH:  h,
	}
}

// decodeYOLOv5 reads a [1, N, 5+C] output: cx, cy, w, h, objectness, class scores.
func decodeYOLOv5(data []float32, numBoxes, stride int, threshold float32, lb letterbox) []entity.RawDetection {
	var detections []entity.RawDetection
	if stride <= 5 {
		return detections
	}

	for i := 0; i < numBoxes; i++ {
		row := data[i*stride : (i+1)*stride]
		objectness := row[4]
		if objectness <= threshold {
			continue
		}

		classID, classScore := argmax(row[5:])
		score := objectness * classScore
		if score <= threshold {
			continue
		}

		detections = append(detections, boxFromCenter(row[0], row[1], row[2], row[3], score, classID, lb))
	}

	return detections
}

// decodeYOLOv8 reads a transposed [1, 4+C, N] output without objectness.
func decodeYOLOv8(data []float32, numAttrs, numBoxes int, threshold float32, lb letterbox) []entity.RawDetection {
	var detections []entity.RawDetection
	numClasses := numAttrs - 4
	if numClasses <= 0 {
		return detections
	}

	scores := make([]float32, numClasses)
	for i := 0; i < numBoxes; i++ {
		for c := 0; c < numClasses; c++ {
			scores[c] = data[(4+c)*numBoxes+i]
		}

		classID, score := argmax(scores)
		if score <= threshold {
			continue
		}

		cx := data[i]
		cy := data[numBoxes+i]
		w := data[2*numBoxes+i]
		h := data[3*numBoxes+i]
		detections = append(detections, boxFromCenter(cx, cy, w, h, score, classID, lb))
	}

	return detections
}

func boxFromCenter(cx, cy, w, h, score float32, classID int, lb letterbox) entity.RawDetection {
	x1, y1 := lb.toSource(cx-w/2, cy-h/2)
	x2, y2 := lb.toSource(cx+w/2, cy+h/2)
	return entity.RawDetection{
		X1:         x1,
		Y1:         y1,
		X2:         x2,
		Y2:         y2,
		Confidence: float64(score),
		ClassIndex: classID,
	}
}

func argmax(values []float32) (int, float32) {
	best, bestScore := 0, float32(-1)
	for i, v := range values {
		if v > bestScore {
			best, bestScore = i, v
		}
	}
	return best, bestScore
}

// nonMaxSuppression is class-aware greedy NMS. The result is ordered by
// descending confidence and capped at limit entries.
func nonMaxSuppression(detections []entity.RawDetection, iouThreshold float64, limit int) []entity.RawDetection {
	if len(detections) == 0 {
		return []entity.RawDetection{}
	}

	sorted := make([]entity.RawDetection, len(detections))
	copy(sorted, detections)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	kept := make([]entity.RawDetection, 0, len(sorted))
	suppressed := make([]bool, len(sorted))

	for i := range sorted {
		if suppressed[i] {
			continue
		}
		kept = append(kept, sorted[i])
		if len(kept) == limit {
			break
		}

		for j := i + 1; j < len(sorted); j++ {
			if suppressed[j] || sorted[i].ClassIndex != sorted[j].ClassIndex {
				continue
			}
			if iou(sorted[i], sorted[j]) > iouThreshold {
				suppressed[j] = true
			}
		}
	}

	return kept
}

func iou(a, b entity.RawDetection) float64 {
	ix1 := max(a.X1, b.X1)
	iy1 := max(a.Y1, b.Y1)
	ix2 := min(a.X2, b.X2)
	iy2 := min(a.Y2, b.Y2)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0
	}
	inter := interW * interH

	union := (a.X2-a.X1)*(a.Y2-a.Y1) + (b.X2-b.X1)*(b.Y2-b.Y1) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

var namesPattern = regexp.MustCompile(`(\d+)\s*:\s*['"]([^'"]*)['"]`)

// parseNames reads the Ultralytics "names" metadata value, a python dict
// literal such as {0: 'person', 1: 'bicycle'}.
func parseNames(raw string) []string {
	matches := namesPattern.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return nil
	}

	byIndex := make(map[int]string, len(matches))
	maxIndex := -1
	for _, m := range matches {
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		byIndex[idx] = m[2]
		maxIndex = max(maxIndex, idx)
	}

	if maxIndex < 0 {
		return nil
	}

	names := make([]string, maxIndex+1)
	for idx, name := range byIndex {
		names[idx] = name
	}
	return names
}
