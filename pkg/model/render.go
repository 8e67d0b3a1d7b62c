package model

import (
	"WeaponGuard/internal/entity"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const boxThickness = 3

var defaultBoxColor = color.RGBA{R: 0x25, G: 0x63, B: 0xeb, A: 0xff}

type renderer struct {
	names   []string
	palette map[string]color.RGBA
}

func newRenderer(names []string, palette map[string][3]uint8) *renderer {
	p := make(map[string]color.RGBA, len(palette))
	for name, rgb := range palette {
		p[name] = color.RGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 0xff}
	}
	return &renderer{names: names, palette: p}
}

// Draw returns a copy of img with one labelled box per detection. labels is
// index aligned with detections and picks both the caption and the colour.
func (r *renderer) Draw(img image.Image, detections []entity.RawDetection, labels []string) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("render: nil image")
	}

	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("render: empty image bounds %v", bounds)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(canvas, canvas.Bounds(), img, bounds.Min, draw.Src)

	for i, d := range detections {
		name := r.label(d.ClassIndex)
		if i < len(labels) && labels[i] != "" {
			name = labels[i]
		}
		c := r.color(name)

		box := image.Rect(int(d.X1), int(d.Y1), int(d.X2), int(d.Y2)).Intersect(canvas.Bounds())
		if box.Empty() {
			continue
		}

		strokeRect(canvas, box, c)
		drawLabel(canvas, box, fmt.Sprintf("%s %.2f", name, d.Confidence), c)
	}

	return canvas, nil
}

func (r *renderer) label(classIndex int) string {
	if classIndex >= 0 && classIndex < len(r.names) && r.names[classIndex] != "" {
		return r.names[classIndex]
	}
	return fmt.Sprintf("class_%d", classIndex)
}

func (r *renderer) color(name string) color.RGBA {
	if c, ok := r.palette[name]; ok {
		return c
	}
	return defaultBoxColor
}

func strokeRect(dst *image.RGBA, box image.Rectangle, c color.RGBA) {
	src := image.NewUniform(c)
	t := min(boxThickness, box.Dx(), box.Dy())
	if t <= 0 {
		t = 1
	}

	edges := []image.Rectangle{
		image.Rect(box.Min.X, box.Min.Y, box.Max.X, box.Min.Y+t),
		image.Rect(box.Min.X, box.Max.Y-t, box.Max.X, box.Max.Y),
		image.Rect(box.Min.X, box.Min.Y, box.Min.X+t, box.Max.Y),
		image.Rect(box.Max.X-t, box.Min.Y, box.Max.X, box.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), src, image.Point{}, draw.Src)
	}
}

func drawLabel(dst *image.RGBA, box image.Rectangle, text string, c color.RGBA) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil() + 4
	height := face.Metrics().Height.Ceil() + 2

	top := box.Min.Y - height
	if top < dst.Bounds().Min.Y {
		top = box.Min.Y
	}

	background := image.Rect(box.Min.X, top, box.Min.X+width, top+height).Intersect(dst.Bounds())
	draw.Draw(dst, background, image.NewUniform(c), image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.White,
		Face: face,
		Dot:  fixed.P(box.Min.X+2, top+face.Metrics().Ascent.Ceil()+1),
	}
	drawer.DrawString(text)
}
