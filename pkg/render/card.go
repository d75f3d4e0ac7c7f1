package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"ravayatgo/pkg/model"

	"golang.org/x/image/draw"
)

var (
	cardBackground  = color.RGBA{R: 0x11, G: 0x18, B: 0x27, A: 0xFF}
	cardTitleColor  = color.RGBA{R: 0xC0, G: 0x84, B: 0xFC, A: 0xFF}
	cardBadgeColor  = color.RGBA{R: 0x93, G: 0xC5, B: 0xFD, A: 0xFF}
	cardBodyColor   = color.RGBA{R: 0xE5, G: 0xE7, B: 0xEB, A: 0xFF}
	cardImageRatio  = 0.64
	cardHeightRatio = 1.5
)

// RenderCard draws a result card (photo, title, subtitle, wrapped
// description) and returns it as PNG. img may be nil.
func (p *Painter) RenderCard(r *model.Result, img image.Image, width int) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("render card: nil result")
	}
	if width <= 0 {
		return nil, fmt.Errorf("render card: invalid width %d", width)
	}

	height := int(math.Round(float64(width) * cardHeightRatio))
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Rect, image.NewUniform(cardBackground), image.Point{}, draw.Src)

	photoH := int(float64(width) * cardImageRatio)
	photo := dst.SubImage(image.Rect(0, 0, width, photoH)).(*image.RGBA)
	if img != nil {
		drawCover(photo, img, 1)
	}
	fadeToBackground(photo)

	cx := width / 2
	y := photoH + 60
	drawCentered(dst, p.title, r.CharacterTitle, cx, y, cardTitleColor, 0)
	y += lineStep
	if r.Subtitle != "" {
		drawCentered(dst, p.caption, r.Subtitle, cx, y, cardBadgeColor, 0)
		y += lineStep
	}

	y += lineStep / 2
	for _, line := range wrapWords(r.Description, float64(width-captionMargin), p.measure) {
		y += lineStep
		if y > height-lineStep/2 {
			break
		}
		drawCentered(dst, p.caption, line, cx, y, cardBodyColor, 0)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("render card: %w", err)
	}
	return buf.Bytes(), nil
}

// fadeToBackground blends the bottom half of the photo into the card
// background.
func fadeToBackground(dst *image.RGBA) {
	b := dst.Rect
	top := b.Min.Y + b.Dy()/2
	span := float64(b.Max.Y - top)
	bg := image.NewUniform(cardBackground)
	for y := top; y < b.Max.Y; y++ {
		a := float64(y-top) / span
		row := image.Rect(b.Min.X, y, b.Max.X, y+1)
		mask := image.NewUniform(color.Alpha{A: uint8(math.Round(a * 255))})
		draw.DrawMask(dst, row, bg, image.Point{}, mask, image.Point{}, draw.Over)
	}
}
