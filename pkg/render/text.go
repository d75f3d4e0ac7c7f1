package render

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// loadFont parses the TTF/OTF at path, or the embedded Go Bold face when
// path is empty.
func loadFont(path string) (*opentype.Font, error) {
	data := gobold.TTF
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read font: %w", err)
		}
		data = b
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	return f, nil
}

func newFace(f *opentype.Font, size float64) (font.Face, error) {
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// wrapWords breaks text greedily so no line exceeds maxWidth, unless a
// single word is wider on its own.
func wrapWords(text string, maxWidth float64, measure func(string) float64) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		candidate := line + " " + w
		if measure(candidate) > maxWidth {
			lines = append(lines, line)
			line = w
			continue
		}
		line = candidate
	}
	return append(lines, line)
}

func measurer(face font.Face) func(string) float64 {
	return func(s string) float64 {
		return float64(font.MeasureString(face, s)) / 64
	}
}

// drawCentered draws s horizontally centered on cx with its bottom edge at
// y, after a black drop shadow offset by shadow pixels.
func drawCentered(dst *image.RGBA, face font.Face, s string, cx, y int, fill color.Color, shadow int) {
	width := font.MeasureString(face, s)
	dot := fixed.Point26_6{
		X: fixed.I(cx) - width/2,
		Y: fixed.I(y) - face.Metrics().Descent,
	}

	d := &font.Drawer{Dst: dst, Face: face}
	if shadow > 0 {
		d.Src = image.NewUniform(color.Black)
		d.Dot = dot.Add(fixed.P(shadow, shadow))
		d.DrawString(s)
	}
	d.Src = image.NewUniform(fill)
	d.Dot = dot
	d.DrawString(s)
}
