package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"ravayatgo/pkg/config"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
)

// TitleColor is the yellow used for story titles.
var TitleColor = color.RGBA{R: 0xFA, G: 0xCC, B: 0x15, A: 0xFF}

const (
	captionMargin = 80  // total horizontal padding
	captionBottom = 100 // distance of the last line from the bottom
	lineStep      = 40
	titleGap      = 30
	shadowOffset  = 2
)

// Scene is what one frame shows.
type Scene struct {
	Image     image.Image
	PageIndex int
	Text      string
	Title     string
	Elapsed   time.Duration
}

// Painter draws scenes. It holds the parsed faces and is safe to reuse
// across frames from one goroutine.
type Painter struct {
	zoomSpeed float64
	maxZoom   float64
	pageSeed  time.Duration

	caption font.Face
	title   font.Face
	measure func(string) float64
}

// NewPainter loads the configured font and prepares both faces.
func NewPainter(cfg *config.RenderConfig) (*Painter, error) {
	f, err := loadFont(cfg.FontPath)
	if err != nil {
		return nil, err
	}
	caption, err := newFace(f, cfg.CaptionSize)
	if err != nil {
		return nil, fmt.Errorf("caption face: %w", err)
	}
	title, err := newFace(f, cfg.TitleSize)
	if err != nil {
		return nil, fmt.Errorf("title face: %w", err)
	}
	return &Painter{
		zoomSpeed: cfg.ZoomSpeed,
		maxZoom:   cfg.MaxZoom,
		pageSeed:  time.Duration(cfg.PageSeedMs) * time.Millisecond,
		caption:   caption,
		title:     title,
		measure:   measurer(caption),
	}, nil
}

// ZoomScale returns the slow Ken Burns zoom for a page. Each page is offset
// by seed so consecutive pages do not move in lockstep. The result stays in
// [1, maxZoom).
func ZoomScale(elapsed time.Duration, page int, speed, maxZoom float64, seed time.Duration) float64 {
	span := maxZoom - 1
	if span <= 0 || speed <= 0 {
		return 1
	}
	ms := float64(elapsed.Milliseconds()) + float64(page)*float64(seed.Milliseconds())
	return 1 + math.Mod(ms*speed, span)
}

// Paint draws sc over the whole of dst.
func (p *Painter) Paint(dst *image.RGBA, sc Scene) {
	draw.Draw(dst, dst.Rect, image.Black, image.Point{}, draw.Src)

	if sc.Image != nil {
		scale := ZoomScale(sc.Elapsed, sc.PageIndex, p.zoomSpeed, p.maxZoom, p.pageSeed)
		drawCover(dst, sc.Image, scale)
	}
	drawGradient(dst)

	if sc.Text != "" {
		p.drawCaption(dst, sc.Text, sc.Title)
	}
}

// drawCover scales src to cover dst, then zooms by scale around the canvas
// center. Overflow is cropped evenly on both sides.
func drawCover(dst *image.RGBA, src image.Image, scale float64) {
	sb := src.Bounds()
	if sb.Dx() <= 0 || sb.Dy() <= 0 {
		return
	}
	w, h := float64(dst.Rect.Dx()), float64(dst.Rect.Dy())
	ratio := math.Max(w/float64(sb.Dx()), h/float64(sb.Dy())) * scale

	dw := float64(sb.Dx()) * ratio
	dh := float64(sb.Dy()) * ratio
	x0 := dst.Rect.Min.X + int(math.Round((w-dw)/2))
	y0 := dst.Rect.Min.Y + int(math.Round((h-dh)/2))

	target := image.Rect(x0, y0, x0+int(math.Round(dw)), y0+int(math.Round(dh)))
	draw.ApproxBiLinear.Scale(dst, target, src, sb, draw.Over, nil)
}

// drawGradient darkens the lower half: transparent at 50% of the height,
// reaching 0.85 black 80% of the way down the ramp and flat after that.
func drawGradient(dst *image.RGBA) {
	h := dst.Rect.Dy()
	top := h / 2
	span := float64(h - top)
	for y := top; y < h; y++ {
		t := float64(y-top) / span
		a := math.Min(t/0.8, 1) * 0.85
		if a <= 0 {
			continue
		}
		row := image.Rect(dst.Rect.Min.X, dst.Rect.Min.Y+y, dst.Rect.Max.X, dst.Rect.Min.Y+y+1)
		mask := image.NewUniform(color.Alpha{A: uint8(math.Round(a * 255))})
		draw.DrawMask(dst, row, image.Black, image.Point{}, mask, image.Point{}, draw.Over)
	}
}

func (p *Painter) drawCaption(dst *image.RGBA, text, title string) {
	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	cx := dst.Rect.Min.X + w/2

	lines := wrapWords(text, float64(w-captionMargin), p.measure)
	y := dst.Rect.Min.Y + h - captionBottom
	for i := len(lines) - 1; i >= 0; i-- {
		drawCentered(dst, p.caption, lines[i], cx, y, color.White, shadowOffset)
		y -= lineStep
	}
	if title != "" {
		drawCentered(dst, p.title, title, cx, y-titleGap, TitleColor, shadowOffset)
	}
}
