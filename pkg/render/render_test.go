package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"
	"testing"
	"time"

	"ravayatgo/pkg/config"
	"ravayatgo/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/draw"
)

func newTestPainter(t *testing.T) *Painter {
	t.Helper()
	p, err := NewPainter(&config.DefaultConfig().Render)
	require.NoError(t, err)
	return p
}

func solid(c color.Color, w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Rect, image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

func TestWrapWords(t *testing.T) {
	measure := func(s string) float64 { return float64(len(s) * 10) }

	tests := []struct {
		name     string
		text     string
		maxWidth float64
		want     []string
	}{
		{"Fits", "one two", 100, []string{"one two"}},
		{"Breaks", "aaa bbb ccc", 75, []string{"aaa bbb", "ccc"}},
		{"Long_Word_Alone", "tiny enormousword end", 60, []string{"tiny", "enormousword", "end"}},
		{"Collapses_Spaces", "  a   b  ", 100, []string{"a b"}},
		{"Empty", "   ", 100, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, wrapWords(tt.text, tt.maxWidth, measure))
		})
	}
}

func TestZoomScale(t *testing.T) {
	seed := 10 * time.Second

	assert.Equal(t, 1.0, ZoomScale(0, 0, 0.00005, 1.15, seed))
	assert.InDelta(t, 1.05, ZoomScale(0, 1, 0.00005, 1.15, seed), 1e-9)
	assert.InDelta(t, 1.1, ZoomScale(2*time.Second, 0, 0.00005, 1.15, seed), 1e-9)
	assert.Equal(t, 1.0, ZoomScale(time.Minute, 3, 0.00005, 1.0, seed), "no zoom range")

	for ms := 0; ms < 120_000; ms += 137 {
		for page := 0; page < 5; page++ {
			s := ZoomScale(time.Duration(ms)*time.Millisecond, page, 0.00005, 1.15, seed)
			require.GreaterOrEqual(t, s, 1.0)
			require.Less(t, s, 1.15)
		}
	}
}

func TestPainter_CaptionDrawn(t *testing.T) {
	p := newTestPainter(t)
	img := solid(color.Black, 10, 10)

	plain := image.NewRGBA(image.Rect(0, 0, 360, 640))
	p.Paint(plain, Scene{Image: img})

	captioned := image.NewRGBA(image.Rect(0, 0, 360, 640))
	p.Paint(captioned, Scene{Image: img, Text: "A fox in the snow", Title: "Winter"})

	assert.NotEqual(t, plain.Pix, captioned.Pix)

	// Title uses the yellow accent somewhere in the lower half.
	found := false
	for y := 320; y < 640 && !found; y++ {
		for x := 0; x < 360; x++ {
			c := captioned.RGBAAt(x, y)
			if c.R > 200 && c.G > 150 && c.B < 80 {
				found = true
				break
			}
		}
	}
	assert.True(t, found, "title colour not found")
}

func TestSurface_SubscribeDropsOldest(t *testing.T) {
	s := NewSurface(4, 4)
	sub := s.Subscribe()

	for i := 0; i < 3; i++ {
		v := uint8(i + 1)
		s.Paint(func(dst *image.RGBA) { dst.Pix[0] = v })
	}

	frame := <-sub.C
	assert.Equal(t, uint8(3), frame.Pix[0], "only the newest frame is kept")
	select {
	case <-sub.C:
		t.Fatal("expected no buffered frame")
	default:
	}
	assert.Equal(t, uint64(3), s.Frames())

	sub.Close()
	sub.Close()
	_, open := <-sub.C
	assert.False(t, open)

	// Painting without subscribers is fine.
	s.Paint(func(dst *image.RGBA) {})
}

func TestLoop_MissingImageKeepsTicking(t *testing.T) {
	s := NewSurface(90, 160)
	l := NewLoop(s, newTestPainter(t), model.ImageSequence{nil}, 60)

	l.Start(func() (int, model.Page, bool) {
		return 0, model.Page{ImageIndex: 0, Text: "hello"}, true
	}, "title")

	assert.Eventually(t, func() bool { return l.Skipped() >= 3 }, time.Second, 10*time.Millisecond)
	assert.True(t, l.Running())
	assert.Zero(t, l.Frames())

	l.Stop()
	l.Stop()
	assert.False(t, l.Running())
}

func TestLoop_ReadsLatestCursor(t *testing.T) {
	s := NewSurface(90, 160)
	images := model.ImageSequence{
		solid(color.RGBA{R: 255, A: 255}, 20, 20),
		solid(color.RGBA{B: 255, A: 255}, 20, 20),
	}
	l := NewLoop(s, newTestPainter(t), images, 30)

	var cursor atomic.Int64
	provider := func() (int, model.Page, bool) {
		i := int(cursor.Load())
		return i, model.Page{ImageIndex: i}, true
	}
	l.Start(provider, "")
	l.Stop()

	require.True(t, l.RenderOnce())
	top := s.Snapshot().RGBAAt(45, 30)
	assert.Greater(t, top.R, uint8(200))

	cursor.Store(1)
	require.True(t, l.RenderOnce())
	top = s.Snapshot().RGBAAt(45, 30)
	assert.Greater(t, top.B, uint8(200))
	assert.Less(t, top.R, uint8(50))
}

func TestLoop_RestartSwapsProvider(t *testing.T) {
	s := NewSurface(90, 160)
	l := NewLoop(s, newTestPainter(t), model.ImageSequence{solid(color.White, 4, 4)}, 60)

	var first, second atomic.Int64
	l.Start(func() (int, model.Page, bool) { first.Add(1); return 0, model.Page{}, true }, "a")
	l.Start(func() (int, model.Page, bool) { second.Add(1); return 0, model.Page{}, true }, "b")
	defer l.Stop()

	assert.Eventually(t, func() bool { return second.Load() >= 3 }, time.Second, 10*time.Millisecond)
	n := first.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, first.Load(), "old provider no longer consulted")
}

func TestRenderCard(t *testing.T) {
	p := newTestPainter(t)
	r := &model.Result{
		CharacterTitle: "The Quiet Explorer",
		Subtitle:       "Curious soul",
		Description:    "Always looking past the horizon for the next story to tell.",
		Emoji:          "🧭",
	}

	data, err := p.RenderCard(r, solid(color.RGBA{G: 200, A: 255}, 64, 48), 360)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 360, 540), img.Bounds())

	_, err = p.RenderCard(nil, nil, 360)
	assert.Error(t, err)

	_, err = p.RenderCard(r, nil, 360)
	assert.NoError(t, err, "card renders without a photo")
}
