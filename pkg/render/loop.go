package render

import (
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"ravayatgo/pkg/logging"
	"ravayatgo/pkg/model"
)

// PageProvider returns the page to draw right now and its position in the
// story. It is called on every frame so cursor changes show up on the next
// tick.
type PageProvider func() (index int, page model.Page, ok bool)

// ImageSource resolves a page's image index. Missing indices fall back to
// the first image; ok is false when nothing can be drawn.
type ImageSource interface {
	At(i int) (image.Image, bool)
}

// Loop repaints the surface at a fixed rate until stopped.
type Loop struct {
	surface *Surface
	painter *Painter
	fps     int
	now     func() time.Time
	epoch   time.Time

	mu       sync.Mutex
	images   ImageSource
	provider PageProvider
	title    string
	stopCh   chan struct{}
	wg       sync.WaitGroup

	frames  atomic.Uint64
	skipped atomic.Uint64
}

// NewLoop creates a stopped loop. The zoom animation is timed from the
// moment the loop is created.
func NewLoop(surface *Surface, painter *Painter, images ImageSource, fps int) *Loop {
	return &Loop{
		surface: surface,
		painter: painter,
		images:  images,
		fps:     fps,
		now:     time.Now,
		epoch:   time.Now(),
	}
}

// SetImages replaces the image source.
func (l *Loop) SetImages(images ImageSource) {
	l.mu.Lock()
	l.images = images
	l.mu.Unlock()
}

// Start begins painting. When already running only the provider and title
// are swapped; no second ticker is started.
func (l *Loop) Start(provider PageProvider, title string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.provider = provider
	l.title = title
	if l.stopCh != nil {
		return
	}

	l.stopCh = make(chan struct{})
	l.wg.Add(1)
	go l.run(l.stopCh)
	slog.Debug("Render: Loop started", "fps", l.fps)
}

// Stop halts painting and waits for the current frame. Safe to call when
// not running.
func (l *Loop) Stop() {
	l.mu.Lock()
	stopCh := l.stopCh
	l.stopCh = nil
	l.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	l.wg.Wait()
	slog.Debug("Render: Loop stopped", "frames", l.frames.Load(), "skipped", l.skipped.Load())
}

// Running reports whether the loop is ticking.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopCh != nil
}

// Frames returns the number of painted frames.
func (l *Loop) Frames() uint64 { return l.frames.Load() }

// Skipped returns the number of ticks that had nothing to draw.
func (l *Loop) Skipped() uint64 { return l.skipped.Load() }

func (l *Loop) run(stopCh chan struct{}) {
	defer l.wg.Done()

	ticker := time.NewTicker(time.Second / time.Duration(l.fps))
	defer ticker.Stop()

	l.RenderOnce()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			l.RenderOnce()
		}
	}
}

// RenderOnce paints a single frame. It returns false when the frame was
// skipped because no page or image was available.
func (l *Loop) RenderOnce() bool {
	l.mu.Lock()
	provider, images, title := l.provider, l.images, l.title
	l.mu.Unlock()

	if provider == nil || images == nil {
		l.skipped.Add(1)
		return false
	}
	index, page, ok := provider()
	if !ok {
		l.skipped.Add(1)
		return false
	}
	img, ok := images.At(page.ImageIndex)
	if !ok || img == nil {
		// Images may still be loading; keep ticking.
		logging.TraceDefault("Render: Image not ready", "page", index, "image", page.ImageIndex)
		l.skipped.Add(1)
		return false
	}

	sc := Scene{
		Image:     img,
		PageIndex: index,
		Text:      page.Text,
		Title:     title,
		Elapsed:   l.now().Sub(l.epoch),
	}
	l.surface.Paint(func(dst *image.RGBA) {
		l.painter.Paint(dst, sc)
	})
	l.frames.Add(1)
	return true
}
