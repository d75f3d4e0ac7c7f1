// Package render paints story pages onto a shared RGBA surface at a fixed
// frame rate and publishes every painted frame to capture subscribers.
package render

import (
	"image"
	"sync"
)

// Surface is the canvas shared by the render loop and the recorder.
type Surface struct {
	mu     sync.RWMutex
	img    *image.RGBA
	frames uint64

	subMu sync.Mutex
	subs  map[*Subscription]struct{}
}

// NewSurface allocates a black w x h surface.
func NewSurface(w, h int) *Surface {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return &Surface{
		img:  img,
		subs: make(map[*Subscription]struct{}),
	}
}

// Bounds returns the surface rectangle.
func (s *Surface) Bounds() image.Rectangle {
	return s.img.Rect
}

// Paint runs fn with exclusive access to the pixels and publishes the
// result.
func (s *Surface) Paint(fn func(dst *image.RGBA)) {
	s.mu.Lock()
	fn(s.img)
	s.frames++
	s.mu.Unlock()

	s.publish()
}

// Snapshot returns a copy of the current pixels.
func (s *Surface) Snapshot() *image.RGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRGBA(s.img)
}

// Frames returns how many frames have been painted.
func (s *Surface) Frames() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frames
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := &image.RGBA{
		Pix:    make([]byte, len(src.Pix)),
		Stride: src.Stride,
		Rect:   src.Rect,
	}
	copy(dst.Pix, src.Pix)
	return dst
}

// Subscription receives painted frames. Frames are shared between
// subscribers and must not be modified.
type Subscription struct {
	C <-chan *image.RGBA

	ch      chan *image.RGBA
	surface *Surface
	once    sync.Once
}

// Subscribe registers a frame consumer. Only the newest frame is buffered;
// a slow consumer misses intermediate frames and never stalls painting.
func (s *Surface) Subscribe() *Subscription {
	ch := make(chan *image.RGBA, 1)
	sub := &Subscription{C: ch, ch: ch, surface: s}

	s.subMu.Lock()
	s.subs[sub] = struct{}{}
	s.subMu.Unlock()
	return sub
}

// Close unregisters the subscription and closes C. Safe to call twice.
func (sub *Subscription) Close() {
	sub.once.Do(func() {
		s := sub.surface
		s.subMu.Lock()
		delete(s.subs, sub)
		close(sub.ch)
		s.subMu.Unlock()
	})
}

func (s *Surface) publish() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if len(s.subs) == 0 {
		return
	}
	frame := s.Snapshot()
	for sub := range s.subs {
		select {
		case sub.ch <- frame:
			continue
		default:
		}
		// Drop the stale frame and retry once.
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- frame:
		default:
		}
	}
}
