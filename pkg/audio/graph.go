package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"ravayatgo/pkg/config"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
)

// ErrResourceUnavailable is returned when the output device cannot be
// opened or resumed.
var ErrResourceUnavailable = errors.New("audio output unavailable")

// Graph owns the output device, a mix bus and the capture destination.
// The bus is tapped into the destination before the volume stage, so
// capture is continuous (silence included) and independent of volume.
// The device is opened on first use and reused until Close.
type Graph struct {
	mu        sync.Mutex
	rate      beep.SampleRate
	newOutput func() Output
	out       Output
	suspended bool

	bus    *bus
	dest   *Destination
	volume *effects.Volume
	level  float64
}

// NewGraph creates a graph for the configured output kind.
func NewGraph(cfg *config.AudioConfig) *Graph {
	factory := NewSpeakerOutput
	if cfg.Output == "clock" {
		factory = func() Output { return NewClockOutput() }
	}
	g := NewGraphWithOutput(beep.SampleRate(cfg.OutputRate), factory)
	g.SetVolume(cfg.Volume)
	return g
}

// NewGraphWithOutput creates a graph around a custom output factory.
func NewGraphWithOutput(rate beep.SampleRate, factory func() Output) *Graph {
	g := &Graph{
		rate:      rate,
		newOutput: factory,
		bus:       &bus{},
		dest:      newDestination(rate),
		level:     1.0,
	}
	g.volume = &effects.Volume{
		Streamer: g.dest.Tap(g.bus),
		Base:     2,
	}
	return g
}

// Rate returns the device sample rate.
func (g *Graph) Rate() beep.SampleRate { return g.rate }

// Destination returns the capture node. It exists before the device does.
func (g *Graph) Destination() *Destination { return g.dest }

// Ensure opens the device if needed and resumes it if suspended.
func (g *Graph) Ensure() (Output, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.out == nil {
		out := g.newOutput()
		if err := out.Init(g.rate); err != nil {
			slog.Error("Audio: Failed to open output", "rate", g.rate, "error", err)
			return nil, fmt.Errorf("%w: %v", ErrResourceUnavailable, err)
		}
		out.Play(g.volume)
		g.out = out
		g.suspended = false
		slog.Debug("Audio: Output opened", "rate", g.rate)
	}
	if g.suspended {
		if err := g.out.Resume(); err != nil {
			return nil, fmt.Errorf("%w: resume: %v", ErrResourceUnavailable, err)
		}
		g.suspended = false
	}
	return g.out, nil
}

// Output returns the open device or nil.
func (g *Graph) Output() Output {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.out
}

// add mixes s into the bus. The device must be open.
func (g *Graph) add(s beep.Streamer) {
	g.locked(func() { g.bus.add(s) })
}

// clear drops every source on the bus.
func (g *Graph) clear() {
	g.locked(g.bus.clear)
}

// locked runs fn holding the device lock, or plain when no device is open.
func (g *Graph) locked(fn func()) {
	g.mu.Lock()
	out := g.out
	g.mu.Unlock()

	if out == nil {
		fn()
		return
	}
	out.Lock()
	defer out.Unlock()
	fn()
}

// SetVolume sets the output level (0.0 to 1.0).
func (g *Graph) SetVolume(vol float64) {
	if vol < 0 {
		vol = 0
	} else if vol > 1 {
		vol = 1
	}
	g.locked(func() {
		g.level = vol
		g.volume.Volume = volumeToPower(vol)
		g.volume.Silent = vol <= 0.01
	})
}

// Volume returns the output level.
func (g *Graph) Volume() float64 {
	var v float64
	g.locked(func() { v = g.level })
	return v
}

// Suspend pauses the device. The next Ensure resumes it.
func (g *Graph) Suspend() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.out == nil || g.suspended {
		return nil
	}
	if err := g.out.Suspend(); err != nil {
		return err
	}
	g.suspended = true
	return nil
}

// Close releases the device. A later Ensure opens a new one.
func (g *Graph) Close() error {
	g.mu.Lock()
	out := g.out
	g.out = nil
	g.mu.Unlock()

	g.dest.Detach()
	g.bus.clear()
	if out == nil {
		return nil
	}
	return out.Close()
}

// bus mixes narration sources and never drains.
type bus struct {
	streamers []beep.Streamer
	scratch   [][2]float64
}

func (b *bus) add(s beep.Streamer) {
	b.streamers = append(b.streamers, s)
}

func (b *bus) clear() {
	b.streamers = nil
}

func (b *bus) Stream(samples [][2]float64) (int, bool) {
	for i := range samples {
		samples[i] = [2]float64{}
	}
	if len(b.scratch) < len(samples) {
		b.scratch = make([][2]float64, len(samples))
	}

	kept := b.streamers[:0]
	for _, s := range b.streamers {
		buf := b.scratch[:len(samples)]
		n, ok := s.Stream(buf)
		for i := 0; i < n; i++ {
			samples[i][0] += buf[i][0]
			samples[i][1] += buf[i][1]
		}
		if ok {
			kept = append(kept, s)
		}
	}
	for i := len(kept); i < len(b.streamers); i++ {
		b.streamers[i] = nil
	}
	b.streamers = kept
	return len(samples), true
}

func (b *bus) Err() error { return nil }
