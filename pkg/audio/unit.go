// Package audio decodes narration and plays it through a lazily opened
// output, mirroring every sample into a capture destination.
package audio

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"ravayatgo/pkg/session"

	"github.com/gopxl/beep/v2"
)

// Unit plays one narration buffer at a time.
type Unit struct {
	mu       sync.Mutex
	graph    *Graph
	sessions *session.Controller

	active *voice
	nextID uint64
}

type voice struct {
	id      uint64
	token   session.Token
	done    chan struct{}
	length  time.Duration
	started time.Time
}

// NewUnit creates a unit playing through g. Tokens are checked against
// sessions before any audio starts.
func NewUnit(g *Graph, sessions *session.Controller) *Unit {
	return &Unit{
		graph:    g,
		sessions: sessions,
	}
}

// Graph returns the graph the unit plays through.
func (u *Unit) Graph() *Graph { return u.graph }

// Play stops any active source and starts buf. The returned channel is
// closed when buf has played to its end. A source halted by Stop or by a
// newer Play never closes its channel; callers race it against the
// session's Done channel.
func (u *Unit) Play(ctx context.Context, buf *Buffer, token session.Token) (<-chan struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if buf == nil || buf.Len() == 0 {
		return nil, &DecodeError{Reason: "empty buffer"}
	}
	if err := u.sessions.Check(token); err != nil {
		return nil, err
	}

	if _, err := u.graph.Ensure(); err != nil {
		return nil, err
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	// Opening the device may have taken a while.
	if err := u.sessions.Check(token); err != nil {
		return nil, err
	}
	u.stopLocked()

	var s beep.Streamer = buf.Streamer()
	if rate := buf.Format().SampleRate; rate != u.graph.Rate() {
		s = beep.Resample(3, rate, u.graph.Rate(), s)
	}

	u.nextID++
	v := &voice{
		id:      u.nextID,
		token:   token,
		done:    make(chan struct{}),
		length:  buf.Duration(),
		started: time.Now(),
	}
	u.active = v

	id := v.id
	u.graph.add(beep.Seq(s, beep.Callback(func() {
		// Never block the output's mixing goroutine.
		go u.finished(id)
	})))

	slog.Debug("Audio: Narration started", "token", token, "duration", v.length)
	return v.done, nil
}

// PlayAndWait plays buf and blocks until it completes, the session is
// superseded or ctx is done. On supersession the source is left alone since
// the newer session owns the unit.
func (u *Unit) PlayAndWait(ctx context.Context, buf *Buffer, token session.Token) error {
	done, err := u.Play(ctx, buf, token)
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-u.sessions.Done(token):
		return session.ErrStaleSession
	case <-ctx.Done():
		u.Stop()
		return ctx.Err()
	}
}

func (u *Unit) finished(id uint64) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.active == nil || u.active.id != id {
		return
	}
	close(u.active.done)
	u.active = nil
}

// Stop halts the active source. Calling it with nothing playing is a no-op.
func (u *Unit) Stop() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.stopLocked()
}

func (u *Unit) stopLocked() {
	if u.active == nil {
		return
	}
	slog.Debug("Audio: Narration stopped", "token", u.active.token)
	u.active = nil
	u.graph.clear()
}

// IsPlaying reports whether a source is active.
func (u *Unit) IsPlaying() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.active != nil
}

// Remaining estimates how much of the active source is left.
func (u *Unit) Remaining() time.Duration {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.active == nil {
		return 0
	}
	left := u.active.length - time.Since(u.active.started)
	if left < 0 {
		return 0
	}
	return left
}

// SetVolume sets playback volume (0.0 to 1.0). Capture is not affected.
func (u *Unit) SetVolume(vol float64) { u.graph.SetVolume(vol) }

// Volume returns the current volume level.
func (u *Unit) Volume() float64 { return u.graph.Volume() }

// IsDecodeError reports whether err came from a malformed payload.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
