package audio

import (
	"sync"

	"github.com/gopxl/beep/v2"
)

// Destination collects what the graph plays so a recorder can mux it.
// Samples are kept as mono int16 at the graph rate while attached.
type Destination struct {
	mu       sync.Mutex
	rate     beep.SampleRate
	attached bool
	pending  []int16
	total    int
}

func newDestination(rate beep.SampleRate) *Destination {
	return &Destination{rate: rate}
}

// SampleRate is the rate of the drained samples.
func (d *Destination) SampleRate() beep.SampleRate {
	return d.rate
}

// Attach starts collecting and discards anything left from a previous
// capture.
func (d *Destination) Attach() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attached = true
	d.pending = d.pending[:0]
	d.total = 0
}

// Detach stops collecting. Pending samples stay until drained.
func (d *Destination) Detach() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attached = false
}

// Attached reports whether a capture is consuming the destination.
func (d *Destination) Attached() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attached
}

// Drain returns and clears the samples collected since the last call.
func (d *Destination) Drain() []int16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 {
		return nil
	}
	out := make([]int16, len(d.pending))
	copy(out, d.pending)
	d.pending = d.pending[:0]
	return out
}

// Total returns the number of samples collected since Attach.
func (d *Destination) Total() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.total
}

func (d *Destination) write(samples [][2]float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.attached {
		return
	}
	for _, s := range samples {
		d.pending = append(d.pending, toInt16((s[0]+s[1])/2))
	}
	d.total += len(samples)
}

func toInt16(v float64) int16 {
	v *= 32768
	switch {
	case v >= 32767:
		return 32767
	case v <= -32768:
		return -32768
	}
	return int16(v)
}

// Tap wraps s so everything it produces is also written to d.
func (d *Destination) Tap(s beep.Streamer) beep.Streamer {
	return &tap{Streamer: s, dest: d}
}

type tap struct {
	beep.Streamer
	dest *Destination
}

func (t *tap) Stream(samples [][2]float64) (int, bool) {
	n, ok := t.Streamer.Stream(samples)
	if n > 0 {
		t.dest.write(samples[:n])
	}
	return n, ok
}
