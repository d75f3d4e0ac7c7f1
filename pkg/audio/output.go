package audio

import (
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// Output is the device end of the graph. Streamers handed to Play are
// mixed until they report !ok.
type Output interface {
	Init(rate beep.SampleRate) error
	Play(s beep.Streamer)
	Clear()
	Lock()
	Unlock()
	Suspend() error
	Resume() error
	Close() error
}

// speakerOutput drives the process-wide beep speaker. Only one graph per
// process should use it.
type speakerOutput struct{}

// NewSpeakerOutput returns an Output backed by the system audio device.
func NewSpeakerOutput() Output { return speakerOutput{} }

func (speakerOutput) Init(rate beep.SampleRate) error {
	return speaker.Init(rate, rate.N(time.Second/10))
}

func (speakerOutput) Play(s beep.Streamer) { speaker.Play(s) }
func (speakerOutput) Clear()               { speaker.Clear() }
func (speakerOutput) Lock()                { speaker.Lock() }
func (speakerOutput) Unlock()              { speaker.Unlock() }
func (speakerOutput) Suspend() error       { return speaker.Suspend() }
func (speakerOutput) Resume() error        { return speaker.Resume() }

func (speakerOutput) Close() error {
	speaker.Close()
	return nil
}

// ClockOutput consumes streamers in real time without a device. It is used
// headless (recording on a server, tests) where narration still has to take
// its natural duration.
type ClockOutput struct {
	mu        sync.Mutex
	rate      beep.SampleRate
	streamers []beep.Streamer
	scratch   [][2]float64
	mix       [][2]float64
	suspended bool
	tick      time.Duration

	stop chan struct{}
	done chan struct{}
}

// NewClockOutput returns an Output that pulls samples every 10ms.
func NewClockOutput() *ClockOutput {
	return &ClockOutput{tick: 10 * time.Millisecond}
}

func (c *ClockOutput) Init(rate beep.SampleRate) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stop != nil {
		return nil
	}
	c.rate = rate
	c.scratch = make([][2]float64, rate.N(c.tick)*4)
	c.mix = make([][2]float64, len(c.scratch))
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.run(c.stop, c.done)
	return nil
}

func (c *ClockOutput) run(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			n := c.rate.N(now.Sub(last))
			if n <= 0 {
				continue
			}
			last = last.Add(c.rate.D(n))
			c.pull(n)
		}
	}
}

func (c *ClockOutput) pull(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.suspended {
		return
	}
	for n > 0 {
		chunk := min(n, len(c.scratch))
		c.mixInto(c.mix[:chunk])
		n -= chunk
	}
}

// mixInto sums every active streamer into dst and drops finished ones.
func (c *ClockOutput) mixInto(dst [][2]float64) {
	for i := range dst {
		dst[i] = [2]float64{}
	}
	kept := c.streamers[:0]
	for _, s := range c.streamers {
		buf := c.scratch[:len(dst)]
		sn, ok := s.Stream(buf)
		for i := 0; i < sn; i++ {
			dst[i][0] += buf[i][0]
			dst[i][1] += buf[i][1]
		}
		if ok {
			kept = append(kept, s)
		}
	}
	for i := len(kept); i < len(c.streamers); i++ {
		c.streamers[i] = nil
	}
	c.streamers = kept
}

func (c *ClockOutput) Play(s beep.Streamer) {
	c.mu.Lock()
	c.streamers = append(c.streamers, s)
	c.mu.Unlock()
}

func (c *ClockOutput) Clear() {
	c.mu.Lock()
	c.streamers = nil
	c.mu.Unlock()
}

func (c *ClockOutput) Lock()   { c.mu.Lock() }
func (c *ClockOutput) Unlock() { c.mu.Unlock() }

func (c *ClockOutput) Suspend() error {
	c.mu.Lock()
	c.suspended = true
	c.mu.Unlock()
	return nil
}

func (c *ClockOutput) Resume() error {
	c.mu.Lock()
	c.suspended = false
	c.mu.Unlock()
	return nil
}

func (c *ClockOutput) Close() error {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.streamers = nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}
