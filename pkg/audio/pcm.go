package audio

import (
	"fmt"
	"time"

	"github.com/gopxl/beep/v2"
)

// Narration payload layout.
const (
	NarrationSampleRate = beep.SampleRate(24000)
	NarrationChannels   = 1
	bytesPerSample      = 2
)

// DecodeError reports a narration payload that cannot be interpreted as
// PCM16 mono. The sequencer recovers from it with a fallback wait.
type DecodeError struct {
	Size   int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode narration (%d bytes): %s", e.Size, e.Reason)
}

// Buffer is decoded narration: mono samples normalized to [-1, 1).
type Buffer struct {
	format  beep.Format
	samples []float64
}

// Decode interprets payload as little-endian signed 16-bit PCM, mono,
// 24 kHz.
func Decode(payload []byte) (*Buffer, error) {
	return DecodeRate(payload, NarrationSampleRate)
}

// DecodeRate is Decode for payloads at another sample rate.
func DecodeRate(payload []byte, rate beep.SampleRate) (*Buffer, error) {
	frame := bytesPerSample * NarrationChannels
	switch {
	case len(payload) == 0:
		return nil, &DecodeError{Size: 0, Reason: "empty payload"}
	case len(payload)%frame != 0:
		return nil, &DecodeError{Size: len(payload), Reason: fmt.Sprintf("length is not a multiple of the %d-byte frame", frame)}
	case rate <= 0:
		return nil, &DecodeError{Size: len(payload), Reason: "invalid sample rate"}
	}

	samples := make([]float64, len(payload)/frame)
	for i := range samples {
		v := int16(uint16(payload[2*i]) | uint16(payload[2*i+1])<<8)
		samples[i] = float64(v) / 32768.0
	}

	return &Buffer{
		format: beep.Format{
			SampleRate:  rate,
			NumChannels: NarrationChannels,
			Precision:   bytesPerSample,
		},
		samples: samples,
	}, nil
}

// Format returns the buffer's sample format.
func (b *Buffer) Format() beep.Format { return b.format }

// Len returns the number of sample frames.
func (b *Buffer) Len() int { return len(b.samples) }

// Sample returns frame i.
func (b *Buffer) Sample(i int) float64 { return b.samples[i] }

// Duration returns the playback length at the buffer's own rate.
func (b *Buffer) Duration() time.Duration {
	return b.format.SampleRate.D(len(b.samples))
}

// Duration returns the playback length of buf, zero for nil.
func Duration(buf *Buffer) time.Duration {
	if buf == nil {
		return 0
	}
	return buf.Duration()
}

// Streamer returns a fresh cursor over the buffer. Mono is duplicated to
// both channels.
func (b *Buffer) Streamer() beep.StreamSeeker {
	return &pcmStreamer{buf: b}
}

type pcmStreamer struct {
	buf *Buffer
	pos int
}

func (s *pcmStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if s.pos >= len(s.buf.samples) {
		return 0, false
	}
	n = copy2(samples, s.buf.samples[s.pos:])
	s.pos += n
	return n, true
}

func copy2(dst [][2]float64, src []float64) int {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i][0] = src[i]
		dst[i][1] = src[i]
	}
	return n
}

func (s *pcmStreamer) Err() error { return nil }

func (s *pcmStreamer) Len() int { return len(s.buf.samples) }

func (s *pcmStreamer) Position() int { return s.pos }

func (s *pcmStreamer) Seek(p int) error {
	if p < 0 || p > len(s.buf.samples) {
		return fmt.Errorf("seek position %d out of range [0, %d]", p, len(s.buf.samples))
	}
	s.pos = p
	return nil
}
