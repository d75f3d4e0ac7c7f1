package audio

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcm16(values ...int16) []byte {
	out := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

func silence(d time.Duration) []byte {
	return make([]byte, 2*NarrationSampleRate.N(d))
}

func TestDecode(t *testing.T) {
	buf, err := Decode(pcm16(0, 16384, -32768, 32767))
	require.NoError(t, err)

	assert.Equal(t, 4, buf.Len())
	assert.Equal(t, NarrationSampleRate, buf.Format().SampleRate)
	assert.Equal(t, 1, buf.Format().NumChannels)
	assert.InDelta(t, 0.0, buf.Sample(0), 1e-9)
	assert.InDelta(t, 0.5, buf.Sample(1), 1e-9)
	assert.InDelta(t, -1.0, buf.Sample(2), 1e-9)
	assert.InDelta(t, 32767.0/32768.0, buf.Sample(3), 1e-9)
}

func TestDecode_Duration(t *testing.T) {
	buf, err := Decode(silence(2 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, 48000, buf.Len())
	assert.Equal(t, 2*time.Second, buf.Duration())
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"Empty", nil},
		{"Odd_Length", []byte{0x01, 0x02, 0x03}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.payload)
			require.Error(t, err)
			assert.True(t, IsDecodeError(err))
		})
	}
}

func TestBuffer_Streamer(t *testing.T) {
	buf, err := Decode(pcm16(100, 200, 300, 400, 500))
	require.NoError(t, err)

	s := buf.Streamer()
	out := make([][2]float64, 3)

	n, ok := s.Stream(out)
	assert.Equal(t, 3, n)
	assert.True(t, ok)
	assert.Equal(t, out[1][0], out[1][1], "mono duplicated to both channels")
	assert.InDelta(t, 200.0/32768.0, out[1][0], 1e-9)

	n, ok = s.Stream(out)
	assert.Equal(t, 2, n)
	assert.True(t, ok)

	n, ok = s.Stream(out)
	assert.Equal(t, 0, n)
	assert.False(t, ok)

	require.NoError(t, s.Seek(1))
	assert.Equal(t, 1, s.Position())
	assert.Error(t, s.Seek(6))

	// Each call gets an independent cursor.
	assert.Equal(t, 0, buf.Streamer().Position())
}

func TestDestination_Tap(t *testing.T) {
	buf, err := Decode(pcm16(1000, -1000, 32767, -32768))
	require.NoError(t, err)

	d := newDestination(NarrationSampleRate)
	s := d.Tap(buf.Streamer())
	out := make([][2]float64, 8)

	// Not attached: nothing collected.
	s.Stream(out)
	assert.Nil(t, d.Drain())

	d.Attach()
	s = d.Tap(buf.Streamer())
	s.Stream(out)
	assert.Equal(t, []int16{1000, -1000, 32767, -32768}, d.Drain())
	assert.Equal(t, 4, d.Total())
	assert.Nil(t, d.Drain(), "drain clears pending samples")

	d.Detach()
	assert.False(t, d.Attached())
}
