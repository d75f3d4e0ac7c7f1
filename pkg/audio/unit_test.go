package audio

import (
	"context"
	"errors"
	"testing"
	"time"

	"ravayatgo/pkg/session"

	"github.com/gopxl/beep/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClockUnit(t *testing.T) (*Unit, *session.Controller) {
	t.Helper()
	sessions := session.NewController()
	g := NewGraphWithOutput(NarrationSampleRate, func() Output { return NewClockOutput() })
	t.Cleanup(func() { _ = g.Close() })
	return NewUnit(g, sessions), sessions
}

func TestUnit_PlayToCompletion(t *testing.T) {
	u, sessions := newClockUnit(t)
	tok := sessions.Begin()

	buf, err := Decode(silence(100 * time.Millisecond))
	require.NoError(t, err)

	dest := u.Graph().Destination()
	dest.Attach()

	done, err := u.Play(context.Background(), buf, tok)
	require.NoError(t, err)
	assert.True(t, u.IsPlaying())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("narration did not complete")
	}

	assert.False(t, u.IsPlaying())
	assert.GreaterOrEqual(t, dest.Total(), buf.Len(), "every sample reaches the capture destination")
}

func TestUnit_StopNeverSignals(t *testing.T) {
	u, sessions := newClockUnit(t)
	tok := sessions.Begin()

	buf, err := Decode(silence(5 * time.Second))
	require.NoError(t, err)

	done, err := u.Play(context.Background(), buf, tok)
	require.NoError(t, err)

	u.Stop()
	u.Stop()
	assert.False(t, u.IsPlaying())
	assert.Zero(t, u.Remaining())

	select {
	case <-done:
		t.Fatal("stopped source signalled completion")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUnit_PlayReplacesActive(t *testing.T) {
	u, sessions := newClockUnit(t)
	tok := sessions.Begin()

	long, err := Decode(silence(5 * time.Second))
	require.NoError(t, err)
	short, err := Decode(silence(50 * time.Millisecond))
	require.NoError(t, err)

	first, err := u.Play(context.Background(), long, tok)
	require.NoError(t, err)
	second, err := u.Play(context.Background(), short, tok)
	require.NoError(t, err)

	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("second narration did not complete")
	}
	select {
	case <-first:
		t.Fatal("replaced source signalled completion")
	default:
	}
}

func TestUnit_StaleToken(t *testing.T) {
	u, sessions := newClockUnit(t)
	old := sessions.Begin()
	sessions.Begin()

	buf, err := Decode(silence(10 * time.Millisecond))
	require.NoError(t, err)

	_, err = u.Play(context.Background(), buf, old)
	assert.ErrorIs(t, err, session.ErrStaleSession)
	assert.Nil(t, u.Graph().Output(), "stale play does not open the device")
}

func TestUnit_Volume(t *testing.T) {
	u, _ := newClockUnit(t)
	assert.Equal(t, 1.0, u.Volume())

	u.SetVolume(0.5)
	assert.Equal(t, 0.5, u.Volume())
	u.SetVolume(-1)
	assert.Equal(t, 0.0, u.Volume())
	u.SetVolume(3)
	assert.Equal(t, 1.0, u.Volume())
}

type brokenOutput struct{ ClockOutput }

func (b *brokenOutput) Init(beep.SampleRate) error { return errors.New("no device") }

func TestGraph_ResourceUnavailable(t *testing.T) {
	sessions := session.NewController()
	g := NewGraphWithOutput(NarrationSampleRate, func() Output { return &brokenOutput{} })
	u := NewUnit(g, sessions)

	buf, err := Decode(silence(10 * time.Millisecond))
	require.NoError(t, err)

	_, err = u.Play(context.Background(), buf, sessions.Begin())
	assert.ErrorIs(t, err, ErrResourceUnavailable)
}

func TestGraph_CaptureIsContinuous(t *testing.T) {
	g := NewGraphWithOutput(NarrationSampleRate, func() Output { return NewClockOutput() })
	defer g.Close()

	dest := g.Destination()
	dest.Attach()
	_, err := g.Ensure()
	require.NoError(t, err)

	// Nothing is playing, the destination still receives silence.
	assert.Eventually(t, func() bool { return dest.Total() >= NarrationSampleRate.N(50*time.Millisecond) }, time.Second, 10*time.Millisecond)
	for _, s := range dest.Drain() {
		require.Equal(t, int16(0), s)
	}
}

func TestGraph_SuspendResume(t *testing.T) {
	out := NewClockOutput()
	g := NewGraphWithOutput(NarrationSampleRate, func() Output { return out })
	defer g.Close()

	require.NoError(t, g.Suspend(), "suspending before open is a no-op")

	_, err := g.Ensure()
	require.NoError(t, err)
	require.NoError(t, g.Suspend())
	assert.True(t, out.suspended)

	_, err = g.Ensure()
	require.NoError(t, err)
	assert.False(t, out.suspended)
}

func TestUnit_PlayAndWait(t *testing.T) {
	u, sessions := newClockUnit(t)

	buf, err := Decode(silence(50 * time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, u.PlayAndWait(context.Background(), buf, sessions.Begin()))

	long, err := Decode(silence(5 * time.Second))
	require.NoError(t, err)
	tok := sessions.Begin()
	go func() {
		time.Sleep(50 * time.Millisecond)
		sessions.Begin()
	}()
	err = u.PlayAndWait(context.Background(), long, tok)
	assert.ErrorIs(t, err, session.ErrStaleSession)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = u.PlayAndWait(ctx, long, sessions.Begin())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, u.IsPlaying())
}
