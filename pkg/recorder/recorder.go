// Package recorder captures the render surface and the audio graph's
// destination into a single video container.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"ravayatgo/pkg/audio"
	"ravayatgo/pkg/config"
	"ravayatgo/pkg/logging"
	"ravayatgo/pkg/probe"
	"ravayatgo/pkg/render"

	"github.com/google/uuid"
)

var (
	// ErrUnsupportedCapture means no entry of the preference list can be
	// produced here.
	ErrUnsupportedCapture = errors.New("recording not supported on this device")

	// ErrFinalizeTimeout means the recording had to be force-stopped.
	ErrFinalizeTimeout = errors.New("recorder finalize timed out")

	// ErrAborted is returned by Stop after Abort.
	ErrAborted = errors.New("recording aborted")
)

// audioSlack is how far captured audio may trail the wall clock before
// silence is inserted.
const audioSlack = 250 * time.Millisecond

// encoder turns frames and samples into container bytes. Bytes produced
// during capture go to the emit callback given at construction; Finish may
// return a prefix that belongs in front of them.
type encoder interface {
	WriteFrame(img *image.RGBA) error
	WriteAudio(pcm []int16) error
	Finish(ctx context.Context) (prefix []byte, err error)
	Abort()
}

// Recorder negotiates a format and starts captures.
type Recorder struct {
	cfg config.RecordingConfig

	encodersOnce sync.Once
	encoders     string
	encodersErr  error
}

// New creates a recorder.
func New(cfg *config.RecordingConfig) *Recorder {
	return &Recorder{cfg: *cfg}
}

// Negotiate returns the first format of the preference list that can be
// produced.
func (r *Recorder) Negotiate(ctx context.Context) (Format, error) {
	probes := make([]probe.Probe, 0, len(r.cfg.MIMETypes))
	for _, mime := range r.cfg.MIMETypes {
		probes = append(probes, probe.Probe{
			Name:    mime,
			Check:   r.supports(mime),
			Timeout: 10 * time.Second,
		})
	}

	winner, attempts, ok := probe.First(ctx, probes)
	if !ok {
		for _, a := range attempts {
			slog.Debug("Recorder: format unavailable", "mime", a.Probe.Name, "error", a.Error)
		}
		return Format{}, ErrUnsupportedCapture
	}
	f, _ := lookupFormat(winner.Probe.Name)
	return f, nil
}

func (r *Recorder) supports(mime string) probe.CheckFunc {
	return func(ctx context.Context) error {
		f, ok := lookupFormat(mime)
		if !ok {
			return fmt.Errorf("unknown container %q", mime)
		}
		if f.Builtin {
			return nil
		}
		table, err := r.encoderTable(ctx)
		if err != nil {
			return err
		}
		for _, codec := range []string{f.videoCodec, f.audioCodec} {
			if !hasEncoder(table, codec) {
				return fmt.Errorf("ffmpeg lacks encoder %s", codec)
			}
		}
		return nil
	}
}

func (r *Recorder) encoderTable(ctx context.Context) (string, error) {
	r.encodersOnce.Do(func() {
		path, err := exec.LookPath(r.cfg.FFmpegPath)
		if err != nil {
			r.encodersErr = fmt.Errorf("ffmpeg not found: %w", err)
			return
		}
		r.encoders, r.encodersErr = listEncoders(ctx, path)
	})
	return r.encoders, r.encodersErr
}

// Start negotiates a format, attaches to dest and begins sampling the
// surface at the configured frame rate.
func (r *Recorder) Start(ctx context.Context, surface *render.Surface, dest *audio.Destination) (*Handle, error) {
	f, err := r.Negotiate(ctx)
	if err != nil {
		return nil, err
	}

	b := surface.Bounds()
	rate := int(dest.SampleRate())
	h := &Handle{
		id:      uuid.NewString(),
		format:  f,
		prefix:  r.cfg.FilenamePrefix,
		fps:     r.cfg.FPS,
		dest:    dest,
		stopCh:  make(chan struct{}),
		loopEnd: make(chan struct{}),
		done:    make(chan struct{}),
	}

	if f.Builtin {
		h.enc = newAVIEncoder(b.Dx(), b.Dy(), r.cfg.FPS, rate, h.emit)
	} else {
		enc, err := startFFmpeg(r.cfg.FFmpegPath, f, b.Dx(), b.Dy(), r.cfg.FPS, rate, r.cfg.VideoBitrate, h.emit)
		if err != nil {
			return nil, err
		}
		h.enc = enc
	}

	dest.Attach()
	h.sub = surface.Subscribe()
	h.latest = surface.Snapshot()
	h.started = time.Now()
	go h.capture()

	slog.Info("Recorder: Capture started", "id", h.id, "mime", f.MIMEType, "fps", h.fps, "size", fmt.Sprintf("%dx%d", b.Dx(), b.Dy()))
	return h, nil
}

// Handle is one running capture.
type Handle struct {
	id      string
	format  Format
	prefix  string
	fps     int
	enc     encoder
	sub     *render.Subscription
	dest    *audio.Destination
	started time.Time

	// Owned by the capture goroutine.
	latest  *image.RGBA
	frames  int
	samples int

	mu     sync.Mutex
	chunks [][]byte
	size   int

	stopOnce sync.Once
	stopCh   chan struct{}
	loopEnd  chan struct{}
	done     chan struct{}
	aborted  bool
	artifact *Artifact
	err      error
}

// ID identifies the capture in logs.
func (h *Handle) ID() string { return h.id }

// MIMEType returns the negotiated type.
func (h *Handle) MIMEType() string { return h.format.MIMEType }

// Done is closed once the capture is finalized or aborted.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Size returns the number of container bytes produced so far.
func (h *Handle) Size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size
}

func (h *Handle) emit(b []byte) {
	h.mu.Lock()
	h.chunks = append(h.chunks, b)
	h.size += len(b)
	h.mu.Unlock()
}

func (h *Handle) capture() {
	defer close(h.loopEnd)

	ticker := time.NewTicker(time.Second / time.Duration(h.fps))
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case f, ok := <-h.sub.C:
			if ok {
				h.latest = f
			}
		case <-ticker.C:
			if err := h.tick(time.Since(h.started), audioSlack); err != nil {
				h.failed(err)
				return
			}
		}
	}
}

// tick writes every frame due by elapsed (repeating the newest one) and
// the audio drained since the last tick, padding with silence when the
// audio trails the clock by more than slack.
func (h *Handle) tick(elapsed, slack time.Duration) error {
	due := int(elapsed*time.Duration(h.fps)/time.Second) + 1
	for h.frames < due {
		if err := h.enc.WriteFrame(h.latest); err != nil {
			return err
		}
		h.frames++
	}

	pcm := h.dest.Drain()
	rate := h.dest.SampleRate()
	if gap := rate.N(elapsed-slack) - (h.samples + len(pcm)); gap > 0 {
		pcm = append(pcm, make([]int16, gap)...)
	}
	if err := h.enc.WriteAudio(pcm); err != nil {
		return err
	}
	h.samples += len(pcm)
	logging.TraceDefault("Recorder: Tick", "id", h.id, "frames", h.frames, "samples", h.samples)
	return nil
}

func (h *Handle) failed(err error) {
	slog.Error("Recorder: Capture failed", "id", h.id, "error", err)
	h.mu.Lock()
	if h.err == nil {
		h.err = err
	}
	h.mu.Unlock()
}

// Stop ends the capture and waits for the container to be finalized. It is
// safe to call repeatedly; every call returns the same result. If ctx ends
// first the encoder is killed and ErrFinalizeTimeout is returned.
func (h *Handle) Stop(ctx context.Context) (*Artifact, error) {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		go h.finalize(ctx)
	})

	select {
	case <-h.done:
	case <-ctx.Done():
		h.enc.Abort()
		<-h.done
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.artifact, h.err
}

// Abort discards the capture without producing an artifact.
func (h *Handle) Abort() {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		h.aborted = true
		h.mu.Unlock()

		close(h.stopCh)
		h.enc.Abort()
		go h.finalize(context.Background())
	})
	<-h.done
}

func (h *Handle) finalize(ctx context.Context) {
	defer close(h.done)

	<-h.loopEnd
	h.sub.Close()

	h.mu.Lock()
	aborted, captureErr := h.aborted, h.err
	h.mu.Unlock()

	if !aborted && captureErr == nil {
		// Flush up to the stop instant with no slack so audio covers the
		// whole video.
		captureErr = h.tick(time.Since(h.started), 0)
	}
	h.dest.Detach()

	prefix, err := h.enc.Finish(ctx)

	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case aborted:
		h.err = ErrAborted
		h.chunks = nil
		slog.Debug("Recorder: Capture aborted", "id", h.id)
		return
	case captureErr != nil:
		h.err = captureErr
		return
	case err != nil && ctx.Err() != nil:
		h.err = fmt.Errorf("%w: %v", ErrFinalizeTimeout, ctx.Err())
		return
	case err != nil:
		h.err = fmt.Errorf("finalize %s: %w", h.format.MIMEType, err)
		return
	}

	blob := make([]byte, 0, len(prefix)+h.size)
	blob = append(blob, prefix...)
	for _, c := range h.chunks {
		blob = append(blob, c...)
	}
	h.chunks = nil

	duration := time.Duration(h.frames) * time.Second / time.Duration(h.fps)
	h.artifact = &Artifact{
		Blob:              blob,
		MIMEType:          h.format.MIMEType,
		SuggestedFilename: SuggestedFilename(h.prefix, h.format.MIMEType, time.Now()),
		Duration:          duration,
		Frames:            h.frames,
	}
	slog.Info("Recorder: Capture finalized", "id", h.id, "bytes", len(blob), "frames", h.frames, "duration", duration)
}

// Artifact is a finalized recording.
type Artifact struct {
	Blob              []byte
	MIMEType          string
	SuggestedFilename string
	Duration          time.Duration
	Frames            int
}

// SuggestedFilename builds "<prefix>-<unixMillis>.<ext>".
func SuggestedFilename(prefix, mime string, at time.Time) string {
	return fmt.Sprintf("%s-%d.%s", prefix, at.UnixMilli(), ExtensionFor(mime))
}

// Save writes the blob into dir under its suggested name and returns the
// path.
func (a *Artifact) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, a.SuggestedFilename)
	if err := os.WriteFile(path, a.Blob, 0o644); err != nil {
		return "", fmt.Errorf("failed to write recording: %w", err)
	}
	return path, nil
}
