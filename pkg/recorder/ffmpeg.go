package recorder

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

const stdoutChunk = 64 * 1024

// ffmpegEncoder streams raw frames and PCM into an ffmpeg process and
// emits the container it writes to stdout. Video goes to stdin, audio to
// fd 3; each pipe has its own writer goroutine so ffmpeg can consume the
// inputs in whatever order it needs.
type ffmpegEncoder struct {
	cmd    *exec.Cmd
	video  chan []byte
	audio  chan []byte
	stderr *tailBuffer

	writers sync.WaitGroup
	reader  sync.WaitGroup

	mu       sync.Mutex
	writeErr error
	closed   bool
}

func ffmpegArgs(f Format, width, height, fps, rate, bitrate int) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-thread_queue_size", "512",
		"-f", "rawvideo", "-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", strconv.Itoa(fps),
		"-i", "pipe:0",
		"-thread_queue_size", "512",
		"-f", "s16le", "-ar", strconv.Itoa(rate), "-ac", "1",
		"-i", "pipe:3",
		"-map", "0:v", "-map", "1:a",
		"-c:v", f.videoCodec,
		"-b:v", strconv.Itoa(bitrate),
		"-pix_fmt", "yuv420p",
	}
	args = append(args, f.videoArgs...)
	args = append(args, "-c:a", f.audioCodec, "-b:a", "128k")
	args = append(args, f.muxerArgs...)
	return append(args, "-f", f.muxer, "pipe:1")
}

func startFFmpeg(path string, f Format, width, height, fps, rate, bitrate int, emit func([]byte)) (*ffmpegEncoder, error) {
	// -nostdin only stops interactive reads; pipe:0 is still consumed.
	cmd := exec.Command(path, ffmpegArgs(f, width, height, fps, rate, bitrate)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	audioR, audioW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg audio pipe: %w", err)
	}
	cmd.ExtraFiles = []*os.File{audioR}

	tail := &tailBuffer{limit: 4096}
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		audioR.Close()
		audioW.Close()
		return nil, fmt.Errorf("starting ffmpeg: %w", err)
	}
	// The child holds its own copy of the read end.
	audioR.Close()

	e := &ffmpegEncoder{
		cmd:    cmd,
		video:  make(chan []byte, 4),
		audio:  make(chan []byte, 64),
		stderr: tail,
	}

	e.writers.Add(2)
	go e.pump(stdin, e.video, "video")
	go e.pump(audioW, e.audio, "audio")

	e.reader.Add(1)
	go func() {
		defer e.reader.Done()
		buf := make([]byte, stdoutChunk)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				emit(chunk)
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					slog.Warn("Recorder: ffmpeg stdout read failed", "error", err)
				}
				return
			}
		}
	}()

	slog.Debug("Recorder: ffmpeg started", "pid", cmd.Process.Pid, "mime", f.MIMEType)
	return e, nil
}

func (e *ffmpegEncoder) pump(w io.WriteCloser, ch <-chan []byte, name string) {
	defer e.writers.Done()
	defer w.Close()

	failed := false
	for b := range ch {
		if failed {
			continue // drain so senders never block
		}
		if _, err := w.Write(b); err != nil {
			e.setErr(fmt.Errorf("ffmpeg %s pipe: %w", name, err))
			failed = true
		}
	}
}

func (e *ffmpegEncoder) setErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.writeErr == nil {
		e.writeErr = err
	}
}

func (e *ffmpegEncoder) err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writeErr
}

func (e *ffmpegEncoder) WriteFrame(img *image.RGBA) error {
	if err := e.err(); err != nil {
		return err
	}
	e.video <- img.Pix
	return nil
}

func (e *ffmpegEncoder) WriteAudio(pcm []int16) error {
	if err := e.err(); err != nil {
		return err
	}
	if len(pcm) == 0 {
		return nil
	}
	data := make([]byte, 2*len(pcm))
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(data[2*i:], uint16(s))
	}
	e.audio <- data
	return nil
}

func (e *ffmpegEncoder) closeInputs() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.video)
	close(e.audio)
}

// Finish closes both inputs and waits for ffmpeg to write its trailer and
// exit. ffmpeg streams the whole container, so there is no prefix.
func (e *ffmpegEncoder) Finish(ctx context.Context) ([]byte, error) {
	e.closeInputs()

	exited := make(chan error, 1)
	go func() {
		e.writers.Wait()
		e.reader.Wait()
		exited <- e.cmd.Wait()
	}()

	select {
	case err := <-exited:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited: %w: %s", err, strings.TrimSpace(e.stderr.String()))
		}
		return nil, e.err()
	case <-ctx.Done():
		_ = e.cmd.Process.Kill()
		<-exited
		return nil, ctx.Err()
	}
}

// Abort kills the process. Pending writes fail and drain; Finish still
// reaps it.
func (e *ffmpegEncoder) Abort() {
	if e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
	}
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

// listEncoders returns ffmpeg's encoder table.
func listEncoders(ctx context.Context, path string) (string, error) {
	out, err := exec.CommandContext(ctx, path, "-hide_banner", "-encoders").Output()
	if err != nil {
		return "", fmt.Errorf("listing ffmpeg encoders: %w", err)
	}
	return string(out), nil
}

// hasEncoder reports whether name appears as an encoder in table.
func hasEncoder(table, name string) bool {
	for _, line := range strings.Split(table, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == name {
			return true
		}
	}
	return false
}
