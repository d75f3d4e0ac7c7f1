// Package playback walks a story page by page, keeping narration, the
// render loop and an optional recording in step.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ravayatgo/pkg/audio"
	"ravayatgo/pkg/config"
	"ravayatgo/pkg/logging"
	"ravayatgo/pkg/model"
	"ravayatgo/pkg/recorder"
	"ravayatgo/pkg/render"
	"ravayatgo/pkg/session"

	"github.com/gopxl/beep/v2"
)

var (
	// ErrPlayback ends a session that cannot iterate its pages.
	ErrPlayback = errors.New("playback failed")

	// ErrNavigationDisabled is returned by Next and Previous while recording.
	ErrNavigationDisabled = errors.New("navigation disabled while recording")
)

// Sequencer drives one story through the audio unit and the render loop.
// Every session it starts owns a token; work from a superseded session
// checks the token after each wait and backs out without side effects.
type Sequencer struct {
	cfg      config.PlaybackConfig
	sessions *session.Controller
	unit     *audio.Unit
	loop     *render.Loop
	surface  *render.Surface
	rec      *recorder.Recorder
	rate     beep.SampleRate

	cursor Cursor

	// recMu orders recorder start, abort and finalize so the capture
	// destination belongs to one handle at a time. Never taken while mu
	// is held.
	recMu sync.Mutex

	mu        sync.Mutex
	story     *model.Story
	state     State
	recording *recorder.Handle
	artifact  *recorder.Artifact
	lastErr   error
	subs      map[chan StateSnapshot]struct{}
	closed    bool

	// finalizing counts recordings taken off the session but not yet
	// published. flushed is signalled on mu whenever it drops.
	finalizing int
	flushed    *sync.Cond

	wg sync.WaitGroup
}

// NewSequencer wires the playback pipeline. rec may be nil, in which case
// Record fails with recorder.ErrUnsupportedCapture.
func NewSequencer(cfg *config.PlaybackConfig, sessions *session.Controller, unit *audio.Unit, loop *render.Loop, surface *render.Surface, rec *recorder.Recorder) *Sequencer {
	s := &Sequencer{
		cfg:      *cfg,
		sessions: sessions,
		unit:     unit,
		loop:     loop,
		surface:  surface,
		rec:      rec,
		rate:     audio.NarrationSampleRate,
		subs:     make(map[chan StateSnapshot]struct{}),
	}
	s.flushed = sync.NewCond(&s.mu)
	return s
}

// SetNarrationRate sets the sample rate narration payloads are decoded at.
func (s *Sequencer) SetNarrationRate(rate beep.SampleRate) {
	s.mu.Lock()
	s.rate = rate
	s.mu.Unlock()
}

// Load stops any running session and replaces the story. The cursor goes
// back to the first page.
func (s *Sequencer) Load(story *model.Story) {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.story = story
	s.cursor.Store(0)
	s.notifyLocked()
	if story != nil {
		slog.Debug("Playback: Story loaded", "title", story.Title, "pages", story.Len())
	}
}

// Story returns the loaded story.
func (s *Sequencer) Story() *model.Story {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.story
}

// Cursor returns the page on screen.
func (s *Sequencer) Cursor() int { return s.cursor.Load() }

// State returns the current mode.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns the current observable state.
func (s *Sequencer) Snapshot() StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// LastArtifact returns the most recent finalized recording.
func (s *Sequencer) LastArtifact() *recorder.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifact
}

// LastError returns the error that ended the last session, if any.
func (s *Sequencer) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Subscribe returns a channel of state snapshots and a func that ends the
// subscription. Slow readers lose the oldest snapshots, never the newest.
func (s *Sequencer) Subscribe() (<-chan StateSnapshot, func()) {
	ch := make(chan StateSnapshot, 16)

	s.mu.Lock()
	if s.closed {
		close(ch)
	} else {
		s.subs[ch] = struct{}{}
	}
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
}

func (s *Sequencer) snapshotLocked() StateSnapshot {
	return StateSnapshot{
		State:     s.state,
		Page:      s.cursor.Load(),
		Token:     s.sessions.Current(),
		Recording: s.recording != nil,
	}
}

func (s *Sequencer) notifyLocked() {
	snap := s.snapshotLocked()
	for ch := range s.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// Wait blocks until no session is advancing, i.e. the state is Idle or
// Finished, with any recording of the session finalized.
func (s *Sequencer) Wait(ctx context.Context) error {
	ch, cancel := s.Subscribe()
	defer cancel()

	if s.settled() {
		return nil
	}
	for {
		select {
		case snap, ok := <-ch:
			if !ok || (snap.State.terminal() && s.settled()) {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// settled reports a terminal state with nothing left to finalize.
func (s *Sequencer) settled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.terminal() && s.finalizing == 0
}

// PlayFrom starts a new session at page index. With record set the
// recorder is started before the first page plays. An index outside the
// story ends the session with ErrPlayback and leaves the sequencer Idle.
func (s *Sequencer) PlayFrom(index int, record bool) error {
	return s.playFrom(index, record, false)
}

// playFrom is PlayFrom for both direct starts and navigation. Navigation
// is refused under the same lock that begins the session, so a recording
// started concurrently is never cut short by Next or Previous.
func (s *Sequencer) playFrom(index int, record, navigate bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("%w: sequencer closed", ErrPlayback)
	}
	if navigate && s.state == Recording {
		s.mu.Unlock()
		return ErrNavigationDisabled
	}

	tok := s.sessions.Begin()
	prev := s.recording
	s.recording = nil
	s.unit.Stop()
	s.lastErr = nil

	story := s.story
	if index < 0 || index >= story.Len() {
		err := fmt.Errorf("%w: page %d out of range [0,%d)", ErrPlayback, index, story.Len())
		s.loop.Stop()
		s.state = Idle
		s.lastErr = err
		s.notifyLocked()
		s.mu.Unlock()

		s.abort(prev)
		slog.Error("Playback: Session failed", "token", tok, "error", err)
		s.logEvent(tok, model.EventError, index, err.Error())
		return err
	}

	s.cursor.Store(index)
	s.state = Playing
	s.loop.Start(s.provider(story), story.Title)
	s.notifyLocked()
	s.mu.Unlock()

	// The old capture must release the destination before a new one attaches.
	s.abort(prev)

	slog.Info("Playback: Session started", "token", tok, "from", index, "pages", story.Len(), "record", record)
	s.logEvent(tok, model.EventSessionStart, index, fmt.Sprintf("%q from page %d, record=%t", story.Title, index, record))

	var h *recorder.Handle
	if record {
		var err error
		h, err = s.startRecording(tok)
		if errors.Is(err, session.ErrStaleSession) {
			return nil
		}
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sessions.IsCurrent(tok) {
		// A newer session already took over h.
		return nil
	}
	s.wg.Add(1)
	go s.run(tok, story, index, h)
	return nil
}

// Restart plays the story from the first page without recording.
func (s *Sequencer) Restart() error {
	return s.PlayFrom(0, false)
}

// Record plays the story from the first page while capturing it.
func (s *Sequencer) Record() error {
	return s.PlayFrom(0, true)
}

// Next skips to the following page. Past the last page the story is
// finished.
func (s *Sequencer) Next() error {
	s.mu.Lock()
	if s.state == Recording {
		s.mu.Unlock()
		return ErrNavigationDisabled
	}
	story := s.story
	next := s.cursor.Load() + 1
	if story.Len() == 0 || next < story.Len() {
		s.mu.Unlock()
		return s.playFrom(next, false, true)
	}

	tok := s.sessions.Begin()
	s.unit.Stop()
	s.loop.Stop()
	s.state = Finished
	s.notifyLocked()
	s.mu.Unlock()

	s.logEvent(tok, model.EventFinished, next-1, "skipped past last page")
	return nil
}

// Previous goes back one page. On the first page it replays that page.
func (s *Sequencer) Previous() error {
	return s.playFrom(max(s.cursor.Load()-1, 0), false, true)
}

// Stop halts narration and animation and keeps the cursor so playback can
// resume from the same page. A running recording is finalized with what
// was captured so far. Stop returns once every recording still being
// finalized has been published.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	tok := s.sessions.Begin()
	rec := s.takeRecordingLocked()
	s.unit.Stop()
	s.loop.Stop()
	active := !s.state.terminal()
	s.mu.Unlock()

	if rec != nil {
		s.finalize(tok, rec)
	}

	s.mu.Lock()
	for s.finalizing > 0 {
		s.flushed.Wait()
	}
	if active && s.sessions.IsCurrent(tok) {
		s.state = Idle
		s.notifyLocked()
	}
	s.mu.Unlock()

	if active {
		slog.Info("Playback: Stopped", "page", s.cursor.Load())
		s.logEvent(tok, model.EventStopped, s.cursor.Load(), "")
	}
}

// Close stops playback and releases the audio device. The sequencer
// cannot be used afterwards.
func (s *Sequencer) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.Stop()
	s.wg.Wait()

	s.mu.Lock()
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
	s.mu.Unlock()

	return s.unit.Graph().Close()
}

// provider reads the cursor on every call; the story is fixed for the
// session.
func (s *Sequencer) provider(story *model.Story) render.PageProvider {
	return func() (int, model.Page, bool) {
		i := s.cursor.Load()
		p, ok := story.Page(i)
		return i, p, ok
	}
}

func (s *Sequencer) run(tok session.Token, story *model.Story, from int, h *recorder.Handle) {
	defer s.wg.Done()

	if h != nil {
		s.mu.Lock()
		rate := s.rate
		s.mu.Unlock()

		budget := expectedDuration(story, from, rate, s.cfg.FallbackDuration.D()) + s.cfg.SafetyMargin.D()
		safety := time.AfterFunc(budget, func() { s.forceStop(tok, h) })
		defer safety.Stop()
	}

	for i := from; i < story.Len(); i++ {
		if !s.advance(tok, i) {
			return
		}
		if !s.playPage(tok, i, story.Pages[i]) {
			return
		}
	}
	s.finish(tok, story.Len()-1)
}

// advance moves the cursor to page i if tok is still current.
func (s *Sequencer) advance(tok session.Token, i int) bool {
	s.mu.Lock()
	if !s.sessions.IsCurrent(tok) {
		s.mu.Unlock()
		return false
	}
	s.cursor.Store(i)
	s.notifyLocked()
	s.mu.Unlock()

	slog.Debug("Playback: Page", "token", tok, "page", i)
	s.logEvent(tok, model.EventPage, i, "")
	return true
}

// playPage plays the page's narration, or waits the fallback duration when
// there is none or it cannot be played. It returns false once the session
// is over.
func (s *Sequencer) playPage(tok session.Token, i int, page model.Page) bool {
	var reason string

	switch {
	case page.NarrationErr != nil:
		reason = page.NarrationErr.Error()
	case !page.HasNarration():
		reason = "no narration"
	default:
		s.mu.Lock()
		rate := s.rate
		s.mu.Unlock()

		buf, err := audio.DecodeRate(page.Narration, rate)
		if err != nil {
			slog.Warn("Playback: Narration undecodable, using fallback", "page", i, "error", err)
			reason = err.Error()
			break
		}

		err = s.unit.PlayAndWait(context.Background(), buf, tok)
		switch {
		case err == nil:
			return s.sessions.IsCurrent(tok)
		case errors.Is(err, session.ErrStaleSession):
			return false
		case errors.Is(err, audio.ErrResourceUnavailable):
			s.fail(tok, i, err)
			return false
		}
		slog.Warn("Playback: Narration failed, using fallback", "page", i, "error", err)
		reason = err.Error()
	}

	s.logEvent(tok, model.EventFallback, i, reason)
	return s.fallback(tok)
}

func (s *Sequencer) fallback(tok session.Token) bool {
	t := time.NewTimer(s.cfg.FallbackDuration.D())
	defer t.Stop()

	select {
	case <-t.C:
		return s.sessions.IsCurrent(tok)
	case <-s.sessions.Done(tok):
		return false
	}
}

// fail ends the session with ErrPlayback. Any recording is discarded.
func (s *Sequencer) fail(tok session.Token, page int, cause error) {
	err := fmt.Errorf("%w: %w", ErrPlayback, cause)

	s.mu.Lock()
	if !s.sessions.IsCurrent(tok) {
		s.mu.Unlock()
		return
	}
	rec := s.recording
	s.recording = nil
	s.loop.Stop()
	s.state = Idle
	s.lastErr = err
	s.notifyLocked()
	s.mu.Unlock()

	s.abort(rec)
	slog.Error("Playback: Session failed", "token", tok, "page", page, "error", err)
	s.logEvent(tok, model.EventError, page, err.Error())
}

func (s *Sequencer) finish(tok session.Token, last int) {
	s.mu.Lock()
	if !s.sessions.IsCurrent(tok) {
		s.mu.Unlock()
		return
	}
	rec := s.takeRecordingLocked()
	s.mu.Unlock()

	if rec != nil {
		s.finalize(tok, rec)
	}

	s.mu.Lock()
	current := s.sessions.IsCurrent(tok)
	if current {
		s.loop.Stop()
		s.state = Finished
		s.notifyLocked()
	}
	s.mu.Unlock()

	if current {
		slog.Info("Playback: Finished", "token", tok, "pages", last+1)
		s.logEvent(tok, model.EventFinished, last, "")
	}
}

// forceStop fires when a recording outlives its expected length. The
// session is ended and whatever was captured is still finalized.
func (s *Sequencer) forceStop(tok session.Token, h *recorder.Handle) {
	s.mu.Lock()
	if s.recording != h {
		s.mu.Unlock()
		return
	}
	s.takeRecordingLocked()

	var next session.Token
	if s.sessions.IsCurrent(tok) {
		next = s.sessions.Begin()
		s.unit.Stop()
		s.loop.Stop()
	}
	page := s.cursor.Load()
	s.mu.Unlock()

	slog.Warn("Playback: Recording overran its expected length, forcing stop", "id", h.ID(), "page", page, "error", recorder.ErrFinalizeTimeout)
	s.logEvent(tok, model.EventRecordTimeout, page, h.ID())
	s.finalize(tok, h)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastErr == nil {
		s.lastErr = recorder.ErrFinalizeTimeout
	}
	if next != 0 && s.sessions.IsCurrent(next) {
		s.state = Idle
	}
	s.notifyLocked()
}

func (s *Sequencer) startRecording(tok session.Token) (*recorder.Handle, error) {
	s.recMu.Lock()
	defer s.recMu.Unlock()

	h, err := s.openRecorder()

	s.mu.Lock()
	if !s.sessions.IsCurrent(tok) {
		s.mu.Unlock()
		if h != nil {
			h.Abort()
		}
		return nil, session.ErrStaleSession
	}
	if err != nil {
		s.loop.Stop()
		s.state = Idle
		s.lastErr = err
		s.notifyLocked()
		s.mu.Unlock()

		slog.Error("Playback: Recording unavailable", "token", tok, "error", err)
		s.logEvent(tok, model.EventError, s.cursor.Load(), err.Error())
		return nil, err
	}
	s.recording = h
	s.state = Recording
	s.notifyLocked()
	s.mu.Unlock()

	s.logEvent(tok, model.EventRecordStart, s.cursor.Load(), fmt.Sprintf("%s %s", h.ID(), h.MIMEType()))
	return h, nil
}

func (s *Sequencer) openRecorder() (*recorder.Handle, error) {
	if s.rec == nil {
		return nil, recorder.ErrUnsupportedCapture
	}
	g := s.unit.Graph()
	// The output's clock drives the captured audio, so it must run before
	// the first frame is taken.
	if _, err := g.Ensure(); err != nil {
		return nil, err
	}
	return s.rec.Start(context.Background(), s.surface, g.Destination())
}

// takeRecordingLocked detaches the running recording for finalize, which
// must follow for any non-nil result.
func (s *Sequencer) takeRecordingLocked() *recorder.Handle {
	h := s.recording
	if h != nil {
		s.recording = nil
		s.finalizing++
	}
	return h
}

// finalize stops h and publishes its artifact. The artifact is kept even
// when a newer session has started in the meantime.
func (s *Sequencer) finalize(tok session.Token, h *recorder.Handle) {
	s.recMu.Lock()
	defer s.recMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FinalizeTimeout.D())
	defer cancel()
	art, err := h.Stop(ctx)

	s.mu.Lock()
	if err != nil {
		s.lastErr = err
	} else {
		s.artifact = art
	}
	s.finalizing--
	s.flushed.Broadcast()
	s.notifyLocked()
	page := s.cursor.Load()
	s.mu.Unlock()

	if err != nil {
		slog.Error("Playback: Recording finalize failed", "id", h.ID(), "error", err)
		s.logEvent(tok, model.EventError, page, err.Error())
		return
	}
	slog.Info("Playback: Recording ready", "id", h.ID(), "file", art.SuggestedFilename, "bytes", len(art.Blob), "duration", art.Duration)
	s.logEvent(tok, model.EventRecordSaved, page, art.SuggestedFilename)
}

// abort discards h without producing an artifact.
func (s *Sequencer) abort(h *recorder.Handle) {
	if h == nil {
		return
	}
	s.recMu.Lock()
	defer s.recMu.Unlock()

	h.Abort()
	slog.Info("Playback: Recording discarded", "id", h.ID())
}

func (s *Sequencer) logEvent(tok session.Token, typ model.PlaybackEventType, page int, summary string) {
	logging.LogEvent(&model.PlaybackEvent{
		Timestamp: time.Now(),
		Type:      typ,
		Session:   uint64(tok),
		Page:      page,
		Summary:   summary,
	})
}

// expectedDuration is how long pages from..end take when every narration
// plays through. Pages that will fall back count the fallback duration.
func expectedDuration(story *model.Story, from int, rate beep.SampleRate, fallback time.Duration) time.Duration {
	var total time.Duration
	for _, p := range story.Pages[from:] {
		if p.HasNarration() && p.NarrationErr == nil && len(p.Narration)%2 == 0 {
			total += rate.D(len(p.Narration) / 2)
			continue
		}
		total += fallback
	}
	return total
}
