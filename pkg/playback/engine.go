package playback

import (
	"fmt"
	"image"

	"ravayatgo/pkg/audio"
	"ravayatgo/pkg/config"
	"ravayatgo/pkg/model"
	"ravayatgo/pkg/recorder"
	"ravayatgo/pkg/render"
	"ravayatgo/pkg/session"

	"github.com/gopxl/beep/v2"
)

// Engine owns one audio graph, one surface and the sequencer that drives
// them. Story playback and single result cards go through the same pair
// of render loop and recorder.
type Engine struct {
	*Sequencer

	cfg      *config.Config
	graph    *audio.Graph
	surface  *render.Surface
	painter  *render.Painter
	loop     *render.Loop
	recorder *recorder.Recorder
}

// NewEngine builds an engine from cfg. The audio device is not opened
// until the first narration plays or a recording starts.
func NewEngine(cfg *config.Config, images render.ImageSource) (*Engine, error) {
	painter, err := render.NewPainter(&cfg.Render)
	if err != nil {
		return nil, fmt.Errorf("failed to create painter: %w", err)
	}

	sessions := session.NewController()
	graph := audio.NewGraph(&cfg.Audio)
	surface := render.NewSurface(cfg.Render.Width, cfg.Render.Height)
	loop := render.NewLoop(surface, painter, images, cfg.Render.FPS)
	rec := recorder.New(&cfg.Recording)

	seq := NewSequencer(&cfg.Playback, sessions, audio.NewUnit(graph, sessions), loop, surface, rec)
	seq.SetNarrationRate(beep.SampleRate(cfg.Audio.SampleRate))

	return &Engine{
		Sequencer: seq,
		cfg:       cfg,
		graph:     graph,
		surface:   surface,
		painter:   painter,
		loop:      loop,
		recorder:  rec,
	}, nil
}

// SetImages replaces the images pages refer to.
func (e *Engine) SetImages(images render.ImageSource) { e.loop.SetImages(images) }

// LoadResult loads a single result as a one-page story over image 0.
func (e *Engine) LoadResult(r *model.Result, narration []byte) {
	e.Load(r.Story(narration))
}

// RenderCard draws the shareable result card at the surface width.
func (e *Engine) RenderCard(r *model.Result, img image.Image) ([]byte, error) {
	return e.painter.RenderCard(r, img, e.cfg.Render.Width)
}

// Graph returns the audio graph.
func (e *Engine) Graph() *audio.Graph { return e.graph }

// Surface returns the drawing surface.
func (e *Engine) Surface() *render.Surface { return e.surface }

// Recorder returns the recorder used by Record.
func (e *Engine) Recorder() *recorder.Recorder { return e.recorder }
