package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"ravayatgo/pkg/audio"
	"ravayatgo/pkg/config"
	"ravayatgo/pkg/logging"
	"ravayatgo/pkg/model"
	"ravayatgo/pkg/playback"
	"ravayatgo/pkg/probe"
	"ravayatgo/pkg/recorder"
	"ravayatgo/pkg/version"

	"github.com/joho/godotenv"
	"google.golang.org/genai"
)

const defaultConfigPath = "configs/ravayat.yaml"

var (
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
	configPath = flag.String("config", defaultConfigPath, "Path to the config file")
	storyPath  = flag.String("story", "", "Story JSON document")
	imageList  = flag.String("images", "", "Comma-separated image files in index order")
	record     = flag.Bool("record", false, "Capture the presentation into a video file")
	outDir     = flag.String("out", "", "Output directory (default: recording.output_dir)")
	wavOut     = flag.Bool("wav", false, "Write every narrated page as a WAV file")
	cardPath   = flag.String("card", "", "Result JSON; renders a PNG card and plays the result as a one-page story")
	ttsPath    = flag.String("tts", "", "Gemini speech response JSON narrating the -card result")
	trace      = flag.Bool("trace", false, "Log every frame and capture tick at DEBUG level")
)

type options struct {
	configPath string
	storyPath  string
	images     []string
	record     bool
	outDir     string
	wav        bool
	cardPath   string
	ttsPath    string
}

func main() {
	flag.Parse()
	logging.EnableTrace = *trace

	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config file generated: %s\n", *configPath)
		return
	}

	// .env is optional; it only supplies RAVAYAT_* fallbacks.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env: %v\n", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		cancel()
	}()

	opts := options{
		configPath: *configPath,
		storyPath:  *storyPath,
		images:     splitList(*imageList),
		record:     *record,
		outDir:     *outDir,
		wav:        *wavOut,
		cardPath:   *cardPath,
		ttsPath:    *ttsPath,
	}
	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	if opts.storyPath == "" && opts.cardPath == "" {
		return errors.New("either -story or -card is required")
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("Ravayat Started", "version", version.Version, "output", cfg.Audio.Output)

	out := opts.outDir
	if out == "" {
		out = cfg.Recording.OutputDir
	}

	if err := startupChecks(ctx, cfg, opts.record); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	images, err := model.LoadImages(opts.images)
	if err != nil {
		return fmt.Errorf("failed to load images: %w", err)
	}

	engine, err := playback.NewEngine(cfg, images)
	if err != nil {
		return err
	}
	defer engine.Close()

	var story *model.Story
	if opts.cardPath != "" {
		story, err = prepareCard(engine, cfg, opts, images, out)
	} else {
		story, err = loadStory(opts.storyPath)
	}
	if err != nil {
		return err
	}
	if hi := story.MaxImageIndex(); hi >= len(images) {
		slog.Warn("Story refers to missing images, the first image is shown instead", "max_index", hi, "images", len(images))
	}

	if opts.wav {
		if err := writeWAVs(story, cfg.Recording.FilenamePrefix, out); err != nil {
			return err
		}
	}

	engine.Load(story)
	if opts.record {
		err = engine.Record()
	} else {
		err = engine.Restart()
	}
	if err != nil {
		return err
	}

	if err := engine.Wait(ctx); err != nil {
		slog.Info("Interrupted, stopping playback")
		engine.Stop()
	}

	if err := engine.LastError(); err != nil {
		if !errors.Is(err, recorder.ErrFinalizeTimeout) {
			return err
		}
		slog.Warn("Recording was force-stopped", "error", err)
	}

	if opts.record {
		art := engine.LastArtifact()
		if art == nil {
			return errors.New("recording produced no artifact")
		}
		path, err := art.Save(out)
		if err != nil {
			return err
		}
		slog.Info("Recording saved", "path", path, "mime", art.MIMEType, "bytes", len(art.Blob), "duration", art.Duration.Round(time.Millisecond))
	}
	return nil
}

// startupChecks verifies what the requested run needs. The encoder check is
// only critical when recording.
func startupChecks(ctx context.Context, cfg *config.Config, recording bool) error {
	rec := recorder.New(&cfg.Recording)
	probes := []probe.Probe{
		{
			Name: "Video Encoder",
			Check: func(ctx context.Context) error {
				f, err := rec.Negotiate(ctx)
				if err != nil {
					return err
				}
				slog.Info("Recording format negotiated", "mime", f.MIMEType)
				return nil
			},
			Critical: recording,
			Timeout:  15 * time.Second,
		},
		{
			Name: "FFmpeg",
			Check: func(context.Context) error {
				_, err := exec.LookPath(cfg.Recording.FFmpegPath)
				return err
			},
			Critical: false, // the builtin AVI writer needs no external tool
		},
	}
	return probe.AnalyzeResults(probe.Run(ctx, probes))
}

func loadStory(path string) (*model.Story, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read story: %w", err)
	}
	return model.ParseStory(data)
}

// prepareCard renders the result card and returns the result as a one-page
// story narrated by the optional speech response.
func prepareCard(engine *playback.Engine, cfg *config.Config, opts options, images model.ImageSequence, out string) (*model.Story, error) {
	data, err := os.ReadFile(opts.cardPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read result: %w", err)
	}
	var res model.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to parse result: %w", err)
	}

	story := res.Story(nil)
	if opts.ttsPath != "" {
		narration, err := loadNarration(opts.ttsPath)
		if err == nil {
			story, err = story.WithNarration(0, narration)
		}
		if err != nil {
			// The card still plays for the fallback duration.
			slog.Warn("Narration unavailable for card", "path", opts.ttsPath, "error", err)
			story = res.Story(nil)
		}
	}

	img, ok := images.At(0)
	if !ok {
		return nil, errors.New("no image available for the card")
	}
	png, err := engine.RenderCard(&res, img)
	if err != nil {
		return nil, fmt.Errorf("failed to render card: %w", err)
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(out, fmt.Sprintf("%s-card-%d.png", cfg.Recording.FilenamePrefix, time.Now().UnixMilli()))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write card: %w", err)
	}
	slog.Info("Card saved", "path", path, "title", res.CharacterTitle)

	return story, nil
}

// loadNarration extracts the PCM payload from a saved speech response.
func loadNarration(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var resp genai.GenerateContentResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse speech response: %w", err)
	}
	return model.NarrationFromResponse(&resp)
}

func writeWAVs(story *model.Story, prefix, out string) error {
	if err := os.MkdirAll(out, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	for i, p := range story.Pages {
		if !p.HasNarration() {
			continue
		}
		path := filepath.Join(out, fmt.Sprintf("%s-page-%02d.wav", prefix, i))
		if err := os.WriteFile(path, audio.NarrationWAV(p.Narration), 0o644); err != nil {
			return fmt.Errorf("failed to write narration %d: %w", i, err)
		}
		slog.Debug("Narration exported", "page", i, "path", path)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
