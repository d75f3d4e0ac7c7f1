package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Audio     AudioConfig     `yaml:"audio"`
	Render    RenderConfig    `yaml:"render"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Recording RecordingConfig `yaml:"recording"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server LogSettings `yaml:"server"`
	Events LogSettings `yaml:"events"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// AudioConfig holds narration decoding and output settings.
type AudioConfig struct {
	Output     string  `yaml:"output"`      // "speaker", "clock"
	OutputRate int     `yaml:"output_rate"` // device rate, narration is resampled to it
	SampleRate int     `yaml:"sample_rate"` // narration payload rate
	Volume     float64 `yaml:"volume"`
}

// RenderConfig holds drawing surface and animation settings.
type RenderConfig struct {
	Width       int     `yaml:"width"`
	Height      int     `yaml:"height"`
	FPS         int     `yaml:"fps"`
	ZoomSpeed   float64 `yaml:"zoom_speed"` // scale gained per millisecond
	MaxZoom     float64 `yaml:"max_zoom"`
	PageSeedMs  int     `yaml:"page_seed_ms"` // zoom offset per page index
	FontPath    string  `yaml:"font_path"`    // empty uses the embedded Go Bold face
	CaptionSize float64 `yaml:"caption_size"`
	TitleSize   float64 `yaml:"title_size"`
}

// PlaybackConfig holds sequencing settings.
type PlaybackConfig struct {
	FallbackDuration Duration `yaml:"fallback_duration"` // pages without usable narration
	SafetyMargin     Duration `yaml:"safety_margin"`     // added to expected length before force-stopping a recording
	FinalizeTimeout  Duration `yaml:"finalize_timeout"`
}

// RecordingConfig holds capture settings.
type RecordingConfig struct {
	FPS            int      `yaml:"fps"`
	VideoBitrate   int      `yaml:"video_bitrate"`
	MIMETypes      []string `yaml:"mime_types"` // richest first
	FFmpegPath     string   `yaml:"ffmpeg_path"`
	FilenamePrefix string   `yaml:"filename_prefix"`
	OutputDir      string   `yaml:"output_dir"`
}

// DefaultMIMETypes is the capture preference list, richest first.
var DefaultMIMETypes = []string{
	"video/webm;codecs=vp9,opus",
	"video/webm;codecs=vp8,opus",
	"video/webm",
	"video/mp4",
	"video/x-msvideo;codecs=mjpeg,pcm",
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Events: LogSettings{
				Path:  "./logs/events.log",
				Level: "INFO",
			},
		},
		Audio: AudioConfig{
			Output:     "speaker",
			OutputRate: 48000,
			SampleRate: 24000,
			Volume:     1.0,
		},
		Render: RenderConfig{
			Width:       720,
			Height:      1280,
			FPS:         30,
			ZoomSpeed:   0.00005,
			MaxZoom:     1.15,
			PageSeedMs:  10000,
			CaptionSize: 26,
			TitleSize:   32,
		},
		Playback: PlaybackConfig{
			FallbackDuration: Duration(4 * time.Second),
			SafetyMargin:     Duration(5 * time.Second),
			FinalizeTimeout:  Duration(10 * time.Second),
		},
		Recording: RecordingConfig{
			FPS:            30,
			VideoBitrate:   2_500_000,
			MIMETypes:      append([]string(nil), DefaultMIMETypes...),
			FFmpegPath:     "ffmpeg",
			FilenamePrefix: "ravayatgar-story",
			OutputDir:      "./recordings",
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, defaults are merged under it but nothing is written back.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	// Env fallbacks are applied in memory only.
	if ff := os.Getenv("RAVAYAT_FFMPEG"); ff != "" {
		cfg.Recording.FFmpegPath = ff
	}
	if out := os.Getenv("RAVAYAT_AUDIO_OUTPUT"); out != "" {
		cfg.Audio.Output = out
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values the engine cannot run without.
func (c *Config) Validate() error {
	switch c.Audio.Output {
	case "speaker", "clock":
	default:
		return fmt.Errorf("invalid audio output %q: must be 'speaker' or 'clock'", c.Audio.Output)
	}
	if c.Audio.SampleRate <= 0 || c.Audio.OutputRate <= 0 {
		return fmt.Errorf("audio rates must be positive (sample_rate=%d, output_rate=%d)", c.Audio.SampleRate, c.Audio.OutputRate)
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 || c.Render.FPS <= 0 {
		return fmt.Errorf("invalid render geometry %dx%d@%d", c.Render.Width, c.Render.Height, c.Render.FPS)
	}
	if c.Render.MaxZoom < 1 {
		return fmt.Errorf("max_zoom must be >= 1, got %.2f", c.Render.MaxZoom)
	}
	if c.Recording.FPS <= 0 {
		return fmt.Errorf("recording fps must be positive, got %d", c.Recording.FPS)
	}
	if len(c.Recording.MIMETypes) == 0 {
		return fmt.Errorf("recording mime_types must not be empty")
	}
	return nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Ravayat Configuration
# ---------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)

`)
	data = append(header, data...)

	reOutput := regexp.MustCompile(`(?m)^(\s+)output:`)
	data = reOutput.ReplaceAll(data, []byte("${1}# Options: speaker, clock (headless, real-time)\n${1}output:"))

	reMime := regexp.MustCompile(`(?m)^(\s+)mime_types:`)
	data = reMime.ReplaceAll(data, []byte("${1}# Probed in order, first supported wins\n${1}mime_types:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
