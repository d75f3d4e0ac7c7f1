package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "ravayat.yaml")

	tests := []struct {
		name      string
		setup     func()
		validate  func(t *testing.T, cfg *Config)
		checkFile func(t *testing.T)
	}{
		{
			name:  "Defaults_Created",
			setup: func() { _ = os.Remove(configPath) },
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 24000, cfg.Audio.SampleRate)
				assert.Equal(t, 720, cfg.Render.Width)
				assert.Equal(t, 1280, cfg.Render.Height)
				assert.Equal(t, 4*time.Second, cfg.Playback.FallbackDuration.D())
				assert.Equal(t, DefaultMIMETypes, cfg.Recording.MIMETypes)
			},
			checkFile: func(t *testing.T) {
				content, err := os.ReadFile(configPath)
				require.NoError(t, err)
				assert.Contains(t, string(content), "# Ravayat Configuration")
				assert.Contains(t, string(content), "# Options: speaker, clock")
				assert.Contains(t, string(content), "fallback_duration: 4s")
			},
		},
		{
			name: "Partial_File_Merges_Defaults",
			setup: func() {
				data := "audio:\n  output: clock\nplayback:\n  fallback_duration: 250ms\nrecording:\n  mime_types: [\"video/mp4\"]\n"
				require.NoError(t, os.WriteFile(configPath, []byte(data), 0o644))
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "clock", cfg.Audio.Output)
				assert.Equal(t, 250*time.Millisecond, cfg.Playback.FallbackDuration.D())
				assert.Equal(t, []string{"video/mp4"}, cfg.Recording.MIMETypes)
				assert.Equal(t, 30, cfg.Render.FPS, "untouched sections keep defaults")
			},
			checkFile: func(t *testing.T) {
				content, err := os.ReadFile(configPath)
				require.NoError(t, err)
				assert.False(t, strings.Contains(string(content), "Ravayat Configuration"), "existing file is not rewritten")
			},
		},
		{
			name: "Env_Override_Not_Persisted",
			setup: func() {
				t.Setenv("RAVAYAT_FFMPEG", "/opt/ffmpeg/bin/ffmpeg")
				require.NoError(t, os.WriteFile(configPath, []byte("recording:\n  ffmpeg_path: ffmpeg\n"), 0o644))
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.Recording.FFmpegPath)
			},
			checkFile: func(t *testing.T) {
				content, err := os.ReadFile(configPath)
				require.NoError(t, err)
				assert.NotContains(t, string(content), "/opt/ffmpeg")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			cfg, err := Load(configPath)
			require.NoError(t, err)
			tt.validate(t, cfg)
			if tt.checkFile != nil {
				tt.checkFile(t)
			}
		})
	}
}

func TestLoad_Invalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.yaml")

	tests := []struct {
		name string
		data string
	}{
		{"Unknown_Output", "audio:\n  output: hdmi\n"},
		{"Zero_FPS", "render:\n  fps: 0\n"},
		{"Shrinking_Zoom", "render:\n  max_zoom: 0.5\n"},
		{"Empty_Mime_List", "recording:\n  mime_types: []\n"},
		{"Broken_Yaml", "audio: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(configPath, []byte(tt.data), 0o644))
			_, err := Load(configPath)
			assert.Error(t, err)
		})
	}
}

func TestGenerateDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ravayat.yaml")
	require.NoError(t, GenerateDefault(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	// Existing files are left alone.
	require.NoError(t, os.WriteFile(path, []byte("audio:\n  volume: 0.3\n"), 0o644))
	require.NoError(t, GenerateDefault(path))
	content, _ := os.ReadFile(path)
	assert.Equal(t, "audio:\n  volume: 0.3\n", string(content))
}
