package models

import (
	"encoding/json"
	"fmt"
	"os"
)

// SubtitleStyle holds the fixed caption look burned into the reel.
type SubtitleStyle struct {
	FontSize     int    `json:"font_size,omitempty"`
	FontColor    string `json:"font_color,omitempty"`
	OutlineColor string `json:"outline_color,omitempty"`
	Position     string `json:"position,omitempty"` // "bottom", "top", "center"
	MaxWords     int    `json:"max_words,omitempty"`
}

// ReelConfig is the single configuration structure for one pipeline
// run. Every recognized option is enumerated here, defaulted by
// LoadConfig and checked once by Validate before the first stage runs.
type ReelConfig struct {
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
	FPS    int `json:"fps,omitempty"`

	// Beat detection
	MinAudioSeconds      float64 `json:"min_audio_seconds,omitempty"`
	MinBeatSpacing       float64 `json:"min_beat_spacing,omitempty"`
	FallbackBeatInterval float64 `json:"fallback_beat_interval,omitempty"`

	// Transitions
	TransitionDuration float64 `json:"transition_duration,omitempty"`
	Seed               int64   `json:"seed,omitempty"` // 0 = derive from time

	// Subtitles
	SubtitleMergeGap float64       `json:"subtitle_merge_gap,omitempty"`
	Subtitles        SubtitleStyle `json:"subtitles,omitempty"`

	// Encoding
	CRF    int    `json:"crf,omitempty"`
	Preset string `json:"preset,omitempty"`

	OutputDir string `json:"output_dir,omitempty"`
	TempDir   string `json:"temp_dir,omitempty"`

	FFmpegPath  string `json:"ffmpeg_path,omitempty"`
	FFprobePath string `json:"ffprobe_path,omitempty"`
}

// DefaultConfig returns the production defaults: 1080x1920 portrait at
// 30fps, 0.5s beat spacing floor, 2s fallback scenes.
func DefaultConfig() ReelConfig {
	cfg := ReelConfig{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads a JSON config file and fills in defaults for every
// option the file leaves unset. A missing file yields pure defaults.
func LoadConfig(configPath string) (ReelConfig, error) {
	var cfg ReelConfig

	if configPath != "" {
		file, err := os.Open(configPath)
		if err != nil && !os.IsNotExist(err) {
			return cfg, err
		}
		// A missing file just means pure defaults.
		if err == nil {
			defer file.Close()
			if err := json.NewDecoder(file).Decode(&cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", configPath, err)
			}
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *ReelConfig) applyDefaults() {
	if c.Width <= 0 {
		c.Width = 1080
	}
	if c.Height <= 0 {
		c.Height = 1920
	}
	if c.FPS <= 0 {
		c.FPS = 30
	}
	if c.MinAudioSeconds <= 0 {
		c.MinAudioSeconds = 1.0
	}
	if c.MinBeatSpacing <= 0 {
		c.MinBeatSpacing = 0.5
	}
	if c.FallbackBeatInterval <= 0 {
		c.FallbackBeatInterval = 2.0
	}
	if c.TransitionDuration <= 0 {
		c.TransitionDuration = 0.3
	}
	if c.SubtitleMergeGap <= 0 {
		c.SubtitleMergeGap = 0.2
	}
	if c.Subtitles.FontSize <= 0 {
		c.Subtitles.FontSize = 24
	}
	if c.Subtitles.FontColor == "" {
		c.Subtitles.FontColor = "white"
	}
	if c.Subtitles.OutlineColor == "" {
		c.Subtitles.OutlineColor = "black"
	}
	if c.Subtitles.Position == "" {
		c.Subtitles.Position = "bottom"
	}
	if c.Subtitles.MaxWords <= 0 {
		c.Subtitles.MaxWords = 5
	}
	if c.CRF <= 0 {
		c.CRF = 23
	}
	if c.Preset == "" {
		c.Preset = "ultrafast"
	}
	if c.OutputDir == "" {
		c.OutputDir = "output"
	}
	if c.TempDir == "" {
		c.TempDir = "temp"
	}
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.FFprobePath == "" {
		c.FFprobePath = "ffprobe"
	}
}

// FrameDuration returns the duration of one output frame in seconds,
// the tolerance used for timeline/audio length checks.
func (c ReelConfig) FrameDuration() float64 {
	return 1.0 / float64(c.FPS)
}

// Validate rejects option combinations the pipeline cannot honor. It
// runs once at pipeline start.
func (c ReelConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("width and height must be positive")
	}
	if c.FPS <= 0 {
		return fmt.Errorf("fps must be positive")
	}
	if c.MinBeatSpacing <= 0 {
		return fmt.Errorf("min_beat_spacing must be positive")
	}
	if c.FallbackBeatInterval < c.MinBeatSpacing {
		return fmt.Errorf("fallback_beat_interval %.2f is below the beat spacing floor %.2f",
			c.FallbackBeatInterval, c.MinBeatSpacing)
	}
	if c.TransitionDuration <= 0 {
		return fmt.Errorf("transition_duration must be positive")
	}
	if c.TransitionDuration >= c.MinBeatSpacing {
		return fmt.Errorf("transition_duration %.2f must stay below the beat spacing floor %.2f",
			c.TransitionDuration, c.MinBeatSpacing)
	}
	if c.CRF < 0 || c.CRF > 51 {
		return fmt.Errorf("crf must be between 0 and 51")
	}
	return nil
}
