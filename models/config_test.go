package models

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Width != 1080 || cfg.Height != 1920 {
		t.Errorf("default frame %dx%d, want 1080x1920 portrait", cfg.Width, cfg.Height)
	}
	if cfg.FPS != 30 {
		t.Errorf("default fps %d, want 30", cfg.FPS)
	}
	if cfg.MinBeatSpacing != 0.5 {
		t.Errorf("default beat spacing %v, want 0.5", cfg.MinBeatSpacing)
	}
	if cfg.FallbackBeatInterval != 2.0 {
		t.Errorf("default fallback interval %v, want 2.0", cfg.FallbackBeatInterval)
	}
	if cfg.Subtitles.MaxWords != 5 {
		t.Errorf("default max words %d, want 5", cfg.Subtitles.MaxWords)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("missing file should fall back to defaults, got %v", err)
	}
	if cfg.Width != 1080 {
		t.Errorf("width %d, want default 1080", cfg.Width)
	}
}

func TestLoadConfigOverridesAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"fps": 24, "transition_duration": 0.25, "subtitles": {"font_size": 32}}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.FPS != 24 {
		t.Errorf("fps %d, want 24 from file", cfg.FPS)
	}
	if cfg.TransitionDuration != 0.25 {
		t.Errorf("transition duration %v, want 0.25 from file", cfg.TransitionDuration)
	}
	if cfg.Subtitles.FontSize != 32 {
		t.Errorf("font size %d, want 32 from file", cfg.Subtitles.FontSize)
	}
	// Unset options still get defaults.
	if cfg.Width != 1080 || cfg.Preset != "ultrafast" {
		t.Errorf("defaults not applied: width %d preset %s", cfg.Width, cfg.Preset)
	}
}

func TestLoadConfigBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{nope"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ReelConfig)
	}{
		{"zero width", func(c *ReelConfig) { c.Width = 0 }},
		{"zero fps", func(c *ReelConfig) { c.FPS = 0 }},
		{"transition too long", func(c *ReelConfig) { c.TransitionDuration = 0.6 }},
		{"fallback below spacing", func(c *ReelConfig) { c.FallbackBeatInterval = 0.1 }},
		{"crf out of range", func(c *ReelConfig) { c.CRF = 99 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestTimelineTotalDuration(t *testing.T) {
	clip := &VideoClip{ID: "a", Duration: 10}
	timeline := Timeline{
		{Clip: clip, Duration: 2.5},
		{Clip: clip, Duration: 3},
		{Clip: clip, Duration: 1.25},
	}
	if got := timeline.TotalDuration(); got != 6.75 {
		t.Fatalf("total duration %v, want 6.75", got)
	}
}
