package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default("stable-1")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Stable.ID != "stable-1" {
		t.Fatalf("stable id = %q", cfg.Stable.ID)
	}
	if cfg.Selection.DefaultAlgorithm != "fair_rotation" {
		t.Fatalf("default algorithm = %q", cfg.Selection.DefaultAlgorithm)
	}
	if cfg.Selection.TurnTimeLimitMinutes != 1440 {
		t.Fatalf("turn limit = %d", cfg.Selection.TurnTimeLimitMinutes)
	}
	if cfg.Selection.Points.PerSelection != 1 {
		t.Fatalf("points per selection = %d", cfg.Selection.Points.PerSelection)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing stable id", func(c *Config) { c.Stable.ID = "" }, "stable.id"},
		{"unknown algorithm", func(c *Config) { c.Selection.DefaultAlgorithm = "coin_flip" }, "default_algorithm"},
		{"negative turn limit", func(c *Config) { c.Selection.TurnTimeLimitMinutes = -1 }, "turn_time_limit_minutes"},
		{"window months out of range", func(c *Config) { c.Selection.MaxWindowMonths = 13 }, "max_window_months"},
		{"negative points", func(c *Config) { c.Selection.Points.PerSelection = -1 }, "per_selection"},
		{"webhook without url", func(c *Config) { c.Webhooks = []WebhookConfig{{}} }, "webhooks[0].url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default("stable-1")
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error = %v, want mention of %s", err, tc.want)
			}
		})
	}
}

func TestValidateSkipsDisabledWebhooks(t *testing.T) {
	disabled := false
	cfg := Default("stable-1")
	cfg.Webhooks = []WebhookConfig{{Enabled: &disabled}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled webhook should not be validated: %v", err)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	workspace := t.TempDir()
	if err := os.WriteFile(filepath.Join(workspace, "paddock.yml"), []byte(GenerateDefault("stable-1")), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(workspace)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Stable.ID != "stable-1" {
		t.Fatalf("loaded stable id = %q", cfg.Stable.ID)
	}
	missing, err := LoadOptional(t.TempDir())
	if err != nil || missing != nil {
		t.Fatalf("load optional on empty workspace: cfg=%v err=%v", missing, err)
	}
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatalf("expected error for missing config")
	}
}
