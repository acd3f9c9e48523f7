package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models paddock.yml.
type Config struct {
	Stable struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"stable"`
	Selection struct {
		DefaultAlgorithm     string `yaml:"default_algorithm"`
		TurnTimeLimitMinutes int    `yaml:"turn_time_limit_minutes"`
		MaxWindowMonths      int    `yaml:"max_window_months"`
		Points               struct {
			PerSelection int `yaml:"per_selection"`
		} `yaml:"points"`
	} `yaml:"selection"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

var validAlgorithms = map[string]bool{
	"manual":         true,
	"quota_based":    true,
	"points_balance": true,
	"fair_rotation":  true,
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Stable.ID == "" {
		return fmt.Errorf("config.stable.id is required")
	}
	if !validAlgorithms[c.Selection.DefaultAlgorithm] {
		return fmt.Errorf("config.selection.default_algorithm %q is not a known algorithm", c.Selection.DefaultAlgorithm)
	}
	if c.Selection.TurnTimeLimitMinutes < 0 {
		return fmt.Errorf("config.selection.turn_time_limit_minutes must not be negative")
	}
	if c.Selection.MaxWindowMonths <= 0 || c.Selection.MaxWindowMonths > 12 {
		return fmt.Errorf("config.selection.max_window_months must be between 1 and 12")
	}
	if c.Selection.Points.PerSelection < 0 {
		return fmt.Errorf("config.selection.points.per_selection must not be negative")
	}
	for i, hook := range c.Webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "paddock.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with pdk stable config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns default config YAML for a stable.
func GenerateDefault(stableID string) string {
	return fmt.Sprintf(defaultTemplate, stableID, stableID)
}

// Default returns the default Config struct for a stable.
func Default(stableID string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(stableID))).Decode(&cfg)
	cfg.Stable.ID = stableID
	return &cfg
}

const defaultTemplate = `stable:
  id: %s
  name: %s

selection:
  # Ordering used when a process does not name one explicitly.
  default_algorithm: fair_rotation
  # Hard deadline for each turn once it activates; 0 disables deadlines.
  # Expiry blocks further claims but never advances the turn by itself.
  turn_time_limit_minutes: 1440
  max_window_months: 12
  points:
    per_selection: 1
`
