// Package config loads tool configuration from .patina.yaml files, with
// environment overrides on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up by Discover.
const FileName = ".patina.yaml"

// Config holds the tool configuration.
type Config struct {
	// Backend selects the check policy: panic, report, or off.
	Backend string `yaml:"backend"`

	// AliasPrefix is prepended to bare-identifier captures to form their
	// automatic alias.
	AliasPrefix string `yaml:"alias_prefix"`

	// Fmt configures spec formatting.
	Fmt FmtConfig `yaml:"fmt"`
}

// FmtConfig configures the spec formatter.
type FmtConfig struct {
	MaxWidth      int    `yaml:"max_width"`
	Indent        string `yaml:"indent"`
	TrailingComma bool   `yaml:"trailing_comma"`
	Reorder       bool   `yaml:"reorder"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() *Config {
	return &Config{
		Backend:     "panic",
		AliasPrefix: "old_",
		Fmt: FmtConfig{
			MaxWidth:      80,
			Indent:        "\t",
			TrailingComma: true,
			Reorder:       false,
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Discover walks from dir upward to the filesystem root looking for a
// config file, and loads the first one found. With none found it returns
// the defaults.
func Discover(dir string) (*Config, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	cfg := DefaultConfig()
	cfg.applyEnvOverrides()
	return cfg, nil
}

// Validate rejects values the rest of the tool cannot act on.
func (c *Config) Validate() error {
	switch c.Backend {
	case "panic", "report", "off":
	default:
		return fmt.Errorf("invalid backend %q (valid: panic, report, off)", c.Backend)
	}
	if c.Fmt.MaxWidth < 0 {
		return fmt.Errorf("invalid fmt.max_width %d", c.Fmt.MaxWidth)
	}
	return nil
}

// applyEnvOverrides lets environment variables win over file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PATINA_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv("PATINA_ALIAS_PREFIX"); v != "" {
		c.AliasPrefix = v
	}
}
