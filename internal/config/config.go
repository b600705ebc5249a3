// Package config holds the immutable analysis configuration assembled from
// CLI flags with an optional .pgfence.yaml overlay underneath.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/flvmnt/pgfence/internal/risk"
)

// DefaultFileName is the config file looked up in the working directory.
const DefaultFileName = ".pgfence.yaml"

// Config is the full analysis configuration. It is built once and passed
// by value through the pipeline; nothing mutates it during a walk.
type Config struct {
	MinPGVersion int        `yaml:"minPGVersion"`
	MaxRisk      risk.Level `yaml:"-"`

	RequireLockTimeout      bool  `yaml:"requireLockTimeout"`
	RequireStatementTimeout bool  `yaml:"requireStatementTimeout"`
	MaxLockTimeoutMs        int64 `yaml:"maxLockTimeoutMs"`
	MaxStatementTimeoutMs   int64 `yaml:"maxStatementTimeoutMs"`

	DisabledRules []string `yaml:"disableRules"`
	EnabledRules  []string `yaml:"enableRules"`

	PreviewWidth int `yaml:"previewWidth"`
}

// fileConfig mirrors Config for YAML decoding, with the risk level as a
// string.
type fileConfig struct {
	MinPGVersion            *int     `yaml:"minPGVersion"`
	MaxRisk                 *string  `yaml:"maxRisk"`
	RequireLockTimeout      *bool    `yaml:"requireLockTimeout"`
	RequireStatementTimeout *bool    `yaml:"requireStatementTimeout"`
	MaxLockTimeoutMs        *int64   `yaml:"maxLockTimeoutMs"`
	MaxStatementTimeoutMs   *int64   `yaml:"maxStatementTimeoutMs"`
	DisableRules            []string `yaml:"disableRules"`
	EnableRules             []string `yaml:"enableRules"`
	PreviewWidth            *int     `yaml:"previewWidth"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		MinPGVersion:            11,
		MaxRisk:                 risk.High,
		RequireLockTimeout:      true,
		RequireStatementTimeout: true,
		MaxLockTimeoutMs:        5_000,
		MaxStatementTimeoutMs:   600_000,
		PreviewWidth:            80,
	}
}

// LoadFile overlays a YAML config file onto cfg. Only keys present in the
// file override; flags applied afterwards win over both.
func LoadFile(path string, cfg Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %q: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("decoding config %q: %w", path, err)
	}

	if fc.MinPGVersion != nil {
		cfg.MinPGVersion = *fc.MinPGVersion
	}
	if fc.MaxRisk != nil {
		level, err := risk.ParseLevel(*fc.MaxRisk)
		if err != nil {
			return cfg, fmt.Errorf("config %q: %w", path, err)
		}
		cfg.MaxRisk = level
	}
	if fc.RequireLockTimeout != nil {
		cfg.RequireLockTimeout = *fc.RequireLockTimeout
	}
	if fc.RequireStatementTimeout != nil {
		cfg.RequireStatementTimeout = *fc.RequireStatementTimeout
	}
	if fc.MaxLockTimeoutMs != nil {
		cfg.MaxLockTimeoutMs = *fc.MaxLockTimeoutMs
	}
	if fc.MaxStatementTimeoutMs != nil {
		cfg.MaxStatementTimeoutMs = *fc.MaxStatementTimeoutMs
	}
	if fc.DisableRules != nil {
		cfg.DisabledRules = fc.DisableRules
	}
	if fc.EnableRules != nil {
		cfg.EnabledRules = fc.EnableRules
	}
	if fc.PreviewWidth != nil {
		cfg.PreviewWidth = *fc.PreviewWidth
	}

	return cfg, nil
}

// RuleEnabled applies the enable/disable lists: a non-empty enable list is
// an allowlist; the disable list always wins.
func (c Config) RuleEnabled(id string) bool {
	for _, d := range c.DisabledRules {
		if d == id {
			return false
		}
	}
	if len(c.EnabledRules) == 0 {
		return true
	}
	for _, e := range c.EnabledRules {
		if e == id {
			return true
		}
	}
	return false
}
