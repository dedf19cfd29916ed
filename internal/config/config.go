// Package config provides configuration management for rplview.
//
// Config file locations (priority order):
//  1. $RPLVIEW_CONFIG
//  2. ./rplview.yaml
//  3. ./rplview.toml
//  4. $XDG_CONFIG_HOME/rplview/config.yaml
//  5. ~/.config/rplview/config.yaml
//  6. /etc/rplview/config.yaml
//
// Files ending in .toml are decoded as TOML, everything else as YAML.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"rplview/internal/domain"
	"rplview/internal/layout"
)

var validate = validator.New()

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		// No config found - return defaults
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if isTOML(path) {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var data []byte
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		data = buf.Bytes()
	} else {
		var err error
		data, err = yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns the stock configuration
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults. Zero means unset, so
// the tunings it fills must be positive.
func (c *Config) applyDefaults() {
	def := layout.DefaultParams()

	s := &c.Simulation
	if s.TickInterval == 0 {
		s.TickInterval = Duration(def.Interval)
	}
	if s.Width == 0 {
		s.Width = def.Bounds.MaxX - def.Bounds.MinX
	}
	if s.Height == 0 {
		s.Height = def.Bounds.MaxY - def.Bounds.MinY
	}
	if s.RepulsionRadius == 0 {
		s.RepulsionRadius = def.RepulsionRadius
	}
	if s.RepulsionStrength == 0 {
		s.RepulsionStrength = def.RepulsionStrength
	}
	if s.MaxRestLength == 0 {
		s.MaxRestLength = def.MaxRestLength
	}
	if s.Damping == 0 {
		s.Damping = def.Damping
	}

	if c.Interaction.DragClickThreshold == 0 {
		c.Interaction.DragClickThreshold = 4
	}

	if c.Discovery.Interval == 0 {
		c.Discovery.Interval = Duration(defaultDiscoveryInterval)
	}
	if c.Discovery.LinkWeight == 0 {
		c.Discovery.LinkWeight = 1000
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":3000"
	}
	if c.Server.SnapshotEvery == 0 {
		c.Server.SnapshotEvery = 5
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// Autostart reports whether the simulation runs from startup
func (c *Config) Autostart() bool {
	return c.Simulation.Autostart == nil || *c.Simulation.Autostart
}

// EngineParams converts the simulation section into layout engine tuning
func (c *Config) EngineParams() layout.Params {
	p := layout.DefaultParams()
	s := c.Simulation
	p.Interval = s.TickInterval.Duration()
	p.Bounds = domain.Bounds{MinX: 0, MinY: 0, MaxX: s.Width, MaxY: s.Height}
	p.RepulsionRadius = s.RepulsionRadius
	p.RepulsionStrength = s.RepulsionStrength
	p.MaxRestLength = s.MaxRestLength
	p.Damping = s.Damping
	return p
}

// formatValidationError flattens validator errors into one readable message
func formatValidationError(err error) error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("validate config: %w", err)
	}

	msgs := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		field := strings.ToLower(strings.TrimPrefix(e.Namespace(), "Config."))
		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "required_with":
			msgs = append(msgs, fmt.Sprintf("%s is required with %s", field, strings.ToLower(e.Param())))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, e.Param()))
		case "gt", "gte", "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be %s %s", field, e.Tag(), e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
