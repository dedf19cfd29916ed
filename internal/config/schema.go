package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Simulation  SimulationConfig  `yaml:"simulation" toml:"simulation"`
	Interaction InteractionConfig `yaml:"interaction" toml:"interaction"`
	Layout      LayoutConfig      `yaml:"layout" toml:"layout"`
	Discovery   DiscoveryConfig   `yaml:"discovery" toml:"discovery"`
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Log         LogConfig         `yaml:"log" toml:"log"`
}

// SimulationConfig tunes the force layout
type SimulationConfig struct {
	TickInterval      Duration `yaml:"tick_interval" toml:"tick_interval" validate:"gt=0"`
	Width             float64  `yaml:"width" toml:"width" validate:"gt=0"`
	Height            float64  `yaml:"height" toml:"height" validate:"gt=0"`
	RepulsionRadius   float64  `yaml:"repulsion_radius" toml:"repulsion_radius" validate:"gt=0"`
	RepulsionStrength float64  `yaml:"repulsion_strength" toml:"repulsion_strength" validate:"gt=0"`
	MaxRestLength     float64  `yaml:"max_rest_length" toml:"max_rest_length" validate:"gt=0"`
	Damping           float64  `yaml:"damping" toml:"damping" validate:"gt=0,lte=1"`
	Autostart         *bool    `yaml:"autostart,omitempty" toml:"autostart,omitempty"` // nil = true
}

// InteractionConfig holds pointer-gesture settings
type InteractionConfig struct {
	// DragClickThreshold is the Manhattan distance under which a release is a click
	DragClickThreshold float64 `yaml:"drag_click_threshold" toml:"drag_click_threshold" validate:"gt=0"`
}

// LayoutConfig says where saved layouts live. Both may be empty.
type LayoutConfig struct {
	File     string `yaml:"file,omitempty" toml:"file,omitempty"`
	Database string `yaml:"database,omitempty" toml:"database,omitempty"`
}

// DiscoveryConfig holds topology source settings
type DiscoveryConfig struct {
	Targets      []string `yaml:"targets,omitempty" toml:"targets,omitempty" validate:"dive,required"`
	Interval     Duration `yaml:"interval" toml:"interval" validate:"gt=0"`
	LinkWeight   float64  `yaml:"link_weight" toml:"link_weight" validate:"gt=0"`
	TopologyFile string   `yaml:"topology_file,omitempty" toml:"topology_file,omitempty"`
	// BorderRouter reads the routing tree from an RPL root over SSH
	BorderRouter BorderRouterConfig `yaml:"border_router,omitempty" toml:"border_router,omitempty"`
}

// BorderRouterConfig holds SSH settings for the border router source.
// The source is disabled while Host is empty.
type BorderRouterConfig struct {
	Host       string `yaml:"host,omitempty" toml:"host,omitempty"`
	Port       int    `yaml:"port,omitempty" toml:"port,omitempty" validate:"gte=0,lte=65535"`
	User       string `yaml:"user,omitempty" toml:"user,omitempty" validate:"required_with=Host"`
	KeyFile    string `yaml:"key_file,omitempty" toml:"key_file,omitempty"`
	Passphrase string `yaml:"passphrase,omitempty" toml:"passphrase,omitempty"`
	Password   string `yaml:"password,omitempty" toml:"password,omitempty"`
	KnownHosts string `yaml:"known_hosts,omitempty" toml:"known_hosts,omitempty"`
	Command    string `yaml:"command,omitempty" toml:"command,omitempty"`
}

// ServerConfig holds HTTP settings
type ServerConfig struct {
	Addr string `yaml:"addr" toml:"addr" validate:"required"`
	// SnapshotEvery publishes a snapshot to subscribers every N ticks
	SnapshotEvery int `yaml:"snapshot_every" toml:"snapshot_every" validate:"gte=1"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level       string `yaml:"level" toml:"level" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development" toml:"development"`
}

// Duration wraps time.Duration for YAML and TOML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, used by the TOML decoder
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
