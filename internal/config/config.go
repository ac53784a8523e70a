// Package config loads the agent's channel map, macro table and daemon
// settings from a TOML or YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/signal-agent/internal/gpio"
	"github.com/sweeney/signal-agent/internal/pattern"
)

// Kind is the class of actuator behind a channel.
type Kind string

const (
	KindLED    Kind = "led"
	KindSiren  Kind = "siren"
	KindBuzzer Kind = "buzzer"
)

// Channel is one configured output.
type Channel struct {
	Name   string `toml:"name" yaml:"name"`
	Kind   Kind   `toml:"kind" yaml:"kind"`
	Pin    *int   `toml:"pin,omitempty" yaml:"pin,omitempty"` // nil: no hardware
	Invert bool   `toml:"invert,omitempty" yaml:"invert,omitempty"`
}

// HasPin reports whether the channel is wired to a GPIO line.
func (c Channel) HasPin() bool {
	return c.Pin != nil && *c.Pin > gpio.NoPin
}

// Logging selects log level and output format.
type Logging struct {
	Level  string `toml:"level" yaml:"level"`   // debug, info, warn, error
	Format string `toml:"format" yaml:"format"` // text, json
}

// Config is the full agent configuration.
type Config struct {
	Node        string `toml:"node" yaml:"node"`
	Broker      string `toml:"broker" yaml:"broker"`
	ClientID    string `toml:"client_id,omitempty" yaml:"client_id,omitempty"`
	TickMs      int    `toml:"tick_ms" yaml:"tick_ms"`
	HeartbeatMs int    `toml:"heartbeat_ms" yaml:"heartbeat_ms"`
	HTTP        string `toml:"http" yaml:"http"`
	GPIOChip    string `toml:"gpio_chip" yaml:"gpio_chip"`

	Logging  Logging                       `toml:"logging" yaml:"logging"`
	Channels []Channel                     `toml:"channel" yaml:"channels"`
	Macros   map[string]pattern.Descriptor `toml:"macros" yaml:"macros"`
}

// Tick returns the engine tick period.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.TickMs) * time.Millisecond
}

// Heartbeat returns the heartbeat interval; zero disables it.
func (c *Config) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatMs) * time.Millisecond
}

// Names returns the channel names of one kind, in file order.
func (c *Config) Names(kind Kind) []string {
	var names []string
	for _, ch := range c.Channels {
		if ch.Kind == kind {
			names = append(names, ch.Name)
		}
	}
	return names
}

// Load reads path and overlays it on Default. The format is chosen by
// extension: .toml, .yaml or .yml. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var file Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&file); err != nil {
			return nil, fmt.Errorf("parse TOML config: %w", err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse YAML config: %w", err)
		}
	default:
		return nil, fmt.Errorf("config: unsupported file extension %q", ext)
	}

	cfg := Default()
	cfg.merge(&file)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// merge copies every set field of f over c. Channel and macro tables
// replace the defaults wholesale rather than extending them.
func (c *Config) merge(f *Config) {
	if f.Node != "" {
		c.Node = f.Node
	}
	if f.Broker != "" {
		c.Broker = f.Broker
	}
	if f.ClientID != "" {
		c.ClientID = f.ClientID
	}
	if f.TickMs != 0 {
		c.TickMs = f.TickMs
	}
	if f.HeartbeatMs != 0 {
		c.HeartbeatMs = f.HeartbeatMs
	}
	if f.HTTP != "" {
		c.HTTP = f.HTTP
	}
	if f.GPIOChip != "" {
		c.GPIOChip = f.GPIOChip
	}
	if f.Logging.Level != "" {
		c.Logging.Level = f.Logging.Level
	}
	if f.Logging.Format != "" {
		c.Logging.Format = f.Logging.Format
	}
	if len(f.Channels) > 0 {
		c.Channels = f.Channels
	}
	if len(f.Macros) > 0 {
		c.Macros = f.Macros
	}
}

// reservedNames cannot be used as channel or macro names.
var reservedNames = map[string]bool{
	"off":     true,
	"led_all": true,
	"sir_all": true,
}

// Validate checks the configuration and compiles every macro.
func (c *Config) Validate() error {
	var errs []error

	if c.Node == "" {
		errs = append(errs, errors.New("node must be set"))
	}
	if c.TickMs <= 0 {
		errs = append(errs, fmt.Errorf("tick_ms must be positive, got %d", c.TickMs))
	}
	if c.HeartbeatMs < 0 {
		errs = append(errs, fmt.Errorf("heartbeat_ms must not be negative, got %d", c.HeartbeatMs))
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}

	seen := make(map[string]bool)
	pins := make(map[int]string)
	for i, ch := range c.Channels {
		switch {
		case ch.Name == "":
			errs = append(errs, fmt.Errorf("channel %d: name must be set", i))
			continue
		case reservedNames[ch.Name]:
			errs = append(errs, fmt.Errorf("channel %q: name is reserved", ch.Name))
		case seen[ch.Name]:
			errs = append(errs, fmt.Errorf("channel %q: duplicate name", ch.Name))
		}
		seen[ch.Name] = true

		switch ch.Kind {
		case KindLED, KindSiren, KindBuzzer:
		default:
			errs = append(errs, fmt.Errorf("channel %q: unknown kind %q", ch.Name, ch.Kind))
		}

		if ch.HasPin() {
			if other, ok := pins[*ch.Pin]; ok {
				errs = append(errs, fmt.Errorf("channel %q: pin %d already used by %q", ch.Name, *ch.Pin, other))
			}
			pins[*ch.Pin] = ch.Name
		}
	}

	if c.TickMs > 0 {
		for name, d := range c.Macros {
			if strings.EqualFold(name, "off") || reservedNames[name] {
				errs = append(errs, fmt.Errorf("macro %q: name is reserved", name))
				continue
			}
			if _, err := pattern.Compile(d, c.Tick()); err != nil {
				errs = append(errs, fmt.Errorf("macro %q: %w", name, err))
			}
		}
	}

	return errors.Join(errs...)
}
