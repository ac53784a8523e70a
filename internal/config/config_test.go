package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/signal-agent/internal/gpio"
	"github.com/sweeney/signal-agent/internal/pattern"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 25*time.Millisecond, cfg.Tick())
	assert.Equal(t, []string{"led1", "led2", "led3", "led4"}, cfg.Names(KindLED))
	assert.Equal(t, []string{"sir1", "sir2", "sir3"}, cfg.Names(KindSiren))
	assert.Equal(t, []string{"buzzer"}, cfg.Names(KindBuzzer))
	assert.Contains(t, cfg.Macros, "blink")
}

func TestDefaultMacrosAreFresh(t *testing.T) {
	a := DefaultMacros()
	delete(a, "blink")
	assert.Contains(t, DefaultMacros(), "blink")
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "agent.toml", `
node = "arena2"
broker = "tcp://mqtt.local:1883"
tick_ms = 20

[logging]
level = "debug"
format = "json"

[[channel]]
name = "led1"
kind = "led"
pin = 17

[[channel]]
name = "horn"
kind = "siren"
pin = 5
invert = true

[[channel]]
name = "sim"
kind = "buzzer"

[macros.flash]
repeat = 4
scheme = [40, -40]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "arena2", cfg.Node)
	assert.Equal(t, "tcp://mqtt.local:1883", cfg.Broker)
	assert.Equal(t, 20*time.Millisecond, cfg.Tick())
	assert.Equal(t, DefaultHTTP, cfg.HTTP, "unset fields keep defaults")
	assert.Equal(t, DefaultHeartbeatMs, cfg.HeartbeatMs)
	assert.Equal(t, Logging{Level: "debug", Format: "json"}, cfg.Logging)

	require.Len(t, cfg.Channels, 3)
	assert.True(t, cfg.Channels[1].Invert)
	assert.Equal(t, 5, *cfg.Channels[1].Pin)
	assert.False(t, cfg.Channels[2].HasPin())
	assert.Equal(t, []string{"horn"}, cfg.Names(KindSiren))

	assert.Equal(t, map[string]pattern.Descriptor{
		"flash": {Repeat: 4, Scheme: []int{40, -40}},
	}, cfg.Macros)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "agent.yaml", `
node: arena3
heartbeat_ms: 0
channels:
  - name: led1
    kind: led
    pin: 17
  - name: sir1
    kind: siren
macros:
  blink:
    repeat: -1
    scheme: [70, -60]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "arena3", cfg.Node)
	assert.Equal(t, []string{"led1"}, cfg.Names(KindLED))
	assert.Equal(t, pattern.Descriptor{Repeat: -1, Scheme: []int{70, -60}}, cfg.Macros["blink"])
}

func TestLoadEmptyYAMLUsesDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "agent.yml", ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeFile(t, "agent.toml", "nodee = \"x\"\n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "agent.yaml", "nodee: x\n"))
	assert.Error(t, err)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "agent.json", "{}"))
	assert.ErrorContains(t, err, "unsupported file extension")

	_, err = Load(writeFile(t, "agent.toml", "tick_ms = -5\n"))
	assert.ErrorContains(t, err, "tick_ms")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"empty node", func(c *Config) { c.Node = "" }, "node must be set"},
		{"zero tick", func(c *Config) { c.TickMs = 0 }, "tick_ms"},
		{"negative heartbeat", func(c *Config) { c.HeartbeatMs = -1 }, "heartbeat_ms"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"duplicate channel", func(c *Config) {
			c.Channels = append(c.Channels, Channel{Name: "led1", Kind: KindLED})
		}, "duplicate name"},
		{"unnamed channel", func(c *Config) {
			c.Channels = append(c.Channels, Channel{Kind: KindLED})
		}, "name must be set"},
		{"reserved channel", func(c *Config) {
			c.Channels = append(c.Channels, Channel{Name: "led_all", Kind: KindLED})
		}, "reserved"},
		{"bad kind", func(c *Config) {
			c.Channels = append(c.Channels, Channel{Name: "horn", Kind: "trumpet"})
		}, "unknown kind"},
		{"shared pin", func(c *Config) {
			c.Channels = append(c.Channels, Channel{Name: "led9", Kind: KindLED, Pin: pin(17)})
		}, "already used"},
		{"macro named off", func(c *Config) {
			c.Macros["OFF"] = pattern.Descriptor{Repeat: 1, Scheme: []int{25}}
		}, "reserved"},
		{"macro too long", func(c *Config) {
			c.Macros["forever"] = pattern.Descriptor{Repeat: 1, Scheme: []int{1 << 30}}
		}, `macro "forever"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNoPinChannelsMayShare(t *testing.T) {
	cfg := Default()
	cfg.Channels = []Channel{
		{Name: "a", Kind: KindLED},
		{Name: "b", Kind: KindLED, Pin: pin(gpio.NoPin)},
	}
	assert.NoError(t, cfg.Validate())
	assert.False(t, cfg.Channels[0].HasPin())
	assert.False(t, cfg.Channels[1].HasPin())
	assert.True(t, Channel{Name: "c", Pin: pin(0)}.HasPin())
}
