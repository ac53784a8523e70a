package config

import (
	"github.com/sweeney/signal-agent/internal/gpio"
	"github.com/sweeney/signal-agent/internal/pattern"
)

// Defaults applied when neither the config file nor a flag sets a value.
const (
	DefaultNode        = "node1"
	DefaultBroker      = "tcp://localhost:1883"
	DefaultTickMs      = 25
	DefaultHeartbeatMs = 15 * 60 * 1000
	DefaultHTTP        = ":8080"
	DefaultGPIOChip    = gpio.DefaultChip
)

func pin(n int) *int { return &n }

// Default returns the stock board layout: four LEDs, three sirens and a
// buzzer on BCM pins, plus the built-in macro table.
func Default() *Config {
	return &Config{
		Node:        DefaultNode,
		Broker:      DefaultBroker,
		TickMs:      DefaultTickMs,
		HeartbeatMs: DefaultHeartbeatMs,
		HTTP:        DefaultHTTP,
		GPIOChip:    DefaultGPIOChip,
		Logging:     Logging{Level: "info", Format: "text"},
		Channels: []Channel{
			{Name: "led1", Kind: KindLED, Pin: pin(17)},
			{Name: "led2", Kind: KindLED, Pin: pin(27)},
			{Name: "led3", Kind: KindLED, Pin: pin(22)},
			{Name: "led4", Kind: KindLED, Pin: pin(23)},
			{Name: "sir1", Kind: KindSiren, Pin: pin(5)},
			{Name: "sir2", Kind: KindSiren, Pin: pin(6)},
			{Name: "sir3", Kind: KindSiren, Pin: pin(13)},
			{Name: "buzzer", Kind: KindBuzzer, Pin: pin(26)},
		},
		Macros: DefaultMacros(),
	}
}

// DefaultMacros returns a fresh copy of the built-in macro table.
func DefaultMacros() map[string]pattern.Descriptor {
	return map[string]pattern.Descriptor{
		"blink":  {Repeat: pattern.Infinite, Scheme: []int{70, -60}},
		"strobe": {Repeat: pattern.Infinite, Scheme: []int{25, -75}},
		"alarm":  {Repeat: pattern.Infinite, Scheme: []int{500, -500}},
		"pulse":  {Repeat: 3, Scheme: []int{200, -200}},
	}
}
