// Package status provides a thread-safe view of the agent for the HTTP
// status page and the MQTT heartbeat.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/signal-agent/internal/engine"
	"github.com/sweeney/signal-agent/internal/events"
)

// NetworkInfo contains network state, as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains agent configuration for display.
type Config struct {
	Node        string
	TickMs      int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	GPIOChip    string
}

// Counts are running totals since startup.
type Counts struct {
	Commands      int // batches received
	CommandErrors int // failed keys across all batches
	Assignments   int // patterns installed
	Stops         int // channels idled
	WriteFailures int
}

// ChannelSource reports per-channel schedule state.
type ChannelSource interface {
	Snapshot() []engine.ChannelStatus
}

// Snapshot is a point-in-time view of agent state.
type Snapshot struct {
	Channels      []engine.ChannelStatus
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the agent started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable agent state behind an RWMutex.
type Tracker struct {
	channels ChannelSource

	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker. channels may be nil.
func NewTracker(startTime time.Time, cfg Config, channels ChannelSource) *Tracker {
	return &Tracker{
		channels: channels,
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Watch keeps the counters current from bus events. The returned
// function unsubscribes.
func (t *Tracker) Watch(bus *events.Bus) func() {
	unsubs := []func(){
		events.Subscribe(bus, func(e events.CommandApplied) {
			t.mu.Lock()
			t.snap.Counts.Commands++
			t.snap.Counts.CommandErrors += e.Errors
			t.mu.Unlock()
		}),
		events.Subscribe(bus, func(e events.PatternAssigned) {
			t.mu.Lock()
			if e.Idle {
				t.snap.Counts.Stops++
			} else {
				t.snap.Counts.Assignments++
			}
			t.mu.Unlock()
		}),
		events.Subscribe(bus, func(events.ChannelWriteFailed) {
			t.mu.Lock()
			t.snap.Counts.WriteFailures++
			t.mu.Unlock()
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the agent state with Now set
// to the current time.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	if t.channels != nil {
		s.Channels = t.channels.Snapshot()
	}
	s.Now = time.Now()
	return s
}
