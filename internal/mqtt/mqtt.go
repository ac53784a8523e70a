// Package mqtt connects the agent to its broker: command batches come in
// on the node's command topic, results and lifecycle events go out.
package mqtt

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/sweeney/signal-agent/internal/command"
)

// System event names.
const (
	EventStartup     = "STARTUP"
	EventShutdown    = "SHUTDOWN"
	EventHeartbeat   = "HEARTBEAT"
	EventReconnected = "RECONNECTED"
	EventOffline     = "OFFLINE"
)

// ErrNotConnected is returned for messages that are not worth buffering.
var ErrNotConnected = errors.New("mqtt: not connected")

// Topics are the per-node topic names.
type Topics struct {
	Command string
	Result  string
	System  string
}

// TopicsFor returns the topics for node.
func TopicsFor(node string) Topics {
	base := "signal/" + node + "/"
	return Topics{
		Command: base + "command",
		Result:  base + "result",
		System:  base + "system",
	}
}

// CommandHandler receives raw command payloads.
type CommandHandler func(payload []byte)

// Publisher sends results and system events to the broker.
type Publisher interface {
	// PublishResult reports the outcome of one command batch. Results are
	// dropped while disconnected.
	PublishResult(ev ResultEvent) error

	// PublishSystem sends a lifecycle event, buffering it while
	// disconnected.
	PublishSystem(ev SystemEvent) error

	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a lifecycle event (startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string // e.g. SIGTERM, shutdown only
	RawPayload []byte // pre-formatted status snapshot; sent as-is when set
	Retained   bool
}

// ResultEvent is the outcome of one command batch.
type ResultEvent struct {
	Timestamp time.Time
	Result    command.Result
}

// SystemPayload is the wire shape of simple system events (LWT,
// RECONNECTED) that carry no status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload returns the JSON payload for ev.
func FormatSystemPayload(ev SystemEvent) ([]byte, error) {
	if ev.RawPayload != nil {
		return ev.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
			Event:     ev.Event,
			Reason:    ev.Reason,
		},
	})
}

// ResultPayload is the wire shape of a command result.
type ResultPayload struct {
	Result ResultPayloadInner `json:"result"`
}

// ResultPayloadInner lists what a batch did. Errors is keyed by batch key.
type ResultPayloadInner struct {
	Timestamp string            `json:"timestamp"`
	Applied   []string          `json:"applied"`
	Stopped   []string          `json:"stopped"`
	Errors    map[string]string `json:"errors"`
}

// FormatResultPayload returns the JSON payload for ev. Empty lists are
// encoded as [] and {} rather than null.
func FormatResultPayload(ev ResultEvent) ([]byte, error) {
	inner := ResultPayloadInner{
		Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
		Applied:   append([]string{}, ev.Result.Assigned...),
		Stopped:   append([]string{}, ev.Result.Stopped...),
		Errors:    make(map[string]string, len(ev.Result.Errors)),
	}
	for _, ke := range ev.Result.Errors {
		inner.Errors[ke.Key] = ke.Err.Error()
	}
	return json.Marshal(ResultPayload{Result: inner})
}
