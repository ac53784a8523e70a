package status

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/sweeney/signal-agent/internal/pattern"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Node          string        `json:"node"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Channels      []ChannelJSON `json:"channels"`
	Counts        CountsJSON    `json:"counts"`
	Network       *NetworkJSON  `json:"network,omitempty"`
	Config        ConfigJSON    `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ChannelJSON is one channel's schedule state. Repeats is "infinite" or
// the number of passes left after the current one.
type ChannelJSON struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Active   bool   `json:"active"`
	Position int    `json:"position"`
	Length   int    `json:"length"`
	Repeats  string `json:"repeats"`
	Failing  bool   `json:"failing,omitempty"`
}

// CountsJSON is the JSON representation of running totals.
type CountsJSON struct {
	Commands      int `json:"commands"`
	CommandErrors int `json:"command_errors"`
	Assignments   int `json:"assignments"`
	Stops         int `json:"stops"`
	WriteFailures int `json:"write_failures"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of agent config.
type ConfigJSON struct {
	TickMs      int64  `json:"tick_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	GPIOChip    string `json:"gpio_chip,omitempty"`
}

// StateString renders a level as ON or OFF.
func StateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

// RepeatsString renders remaining refills.
func RepeatsString(remaining int) string {
	if remaining == pattern.Infinite {
		return "infinite"
	}
	return strconv.Itoa(remaining)
}

func buildInner(snap Snapshot) StatusInner {
	channels := make([]ChannelJSON, len(snap.Channels))
	for i, c := range snap.Channels {
		channels[i] = ChannelJSON{
			Name:     c.Name,
			State:    StateString(c.Level),
			Active:   c.Active,
			Position: c.Position,
			Length:   c.Length,
			Repeats:  RepeatsString(c.Remaining),
			Failing:  c.Failing,
		}
	}

	inner := StatusInner{
		Node:          snap.Config.Node,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Channels:      channels,
		Counts: CountsJSON{
			Commands:      snap.Counts.Commands,
			CommandErrors: snap.Counts.CommandErrors,
			Assignments:   snap.Counts.Assignments,
			Stops:         snap.Counts.Stops,
			WriteFailures: snap.Counts.WriteFailures,
		},
		Config: ConfigJSON{
			TickMs:      snap.Config.TickMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			GPIOChip:    snap.Config.GPIOChip,
		},
	}
	if n := snap.Network; n != nil {
		inner.Network = &NetworkJSON{
			Type:       n.Type,
			IP:         n.IP,
			Status:     n.Status,
			Gateway:    n.Gateway,
			WifiStatus: n.WifiStatus,
			SSID:       n.SSID,
		}
	}
	return inner
}

// FormatJSON returns the indented JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
