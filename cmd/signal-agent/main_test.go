package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/sweeney/signal-agent/internal/command"
	"github.com/sweeney/signal-agent/internal/config"
	"github.com/sweeney/signal-agent/internal/engine"
	"github.com/sweeney/signal-agent/internal/gpio"
	"github.com/sweeney/signal-agent/internal/mqtt"
	"github.com/sweeney/signal-agent/internal/status"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "ArenaNet")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}
	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "ArenaNet",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestSignalName(t *testing.T) {
	if got := signalName(syscall.SIGINT); got != "SIGINT" {
		t.Errorf("got %s", got)
	}
	if got := signalName(syscall.SIGTERM); got != "SIGTERM" {
		t.Errorf("got %s", got)
	}
	if got := signalName(syscall.SIGHUP); got != "UNKNOWN" {
		t.Errorf("got %s", got)
	}
}

func parseFlags(t *testing.T, args ...string) (options, *pflag.FlagSet) {
	t.Helper()
	var opts options
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	bindFlags(fs, &opts)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return opts, fs
}

func TestLoadConfigDefaults(t *testing.T) {
	opts, fs := parseFlags(t)
	cfg, err := loadConfig(opts, fs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Node != config.DefaultNode || cfg.TickMs != config.DefaultTickMs {
		t.Errorf("expected defaults, got node=%s tick=%d", cfg.Node, cfg.TickMs)
	}
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.toml")
	err := os.WriteFile(path, []byte("node = \"from-file\"\nbroker = \"tcp://file:1883\"\ntick_ms = 40\n"), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	opts, fs := parseFlags(t, "--config", path, "--broker", "tcp://flag:1883", "--heartbeat", "0s")
	cfg, err := loadConfig(opts, fs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Node != "from-file" {
		t.Errorf("node: got %s, want file value", cfg.Node)
	}
	if cfg.Broker != "tcp://flag:1883" {
		t.Errorf("broker: got %s, want flag value", cfg.Broker)
	}
	if cfg.TickMs != 40 {
		t.Errorf("tick: got %d, want file value 40 (unset flag must not override)", cfg.TickMs)
	}
	if cfg.HeartbeatMs != 0 {
		t.Errorf("heartbeat: got %d, want 0", cfg.HeartbeatMs)
	}
}

func TestLoadConfigRejectsBadFlags(t *testing.T) {
	opts, fs := parseFlags(t, "--tick", "0s")
	if _, err := loadConfig(opts, fs); err == nil {
		t.Error("expected error for zero tick")
	}

	opts, fs = parseFlags(t, "--config", filepath.Join(t.TempDir(), "missing.toml"))
	if _, err := loadConfig(opts, fs); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidateCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"validate"})
	if err := root.Execute(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"node node1, tick 25ms",
		"led1",
		"pin 17",
		"blink      4 ticks (100ms) forever",
		"pulse      16 ticks (400ms) x3",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestValidateCommandFlagOverride(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"validate", "--tick", "50ms", "--node", "arena9"})
	if err := root.Execute(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out.String(), "node arena9, tick 50ms") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestOpenOutputsWithoutPins(t *testing.T) {
	cfg := config.Default()
	cfg.Channels = []config.Channel{
		{Name: "led1", Kind: config.KindLED},
		{Name: "sir1", Kind: config.KindSiren},
	}
	outputs, closeFn, err := openOutputs(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closeFn()
	if len(outputs) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(outputs))
	}
	if _, ok := outputs["led1"].(*gpio.NoopOutput); !ok {
		t.Errorf("expected NoopOutput, got %T", outputs["led1"])
	}
}

// testAgent wires a real registry and preprocessor to fake outputs and a
// fake publisher.
func testAgent(t *testing.T) (*agent, map[string]*gpio.FakeOutput, *mqtt.FakePublisher) {
	t.Helper()
	reg := engine.NewRegistry(25 * time.Millisecond)
	outs := make(map[string]*gpio.FakeOutput)
	for _, name := range []string{"led1", "led2", "sir1"} {
		outs[name] = gpio.NewFakeOutput()
		if err := reg.Register(name, outs[name]); err != nil {
			t.Fatal(err)
		}
	}
	pre := command.New(reg,
		command.Groups{LEDs: []string{"led1", "led2"}, Sirens: []string{"sir1"}},
		config.DefaultMacros())
	pub := mqtt.NewFakePublisher()
	now := time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)
	return &agent{
		pre:        pre,
		reg:        reg,
		publisher:  pub,
		mqttStatus: pub,
		tracker:    status.NewTracker(now, status.Config{Node: "node1"}, reg),
		log:        slogDiscard(),
		now:        func() time.Time { return now },
	}, outs, pub
}

func TestAgentHandleCommandPublishesResult(t *testing.T) {
	a, _, pub := testAgent(t)

	a.handleCommand([]byte(`{"led_all": "blink", "sir1": "disco"}`))

	if len(pub.ResultPayloads) != 1 {
		t.Fatalf("expected 1 result, got %d", len(pub.ResultPayloads))
	}
	var got mqtt.ResultPayload
	if err := json.Unmarshal(pub.ResultPayloads[0], &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if strings.Join(got.Result.Applied, ",") != "led1,led2" {
		t.Errorf("applied: got %v", got.Result.Applied)
	}
	if _, ok := got.Result.Errors["sir1"]; !ok {
		t.Errorf("expected error for sir1, got %v", got.Result.Errors)
	}
}

func TestAgentHandleMalformedPayload(t *testing.T) {
	a, _, pub := testAgent(t)
	a.handleCommand([]byte(`not json`))

	if len(pub.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(pub.Results))
	}
	errs := pub.Results[0].Result.Errors
	if len(errs) != 1 || errs[0].Key != "payload" {
		t.Errorf("expected payload error, got %+v", errs)
	}
}

func TestAgentHandleCommandOffline(t *testing.T) {
	a, outs, pub := testAgent(t)
	pub.PublishResultError = mqtt.ErrNotConnected

	a.handleCommand([]byte(`{"led1": {"repeat": 1, "scheme": [25]}}`))
	a.reg.Tick()
	if !outs["led1"].Level() {
		t.Error("command should apply even when the result cannot be published")
	}
}

func TestAgentRunLoop(t *testing.T) {
	a, outs, pub := testAgent(t)
	heartbeat := make(chan time.Time)
	commands := make(chan []byte)
	sig := make(chan os.Signal)

	done := make(chan error, 1)
	go func() { done <- a.run(heartbeat, commands, sig) }()

	commands <- []byte(`{"sir1": "alarm"}`)
	heartbeat <- time.Time{} // returns once the command has been applied
	a.reg.Tick()
	sig <- syscall.SIGTERM

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("run did not return after signal")
	}

	events := pub.Events()
	if len(events) != 2 || events[0] != mqtt.EventHeartbeat || events[1] != mqtt.EventShutdown {
		t.Fatalf("system events: got %v", events)
	}

	shutdown := pub.SystemEvents[1]
	if shutdown.Reason != "SIGTERM" || !shutdown.Retained {
		t.Errorf("shutdown event: got %+v", shutdown)
	}
	var body status.StatusJSON
	if err := json.Unmarshal(shutdown.RawPayload, &body); err != nil {
		t.Fatalf("invalid shutdown payload: %v", err)
	}
	if body.Status.Event != "SHUTDOWN" || body.Status.Reason != "SIGTERM" {
		t.Errorf("shutdown payload: got %+v", body.Status)
	}

	levels := outs["sir1"].Levels()
	if len(levels) < 2 || !levels[0] || levels[len(levels)-1] {
		t.Errorf("sir1 should have sounded then been switched off, got %v", levels)
	}
	for _, st := range a.reg.Snapshot() {
		if st.Active {
			t.Errorf("%s still active after shutdown", st.Name)
		}
	}
}

func TestAgentShutdownReportsStopFailure(t *testing.T) {
	a, outs, pub := testAgent(t)
	outs["led2"].SetError(errors.New("line released"))

	a.shutdown(syscall.SIGINT)

	if got := pub.Events(); len(got) != 1 || got[0] != mqtt.EventShutdown {
		t.Fatalf("expected shutdown event despite stop failure, got %v", got)
	}
	if pub.SystemEvents[0].Reason != "SIGINT" {
		t.Errorf("reason: got %s", pub.SystemEvents[0].Reason)
	}
	if outs["led1"].Level() {
		t.Error("led1 should be off")
	}
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
