// Command signal-agent drives LED, siren and buzzer patterns on a game
// node from MQTT command batches.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sweeney/signal-agent/internal/command"
	"github.com/sweeney/signal-agent/internal/config"
	"github.com/sweeney/signal-agent/internal/engine"
	"github.com/sweeney/signal-agent/internal/events"
	"github.com/sweeney/signal-agent/internal/gpio"
	"github.com/sweeney/signal-agent/internal/logging"
	"github.com/sweeney/signal-agent/internal/mqtt"
	"github.com/sweeney/signal-agent/internal/status"
	"github.com/sweeney/signal-agent/internal/web"
)

// commandQueue is how many command payloads may wait for the main loop.
const commandQueue = 32

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// options holds command-line flags. Flags only override the config file
// when set explicitly.
type options struct {
	configPath string
	node       string
	broker     string
	httpAddr   string
	gpioChip   string
	tick       time.Duration
	heartbeat  time.Duration
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	var opts options
	root := &cobra.Command{
		Use:           "signal-agent",
		Short:         "Drive signal patterns on GPIO outputs from MQTT commands",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts, cmd.Flags())
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "fatal: %v\n", err)
				return err
			}
			if err := run(cfg); err != nil {
				slog.Error("fatal", "error", err)
				return err
			}
			return nil
		},
	}

	bindFlags(root.PersistentFlags(), &opts)
	root.AddCommand(newValidateCmd(&opts))
	return root
}

func bindFlags(f *pflag.FlagSet, opts *options) {
	f.StringVarP(&opts.configPath, "config", "c", "", "config file (.toml, .yaml or .yml)")
	f.StringVar(&opts.node, "node", config.DefaultNode, "node name used in MQTT topics")
	f.StringVar(&opts.broker, "broker", config.DefaultBroker, "MQTT broker address")
	f.StringVar(&opts.httpAddr, "http", config.DefaultHTTP, "HTTP status address (empty to disable)")
	f.StringVar(&opts.gpioChip, "gpio-chip", config.DefaultGPIOChip, "GPIO character device")
	f.DurationVar(&opts.tick, "tick", config.DefaultTickMs*time.Millisecond, "engine tick period")
	f.DurationVar(&opts.heartbeat, "heartbeat", config.DefaultHeartbeatMs*time.Millisecond, "heartbeat interval (0 to disable)")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	f.StringVar(&opts.logFormat, "log-format", "text", "log format: text or json")
}

// loadConfig reads the config file, if any, then applies flags that were
// set on the command line.
func loadConfig(opts options, flags *pflag.FlagSet) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return nil, err
		}
	}

	if flags.Changed("node") {
		cfg.Node = opts.node
	}
	if flags.Changed("broker") {
		cfg.Broker = opts.broker
	}
	if flags.Changed("http") {
		cfg.HTTP = opts.httpAddr
	}
	if flags.Changed("gpio-chip") {
		cfg.GPIOChip = opts.gpioChip
	}
	if flags.Changed("tick") {
		cfg.TickMs = int(opts.tick.Milliseconds())
	}
	if flags.Changed("heartbeat") {
		cfg.HeartbeatMs = int(opts.heartbeat.Milliseconds())
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = opts.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(cfg *config.Config) error {
	if err := logging.Setup(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}, nil); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	log := logging.For("main")

	bus := events.New()
	defer bus.Close()

	outputs, closeOutputs, err := openOutputs(cfg)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer closeOutputs()

	reg := engine.NewRegistry(cfg.Tick(),
		engine.WithLogger(logging.For("engine")),
		engine.WithBus(bus))
	for _, ch := range cfg.Channels {
		if err := reg.Register(ch.Name, outputs[ch.Name]); err != nil {
			return fmt.Errorf("register channel: %w", err)
		}
	}

	pre := command.New(reg,
		command.Groups{LEDs: cfg.Names(config.KindLED), Sirens: cfg.Names(config.KindSiren)},
		cfg.Macros,
		command.WithLogger(logging.For("command")),
		command.WithBus(bus))

	// Tracker before STARTUP so the snapshot is available.
	tracker := status.NewTracker(time.Now(), status.Config{
		Node:        cfg.Node,
		TickMs:      int64(cfg.TickMs),
		HeartbeatMs: int64(cfg.HeartbeatMs),
		Broker:      cfg.Broker,
		HTTPAddr:    cfg.HTTP,
		GPIOChip:    cfg.GPIOChip,
	}, reg)
	defer tracker.Watch(bus)()
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	commands := make(chan []byte, commandQueue)
	mqttLog := logging.For("mqtt")
	client, err := mqtt.NewRealClient(mqtt.Options{
		Broker:   cfg.Broker,
		ClientID: cfg.ClientID,
		Node:     cfg.Node,
		Logger:   mqttLog,
		OnCommand: func(payload []byte) {
			select {
			case commands <- payload:
			default:
				mqttLog.Warn("command queue full, dropping batch", "bytes", len(payload))
			}
		},
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer client.Close()

	tracker.SetMQTTConnected(client.IsConnected())
	snap := tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      mqtt.EventStartup,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, mqtt.EventStartup, ""),
	}
	if err := client.PublishSystem(startup); err != nil {
		log.Warn("failed to publish startup event", "error", err)
	} else {
		log.Info("published startup event")
	}

	if cfg.HTTP != "" {
		srv := web.New(cfg.HTTP, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info("http status server listening", "addr", cfg.HTTP)
	}

	ctx, cancel := context.WithCancel(context.Background())
	wait := engine.NewDriver(reg, logging.For("driver")).Start(ctx)
	defer func() {
		cancel()
		wait()
	}()

	var heartbeat <-chan time.Time
	if hb := cfg.Heartbeat(); hb > 0 {
		ticker := time.NewTicker(hb)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.Info("started",
		"node", cfg.Node,
		"broker", cfg.Broker,
		"command_topic", client.Topics().Command,
		"tick", cfg.Tick(),
		"heartbeat", cfg.Heartbeat(),
		"channels", len(cfg.Channels),
		"macros", len(cfg.Macros))
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Debug("sd_notify failed", "error", err)
	}

	loop := &agent{
		pre:        pre,
		reg:        reg,
		publisher:  client,
		mqttStatus: client,
		tracker:    tracker,
		log:        log,
		now:        time.Now,
	}
	return loop.run(heartbeat, commands, sigCh)
}

// openOutputs returns one output per configured channel. Channels with a
// pin share a GPIO bank; the rest get a NoopOutput.
func openOutputs(cfg *config.Config) (map[string]gpio.Output, func(), error) {
	outputs := make(map[string]gpio.Output, len(cfg.Channels))
	var lines []gpio.Line
	for _, ch := range cfg.Channels {
		if ch.HasPin() {
			lines = append(lines, gpio.Line{Name: ch.Name, Pin: *ch.Pin, Invert: ch.Invert})
			continue
		}
		outputs[ch.Name] = gpio.NewNoopOutput(ch.Name, logging.For("gpio"))
	}
	if len(lines) == 0 {
		return outputs, func() {}, nil
	}

	bank, err := gpio.NewRealBank(cfg.GPIOChip, lines)
	if err != nil {
		return nil, nil, err
	}
	for _, l := range lines {
		out, _ := bank.Output(l.Name)
		outputs[l.Name] = out
	}
	return outputs, func() { bank.Close() }, nil
}

// agent is the main loop's state. Everything it touches is also safe for
// the HTTP server and the tick driver to use concurrently.
type agent struct {
	pre        *command.Preprocessor
	reg        *engine.Registry
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	log        *slog.Logger
	now        func() time.Time
}

func (a *agent) run(heartbeat <-chan time.Time, commands <-chan []byte, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			a.shutdown(s)
			return nil

		case payload := <-commands:
			a.handleCommand(payload)

		case <-heartbeat:
			a.heartbeat()
		}
	}
}

func (a *agent) handleCommand(payload []byte) {
	var res command.Result
	batch, err := command.ParseBatch(payload)
	if err != nil {
		a.log.Warn("malformed command payload", "error", err, "bytes", len(payload))
		res.Errors = []command.KeyError{{Key: "payload", Err: err}}
	} else {
		res = a.pre.Apply(batch)
	}

	ev := mqtt.ResultEvent{Timestamp: a.now(), Result: res}
	if err := a.publisher.PublishResult(ev); err != nil {
		if errors.Is(err, mqtt.ErrNotConnected) {
			a.log.Debug("result not published, broker offline")
		} else {
			a.log.Warn("result publish error", "error", err)
		}
	}
}

func (a *agent) refresh() status.Snapshot {
	if a.mqttStatus != nil {
		a.tracker.SetMQTTConnected(a.mqttStatus.IsConnected())
	}
	if net := readNetworkInfo(); net != nil {
		a.tracker.SetNetwork(net)
	}
	return a.tracker.Snapshot()
}

func (a *agent) heartbeat() {
	snap := a.refresh()
	a.log.Info("heartbeat",
		"uptime", snap.Uptime().Truncate(time.Second),
		"commands", snap.Counts.Commands,
		"write_failures", snap.Counts.WriteFailures)

	ev := mqtt.SystemEvent{
		Timestamp:  a.now(),
		Event:      mqtt.EventHeartbeat,
		RawPayload: status.FormatStatusEvent(snap, mqtt.EventHeartbeat, ""),
	}
	if err := a.publisher.PublishSystem(ev); err != nil {
		a.log.Warn("heartbeat publish error", "error", err)
	}
}

func (a *agent) shutdown(s os.Signal) {
	a.log.Info("shutting down", "signal", s)
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		a.log.Debug("sd_notify failed", "error", err)
	}

	if err := a.reg.StopAll(); err != nil {
		a.log.Error("failed to switch outputs off", "error", err)
	}

	reason := signalName(s)
	snap := a.refresh()
	ev := mqtt.SystemEvent{
		Timestamp:  a.now(),
		Event:      mqtt.EventShutdown,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, mqtt.EventShutdown, reason),
	}
	if err := a.publisher.PublishSystem(ev); err != nil {
		a.log.Warn("failed to publish shutdown event", "error", err)
	} else {
		a.log.Info("published shutdown event")
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
