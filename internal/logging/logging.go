// Package logging configures slog for the agent: text or JSON on stdout,
// fanned out to the systemd journal when it is reachable, with one child
// logger per module.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Identifier is the journal SYSLOG_IDENTIFIER.
const Identifier = "signal-agent"

// Config selects the level and stdout format.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

var (
	mu    sync.RWMutex
	root  = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	level = &slog.LevelVar{}
)

// Setup installs the handler chain and makes it the slog default. Loggers
// from For created before Setup keep their old handler.
func Setup(cfg Config, w io.Writer) error {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	if w == nil {
		w = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: level}
	var out slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		out = slog.NewTextHandler(w, opts)
	case "json":
		out = slog.NewJSONHandler(w, opts)
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}

	h := out
	if JournalAvailable() {
		h = fanout{out, NewJournalHandler(level)}
	}

	level.Set(lvl)
	logger := slog.New(h)

	mu.Lock()
	root = logger
	mu.Unlock()
	slog.SetDefault(logger)
	return nil
}

// For returns a logger tagged with module=name.
func For(module string) *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.With("module", module)
}

// SetLevel changes the level of every logger at runtime.
func SetLevel(s string) error {
	lvl, err := ParseLevel(s)
	if err != nil {
		return err
	}
	level.Set(lvl)
	return nil
}

// ParseLevel maps a level name to slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
