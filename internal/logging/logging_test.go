package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetLogging(t *testing.T) {
	t.Cleanup(func() {
		_ = Setup(Config{}, nil)
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestSetupTextAddsModule(t *testing.T) {
	resetLogging(t)
	var buf bytes.Buffer
	require.NoError(t, Setup(Config{Level: "info", Format: "text"}, &buf))

	For("engine").Info("channel write failed", "channel", "led1")
	For("engine").Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "module=engine")
	assert.Contains(t, out, "channel=led1")
	assert.NotContains(t, out, "hidden")
}

func TestSetupJSON(t *testing.T) {
	resetLogging(t)
	var buf bytes.Buffer
	require.NoError(t, Setup(Config{Level: "debug", Format: "json"}, &buf))

	For("command").Debug("batch applied", "keys", 3)

	line := strings.TrimSpace(buf.String())
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &rec))
	assert.Equal(t, "command", rec["module"])
	assert.Equal(t, "batch applied", rec["msg"])
	assert.Equal(t, float64(3), rec["keys"])
}

func TestSetLevel(t *testing.T) {
	resetLogging(t)
	var buf bytes.Buffer
	require.NoError(t, Setup(Config{Level: "error"}, &buf))
	log := For("mqtt")

	log.Warn("first")
	require.NoError(t, SetLevel("warn"))
	log.Warn("second")

	assert.NotContains(t, buf.String(), "first")
	assert.Contains(t, buf.String(), "second")
	assert.Error(t, SetLevel("nope"))
}

func TestSetupRejectsBadConfig(t *testing.T) {
	resetLogging(t)
	assert.Error(t, Setup(Config{Level: "loud"}, nil))
	assert.Error(t, Setup(Config{Format: "xml"}, nil))
}

type sent struct {
	msg    string
	pri    journal.Priority
	fields map[string]string
}

func TestJournalHandlerFields(t *testing.T) {
	var got []sent
	h := NewJournalHandler(slog.LevelInfo)
	h.send = func(msg string, pri journal.Priority, fields map[string]string) error {
		got = append(got, sent{msg, pri, fields})
		return nil
	}

	log := slog.New(h).With("module", "engine").WithGroup("write")
	log.Warn("channel write failed", "channel", "sir2", "level", true, "n", 3,
		"at", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	log.Debug("dropped")

	require.Len(t, got, 1)
	assert.Equal(t, "channel write failed", got[0].msg)
	assert.Equal(t, journal.PriWarning, got[0].pri)
	assert.Equal(t, Identifier, got[0].fields["SYSLOG_IDENTIFIER"])
	assert.Equal(t, "engine", got[0].fields["MODULE"])
	assert.Equal(t, "sir2", got[0].fields["WRITE_CHANNEL"])
	assert.Equal(t, "true", got[0].fields["WRITE_LEVEL"])
	assert.Equal(t, "3", got[0].fields["WRITE_N"])
	assert.Equal(t, "2026-01-02T03:04:05Z", got[0].fields["WRITE_AT"])
}

func TestJournalHandlerAttrsKeepTheirGroups(t *testing.T) {
	var got []sent
	h := NewJournalHandler(slog.LevelInfo)
	h.send = func(msg string, pri journal.Priority, fields map[string]string) error {
		got = append(got, sent{msg, pri, fields})
		return nil
	}

	base := slog.New(h).With("module", "engine")
	write := base.WithGroup("write").With("channel", "sir1").WithGroup("retry")
	write.Info("retrying", "n", 2)
	base.With("node", "node7").Info("plain")

	require.Len(t, got, 2)
	assert.Equal(t, "engine", got[0].fields["MODULE"])
	assert.Equal(t, "sir1", got[0].fields["WRITE_CHANNEL"])
	assert.Equal(t, "2", got[0].fields["WRITE_RETRY_N"])
	assert.NotContains(t, got[0].fields, "WRITE_MODULE")
	assert.NotContains(t, got[0].fields, "WRITE_RETRY_CHANNEL")

	// Sibling loggers do not share attributes.
	assert.Equal(t, "node7", got[1].fields["NODE"])
	assert.NotContains(t, got[1].fields, "WRITE_CHANNEL")
	assert.NotContains(t, got[0].fields, "NODE")
}

func TestJournalPriority(t *testing.T) {
	assert.Equal(t, journal.PriErr, priority(slog.LevelError))
	assert.Equal(t, journal.PriWarning, priority(slog.LevelWarn))
	assert.Equal(t, journal.PriInfo, priority(slog.LevelInfo))
	assert.Equal(t, journal.PriDebug, priority(slog.LevelDebug))
}

func TestFanoutJoinsErrors(t *testing.T) {
	var buf bytes.Buffer
	failing := NewJournalHandler(slog.LevelInfo)
	failing.send = func(string, journal.Priority, map[string]string) error {
		return errors.New("socket gone")
	}

	f := fanout{slog.NewTextHandler(&buf, nil), failing}
	assert.True(t, f.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, f.Enabled(context.Background(), slog.LevelDebug))

	err := slog.New(f).Handler().Handle(context.Background(),
		slog.NewRecord(time.Now(), slog.LevelInfo, "hello", 0))
	assert.ErrorContains(t, err, "socket gone")
	assert.Contains(t, buf.String(), "hello")
}
