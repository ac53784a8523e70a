package gpio

import "log/slog"

// NoopOutput accepts every write and logs level changes at debug.
// It backs channels configured without a pin, e.g. on a desktop.
type NoopOutput struct {
	name   string
	level  bool
	logger *slog.Logger
}

// NewNoopOutput creates a NoopOutput for the named channel.
func NewNoopOutput(name string, logger *slog.Logger) *NoopOutput {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopOutput{name: name, logger: logger}
}

// Set logs transitions and never fails.
// The engine only writes with its registry lock held, so no locking here.
func (o *NoopOutput) Set(on bool) error {
	if on != o.level {
		o.level = on
		o.logger.Debug("output level", "channel", o.name, "on", on)
	}
	return nil
}
