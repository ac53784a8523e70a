package engine

import (
	"context"
	"log/slog"
	"time"
)

// Driver advances a Registry once per received tick.
// There is exactly one driver per registry and no per-channel goroutines.
type Driver struct {
	reg    *Registry
	logger *slog.Logger
}

// NewDriver creates a driver for reg.
func NewDriver(reg *Registry, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{reg: reg, logger: logger}
}

// Run steps the registry on every value from tick until ctx is done or
// tick is closed. Write failures are logged by the registry and never end
// the loop. Timing drift is not compensated: one tick, one step.
func (d *Driver) Run(ctx context.Context, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-tick:
			if !ok {
				return nil
			}
			// Failures were already logged and counted by the registry.
			_ = d.reg.Tick()
		}
	}
}

// Start runs the driver on a ticker at the registry's period in a new
// goroutine. The returned function blocks until the driver has exited,
// which happens once ctx is cancelled.
func (d *Driver) Start(ctx context.Context) (wait func()) {
	ticker := time.NewTicker(d.reg.Period())
	done := make(chan struct{})

	d.logger.Info("tick driver started", "period", d.reg.Period())
	go func() {
		defer close(done)
		defer ticker.Stop()
		d.Run(ctx, ticker.C)
		d.logger.Info("tick driver stopped")
	}()

	return func() { <-done }
}
