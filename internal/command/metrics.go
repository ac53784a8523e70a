package command

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "signal",
		Subsystem: "command",
		Name:      "batches_total",
		Help:      "Command batches applied",
	})

	commandKeyErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "signal",
		Subsystem: "command",
		Name:      "key_errors_total",
		Help:      "Batch keys that failed to apply",
	})
)
