package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "signal",
		Subsystem: "engine",
		Name:      "ticks_total",
		Help:      "Driver passes over all channels",
	})

	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "signal",
		Subsystem: "engine",
		Name:      "tick_duration_seconds",
		Help:      "Time spent holding the registry lock for one driver pass",
		Buckets:   []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .025},
	})

	activeChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "signal",
		Subsystem: "engine",
		Name:      "active_channels",
		Help:      "Channels with a pattern still running after the last tick",
	})

	channelAssignments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signal",
		Subsystem: "engine",
		Name:      "assignments_total",
		Help:      "Patterns assigned per channel",
	}, []string{"channel"})

	channelStops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signal",
		Subsystem: "engine",
		Name:      "stops_total",
		Help:      "Stops and idle assignments per channel",
	}, []string{"channel"})

	writeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signal",
		Subsystem: "engine",
		Name:      "write_failures_total",
		Help:      "Failed level writes per channel",
	}, []string{"channel"})
)
