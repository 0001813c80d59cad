package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	restartAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "service",
			Name:      "restart_attempts_total",
			Help:      "Restart attempts by service and outcome.",
		}, []string{"service", "outcome"},
	)
	serviceUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vigil",
			Subsystem: "service",
			Name:      "up",
			Help:      "1 when the service was probed running this tick, else 0.",
		}, []string{"service"},
	)
	remediations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "resource",
			Name:      "remediations_total",
			Help:      "Resource remediation attempts by kind and outcome.",
		}, []string{"kind", "outcome"},
	)
	memoryPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vigil",
			Subsystem: "resource",
			Name:      "memory_used_percent",
			Help:      "Latest sampled memory utilization.",
		},
	)
	diskPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vigil",
			Subsystem: "resource",
			Name:      "disk_used_percent",
			Help:      "Latest sampled disk utilization.",
		},
	)
	ticks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "loop",
			Name:      "ticks_total",
			Help:      "Completed supervisor ticks.",
		},
	)
	lastTickUnix = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vigil",
			Subsystem: "loop",
			Name:      "last_tick_unix_seconds",
			Help:      "Unix time of the last completed tick.",
		},
	)
	publishFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "loop",
			Name:      "publish_failures_total",
			Help:      "Snapshot publish attempts that failed.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{restartAttempts, serviceUp, remediations, memoryPercent, diskPercent, ticks, lastTickUnix, publishFailures}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncRestartAttempt(service, outcome string) {
	if regOK.Load() {
		restartAttempts.WithLabelValues(service, outcome).Inc()
	}
}

func SetServiceUp(service string, up bool) {
	if regOK.Load() {
		v := 0.0
		if up {
			v = 1.0
		}
		serviceUp.WithLabelValues(service).Set(v)
	}
}

func IncRemediation(kind, outcome string) {
	if regOK.Load() {
		remediations.WithLabelValues(kind, outcome).Inc()
	}
}

func SetResourceUsage(memPct, diskPct float64) {
	if regOK.Load() {
		memoryPercent.Set(memPct)
		diskPercent.Set(diskPct)
	}
}

func IncTick(at time.Time) {
	if regOK.Load() {
		ticks.Inc()
		lastTickUnix.Set(float64(at.Unix()))
	}
}

func IncPublishFailure() {
	if regOK.Load() {
		publishFailures.Inc()
	}
}
