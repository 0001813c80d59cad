package vigil

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/seolyn/vigil/internal/config"
	"github.com/seolyn/vigil/internal/history"
	"github.com/seolyn/vigil/internal/history/factory"
	"github.com/seolyn/vigil/internal/launcher"
	"github.com/seolyn/vigil/internal/logger"
	"github.com/seolyn/vigil/internal/metrics"
	"github.com/seolyn/vigil/internal/probe"
	"github.com/seolyn/vigil/internal/resource"
	"github.com/seolyn/vigil/internal/server"
	"github.com/seolyn/vigil/internal/service"
	"github.com/seolyn/vigil/internal/snapshot"
	"github.com/seolyn/vigil/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = service.Spec

type ServiceState = service.State

type RestartOutcome = service.RestartOutcome

type ResourceSample = resource.Sample

type StatusSnapshot = snapshot.Document

type Config = cfg.Config

type HistorySink = history.Sink

// Supervisor is a thin facade over internal/supervisor.Loop wired from a
// Config. It provides a stable public API for embedding.
type Supervisor struct {
	inner *supervisor.Loop
	sink  history.Sink
}

// New assembles a supervisor from the config: probe, launcher, resource
// monitor, snapshot publisher and the optional history sink.
func New(c *Config, log *slog.Logger) (*Supervisor, error) {
	if log == nil {
		log = slog.Default()
	}
	var sink history.Sink
	if c.HistoryDSN != "" {
		s, err := factory.NewSinkFromDSN(c.HistoryDSN)
		if err != nil {
			return nil, err
		}
		sink = s
	}
	loop := supervisor.New(supervisor.Options{
		Config: supervisor.Config{
			Interval:       c.Interval,
			ResourceEvery:  c.ResourceEvery,
			HeartbeatEvery: c.HeartbeatEvery,
			LogDir:         c.LogDir,
		},
		Registry:  c.Services,
		Take:      probe.Take,
		Starter:   launcher.New(probe.Take, log),
		Monitor:   resource.New(c.Resource, log),
		Publisher: snapshot.NewPublisher(c.SnapshotPath),
		Sink:      sink,
		Logger:    log,
	})
	return &Supervisor{inner: loop, sink: sink}, nil
}

// Run blocks until ctx is canceled and the loop has drained.
func (s *Supervisor) Run(ctx context.Context) error { return s.inner.Run(ctx) }

// Close releases the history sink, if any.
func (s *Supervisor) Close() error {
	if s.sink != nil {
		return s.sink.Close()
	}
	return nil
}

func (s *Supervisor) State() supervisor.State { return s.inner.State() }

func (s *Supervisor) LastTick() time.Time { return s.inner.LastTick() }

func (s *Supervisor) Latest() (StatusSnapshot, bool) { return s.inner.Latest() }

// DefaultConfig returns the built-in registry and cadence.
func DefaultConfig() *Config { return cfg.Default() }

// LoadConfig reads a TOML config file and resolves it over the defaults.
func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// ReadSnapshot loads a published status snapshot from disk.
func ReadSnapshot(path string) (StatusSnapshot, error) { return snapshot.Read(path) }

// NewLogger returns the line-oriented INFO/SUCCESS/WARN/ERROR logger used by
// the CLI; embedders can route it anywhere.
func NewLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	return logger.New(w, level)
}

// NewHTTPServer starts the status HTTP server for a running supervisor.
// maxTickAge bounds healthz staleness; pass a few tick intervals.
func NewHTTPServer(addr, basePath string, s *Supervisor, maxTickAge time.Duration) (*http.Server, error) {
	return server.NewServer(addr, basePath, s.inner, maxTickAge)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
