// Package supervisor runs the check-and-publish loop: probe every service,
// relaunch the absent ones, watch resource pressure, publish a snapshot.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seolyn/vigil/internal/history"
	"github.com/seolyn/vigil/internal/metrics"
	"github.com/seolyn/vigil/internal/probe"
	"github.com/seolyn/vigil/internal/resource"
	"github.com/seolyn/vigil/internal/service"
	"github.com/seolyn/vigil/internal/snapshot"
)

// State is the loop's lifecycle phase.
type State int32

const (
	Starting State = iota
	Running
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Starter starts an absent service. Implemented by launcher.Launcher.
type Starter interface {
	EnsureStarted(spec service.Spec) service.RestartOutcome
}

// Monitor samples and remediates resource pressure. Implemented by
// resource.Monitor.
type Monitor interface {
	Sample() (resource.Sample, error)
	Remediate(s resource.Sample) []resource.Remedy
}

// Config sets the loop cadence. Zero values pick the defaults.
type Config struct {
	Interval       time.Duration // tick period for probe/launch/publish
	ResourceEvery  int           // resource pass every Nth tick
	HeartbeatEvery int           // heartbeat log line every Nth tick
	LogDir         string        // created during Starting
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.ResourceEvery <= 0 {
		c.ResourceEvery = 5
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = 10
	}
}

// Options wires the loop's collaborators.
type Options struct {
	Config    Config
	Registry  []service.Spec
	Take      probe.TakeFunc
	Starter   Starter
	Monitor   Monitor
	Publisher *snapshot.Publisher
	Sink      history.Sink // optional
	Logger    *slog.Logger
}

// Loop is the single thread of control. One tick completes in full before
// the next sleep begins; shutdown is only observed between ticks. Service
// state is rebuilt from live inspection each tick, never persisted.
type Loop struct {
	cfg       Config
	registry  []service.Spec
	take      probe.TakeFunc
	starter   Starter
	monitor   Monitor
	publisher *snapshot.Publisher
	sink      history.Sink
	log       *slog.Logger

	state    atomic.Int32
	lastTick atomic.Int64 // unix nanos of last completed tick

	mu         sync.RWMutex
	states     []service.State
	lastSample resource.Sample
	latest     snapshot.Document
	published  bool
}

func New(o Options) *Loop {
	o.Config.applyDefaults()
	log := o.Logger
	if log == nil {
		log = slog.Default()
	}
	states := make([]service.State, 0, len(o.Registry))
	for _, spec := range o.Registry {
		states = append(states, service.NewState(spec))
	}
	l := &Loop{
		cfg:       o.Config,
		registry:  o.Registry,
		take:      o.Take,
		starter:   o.Starter,
		monitor:   o.Monitor,
		publisher: o.Publisher,
		sink:      o.Sink,
		log:       log,
		states:    states,
	}
	l.state.Store(int32(Starting))
	return l
}

// State returns the loop's current lifecycle phase.
func (l *Loop) State() State { return State(l.state.Load()) }

// LastTick returns when the last tick completed, or the zero time before the
// first one has.
func (l *Loop) LastTick() time.Time {
	n := l.lastTick.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Latest returns the most recently published snapshot document. ok is false
// before the first publish.
func (l *Loop) Latest() (snapshot.Document, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.latest, l.published
}

// Run drives the loop until ctx is canceled, then drains: the in-flight tick
// finishes, one final snapshot is published, and the supervised services are
// left running. Individual failures never escalate into a Run error; the
// loop's own availability is the primary guarantee.
func (l *Loop) Run(ctx context.Context) error {
	if dir := l.cfg.LogDir; dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			// Degraded but alive: services without a log dir write nowhere,
			// the loop still supervises them.
			l.log.Warn("could not create log directory", "dir", dir, "error", err)
		}
	}
	l.state.Store(int32(Running))
	l.log.Info("supervisor running",
		"services", len(l.registry),
		"interval", l.cfg.Interval.String())

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for n := uint64(1); ; n++ {
		select {
		case <-ctx.Done():
			return l.drain()
		default:
		}
		l.tick(n)
		select {
		case <-ctx.Done():
			return l.drain()
		case <-ticker.C:
		}
	}
}

// tick runs one full pass: probe all, relaunch absent, periodic resource
// check, publish. Any panic from a collaborator is contained here so a
// single bad probe cannot take the loop down.
func (l *Loop) tick(n uint64) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("tick recovered from panic", "tick", n, "panic", fmt.Sprint(r))
		}
	}()

	l.checkServices()
	if n%uint64(l.cfg.ResourceEvery) == 0 {
		l.resourcePass()
	}
	l.publish()
	if n%uint64(l.cfg.HeartbeatEvery) == 0 {
		l.heartbeat(n)
	}

	now := time.Now()
	l.lastTick.Store(now.UnixNano())
	metrics.IncTick(now)
}

// checkServices probes every registered service against one shared
// process-table snapshot and relaunches the absent ones. One service's
// failure never stops the sweep.
func (l *Loop) checkServices() {
	snap, err := l.take()
	if err != nil {
		// Without a trustworthy scan a relaunch could duplicate a healthy
		// service; skip the sweep and try again next tick.
		l.log.Warn("process table scan failed, skipping service checks", "error", err)
		return
	}

	var absent []int
	l.mu.Lock()
	for i := range l.states {
		st := &l.states[i]
		if snap.Running(st.Spec) {
			st.Status = service.StatusRunning
		} else {
			st.Status = service.StatusStopped
			absent = append(absent, i)
		}
		metrics.SetServiceUp(st.Spec.Name, st.Status == service.StatusRunning)
	}
	l.mu.Unlock()

	// Each relaunch blocks up to its grace period, so the lock must stay
	// released here or Latest() and the status API stall for the sweep.
	// The registry is index-aligned with states and immutable.
	for _, i := range absent {
		spec := l.registry[i]
		l.log.Warn("service not running, attempting restart", "service", spec.Name)
		outcome := l.starter.EnsureStarted(spec)
		at := time.Now()

		l.mu.Lock()
		st := &l.states[i]
		st.LastRestartAt = at
		st.LastOutcome = outcome
		if outcome == service.OutcomeSucceeded {
			st.Status = service.StatusRunning
		}
		l.mu.Unlock()

		metrics.SetServiceUp(spec.Name, outcome == service.OutcomeSucceeded)
		metrics.IncRestartAttempt(spec.Name, string(outcome))
		l.record(history.Event{
			Type:       history.EventRestart,
			OccurredAt: at,
			Subject:    spec.Name,
			Outcome:    string(outcome),
		})
	}
}

func (l *Loop) resourcePass() {
	sample, err := l.monitor.Sample()
	if err != nil {
		l.log.Warn("resource sample failed", "error", err)
		return
	}
	l.mu.Lock()
	l.lastSample = sample
	l.mu.Unlock()
	metrics.SetResourceUsage(sample.MemoryPercent, sample.DiskPercent)

	for _, remedy := range l.monitor.Remediate(sample) {
		metrics.IncRemediation(remedy.Kind, string(remedy.Outcome))
		l.record(history.Event{
			Type:       history.EventRemediation,
			OccurredAt: time.Now(),
			Subject:    remedy.Kind,
			Outcome:    string(remedy.Outcome),
			Detail:     remedy.Detail,
		})
	}
}

// publish writes the snapshot; a failed write (disk full and the like) is
// logged and swallowed.
func (l *Loop) publish() {
	l.mu.Lock()
	doc := snapshot.Build(l.states, l.lastSample)
	l.latest = doc
	l.published = true
	l.mu.Unlock()

	if err := l.publisher.Publish(doc); err != nil {
		metrics.IncPublishFailure()
		l.log.Warn("snapshot publish failed", "path", l.publisher.Path(), "error", err)
	}
}

// heartbeat distinguishes "alive but quiet" from "dead" by log cadence alone.
func (l *Loop) heartbeat(n uint64) {
	l.mu.RLock()
	up := 0
	for _, st := range l.states {
		if st.Status == service.StatusRunning {
			up++
		}
	}
	total := len(l.states)
	l.mu.RUnlock()
	l.log.Info("heartbeat", "tick", n, "services_up", up, "services_total", total)
}

func (l *Loop) drain() error {
	l.state.Store(int32(Draining))
	l.log.Info("termination signal received, draining")
	l.publish()
	l.state.Store(int32(Stopped))
	l.log.Info("supervisor stopped, services left running")
	return nil
}

func (l *Loop) record(e history.Event) {
	if l.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.sink.Send(ctx, e); err != nil {
		l.log.Warn("history sink rejected event", "type", string(e.Type), "error", err)
	}
}
