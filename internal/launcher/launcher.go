// Package launcher starts absent services and confirms they came up.
package launcher

import (
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/seolyn/vigil/internal/logger"
	"github.com/seolyn/vigil/internal/probe"
	"github.com/seolyn/vigil/internal/service"
)

const defaultPollEvery = 100 * time.Millisecond

// Launcher spawns a service's launch command detached from the supervisor
// and polls the probe until the grace window expires. One attempt per call;
// retry is the next tick's business.
type Launcher struct {
	take      probe.TakeFunc
	log       *slog.Logger
	pollEvery time.Duration
}

func New(take probe.TakeFunc, log *slog.Logger) *Launcher {
	if log == nil {
		log = slog.Default()
	}
	return &Launcher{take: take, log: log, pollEvery: defaultPollEvery}
}

// EnsureStarted launches the service unless a fresh probe says it is already
// present. The spawned process runs in its own session so it outlives the
// supervisor. Failures are reported, never propagated as loop-fatal.
func (l *Launcher) EnsureStarted(spec service.Spec) service.RestartOutcome {
	// Re-probe immediately before launch; an earlier probe may be stale and
	// a duplicate instance is worse than a wasted scan.
	snap, err := l.take()
	if err != nil {
		l.log.Error("launch aborted: process table scan failed", "service", spec.Name, "error", err)
		return service.OutcomeFailed
	}
	if snap.Running(spec) {
		return service.OutcomeSucceeded
	}

	cmd, closers, err := l.configureCmd(spec)
	if err != nil {
		l.log.Error("launch setup failed", "service", spec.Name, "error", err)
		return service.OutcomeFailed
	}
	if err := cmd.Start(); err != nil {
		closeAll(closers)
		l.log.Error("launch failed", "service", spec.Name, "command", spec.Command, "error", err)
		return service.OutcomeFailed
	}
	// The child inherited the log file descriptors; ours can go.
	closeAll(closers)
	// Reap if it dies while we are alive. Never joined by the tick.
	go func() { _ = cmd.Wait() }()

	if l.waitUntilUp(spec) {
		logger.Success(l.log, "service started", "service", spec.Name, "pid", cmd.Process.Pid)
		return service.OutcomeSucceeded
	}
	l.log.Error("service did not come up within grace period",
		"service", spec.Name, "grace", spec.Grace.String())
	return service.OutcomeFailed
}

// waitUntilUp polls the probe until the signature appears or the grace
// window runs out. A zero grace means a single immediate check.
func (l *Launcher) waitUntilUp(spec service.Spec) bool {
	deadline := time.Now().Add(spec.Grace)
	for {
		if snap, err := l.take(); err == nil && snap.Running(spec) {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(l.pollEvery)
	}
}

func (l *Launcher) configureCmd(spec service.Spec) (*exec.Cmd, []*os.File, error) {
	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	setDetachedSysProcAttr(cmd)

	var closers []*os.File
	outPath, errPath := spec.Log.Paths(spec.Name)
	stdout, err := openSink(outPath)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, stdout)
	stderr := stdout
	if errPath != outPath {
		stderr, err = openSink(errPath)
		if err != nil {
			closeAll(closers)
			return nil, nil, err
		}
		closers = append(closers, stderr)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Stdin = nil
	return cmd, closers, nil
}

// openSink opens path for append, or /dev/null when path is empty. The
// descriptor is inherited by the child so writes keep landing after the
// supervisor exits.
func openSink(path string) (*os.File, error) {
	if path == "" {
		return os.OpenFile(os.DevNull, os.O_RDWR, 0)
	}
	// #nosec G304 -- path comes from the fixed service registry
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func closeAll(files []*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
