package service

import "time"

// Status is the last probed liveness of a service.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// RestartOutcome is the result of one EnsureStarted attempt. Callers assert
// on it instead of inferring success from log text.
type RestartOutcome string

const (
	OutcomeNotAttempted RestartOutcome = "not-attempted"
	OutcomeSucceeded    RestartOutcome = "succeeded"
	OutcomeFailed       RestartOutcome = "failed"
)

// State is the per-tick view of one service. It is rebuilt from live process
// inspection every tick and never persisted, so a supervisor restart starts
// from a clean slate.
type State struct {
	Spec          Spec           `json:"spec"`
	Status        Status         `json:"status"`
	LastRestartAt time.Time      `json:"last_restart_at"` // zero when never attempted
	LastOutcome   RestartOutcome `json:"last_outcome"`
}

// NewState returns the initial state for a spec: stopped until probed,
// restart not attempted.
func NewState(spec Spec) State {
	return State{Spec: spec, Status: StatusStopped, LastOutcome: OutcomeNotAttempted}
}
