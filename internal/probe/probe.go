// Package probe answers "is this service running" from a single
// process-table scan shared by all services in a tick.
package probe

import (
	"os"
	"strings"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"

	"github.com/seolyn/vigil/internal/service"
)

// Entry is one row of a process-table snapshot.
type Entry struct {
	PID     int32
	Exe     string // executable base name
	Cmdline string // full command line, may be empty for kernel threads
}

// Snapshot is an immutable process-table view. One snapshot is taken per
// supervisor tick and consulted for every registered service, so probing
// stays O(processes) rather than O(services x processes).
type Snapshot struct {
	takenAt time.Time
	entries []Entry
}

// TakeFunc produces a fresh snapshot. The launcher re-probes through it
// during the grace window; tests substitute fakes.
type TakeFunc func() (*Snapshot, error)

// Take scans the live process table. Processes that exit mid-scan are
// skipped. The supervisor's own process is excluded so a signature can never
// match the prober itself.
func Take() (*Snapshot, error) {
	procs, err := gopsproc.Processes()
	if err != nil {
		return &Snapshot{takenAt: time.Now()}, err
	}
	self := int32(os.Getpid())
	entries := make([]Entry, 0, len(procs))
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		name, err := p.Name()
		if err != nil {
			continue // exited between listing and inspection
		}
		cmdline, _ := p.Cmdline()
		entries = append(entries, Entry{PID: p.Pid, Exe: name, Cmdline: cmdline})
	}
	return &Snapshot{takenAt: time.Now(), entries: entries}, nil
}

// NewSnapshot builds a snapshot from fixed entries. Test seam.
func NewSnapshot(entries []Entry) *Snapshot {
	return &Snapshot{takenAt: time.Now(), entries: entries}
}

func (s *Snapshot) TakenAt() time.Time { return s.takenAt }

func (s *Snapshot) Len() int { return len(s.entries) }

// Running reports whether any process in the snapshot matches the spec's
// probe signature. An empty snapshot yields false, never an error.
func (s *Snapshot) Running(spec service.Spec) bool {
	for i := range s.entries {
		if matches(&s.entries[i], spec.Signature, spec.Match) {
			return true
		}
	}
	return false
}

// Pids returns the PIDs of all matching processes. Used by tests to assert
// that no duplicate instance was spawned.
func (s *Snapshot) Pids(spec service.Spec) []int32 {
	var pids []int32
	for i := range s.entries {
		if matches(&s.entries[i], spec.Signature, spec.Match) {
			pids = append(pids, s.entries[i].PID)
		}
	}
	return pids
}

func matches(e *Entry, sig string, kind service.MatchKind) bool {
	switch kind {
	case service.MatchExe:
		return e.Exe == sig
	case service.MatchCmdline:
		return e.Cmdline != "" && strings.Contains(e.Cmdline, sig)
	default:
		return false
	}
}
