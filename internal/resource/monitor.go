// Package resource samples memory/disk pressure and applies bounded
// remediation when the high-water marks are crossed.
package resource

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/seolyn/vigil/internal/logger"
)

// Default thresholds and truncation bounds.
const (
	DefaultHighWaterPercent = 90.0
	DefaultLogCeilingBytes  = 100 * 1024 * 1024 // files above this get truncated
	DefaultLogRetainBytes   = 10 * 1024 * 1024  // down to this much tail
)

// Sample is one memory/disk utilization reading. Samples are not retained;
// only the latest one feeds the status snapshot.
type Sample struct {
	MemoryPercent float64   `json:"memory_percent"`
	DiskPercent   float64   `json:"disk_percent"`
	SampledAt     time.Time `json:"sampled_at"`
}

// RemedyOutcome distinguishes "worked", "ran but changed nothing", and
// "could not run at all" (typically missing privileges for the cache drop).
type RemedyOutcome string

const (
	RemedyApplied  RemedyOutcome = "applied"
	RemedyNoEffect RemedyOutcome = "no-effect"
	RemedySkipped  RemedyOutcome = "skipped"
)

// Remedy records one remediation attempt for history sinks.
type Remedy struct {
	Kind    string        `json:"kind"` // memory or disk
	Outcome RemedyOutcome `json:"outcome"`
	Detail  string        `json:"detail"`
}

// Config bounds the monitor's behavior. Zero values pick the defaults above.
type Config struct {
	MemoryHighPercent float64 `json:"memory_high_percent"`
	DiskHighPercent   float64 `json:"disk_high_percent"`
	DiskPath          string  `json:"disk_path"` // mount point to sample, default "/"
	LogDir            string  `json:"log_dir"`   // rotating logs eligible for truncation
	LogCeilingBytes   int64   `json:"log_ceiling_bytes"`
	LogRetainBytes    int64   `json:"log_retain_bytes"`
}

func (c *Config) applyDefaults() {
	if c.MemoryHighPercent <= 0 {
		c.MemoryHighPercent = DefaultHighWaterPercent
	}
	if c.DiskHighPercent <= 0 {
		c.DiskHighPercent = DefaultHighWaterPercent
	}
	if c.DiskPath == "" {
		c.DiskPath = "/"
	}
	if c.LogCeilingBytes <= 0 {
		c.LogCeilingBytes = DefaultLogCeilingBytes
	}
	if c.LogRetainBytes <= 0 {
		c.LogRetainBytes = DefaultLogRetainBytes
	}
}

// Monitor samples utilization and remediates threshold breaches. The
// sampling and cache-drop functions are swappable for tests.
type Monitor struct {
	cfg Config
	log *slog.Logger

	memPercent  func() (float64, error)
	diskPercent func(path string) (float64, error)
	dropCaches  func() error
}

func New(cfg Config, log *slog.Logger) *Monitor {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		cfg:         cfg,
		log:         log,
		memPercent:  memUsedPercent,
		diskPercent: diskUsedPercent,
		dropCaches:  dropCaches,
	}
}

// Sample takes one utilization reading. A failed memory or disk read is
// reported as an error; the caller keeps the previous sample.
func (m *Monitor) Sample() (Sample, error) {
	memPct, err := m.memPercent()
	if err != nil {
		return Sample{}, fmt.Errorf("sample memory: %w", err)
	}
	diskPct, err := m.diskPercent(m.cfg.DiskPath)
	if err != nil {
		return Sample{}, fmt.Errorf("sample disk %s: %w", m.cfg.DiskPath, err)
	}
	return Sample{MemoryPercent: memPct, DiskPercent: diskPct, SampledAt: time.Now()}, nil
}

// Remediate applies bounded remediation for the given sample and returns one
// Remedy per attempted kind. Below the thresholds it is a no-op: no cache
// drop, no truncation. Nothing here is ever fatal to the caller.
func (m *Monitor) Remediate(s Sample) []Remedy {
	var remedies []Remedy
	if s.MemoryPercent >= m.cfg.MemoryHighPercent {
		remedies = append(remedies, m.remediateMemory(s.MemoryPercent))
	}
	if s.DiskPercent >= m.cfg.DiskHighPercent {
		remedies = append(remedies, m.remediateDisk(s.DiskPercent))
	}
	return remedies
}

func (m *Monitor) remediateMemory(pct float64) Remedy {
	m.log.Warn(fmt.Sprintf("Memory usage critical: %.0f%%", pct))
	if err := m.dropCaches(); err != nil {
		// Could not run at all (usually not root). Distinct from "ran but
		// nothing changed" so operators don't chase phantom leaks.
		m.log.Warn("memory remediation could not run", "error", err)
		return Remedy{Kind: "memory", Outcome: RemedySkipped, Detail: err.Error()}
	}
	after, err := m.memPercent()
	if err != nil {
		m.log.Warn("memory re-sample failed after cache drop", "error", err)
		return Remedy{Kind: "memory", Outcome: RemedySkipped, Detail: "re-sample failed: " + err.Error()}
	}
	if after < m.cfg.MemoryHighPercent {
		logger.Success(m.log, fmt.Sprintf("Memory freed: now at %.0f%%", after))
		return Remedy{Kind: "memory", Outcome: RemedyApplied, Detail: fmt.Sprintf("%.0f%% -> %.0f%%", pct, after)}
	}
	m.log.Error(fmt.Sprintf("Memory still critical: %.0f%%", after))
	return Remedy{Kind: "memory", Outcome: RemedyNoEffect, Detail: fmt.Sprintf("still at %.0f%%", after)}
}

func (m *Monitor) remediateDisk(pct float64) Remedy {
	m.log.Warn(fmt.Sprintf("Disk usage critical: %.0f%%", pct))
	if m.cfg.LogDir == "" {
		m.log.Warn("disk remediation skipped: no log directory configured")
		return Remedy{Kind: "disk", Outcome: RemedySkipped, Detail: "no log directory configured"}
	}
	n, err := TruncateOversized(m.cfg.LogDir, m.cfg.LogCeilingBytes, m.cfg.LogRetainBytes)
	if err != nil {
		m.log.Warn("disk remediation could not run", "dir", m.cfg.LogDir, "error", err)
		return Remedy{Kind: "disk", Outcome: RemedySkipped, Detail: err.Error()}
	}
	if n > 0 {
		logger.Success(m.log, fmt.Sprintf("Truncated %d oversized log file(s)", n), "dir", m.cfg.LogDir)
		return Remedy{Kind: "disk", Outcome: RemedyApplied, Detail: fmt.Sprintf("truncated %d file(s)", n)}
	}
	m.log.Error(fmt.Sprintf("Disk still critical: %.0f%% and no oversized logs to truncate", pct))
	return Remedy{Kind: "disk", Outcome: RemedyNoEffect, Detail: "no oversized logs"}
}

func memUsedPercent() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

func diskUsedPercent(path string) (float64, error) {
	du, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return du.UsedPercent, nil
}
