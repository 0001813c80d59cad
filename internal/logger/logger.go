package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default logging configuration constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// LevelSuccess sits between INFO and WARN. Restart confirmations and
// effective remediations log at this level so operators can grep outcomes
// apart from routine chatter.
const LevelSuccess = slog.Level(2)

// Config describes logging destinations.
// If StdoutPath/StderrPath are empty, and Dir is set, files will be
// Dir/<name>.stdout.log and Dir/<name>.stderr.log
// Rotation parameters follow lumberjack semantics and apply to writers
// obtained via RotatingWriter.
type Config struct {
	Dir        string `json:"dir"`         // base directory for logs
	StdoutPath string `json:"stdout_path"` // explicit stdout path overrides Dir
	StderrPath string `json:"stderr_path"` // explicit stderr path overrides Dir
	MaxSizeMB  int    `json:"max_size_mb"` // megabytes before rotation (default 10)
	MaxBackups int    `json:"max_backups"` // number of backups to keep (default 3)
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"` // gzip rotated files
}

// Paths returns the stdout and stderr log paths for a given service name.
// Either may be empty when the config names no destination. The launcher
// opens these as plain append files handed to the child, so the descriptors
// stay valid after the supervisor exits; size control for them is the disk
// remediation's truncation pass, not in-process rotation.
func (c Config) Paths(name string) (string, string) {
	stdout := c.StdoutPath
	stderr := c.StderrPath
	if stdout == "" && c.Dir != "" {
		stdout = filepath.Join(c.Dir, fmt.Sprintf("%s.stdout.log", name))
	}
	if stderr == "" && c.Dir != "" {
		stderr = filepath.Join(c.Dir, fmt.Sprintf("%s.stderr.log", name))
	}
	return stdout, stderr
}

// RotatingWriter returns a size-rotated writer at path using the config's
// rotation parameters. Used for the supervisor's own log file.
func (c Config) RotatingWriter(path string) io.WriteCloser {
	return c.rotating(path)
}

func (c Config) rotating(path string) io.WriteCloser {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

// New returns a slog.Logger emitting line-oriented records with level tags
// INFO/SUCCESS/WARN/ERROR to w.
func New(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(NewColorTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: renameLevel,
	}, true))
}

// Success logs msg at LevelSuccess.
func Success(l *slog.Logger, msg string, args ...any) {
	l.Log(context.Background(), LevelSuccess, msg, args...)
}

// renameLevel maps the custom success level to a readable tag; slog would
// otherwise render it as "INFO+2".
func renameLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lv, ok := a.Value.Any().(slog.Level); ok && lv == LevelSuccess {
			a.Value = slog.StringValue("SUCCESS")
		}
	}
	return a
}

// LevelName returns the tag used in log output for a level.
func LevelName(l slog.Level) string {
	if l == LevelSuccess {
		return "SUCCESS"
	}
	return l.String()
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
