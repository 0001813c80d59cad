package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/seolyn/vigil/internal/logger"
	"github.com/seolyn/vigil/internal/resource"
	"github.com/seolyn/vigil/internal/service"
)

// Built-in defaults. The binary runs with no config file at all; a file
// overrides selectively.
const (
	DefaultInterval       = 30 * time.Second
	DefaultResourceEvery  = 5
	DefaultHeartbeatEvery = 10
	DefaultSnapshotPath   = "/var/www/html/status.json"
	DefaultLogDir         = "/var/log/vigil"
	DefaultListen         = ":8787"
	// DefaultGrace applies to services whose config omits a grace window. A
	// zero grace would mean a single immediate post-launch probe, which fails
	// for anything that needs time to come up.
	DefaultGrace = 10 * time.Second
)

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	Supervisor SupervisorConfig `toml:"supervisor" mapstructure:"supervisor"`
	Server     ServerConfig     `toml:"server" mapstructure:"server"`
	History    HistoryConfig    `toml:"history" mapstructure:"history"`
	Log        *LogConfig       `toml:"log" mapstructure:"log"`
	Services   []ServiceConfig  `toml:"services" mapstructure:"services"`
}

type SupervisorConfig struct {
	Interval          time.Duration `toml:"interval" mapstructure:"interval"`
	ResourceEvery     int           `toml:"resource_every" mapstructure:"resource_every"`
	HeartbeatEvery    int           `toml:"heartbeat_every" mapstructure:"heartbeat_every"`
	SnapshotPath      string        `toml:"snapshot_path" mapstructure:"snapshot_path"`
	LogDir            string        `toml:"log_dir" mapstructure:"log_dir"`
	DiskPath          string        `toml:"disk_path" mapstructure:"disk_path"`
	MemoryHighPercent float64       `toml:"memory_high_percent" mapstructure:"memory_high_percent"`
	DiskHighPercent   float64       `toml:"disk_high_percent" mapstructure:"disk_high_percent"`
	LogCeilingMB      int64         `toml:"log_ceiling_mb" mapstructure:"log_ceiling_mb"`
	LogRetainMB       int64         `toml:"log_retain_mb" mapstructure:"log_retain_mb"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type LogConfig struct {
	Dir        string `toml:"dir" mapstructure:"dir"`
	Stdout     string `toml:"stdout" mapstructure:"stdout"`
	Stderr     string `toml:"stderr" mapstructure:"stderr"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type ServiceConfig struct {
	Name      string        `toml:"name" mapstructure:"name"`
	Signature string        `toml:"signature" mapstructure:"signature"`
	Match     string        `toml:"match" mapstructure:"match"`
	Command   string        `toml:"command" mapstructure:"command"`
	WorkDir   string        `toml:"workdir" mapstructure:"workdir"`
	Env       []string      `toml:"env" mapstructure:"env"`
	Grace     time.Duration `toml:"grace" mapstructure:"grace"`
	Log       *LogConfig    `toml:"log" mapstructure:"log"`
}

// Config is the resolved runtime configuration.
type Config struct {
	Interval       time.Duration
	ResourceEvery  int
	HeartbeatEvery int
	SnapshotPath   string
	LogDir         string
	Listen         string
	BasePath       string
	HistoryDSN     string
	Resource       resource.Config
	Log            logger.Config // rotation for the supervisor's own log
	Services       []service.Spec
}

// SupervisorLogPath is where the supervisor's own log goes, inside the same
// directory its disk remediation manages.
func (c *Config) SupervisorLogPath() string {
	return filepath.Join(c.LogDir, "vigil.log")
}

// Default returns the built-in configuration: the four known services of the
// VM, supervised at the default cadence.
func Default() *Config {
	c := &Config{
		Interval:       DefaultInterval,
		ResourceEvery:  DefaultResourceEvery,
		HeartbeatEvery: DefaultHeartbeatEvery,
		SnapshotPath:   DefaultSnapshotPath,
		LogDir:         DefaultLogDir,
		Listen:         DefaultListen,
	}
	c.Resource = resource.Config{LogDir: c.LogDir}
	c.Log = logger.Config{Dir: c.LogDir}
	svcLog := logger.Config{Dir: c.LogDir}
	c.Services = []service.Spec{
		{
			Name:      "web-server",
			Signature: "nginx",
			Match:     service.MatchExe,
			Command:   "nginx",
			Grace:     10 * time.Second,
			Log:       svcLog,
		},
		{
			Name:      "terminal-stream",
			Signature: "ttyd",
			Match:     service.MatchExe,
			Command:   "ttyd -p 7681 -W bash",
			Grace:     10 * time.Second,
			Log:       svcLog,
		},
		{
			Name:      "api-server",
			Signature: "stats_api.py",
			Match:     service.MatchCmdline,
			Command:   "python3 /opt/vigil/stats_api.py",
			Grace:     15 * time.Second,
			Log:       svcLog,
		},
		{
			Name:      "automation-loop",
			Signature: "automation_loop.py",
			Match:     service.MatchCmdline,
			Command:   "python3 /opt/vigil/automation_loop.py",
			Grace:     30 * time.Second,
			Log:       svcLog,
		},
	}
	return c
}

// Load reads a TOML config file and resolves it over the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	return resolve(&fc)
}

func resolve(fc *FileConfig) (*Config, error) {
	c := Default()

	sc := fc.Supervisor
	if sc.Interval > 0 {
		c.Interval = sc.Interval
	}
	if sc.ResourceEvery > 0 {
		c.ResourceEvery = sc.ResourceEvery
	}
	if sc.HeartbeatEvery > 0 {
		c.HeartbeatEvery = sc.HeartbeatEvery
	}
	if sc.SnapshotPath != "" {
		c.SnapshotPath = sc.SnapshotPath
	}
	if sc.LogDir != "" {
		c.LogDir = sc.LogDir
	}
	c.Resource = resource.Config{
		MemoryHighPercent: sc.MemoryHighPercent,
		DiskHighPercent:   sc.DiskHighPercent,
		DiskPath:          sc.DiskPath,
		LogDir:            c.LogDir,
		LogCeilingBytes:   sc.LogCeilingMB * 1024 * 1024,
		LogRetainBytes:    sc.LogRetainMB * 1024 * 1024,
	}
	if fc.Server.Listen != "" {
		c.Listen = fc.Server.Listen
	}
	c.BasePath = fc.Server.BasePath
	c.HistoryDSN = fc.History.DSN

	// logging config: top-level defaults, then per-service overrides
	base := logger.Config{Dir: c.LogDir}
	if fc.Log != nil {
		base = mergeLog(base, *fc.Log)
	}
	c.Log = base

	if len(fc.Services) > 0 {
		specs := make([]service.Spec, 0, len(fc.Services))
		for _, svc := range fc.Services {
			s := service.Spec{
				Name:      svc.Name,
				Signature: svc.Signature,
				Match:     service.MatchKind(svc.Match),
				Command:   svc.Command,
				WorkDir:   svc.WorkDir,
				Env:       svc.Env,
				Grace:     svc.Grace,
				Log:       base,
			}
			if s.Grace == 0 {
				s.Grace = DefaultGrace
			}
			if svc.Log != nil {
				s.Log = mergeLog(base, *svc.Log)
			}
			if err := s.Validate(); err != nil {
				return nil, fmt.Errorf("config: %w", err)
			}
			specs = append(specs, s)
		}
		c.Services = specs
	} else {
		// default registry inherits the configured log dir
		for i := range c.Services {
			c.Services[i].Log = base
		}
	}

	seen := make(map[string]struct{}, len(c.Services))
	for _, s := range c.Services {
		if _, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("config: duplicate service name %q", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return c, nil
}

func mergeLog(base logger.Config, over LogConfig) logger.Config {
	out := base
	if over.Dir != "" {
		out.Dir = over.Dir
	}
	if over.Stdout != "" {
		out.StdoutPath = over.Stdout
	}
	if over.Stderr != "" {
		out.StderrPath = over.Stderr
	}
	if over.MaxSizeMB != 0 {
		out.MaxSizeMB = over.MaxSizeMB
	}
	if over.MaxBackups != 0 {
		out.MaxBackups = over.MaxBackups
	}
	if over.MaxAgeDays != 0 {
		out.MaxAgeDays = over.MaxAgeDays
	}
	if over.Compress {
		out.Compress = true
	}
	return out
}
