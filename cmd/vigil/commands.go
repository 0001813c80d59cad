package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/seolyn/vigil"
)

// buildRoot creates the root command with serve/status/validate subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}

	root := &cobra.Command{
		Use:   "vigil",
		Short: "vigil supervises the VM's background services",
		Long: "vigil probes a fixed registry of background services on a fixed cadence,\n" +
			"relaunches the ones that died, remediates memory/disk pressure, and\n" +
			"publishes a status snapshot for the web front end.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "path to TOML config (built-in registry when omitted)")

	root.AddCommand(newServeCmd(globalFlags))
	root.AddCommand(newStatusCmd(globalFlags))
	root.AddCommand(newValidateCmd(globalFlags))
	return root
}

func loadConfig(gf *GlobalFlags) (*vigil.Config, error) {
	if gf.ConfigPath == "" {
		return vigil.DefaultConfig(), nil
	}
	return vigil.LoadConfig(gf.ConfigPath)
}

func newServeCmd(gf *GlobalFlags) *cobra.Command {
	sf := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the supervisor loop and the status API",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe(gf, sf)
		},
	}
	cmd.Flags().StringVar(&sf.Listen, "listen", "", "status API listen address (overrides config)")
	cmd.Flags().BoolVar(&sf.NoServer, "no-server", false, "run the loop without the status API")
	cmd.Flags().BoolVar(&sf.Daemonize, "daemonize", false, "detach and run in the background")
	cmd.Flags().StringVar(&sf.PidFile, "pidfile", "", "write the daemon PID here")
	cmd.Flags().StringVar(&sf.LogFile, "logfile", "", "daemon stdout/stderr destination")
	return cmd
}

func runServe(gf *GlobalFlags, sf *ServeFlags) error {
	cfg, err := loadConfig(gf)
	if err != nil {
		return err
	}
	if sf.Listen != "" {
		cfg.Listen = sf.Listen
	}

	if sf.Daemonize {
		if err := daemonize(sf.PidFile, sf.LogFile); err != nil {
			return fmt.Errorf("daemonize: %w", err)
		}
	}

	// The loop creates this too, but the supervisor's own log needs it now.
	_ = os.MkdirAll(cfg.LogDir, 0o750)
	fileW := cfg.Log.RotatingWriter(cfg.SupervisorLogPath())
	defer func() { _ = fileW.Close() }()
	log := vigil.NewLogger(io.MultiWriter(os.Stderr, fileW), slog.LevelInfo)

	if err := vigil.RegisterMetricsDefault(); err != nil {
		log.Warn("metrics registration failed", "error", err)
	}

	sup, err := vigil.New(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = sup.Close() }()

	var srv *http.Server
	if !sf.NoServer && cfg.Listen != "" {
		srv, err = vigil.NewHTTPServer(cfg.Listen, cfg.BasePath, sup, 3*cfg.Interval)
		if err != nil {
			return err
		}
		log.Info("status API listening", "addr", cfg.Listen)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := sup.Run(ctx)

	if srv != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}
	if sf.PidFile != "" {
		_ = removePidFile(sf.PidFile)
	}
	// Partial service failure is degraded-but-alive; only a failed drain
	// would surface here, and drain never fails.
	return runErr
}

func newStatusCmd(gf *GlobalFlags) *cobra.Command {
	sf := &StatusFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the last published status snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(gf)
			if err != nil {
				return err
			}
			path := cfg.SnapshotPath
			if sf.SnapshotPath != "" {
				path = sf.SnapshotPath
			}
			doc, err := vigil.ReadSnapshot(path)
			if err != nil {
				return fmt.Errorf("read snapshot: %w", err)
			}
			printSnapshot(cmd.OutOrStdout(), doc)
			return nil
		},
	}
	cmd.Flags().StringVar(&sf.SnapshotPath, "file", "", "snapshot path (overrides config)")
	return cmd
}

func printSnapshot(w io.Writer, doc vigil.StatusSnapshot) {
	_, _ = fmt.Fprintf(w, "published: %s\n", doc.Timestamp.Format(time.RFC3339))
	names := make([]string, 0, len(doc.Services))
	for name := range doc.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, _ = fmt.Fprintf(w, "  %-20s %s\n", name, doc.Services[name])
	}
	_, _ = fmt.Fprintf(w, "memory: %.1f%%  disk: %.1f%%\n",
		doc.Resources.MemoryPercent, doc.Resources.DiskPercent)
}

func newValidateCmd(gf *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file and print the resolved registry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(gf)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "interval: %s  resource every: %d ticks  heartbeat every: %d ticks\n",
				cfg.Interval, cfg.ResourceEvery, cfg.HeartbeatEvery)
			_, _ = fmt.Fprintf(out, "snapshot: %s\nlog dir: %s\n", cfg.SnapshotPath, cfg.LogDir)
			for _, s := range cfg.Services {
				_, _ = fmt.Fprintf(out, "service %-20s signature=%q match=%s grace=%s\n",
					s.Name, s.Signature, s.Match, s.Grace)
			}
			return nil
		},
	}
}
