package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gavel/internal/config"
	"gavel/internal/daemon"
	"gavel/internal/deps"
	"gavel/internal/discovery"
	"gavel/internal/logging"
	"gavel/internal/notifications"
	"gavel/internal/session"
	"gavel/internal/watcher"
)

type watchOptions struct {
	LogLevel      string
	Notifications bool
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var notificationsEnabled bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the broadcast schedule and record active sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runWatch(cmd.Context(), cfg, watchOptions{
				LogLevel:      logLevel,
				Notifications: notificationsEnabled,
			})
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&notificationsEnabled, "notifications", true, "Enable ntfy push notifications")
	return cmd
}

func runWatch(cmdCtx context.Context, cfg *config.Config, opts watchOptions) error {
	runCfg := *cfg
	if !opts.Notifications {
		runCfg.Notifications.NtfyTopic = ""
	}
	cfg = &runCfg

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runStamp := time.Now().UTC().Format("20060102T150405Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("gavel-%s.log", runStamp))

	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update gavel.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "gavel-*.log", Exclude: []string{logPath}},
	)

	statuses := deps.CheckBinaries(deps.Requirements(cfg))
	logDependencySnapshot(logger, statuses)
	if missing := deps.MissingRequired(statuses); len(missing) > 0 {
		return fmt.Errorf("missing required dependencies: %s", strings.Join(missing, ", "))
	}

	store, err := session.Open(cfg)
	if err != nil {
		logger.Error("open session store", logging.Error(err))
		return err
	}

	if cfg.Logging.RetentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -cfg.Logging.RetentionDays)
		if pruned, pruneErr := store.PruneEndedBefore(signalCtx, cutoff); pruneErr != nil {
			logger.Warn("prune old sessions", logging.Error(pruneErr))
		} else if pruned > 0 {
			logger.Info("pruned old sessions", logging.Int64("count", pruned))
		}
	}

	source := discovery.NewScheduleClient(cfg, logger)
	notifier := notifications.NewService(cfg)
	w := watcher.New(cfg, logger, source, store, notifier)

	d, err := daemon.New(cfg, store, logger, w)
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	<-signalCtx.Done()
	logger.Info("gavel daemon shutting down")
	return nil
}

// ensureCurrentLogPointer keeps <logDir>/gavel.log pointing at the newest
// per-run log file. Falls back to a hard link on filesystems without symlinks.
func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "gavel.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func logDependencySnapshot(logger *slog.Logger, statuses []deps.Status) {
	for _, status := range statuses {
		logger.Info("dependency snapshot",
			logging.String(logging.FieldEventType, "dependency_snapshot"),
			logging.String("name", status.Name),
			logging.String("command", status.Command),
			logging.Bool("available", status.Available),
			logging.Bool("optional", status.Optional),
		)
	}
}
