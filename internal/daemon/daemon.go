package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"gavel/internal/config"
	"gavel/internal/logging"
	"gavel/internal/notifications"
	"gavel/internal/session"
	"gavel/internal/watcher"
)

// Daemon ties the watcher, session store, and single-instance lock into one
// lifecycle.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *session.Store
	watcher *watcher.Watcher
	logPath string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	done    chan error
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	Phase         watcher.Phase
	SessionDBPath string
	LockFilePath  string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *session.Store, logger *slog.Logger, w *watcher.Watcher) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || w == nil {
		return nil, errors.New("daemon requires config, store, logger, and watcher")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "gaveld.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		watcher:  w,
		logPath:  filepath.Join(cfg.Paths.LogDir, "gavel.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the watcher loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another gavel instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan error, 1)
	go func() {
		d.done <- d.watcher.Run(runCtx)
	}()

	d.running.Store(true)
	d.logger.Info("gavel daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Wait blocks until the watcher loop exits and returns its error.
func (d *Daemon) Wait() error {
	if d.done == nil {
		return nil
	}
	return <-d.done
}

// Stop cancels the watcher loop, waits for session teardown, and releases
// the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.done != nil {
		<-d.done
		d.done = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("gavel daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg == nil {
		return false, "configuration unavailable", errors.New("configuration unavailable")
	}
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file pointer.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:       d.running.Load(),
		Phase:         d.watcher.Phase(),
		SessionDBPath: d.store.Path(),
		LockFilePath:  d.lockPath,
	}
}
