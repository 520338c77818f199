package watcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gavel/internal/config"
	"gavel/internal/discovery"
	"gavel/internal/identity"
	"gavel/internal/logging"
	"gavel/internal/notifications"
	"gavel/internal/services"
	"gavel/internal/session"
	"gavel/internal/transcribe"
)

// Phase is the orchestrator's lifecycle position.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseStarting Phase = "session starting"
	PhaseActive   Phase = "session active"
	PhaseEnding   Phase = "session ending"
)

// BackendFactory builds the transcription backend for a session. Tests swap
// in a fake; production uses the uvx whisper CLI.
type BackendFactory func(cfg *config.Config) transcribe.Backend

// Watcher drives the capture lifecycle: it polls discovery, starts one
// session at a time, supervises it, and tears it down completely before the
// next session may begin.
type Watcher struct {
	cfg      *config.Config
	logger   *slog.Logger
	source   discovery.Source
	store    *session.Store
	notifier notifications.Service
	backends BackendFactory

	phaseMu sync.Mutex
	phase   Phase
	current *activeSession
}

// Option configures the watcher.
type Option func(*Watcher)

// WithBackendFactory overrides how transcription backends are constructed.
func WithBackendFactory(factory BackendFactory) Option {
	return func(w *Watcher) {
		if factory != nil {
			w.backends = factory
		}
	}
}

// New constructs a watcher.
func New(cfg *config.Config, logger *slog.Logger, source discovery.Source, store *session.Store, notifier notifications.Service, opts ...Option) *Watcher {
	w := &Watcher{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "watcher"),
		source:   source,
		store:    store,
		notifier: notifier,
		backends: func(cfg *config.Config) transcribe.Backend {
			return transcribe.NewWhisperBackend(cfg.Transcription, cfg.Paths.WorkDir)
		},
		phase: PhaseIdle,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Phase reports the orchestrator's current lifecycle position.
func (w *Watcher) Phase() Phase {
	w.phaseMu.Lock()
	defer w.phaseMu.Unlock()
	return w.phase
}

func (w *Watcher) setPhase(phase Phase) {
	w.phaseMu.Lock()
	w.phase = phase
	w.phaseMu.Unlock()
}

// Run polls for sessions until ctx is cancelled. Any session still active at
// shutdown is torn down before Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	w.reclaimOrphans(ctx)

	pollInterval := time.Duration(w.cfg.Discovery.PollInterval) * time.Second
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	w.logger.Info("watching for sessions",
		logging.String("schedule", w.cfg.Discovery.ScheduleURL),
		logging.Duration("poll_interval", pollInterval))

	for {
		var fatal <-chan error
		if w.current != nil {
			fatal = w.current.supervisor.Fatal()
		}

		select {
		case <-ctx.Done():
			if w.current != nil {
				w.endSession(context.WithoutCancel(ctx), session.StateAborted, "daemon stopped")
			}
			w.logger.Info("watcher stopped")
			return nil
		case err := <-fatal:
			w.logger.Error("capture failed fatally", logging.Error(err))
			if w.notifier != nil {
				if notifyErr := w.notifier.NotifyError(ctx, err, "session "+w.current.record.SessionID); notifyErr != nil {
					w.logger.Warn("error notification failed", logging.Error(notifyErr))
				}
			}
			w.endSession(ctx, session.StateAborted, services.EndReason(err))
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll runs one discovery cycle and reconciles the session state with it.
func (w *Watcher) poll(ctx context.Context) {
	status, err := w.source.Poll(ctx)
	if err != nil {
		// Transient discovery failures are indistinguishable from "no
		// session" for lifecycle purposes; an active session keeps running
		// on its own reconnect logic.
		w.logger.Warn("discovery poll failed", logging.Error(err))
		return
	}

	switch {
	case w.current == nil && status.Active:
		w.startSession(ctx, status.Stream)
	case w.current != nil && !status.Active:
		w.endSession(ctx, session.StateCompleted, "completed")
	case w.current != nil && status.Active:
		sessionID, err := identity.Derive(status.Stream.Params)
		if err != nil {
			w.logger.Warn("discovered stream has invalid parameters", logging.Error(err))
			return
		}
		if sessionID != w.current.record.SessionID {
			// A new broadcast replaced the one being captured. End cleanly;
			// the next poll starts the new session after teardown finished.
			w.logger.Info("session identity changed",
				logging.String("current", w.current.record.SessionID),
				logging.String("next", sessionID))
			w.endSession(ctx, session.StateCompleted, "completed")
		}
	}
}

// reclaimOrphans closes out sessions a previous run left in the recording
// state.
func (w *Watcher) reclaimOrphans(ctx context.Context) {
	if w.store == nil {
		return
	}
	cutoff := time.Now().UTC()
	reclaimed, err := w.store.ReclaimStale(ctx, cutoff)
	if err != nil {
		w.logger.Warn("failed to reclaim stale sessions", logging.Error(err))
		return
	}
	if reclaimed > 0 {
		w.logger.Info("reclaimed interrupted sessions", logging.Int64("count", reclaimed))
	}
}
