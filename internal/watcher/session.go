package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"gavel/internal/discovery"
	"gavel/internal/events"
	"gavel/internal/identity"
	"gavel/internal/logging"
	"gavel/internal/media/ffprobe"
	"gavel/internal/recorder"
	"gavel/internal/services"
	"gavel/internal/session"
	"gavel/internal/transcribe"
)

// activeSession bundles everything belonging to the session being captured.
type activeSession struct {
	record     *session.Record
	supervisor *recorder.Supervisor
	writer     *transcribe.TranscriptWriter
	cancel     context.CancelFunc
	workers    sync.WaitGroup

	mu        sync.Mutex
	endReason string
}

func (a *activeSession) setEndReason(reason string) {
	a.mu.Lock()
	a.endReason = reason
	a.mu.Unlock()
}

func (a *activeSession) getEndReason() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.endReason
}

// startSession derives the session identity, persists the session row, and
// launches the recorder, transcription, and heartbeat workers.
func (w *Watcher) startSession(ctx context.Context, stream discovery.Stream) {
	w.setPhase(PhaseStarting)

	sessionID, err := identity.Derive(stream.Params)
	if err != nil {
		w.logger.Warn("cannot derive session identity", logging.Error(err))
		w.setPhase(PhaseIdle)
		return
	}
	runID := uuid.NewString()

	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sessionCtx = services.WithSessionID(sessionCtx, sessionID)
	sessionCtx = services.WithRunID(sessionCtx, runID)
	logger := logging.WithContext(sessionCtx, w.logger)

	videoPath := filepath.Join(w.cfg.Paths.RecordingsDir, sessionID+"_video.mp4")
	audioPath := filepath.Join(w.cfg.Paths.RecordingsDir, sessionID+"_audio.mp3")
	transcriptPath := filepath.Join(w.cfg.Paths.RecordingsDir, sessionID+"_audio.txt")
	w.warnOnExistingArtifacts(logger, videoPath, audioPath)

	record, err := w.store.CreateSession(ctx, session.Record{
		SessionID:      sessionID,
		Committee:      stream.Params.Committee,
		Filename:       stream.Params.Filename,
		RunID:          runID,
		VideoPath:      videoPath,
		AudioPath:      audioPath,
		TranscriptPath: transcriptPath,
	})
	if err != nil {
		w.logger.Error("cannot persist session", logging.Error(err))
		cancel()
		w.setPhase(PhaseIdle)
		return
	}

	active := &activeSession{record: record, cancel: cancel}
	active.supervisor = recorder.New(w.cfg, logger, sessionID,
		recorder.Endpoints{VideoURL: stream.VideoURL, AudioURL: stream.AudioURL},
		w.resolverFor(sessionID))
	active.supervisor.Start(sessionCtx)

	if w.cfg.Transcription.Enabled {
		if err := w.startTranscription(sessionCtx, active, audioPath, transcriptPath); err != nil {
			logger.Warn("transcription unavailable for this session", logging.Error(err))
		}
	}

	active.workers.Add(1)
	go func() {
		defer active.workers.Done()
		w.heartbeatLoop(sessionCtx, active)
	}()

	w.current = active
	w.setPhase(PhaseActive)
	logger.Info("session started",
		logging.String("committee", stream.Params.Committee),
		logging.String("video", videoPath),
		logging.String("audio", audioPath))

	if w.notifier != nil {
		if err := w.notifier.NotifySessionStarted(ctx, sessionID, stream.VideoURL); err != nil {
			logger.Warn("session start notification failed", logging.Error(err))
		}
	}
}

// startTranscription wires the pipeline and trigger detector to the growing
// audio artifact.
func (w *Watcher) startTranscription(sessionCtx context.Context, active *activeSession, audioPath, transcriptPath string) error {
	writer, err := transcribe.NewTranscriptWriter(transcriptPath)
	if err != nil {
		return err
	}
	active.writer = writer

	detector := events.NewDetector(
		w.cfg.Triggers.Phrases,
		active.record.ID,
		active.record.SessionID,
		w.notifier,
		w.store,
		w.logger,
	)
	pipeline := transcribe.NewPipeline(
		w.cfg,
		logging.WithContext(sessionCtx, w.logger),
		active.record.SessionID,
		audioPath,
		writer,
		w.backends(w.cfg),
		detector.Scan,
	)

	active.workers.Add(1)
	go func() {
		defer active.workers.Done()
		if err := pipeline.Run(sessionCtx, active.getEndReason); err != nil {
			w.logger.Warn("transcription pipeline error", logging.Error(err))
		}
	}()
	return nil
}

// endSession tears the active session down completely: cancel workers, wait
// for the recorder to drain, close the transcript, and persist the outcome.
func (w *Watcher) endSession(ctx context.Context, state session.State, reason string) {
	active := w.current
	if active == nil {
		return
	}
	w.setPhase(PhaseEnding)
	logger := w.logger.With(logging.String(logging.FieldSessionID, active.record.SessionID))
	logger.Info("ending session", logging.String("reason", reason))

	if state != session.StateCompleted {
		active.setEndReason(reason)
	}
	active.cancel()

	teardown := time.Duration(w.cfg.Watcher.TeardownTimeout) * time.Second
	done := make(chan struct{})
	go func() {
		active.supervisor.Wait()
		active.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(teardown):
		logger.Warn("session teardown timed out", logging.Duration("waited", teardown))
	}

	if active.writer != nil {
		if err := active.writer.Close(); err != nil {
			logger.Warn("failed to close transcript", logging.Error(err))
		}
	}

	video, audio := active.supervisor.RestartCounts()
	if err := w.store.UpdateRestartCounts(ctx, active.record.ID, video, audio); err != nil {
		logger.Warn("failed to persist restart counts", logging.Error(err))
	}
	if err := w.store.FinishSession(ctx, active.record.ID, state, reason); err != nil {
		logger.Warn("failed to persist session outcome", logging.Error(err))
	}

	duration := time.Since(active.record.StartedAt)
	logger.Info("session ended",
		logging.String("state", string(state)),
		logging.Duration("duration", duration.Round(time.Second)),
		logging.Int("video_restarts", video),
		logging.Int("audio_restarts", audio))
	w.logArtifactSummary(ctx, logger, active.record.VideoPath)

	if w.notifier != nil {
		if err := w.notifier.NotifySessionEnded(ctx, active.record.SessionID, reason, duration); err != nil {
			logger.Warn("session end notification failed", logging.Error(err))
		}
	}

	w.current = nil
	w.setPhase(PhaseIdle)
}

// resolverFor re-resolves capture endpoints for restarts, refusing endpoints
// that belong to a different session.
func (w *Watcher) resolverFor(sessionID string) recorder.Resolver {
	return recorder.ResolverFunc(func(ctx context.Context) (recorder.Endpoints, error) {
		status, err := w.source.Poll(ctx)
		if err != nil {
			return recorder.Endpoints{}, err
		}
		if !status.Active {
			return recorder.Endpoints{}, services.Wrap(services.ErrTransientDiscovery, "watcher", "resolve",
				"no active session during endpoint refresh", nil)
		}
		resolved, err := identity.Derive(status.Stream.Params)
		if err != nil {
			return recorder.Endpoints{}, err
		}
		if resolved != sessionID {
			return recorder.Endpoints{}, services.Wrap(services.ErrTransientDiscovery, "watcher", "resolve",
				fmt.Sprintf("active session is now %s", resolved), nil)
		}
		return recorder.Endpoints{
			VideoURL: status.Stream.VideoURL,
			AudioURL: status.Stream.AudioURL,
		}, nil
	})
}

// heartbeatLoop keeps the session row fresh so interrupted runs can be told
// apart from live ones.
func (w *Watcher) heartbeatLoop(ctx context.Context, active *activeSession) {
	interval := time.Duration(w.cfg.Watcher.HeartbeatInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.store.UpdateHeartbeat(ctx, active.record.ID); err != nil {
				w.logger.Warn("heartbeat update failed", logging.Error(err))
			}
			video, audio := active.supervisor.RestartCounts()
			if err := w.store.UpdateRestartCounts(ctx, active.record.ID, video, audio); err != nil {
				w.logger.Warn("restart count update failed", logging.Error(err))
			}
		}
	}
}

// logArtifactSummary probes the finished video artifact and records what the
// capture actually produced. Probe failures are informational only.
func (w *Watcher) logArtifactSummary(ctx context.Context, logger *slog.Logger, videoPath string) {
	result, err := ffprobe.Inspect(ctx, w.cfg.FFprobeBinary(), videoPath)
	if err != nil {
		logger.Debug("artifact probe failed", logging.Error(err))
		return
	}
	logger.Info("artifact summary",
		logging.String("path", videoPath),
		logging.Int("video_streams", result.VideoStreamCount()),
		logging.Int("audio_streams", result.AudioStreamCount()),
		logging.Float64("media_seconds", result.DurationSeconds()),
		logging.Int64("bytes", result.SizeBytes()))
}

func (w *Watcher) warnOnExistingArtifacts(logger *slog.Logger, paths ...string) {
	for _, path := range paths {
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			logger.Warn("output file already exists and will be overwritten",
				logging.String("path", path), logging.Int64("bytes", info.Size()))
		}
	}
}
