package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"gavel/internal/config"
	"gavel/internal/logging"
	"gavel/internal/services"
)

// TargetKind identifies one of the two capture targets for a session.
type TargetKind string

const (
	TargetVideo TargetKind = "video"
	TargetAudio TargetKind = "audio"
)

// State represents the lifecycle of a capture target.
type State string

const (
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateRestarting State = "restarting"
	StateFailed     State = "failed"
	StateStopped    State = "stopped"
)

// TargetStatus is a point-in-time snapshot of a capture target.
type TargetStatus struct {
	Kind       TargetKind
	State      State
	Restarts   int
	OutputPath string
	LastError  string
}

const growthCheckInterval = time.Second

// target supervises a single ffmpeg capture process, restarting it with
// exponential backoff until the session ends or the restart ceiling is hit.
type target struct {
	kind       TargetKind
	outputPath string
	cfg        config.Recorder
	binary     string
	logger     *slog.Logger
	resolve    func(ctx context.Context) (string, error)

	mu        sync.Mutex
	state     State
	restarts  int
	lastError string
}

func newTarget(kind TargetKind, outputPath string, cfg *config.Config, logger *slog.Logger, resolve func(ctx context.Context) (string, error)) *target {
	return &target{
		kind:       kind,
		outputPath: outputPath,
		cfg:        cfg.Recorder,
		binary:     cfg.FFmpegBinary(),
		logger:     logging.NewComponentLogger(logger, fmt.Sprintf("%s recorder", kind)),
		resolve:    resolve,
		state:      StateStarting,
	}
}

func (t *target) status() TargetStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TargetStatus{
		Kind:       t.kind,
		State:      t.state,
		Restarts:   t.restarts,
		OutputPath: t.outputPath,
		LastError:  t.lastError,
	}
}

func (t *target) setState(state State) {
	t.mu.Lock()
	t.state = state
	t.mu.Unlock()
}

func (t *target) recordFailure(err error) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.restarts++
	if err != nil {
		t.lastError = err.Error()
	}
	return t.restarts
}

// run supervises capture attempts until ctx is cancelled (clean stop) or the
// restart ceiling is exhausted (fatal).
func (t *target) run(ctx context.Context) error {
	delay := time.Duration(t.cfg.RestartDelay) * time.Second
	maxDelay := time.Duration(t.cfg.RestartMaxDelay) * time.Second

	for {
		streamURL, err := t.resolve(ctx)
		if err == nil {
			err = t.captureOnce(ctx, streamURL)
		}
		if ctx.Err() != nil {
			t.setState(StateStopped)
			return nil
		}

		failures := t.recordFailure(err)
		t.logger.Warn("capture attempt failed",
			logging.Error(err),
			logging.Int("restarts", failures),
			logging.Int("ceiling", t.cfg.RestartCeiling))

		if failures >= t.cfg.RestartCeiling {
			t.setState(StateFailed)
			return services.Wrap(services.ErrFatalSession, string(t.kind)+" recorder", "supervise",
				fmt.Sprintf("restart ceiling of %d exhausted", t.cfg.RestartCeiling), err)
		}

		t.setState(StateRestarting)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			t.setState(StateStopped)
			return nil
		case <-timer.C:
		}
		if delay *= 2; delay > maxDelay {
			delay = maxDelay
		}
		t.setState(StateStarting)
	}
}

// captureOnce runs one ffmpeg process to completion. It returns nil only when
// ctx was cancelled and the process drained cleanly; any other exit is an
// error to be counted against the restart ceiling.
func (t *target) captureOnce(ctx context.Context, streamURL string) error {
	var args []string
	switch t.kind {
	case TargetVideo:
		args = videoArgs(streamURL, t.outputPath)
	default:
		args = audioArgs(streamURL, t.outputPath)
	}

	cmd := newCaptureCommand(t.binary, args)
	if err := cmd.Start(); err != nil {
		return services.Wrap(services.ErrSubprocess, string(t.kind)+" recorder", "start", "start ffmpeg", err)
	}
	t.logger.Info("capture started",
		logging.String("stream", redactURL(streamURL)),
		logging.String("output", t.outputPath),
		logging.Int("pid", cmd.Process.Pid))

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	startedAt := time.Now()
	startupTimeout := time.Duration(t.cfg.StartupTimeout) * time.Second
	stallTimeout := time.Duration(t.cfg.StallTimeout) * time.Second
	drainTimeout := time.Duration(t.cfg.StopDrainTimeout) * time.Second

	lastSize := t.outputSize()
	lastGrowth := startedAt
	running := false

	ticker := time.NewTicker(growthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			return services.Wrap(services.ErrSubprocess, string(t.kind)+" recorder", "capture", "ffmpeg exited", err)
		case <-ctx.Done():
			drainProcess(cmd, done, drainTimeout)
			t.logger.Info("capture stopped", logging.String("output", t.outputPath))
			return nil
		case <-ticker.C:
			size := t.outputSize()
			if size > lastSize {
				lastSize = size
				lastGrowth = time.Now()
				if !running {
					running = true
					t.setState(StateRunning)
					t.logger.Info("capture producing output", logging.Int64("bytes", size))
				}
				continue
			}
			if !running {
				if time.Since(startedAt) > startupTimeout {
					killProcess(cmd, done)
					return services.Wrap(services.ErrStalled, string(t.kind)+" recorder", "startup",
						fmt.Sprintf("no output within %s", startupTimeout), nil)
				}
				continue
			}
			if time.Since(lastGrowth) > stallTimeout {
				killProcess(cmd, done)
				return services.Wrap(services.ErrStalled, string(t.kind)+" recorder", "capture",
					fmt.Sprintf("output stalled for %s", stallTimeout), nil)
			}
		}
	}
}

func (t *target) outputSize() int64 {
	info, err := os.Stat(t.outputPath)
	if err != nil {
		return 0
	}
	return info.Size()
}
