package recorder

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"gavel/internal/config"
)

// Endpoints carries the resolved stream URLs for both capture targets.
type Endpoints struct {
	VideoURL string
	AudioURL string
}

// Resolver supplies fresh stream endpoints. Capture URLs carry short-lived
// signing tokens, so each restart re-resolves instead of reusing the URL the
// session started with.
type Resolver interface {
	Resolve(ctx context.Context) (Endpoints, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context) (Endpoints, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context) (Endpoints, error) {
	return f(ctx)
}

// Supervisor runs the video and audio capture targets for one session. Each
// target restarts independently; the supervisor reports a fatal error when a
// target exhausts its restart ceiling, at which point the session must end.
type Supervisor struct {
	videoTarget *target
	audioTarget *target
	videoPath   string
	audioPath   string

	fatal chan error
	wg    sync.WaitGroup

	mu       sync.Mutex
	initial  Endpoints
	consumed map[TargetKind]bool
}

// New builds a supervisor for the given session. The initial endpoints are
// used for the first capture attempt of each target; later attempts go
// through the resolver.
func New(cfg *config.Config, logger *slog.Logger, sessionID string, initial Endpoints, resolver Resolver) *Supervisor {
	videoPath := filepath.Join(cfg.Paths.RecordingsDir, sessionID+"_video.mp4")
	audioPath := filepath.Join(cfg.Paths.RecordingsDir, sessionID+"_audio.mp3")

	s := &Supervisor{
		videoPath: videoPath,
		audioPath: audioPath,
		fatal:     make(chan error, 2),
		initial:   initial,
		consumed:  make(map[TargetKind]bool, 2),
	}

	s.videoTarget = newTarget(TargetVideo, videoPath, cfg, logger, s.resolveFor(TargetVideo, resolver))
	s.audioTarget = newTarget(TargetAudio, audioPath, cfg, logger, s.resolveFor(TargetAudio, resolver))
	return s
}

func (s *Supervisor) resolveFor(kind TargetKind, resolver Resolver) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		endpoints, ok := s.takeInitial(kind)
		if !ok {
			resolved, err := resolver.Resolve(ctx)
			if err != nil {
				return "", err
			}
			endpoints = resolved
		}
		if kind == TargetVideo {
			return endpoints.VideoURL, nil
		}
		return endpoints.AudioURL, nil
	}
}

// takeInitial hands each target the session's starting endpoints exactly
// once; later attempts must re-resolve.
func (s *Supervisor) takeInitial(kind TargetKind) (Endpoints, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumed[kind] {
		return Endpoints{}, false
	}
	s.consumed[kind] = true
	return s.initial, true
}

// Start launches both capture targets. Fatal target errors are delivered on
// the Fatal channel; a clean stop (context cancellation) delivers nothing.
func (s *Supervisor) Start(ctx context.Context) {
	for _, t := range []*target{s.videoTarget, s.audioTarget} {
		s.wg.Add(1)
		go func(t *target) {
			defer s.wg.Done()
			if err := t.run(ctx); err != nil {
				s.fatal <- err
			}
		}(t)
	}
}

// Fatal exposes fatal capture errors. At most one error per target is sent.
func (s *Supervisor) Fatal() <-chan error {
	return s.fatal
}

// Wait blocks until both targets have stopped.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Status snapshots both targets.
func (s *Supervisor) Status() []TargetStatus {
	return []TargetStatus{s.videoTarget.status(), s.audioTarget.status()}
}

// RestartCounts returns the restart totals for the video and audio targets.
func (s *Supervisor) RestartCounts() (video, audio int) {
	return s.videoTarget.status().Restarts, s.audioTarget.status().Restarts
}

// VideoPath returns the video artifact location for this session.
func (s *Supervisor) VideoPath() string { return s.videoPath }

// AudioPath returns the audio artifact location for this session.
func (s *Supervisor) AudioPath() string { return s.audioPath }
