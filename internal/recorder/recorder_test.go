package recorder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"gavel/internal/config"
	"gavel/internal/logging"
	"gavel/internal/services"
)

// writeStubFFmpeg installs a shell script that stands in for ffmpeg. Capture
// invocations pass the output path as the final argument backing the
// `eval "out=..."` line.
func writeStubFFmpeg(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	content := "#!/bin/sh\neval \"out=\\${$#}\"\n" + script
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		t.Fatalf("write stub ffmpeg: %v", err)
	}
	return path
}

const growingScript = `trap 'exit 0' INT
i=0
while [ $i -lt 200 ]; do
  echo frame >> "$out"
  i=$((i+1))
  sleep 0.2
done
`

const crashingScript = `exit 1
`

const stallingScript = `echo frame >> "$out"
sleep 120
`

func newRecorderConfig(t *testing.T, ffmpegPath string) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.RecordingsDir = filepath.Join(base, "recordings")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Recorder.FFmpegBinary = ffmpegPath
	cfg.Recorder.StartupTimeout = 5
	cfg.Recorder.StallTimeout = 1
	cfg.Recorder.RestartDelay = 1
	cfg.Recorder.RestartMaxDelay = 2
	cfg.Recorder.RestartCeiling = 2
	cfg.Recorder.StopDrainTimeout = 2
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

func staticResolver(videoURL, audioURL string) Resolver {
	return ResolverFunc(func(context.Context) (Endpoints, error) {
		return Endpoints{VideoURL: videoURL, AudioURL: audioURL}, nil
	})
}

func TestSupervisorStopsCleanlyOnCancel(t *testing.T) {
	ffmpeg := writeStubFFmpeg(t, growingScript)
	cfg := newRecorderConfig(t, ffmpeg)

	sup := New(cfg, logging.NewNop(), "floor_stv160", Endpoints{VideoURL: "v", AudioURL: "a"}, staticResolver("v", "a"))
	ctx, cancel := context.WithCancel(context.Background())
	sup.Start(ctx)

	// Let both targets reach the running state.
	deadline := time.Now().Add(10 * time.Second)
	for {
		statuses := sup.Status()
		if statuses[0].State == StateRunning && statuses[1].State == StateRunning {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("targets never reached running: %+v", statuses)
		}
		time.Sleep(100 * time.Millisecond)
	}

	cancel()
	sup.Wait()

	for _, status := range sup.Status() {
		if status.State != StateStopped {
			t.Fatalf("expected stopped target, got %+v", status)
		}
	}
	select {
	case err := <-sup.Fatal():
		t.Fatalf("unexpected fatal error: %v", err)
	default:
	}

	if info, err := os.Stat(sup.VideoPath()); err != nil || info.Size() == 0 {
		t.Fatalf("expected video artifact with content: %v", err)
	}
	if info, err := os.Stat(sup.AudioPath()); err != nil || info.Size() == 0 {
		t.Fatalf("expected audio artifact with content: %v", err)
	}
}

func TestSupervisorReportsFatalAfterRestartCeiling(t *testing.T) {
	ffmpeg := writeStubFFmpeg(t, crashingScript)
	cfg := newRecorderConfig(t, ffmpeg)

	sup := New(cfg, logging.NewNop(), "floor_stv160", Endpoints{VideoURL: "v", AudioURL: "a"}, staticResolver("v", "a"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx)

	select {
	case err := <-sup.Fatal():
		if !services.IsFatal(err) {
			t.Fatalf("expected fatal session error, got %v", err)
		}
		if !errors.Is(err, services.ErrFatalSession) {
			t.Fatalf("expected ErrFatalSession marker, got %v", err)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("timed out waiting for fatal error")
	}

	cancel()
	sup.Wait()

	video, audio := sup.RestartCounts()
	if video < cfg.Recorder.RestartCeiling && audio < cfg.Recorder.RestartCeiling {
		t.Fatalf("expected a target to exhaust restarts, got video=%d audio=%d", video, audio)
	}
}

func TestTargetDetectsStalledOutput(t *testing.T) {
	ffmpeg := writeStubFFmpeg(t, stallingScript)
	cfg := newRecorderConfig(t, ffmpeg)
	cfg.Recorder.RestartCeiling = 1

	outputPath := filepath.Join(cfg.Paths.RecordingsDir, "floor_stv160_audio.mp3")
	tgt := newTarget(TargetAudio, outputPath, cfg, logging.NewNop(), func(context.Context) (string, error) {
		return "stream", nil
	})

	err := tgt.run(context.Background())
	if err == nil {
		t.Fatal("expected stall to exhaust the restart ceiling")
	}
	if !errors.Is(err, services.ErrFatalSession) {
		t.Fatalf("expected ErrFatalSession marker, got %v", err)
	}
	status := tgt.status()
	if status.State != StateFailed {
		t.Fatalf("expected failed state, got %s", status.State)
	}
	if status.LastError == "" {
		t.Fatal("expected last error to be recorded")
	}
}

func TestRestartsReResolveEndpoints(t *testing.T) {
	ffmpeg := writeStubFFmpeg(t, crashingScript)
	cfg := newRecorderConfig(t, ffmpeg)

	var resolves atomic.Int64
	resolver := ResolverFunc(func(context.Context) (Endpoints, error) {
		resolves.Add(1)
		return Endpoints{VideoURL: "v2", AudioURL: "a2"}, nil
	})

	sup := New(cfg, logging.NewNop(), "floor_stv160", Endpoints{VideoURL: "v1", AudioURL: "a1"}, resolver)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx)

	select {
	case <-sup.Fatal():
	case <-time.After(30 * time.Second):
		t.Fatal("timed out waiting for fatal error")
	}
	cancel()
	sup.Wait()

	// First attempts use the session's starting endpoints; every restart must
	// have gone through the resolver.
	if resolves.Load() == 0 {
		t.Fatal("expected restarts to re-resolve endpoints")
	}
}

func TestResolverFailureCountsAgainstCeiling(t *testing.T) {
	ffmpeg := writeStubFFmpeg(t, growingScript)
	cfg := newRecorderConfig(t, ffmpeg)
	cfg.Recorder.RestartCeiling = 1

	outputPath := filepath.Join(cfg.Paths.RecordingsDir, "floor_stv160_audio.mp3")
	tgt := newTarget(TargetAudio, outputPath, cfg, logging.NewNop(), func(context.Context) (string, error) {
		return "", services.Wrap(services.ErrTransientDiscovery, "discovery", "resolve", "schedule unreachable", nil)
	})

	err := tgt.run(context.Background())
	if !errors.Is(err, services.ErrFatalSession) {
		t.Fatalf("expected ErrFatalSession, got %v", err)
	}
}
