package transcribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gavel/internal/config"
	"gavel/internal/logging"
)

// fakeBackend returns canned segment batches, one per Transcribe call.
type fakeBackend struct {
	mu      sync.Mutex
	batches [][]Segment
	errs    []error
	calls   int
}

func (f *fakeBackend) Transcribe(ctx context.Context, wavPath string) ([]Segment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := f.calls
	f.calls++
	if call < len(f.errs) && f.errs[call] != nil {
		return nil, f.errs[call]
	}
	if call < len(f.batches) {
		return f.batches[call], nil
	}
	return nil, nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// newPipelineFixture wires a pipeline against stub ffmpeg/ffprobe scripts.
// The reported audio duration is controlled through a file the ffprobe stub
// reads.
func newPipelineFixture(t *testing.T, backend Backend) (*Pipeline, func(duration string), string) {
	t.Helper()
	base := t.TempDir()
	binDir := filepath.Join(base, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin: %v", err)
	}

	durationFile := filepath.Join(base, "duration")
	if err := os.WriteFile(durationFile, []byte("0"), 0o644); err != nil {
		t.Fatalf("write duration file: %v", err)
	}

	ffprobeScript := "#!/bin/sh\nd=$(cat \"$GAVEL_TEST_DURATION_FILE\")\nprintf '{\"streams\":[{\"codec_type\":\"audio\"}],\"format\":{\"duration\":\"%s\"}}' \"$d\"\n"
	ffmpegScript := "#!/bin/sh\neval \"out=\\${$#}\"\necho wav > \"$out\"\n"
	if err := os.WriteFile(filepath.Join(binDir, "ffprobe"), []byte(ffprobeScript), 0o755); err != nil {
		t.Fatalf("write ffprobe stub: %v", err)
	}
	if err := os.WriteFile(filepath.Join(binDir, "ffmpeg"), []byte(ffmpegScript), 0o755); err != nil {
		t.Fatalf("write ffmpeg stub: %v", err)
	}
	t.Setenv("GAVEL_TEST_DURATION_FILE", durationFile)

	cfg := config.Default()
	cfg.Paths.RecordingsDir = filepath.Join(base, "recordings")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Recorder.FFmpegBinary = filepath.Join(binDir, "ffmpeg")
	cfg.Transcription.ChunkSeconds = 30
	cfg.Transcription.OverlapSeconds = 2
	cfg.Transcription.MaxLagSeconds = 600
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	audioPath := filepath.Join(cfg.Paths.RecordingsDir, "floor_stv160_audio.mp3")
	if err := os.WriteFile(audioPath, []byte("mp3"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	transcriptPath := filepath.Join(cfg.Paths.RecordingsDir, "floor_stv160_audio.txt")
	writer, err := NewTranscriptWriter(transcriptPath)
	if err != nil {
		t.Fatalf("open transcript: %v", err)
	}
	t.Cleanup(func() { _ = writer.Close() })

	pipeline := NewPipeline(&cfg, logging.NewNop(), "floor_stv160", audioPath, writer, backend, nil)
	pipeline.pollInterval = 50 * time.Millisecond

	setDuration := func(duration string) {
		if err := os.WriteFile(durationFile, []byte(duration), 0o644); err != nil {
			t.Fatalf("set duration: %v", err)
		}
	}
	return pipeline, setDuration, transcriptPath
}

func waitForCalls(t *testing.T, backend *fakeBackend, want int) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for backend.callCount() < want {
		if time.Now().After(deadline) {
			t.Fatalf("backend never reached %d calls (have %d)", want, backend.callCount())
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func waitForTranscript(t *testing.T, path, substr string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		data, _ := os.ReadFile(path)
		if strings.Contains(string(data), substr) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("transcript never contained %q:\n%s", substr, string(data))
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestPipelineWritesMonotonicTranscript(t *testing.T) {
	backend := &fakeBackend{
		batches: [][]Segment{
			{
				{Start: 0, End: 10, Text: "the Senate will come to order"},
				{Start: 10, End: 29, Text: "morning business is closed"},
				{Start: 29, End: 31, Text: "under the previous order"},
			},
			{
				// Window two starts at 29s. The first segment re-covers audio
				// the first window already emitted; the second straddles the
				// coverage boundary, repeating "under the previous order"
				// before continuing into fresh audio.
				{Start: 0, End: 2, Text: "under the previous order"},
				{Start: 0.5, End: 4, Text: "under the previous order the clerk will report"},
				{Start: 4, End: 20, Text: "the Senate will proceed to executive session"},
			},
		},
	}

	pipeline, setDuration, transcriptPath := newPipelineFixture(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pipeline.Run(ctx, func() string { return "completed" }) }()

	setDuration("30.0")
	waitForCalls(t, backend, 1)
	setDuration("62.0")
	waitForCalls(t, backend, 2)

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("pipeline run: %v", err)
	}

	data, err := os.ReadFile(transcriptPath)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")

	want := []string{
		"=== session floor_stv160 started ===",
		"[00:00–00:10] the Senate will come to order",
		"[00:10–00:29] morning business is closed",
		"[00:29–00:31] under the previous order",
		"[00:33–00:49] the Senate will proceed to executive session",
		"=== session floor_stv160 ended ===",
	}
	if len(lines) != len(want) {
		t.Fatalf("unexpected transcript:\n%s", string(data))
	}
	for i, line := range want {
		if lines[i] != line {
			t.Fatalf("line %d: got %q, want %q", i, lines[i], line)
		}
	}
	if strings.Contains(string(data), "the clerk will report") {
		t.Fatalf("boundary straddler should be dropped, not rewritten:\n%s", string(data))
	}
}

func TestPipelineResynchronizesAfterCaptureRestart(t *testing.T) {
	backend := &fakeBackend{
		batches: [][]Segment{
			{{Start: 0, End: 30, Text: "before the connection dropped"}},
			{{Start: 0, End: 30, Text: "after the capture restarted"}},
		},
	}

	pipeline, setDuration, transcriptPath := newPipelineFixture(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pipeline.Run(ctx, func() string { return "completed" }) }()

	setDuration("30.0")
	waitForCalls(t, backend, 1)

	// A restarted ffmpeg truncates the audio file with -y; the reported
	// duration collapses below the span already transcribed.
	setDuration("5.0")
	waitForTranscript(t, transcriptPath, GapMarker)

	setDuration("30.0")
	waitForCalls(t, backend, 2)

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("pipeline run: %v", err)
	}

	data, err := os.ReadFile(transcriptPath)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	content := string(data)
	if got := strings.Count(content, GapMarker); got != 1 {
		t.Fatalf("expected exactly one gap marker, got %d:\n%s", got, content)
	}
	if !strings.Contains(content, "[00:00–00:30] before the connection dropped") {
		t.Fatalf("expected pre-restart segment:\n%s", content)
	}
	if !strings.Contains(content, "[00:30–01:00] after the capture restarted") {
		t.Fatalf("expected post-restart segment with session-relative offsets:\n%s", content)
	}
}

func TestPipelineMarksGapOncePerOutage(t *testing.T) {
	backend := &fakeBackend{
		errs: []error{
			errors.New("model download failed"),
			errors.New("model download failed"),
			nil,
		},
		batches: [][]Segment{
			nil,
			nil,
			{{Start: 0, End: 30, Text: "resumed"}},
		},
	}

	pipeline, setDuration, transcriptPath := newPipelineFixture(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pipeline.Run(ctx, nil) }()

	setDuration("30.0")
	waitForCalls(t, backend, 3)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("pipeline run: %v", err)
	}

	data, err := os.ReadFile(transcriptPath)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	content := string(data)
	if got := strings.Count(content, GapMarker); got != 1 {
		t.Fatalf("expected exactly one gap marker, got %d:\n%s", got, content)
	}
	if !strings.Contains(content, "[00:00–00:30] resumed") {
		t.Fatalf("expected recovery segment in transcript:\n%s", content)
	}
}

func TestPipelineDrainsTailOnShutdown(t *testing.T) {
	backend := &fakeBackend{
		batches: [][]Segment{
			{{Start: 0, End: 12, Text: "the clerk will report"}},
		},
	}

	pipeline, setDuration, transcriptPath := newPipelineFixture(t, backend)
	setDuration("12.0")

	// Too little audio for a chunk; only the shutdown drain should pick it up.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pipeline.Run(ctx, func() string { return "aborted" }) }()

	time.Sleep(200 * time.Millisecond)
	if backend.callCount() != 0 {
		t.Fatalf("expected no backend calls before shutdown, got %d", backend.callCount())
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("pipeline run: %v", err)
	}

	data, err := os.ReadFile(transcriptPath)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "[00:00–00:12] the clerk will report") {
		t.Fatalf("expected drained segment in transcript:\n%s", content)
	}
	if !strings.Contains(content, "=== session floor_stv160 ended (aborted) ===") {
		t.Fatalf("expected abort end marker:\n%s", content)
	}
}

func TestFormatOffset(t *testing.T) {
	cases := map[float64]string{
		0:       "00:00",
		61.9:    "01:01",
		605:     "10:05",
		5701.02: "95:01",
	}
	for input, want := range cases {
		if got := FormatOffset(input); got != want {
			t.Errorf("FormatOffset(%v) = %q, want %q", input, got, want)
		}
	}
}
