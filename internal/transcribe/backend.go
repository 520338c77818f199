package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gavel/internal/config"
)

// Segment is a transcribed span of speech. Offsets are in seconds; whether
// they are relative to a window or to the session depends on the producer.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Backend turns an extracted WAV window into transcript segments with
// window-relative offsets.
type Backend interface {
	Transcribe(ctx context.Context, wavPath string) ([]Segment, error)
}

// whisperPayload is the JSON structure whisper writes alongside the audio.
type whisperPayload struct {
	Segments []Segment `json:"segments"`
}

// WhisperBackend shells out to the whisper CLI through uvx.
type WhisperBackend struct {
	model         string
	language      string
	initialPrompt string
	outputDir     string
	runner        func(ctx context.Context, name string, args ...string) error
}

// NewWhisperBackend builds the uvx-backed whisper backend. outputDir receives
// whisper's JSON side files and should be a scratch directory.
func NewWhisperBackend(cfg config.Transcription, outputDir string) *WhisperBackend {
	return &WhisperBackend{
		model:         cfg.Model,
		language:      cfg.Language,
		initialPrompt: cfg.InitialPrompt,
		outputDir:     outputDir,
	}
}

// WithRunner sets a custom command runner (for testing).
func (b *WhisperBackend) WithRunner(runner func(ctx context.Context, name string, args ...string) error) {
	b.runner = runner
}

// Transcribe runs whisper against the WAV window and parses its JSON output.
func (b *WhisperBackend) Transcribe(ctx context.Context, wavPath string) ([]Segment, error) {
	if strings.TrimSpace(wavPath) == "" {
		return nil, fmt.Errorf("transcribe: wav path required")
	}
	if err := os.MkdirAll(b.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("transcribe: ensure output dir: %w", err)
	}

	args := []string{
		"--from", "openai-whisper",
		"whisper", wavPath,
		"--model", b.model,
		"--output_format", "json",
		"--output_dir", b.outputDir,
		"--fp16", "False",
		"--verbose", "False",
	}
	if b.language != "" {
		args = append(args, "--language", b.language)
	}
	if b.initialPrompt != "" {
		args = append(args, "--initial_prompt", b.initialPrompt)
	}

	if err := b.run(ctx, "uvx", args...); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(wavPath), filepath.Ext(wavPath))
	jsonPath := filepath.Join(b.outputDir, base+".json")
	defer os.Remove(jsonPath)

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("whisper output: %w", err)
	}
	var payload whisperPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse whisper json: %w", err)
	}
	return payload.Segments, nil
}

func (b *WhisperBackend) run(ctx context.Context, name string, args ...string) error {
	if b.runner != nil {
		return b.runner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}
