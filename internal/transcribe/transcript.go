package transcribe

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// GapMarker is appended once per backend outage so readers can tell silence
// from missing coverage.
const GapMarker = "[gap] transcription unavailable"

// TranscriptWriter appends transcript lines to the session transcript file as
// soon as they are produced, so a partial transcript survives any abort.
type TranscriptWriter struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewTranscriptWriter opens (or creates) the transcript file for appending.
func NewTranscriptWriter(path string) (*TranscriptWriter, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	return &TranscriptWriter{file: file, path: path}, nil
}

// Path returns the transcript file location.
func (w *TranscriptWriter) Path() string {
	return w.path
}

// WriteSessionStart appends the session start marker.
func (w *TranscriptWriter) WriteSessionStart(sessionID string) error {
	return w.writeLine(fmt.Sprintf("=== session %s started ===", sessionID))
}

// WriteSessionEnd appends the session end marker, including the end reason
// when the session did not finish cleanly.
func (w *TranscriptWriter) WriteSessionEnd(sessionID, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" || reason == "completed" {
		return w.writeLine(fmt.Sprintf("=== session %s ended ===", sessionID))
	}
	return w.writeLine(fmt.Sprintf("=== session %s ended (%s) ===", sessionID, reason))
}

// WriteGap appends the outage marker.
func (w *TranscriptWriter) WriteGap() error {
	return w.writeLine(GapMarker)
}

// WriteSegment appends one transcribed span with session-absolute offsets.
func (w *TranscriptWriter) WriteSegment(seg Segment) error {
	text := strings.TrimSpace(seg.Text)
	if text == "" {
		return nil
	}
	return w.writeLine(fmt.Sprintf("[%s–%s] %s", FormatOffset(seg.Start), FormatOffset(seg.End), text))
}

// Close flushes and closes the transcript file.
func (w *TranscriptWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *TranscriptWriter) writeLine(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return fmt.Errorf("transcript closed")
	}
	if _, err := w.file.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	return nil
}

// FormatOffset renders a session offset in seconds as MM:SS. Sessions longer
// than an hour keep accumulating minutes.
func FormatOffset(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
