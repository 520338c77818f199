package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers for failure classification. Components wrap their errors
// with one of these so the watcher can map a failure to the right reaction
// without inspecting error strings.
var (
	// ErrInvalidParams marks discovery parameters that cannot produce a
	// session identity. Aborts the session start, returns the watcher to idle.
	ErrInvalidParams = errors.New("invalid stream parameters")
	// ErrTransientDiscovery marks a failed discovery poll. Retried next cycle.
	ErrTransientDiscovery = errors.New("transient discovery failure")
	// ErrSubprocess marks a capture subprocess exit or launch failure.
	// Retried with backoff up to the restart ceiling.
	ErrSubprocess = errors.New("subprocess failure")
	// ErrStalled marks a running subprocess whose output stopped growing.
	// Treated exactly like ErrSubprocess.
	ErrStalled = errors.New("stall detected")
	// ErrTranscription marks an unavailable or failing transcription backend.
	// The pipeline degrades; the session keeps recording.
	ErrTranscription = errors.New("transcription backend failure")
	// ErrNotification marks a notification delivery failure. Log only.
	ErrNotification = errors.New("notification delivery failure")
	// ErrFatalSession marks an unrecoverable session failure. The current
	// session is torn down; the watcher keeps polling for the next one.
	ErrFatalSession = errors.New("fatal session failure")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrFatalSession
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether an error should abort the current session rather
// than be absorbed locally.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatalSession)
}

// EndReason maps a session-ending error to the reason persisted with the
// session record.
func EndReason(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, ErrFatalSession):
		return "aborted"
	case errors.Is(err, ErrInvalidParams):
		return "invalid parameters"
	default:
		return "failed"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
