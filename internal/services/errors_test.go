package services_test

import (
	"errors"
	"fmt"
	"testing"

	"gavel/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := fmt.Errorf("exit status 1")
	err := services.Wrap(services.ErrSubprocess, "recorder", "start", "ffmpeg", base)
	if !errors.Is(err, services.ErrSubprocess) {
		t.Fatalf("expected ErrSubprocess marker, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped base error, got %v", err)
	}
}

func TestWrapDefaultsToFatal(t *testing.T) {
	err := services.Wrap(nil, "watcher", "", "", nil)
	if !errors.Is(err, services.ErrFatalSession) {
		t.Fatalf("expected fatal default, got %v", err)
	}
}

func TestEndReason(t *testing.T) {
	cases := []struct {
		err    error
		reason string
	}{
		{nil, "completed"},
		{services.Wrap(services.ErrFatalSession, "recorder", "video", "restart ceiling", nil), "aborted"},
		{services.Wrap(services.ErrInvalidParams, "identity", "derive", "missing committee", nil), "invalid parameters"},
		{errors.New("boom"), "failed"},
	}
	for _, tc := range cases {
		if got := services.EndReason(tc.err); got != tc.reason {
			t.Fatalf("EndReason(%v) = %q, want %q", tc.err, got, tc.reason)
		}
	}
}

func TestIsFatal(t *testing.T) {
	if services.IsFatal(services.ErrStalled) {
		t.Fatal("stall should not be fatal on its own")
	}
	if !services.IsFatal(services.Wrap(services.ErrFatalSession, "recorder", "audio", "", nil)) {
		t.Fatal("wrapped fatal marker should report fatal")
	}
}
