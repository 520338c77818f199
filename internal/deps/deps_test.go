package deps

import (
	"os"
	"path/filepath"
	"testing"

	"gavel/internal/config"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unconfigured", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}

	if results[1].Available {
		t.Fatal("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatal("expected detail message for missing binary")
	}

	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail for blank command: %s", results[2].Detail)
	}
}

func TestRequirementsIncludeUvxOnlyWhenTranscribing(t *testing.T) {
	cfg := config.Default()
	cfg.Transcription.Enabled = false
	if hasRequirement(Requirements(&cfg), "uvx") {
		t.Fatal("did not expect uvx requirement with transcription disabled")
	}

	cfg.Transcription.Enabled = true
	if !hasRequirement(Requirements(&cfg), "uvx") {
		t.Fatal("expected uvx requirement with transcription enabled")
	}
}

func TestMissingRequired(t *testing.T) {
	statuses := []Status{
		{Name: "FFmpeg", Available: true},
		{Name: "FFprobe", Available: false},
		{Name: "Extra", Available: false, Optional: true},
	}
	missing := MissingRequired(statuses)
	if len(missing) != 1 || missing[0] != "FFprobe" {
		t.Fatalf("unexpected missing list: %v", missing)
	}
}

func hasRequirement(reqs []Requirement, name string) bool {
	for _, req := range reqs {
		if req.Name == name {
			return true
		}
	}
	return false
}
