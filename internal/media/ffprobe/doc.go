// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// The transcription pipeline uses DurationSeconds to follow the tail of a
// growing capture file; the preflight check uses Inspect to verify finished
// artifacts contain the expected streams.
package ffprobe
