// Package transcribe follows a live audio capture and produces a running
// transcript.
//
// The pipeline probes the growing MP3 with ffprobe, extracts overlapping
// fixed-size windows with ffmpeg, and hands each window to a Backend. Window
// overlap means boundary audio is transcribed twice; segments that end inside
// already-covered territory are dropped so transcript offsets stay
// monotonically non-decreasing and no text repeats. Backend outages mark a
// single gap per outage and never interrupt capture.
package transcribe
