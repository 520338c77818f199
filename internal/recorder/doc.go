// Package recorder supervises the ffmpeg capture processes for a session.
//
// Each session runs two independent targets: a video target that copies the
// stream into an MP4 container and an audio target that transcodes to MP3 for
// the transcription pipeline. A target that exits, fails to produce output,
// or stops growing its output file is killed and restarted with exponential
// backoff, re-resolving the stream endpoint each time. Exhausting the restart
// ceiling is fatal for the whole session.
package recorder
