package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gavel/internal/config"
	"gavel/internal/logging"
	"gavel/internal/media/ffprobe"
)

const defaultPollInterval = 2 * time.Second

// Pipeline tails the growing session audio, extracts overlapping windows, and
// feeds them to the transcription backend. Transcript lines are appended as
// they arrive; new segments are also handed to the optional segment hook with
// session-absolute offsets.
type Pipeline struct {
	cfg          config.Transcription
	ffmpeg       string
	ffprobe      string
	sessionID    string
	audioPath    string
	workDir      string
	writer       *TranscriptWriter
	backend      Backend
	logger       *slog.Logger
	onSegments   func(ctx context.Context, segments []Segment)
	pollInterval time.Duration

	// covered and baseOffset split the timeline: covered is the processed
	// span of the current audio file, baseOffset is the span consumed from
	// earlier incarnations of the file before a capture restart truncated it.
	// Transcript offsets are baseOffset+covered, so they stay session-relative.
	covered      float64
	baseOffset   float64
	lastProgress time.Time
	inGap        bool
	windowSeq    int
}

// NewPipeline builds the transcription pipeline for one session. onSegments
// may be nil.
func NewPipeline(cfg *config.Config, logger *slog.Logger, sessionID, audioPath string, writer *TranscriptWriter, backend Backend, onSegments func(ctx context.Context, segments []Segment)) *Pipeline {
	return &Pipeline{
		cfg:          cfg.Transcription,
		ffmpeg:       cfg.FFmpegBinary(),
		ffprobe:      cfg.FFprobeBinary(),
		sessionID:    sessionID,
		audioPath:    audioPath,
		workDir:      cfg.Paths.WorkDir,
		writer:       writer,
		backend:      backend,
		logger:       logging.NewComponentLogger(logger, "transcription"),
		onSegments:   onSegments,
		pollInterval: defaultPollInterval,
	}
}

// Run tails the audio until ctx is cancelled, then drains whatever audio
// remains and writes the end marker. The returned error is only for setup
// failures; backend outages are absorbed.
func (p *Pipeline) Run(ctx context.Context, endReason func() string) error {
	if err := p.writer.WriteSessionStart(p.sessionID); err != nil {
		return err
	}
	p.lastProgress = time.Now()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.drain(context.WithoutCancel(ctx))
			reason := ""
			if endReason != nil {
				reason = endReason()
			}
			if err := p.writer.WriteSessionEnd(p.sessionID, reason); err != nil {
				p.logger.Warn("failed to write end marker", logging.Error(err))
			}
			return nil
		case <-ticker.C:
			p.step(ctx)
		}
	}
}

// step processes at most one window per tick.
func (p *Pipeline) step(ctx context.Context) {
	duration, err := ffprobe.DurationSeconds(ctx, p.ffprobe, p.audioPath)
	if err != nil {
		// The audio file may not exist yet or may not have a parseable
		// header while ffmpeg is still writing the first frames.
		p.logger.Debug("audio not measurable yet", logging.Error(err))
		return
	}

	// Capture restarts rerun ffmpeg with -y, truncating the audio file. A
	// duration below the covered span (beyond what trailing overlap can
	// account for) means the file restarted from zero.
	if p.covered-duration > float64(p.cfg.OverlapSeconds) {
		p.noteTruncation(duration)
		return
	}

	chunk := float64(p.cfg.ChunkSeconds)
	pending := duration - p.covered
	lagging := time.Since(p.lastProgress) > time.Duration(p.cfg.MaxLagSeconds)*time.Second

	switch {
	case pending >= chunk:
		p.processWindow(ctx, p.covered+chunk)
	case lagging && pending >= 1:
		p.processWindow(ctx, duration)
	}
}

// drain transcribes whatever unprocessed audio remains after capture stops.
func (p *Pipeline) drain(ctx context.Context) {
	duration, err := ffprobe.DurationSeconds(ctx, p.ffprobe, p.audioPath)
	if err != nil {
		return
	}
	for duration-p.covered >= 1 {
		end := p.covered + float64(p.cfg.ChunkSeconds)
		if end > duration {
			end = duration
		}
		before := p.covered
		p.processWindow(ctx, end)
		if p.covered <= before {
			return
		}
	}
}

// processWindow transcribes [covered, end] with leading and trailing overlap,
// de-duplicates against already-covered audio, and advances the coverage
// offset.
func (p *Pipeline) processWindow(ctx context.Context, end float64) {
	overlap := float64(p.cfg.OverlapSeconds)
	windowStart := p.covered - overlap
	if windowStart < 0 {
		windowStart = 0
	}
	windowDuration := end + overlap - windowStart

	p.windowSeq++
	wavPath := filepath.Join(p.workDir, fmt.Sprintf("%s_win%06d.wav", p.sessionID, p.windowSeq))
	defer os.Remove(wavPath)

	if err := extractWindow(ctx, p.ffmpeg, p.audioPath, windowStart, windowDuration, wavPath); err != nil {
		p.noteOutage(err)
		return
	}

	inferCtx := ctx
	if p.cfg.InferenceTimeout > 0 {
		var cancel context.CancelFunc
		inferCtx, cancel = context.WithTimeout(ctx, time.Duration(p.cfg.InferenceTimeout)*time.Second)
		defer cancel()
	}

	segments, err := p.backend.Transcribe(inferCtx, wavPath)
	if err != nil {
		p.noteOutage(err)
		return
	}
	if p.inGap {
		p.inGap = false
		p.logger.Info("transcription recovered")
	}

	fresh := make([]Segment, 0, len(segments))
	covered := p.covered
	for _, seg := range segments {
		start := windowStart + seg.Start
		segEnd := windowStart + seg.End
		// Overlap re-transcribes audio the previous window already covered.
		// Segments starting inside covered territory are dropped whole, even
		// when they extend past the boundary: a straddler's leading words
		// repeat text the previous window already wrote.
		if start < p.covered {
			continue
		}
		out := Segment{
			Text:  seg.Text,
			Start: p.baseOffset + start,
			End:   p.baseOffset + segEnd,
		}
		if err := p.writer.WriteSegment(out); err != nil {
			p.logger.Warn("failed to append transcript line", logging.Error(err))
		}
		fresh = append(fresh, out)
		if segEnd > covered {
			covered = segEnd
		}
	}
	if end > covered {
		covered = end
	}
	p.covered = covered
	p.lastProgress = time.Now()

	if len(fresh) > 0 && p.onSegments != nil {
		p.onSegments(ctx, fresh)
	}
}

// noteTruncation resynchronizes with an audio file that restarted from zero.
// The unprocessed tail of the previous incarnation is gone, so a gap marker
// records the loss and coverage restarts at the head of the new file.
func (p *Pipeline) noteTruncation(duration float64) {
	p.logger.Warn("audio restarted below covered span",
		logging.Float64("duration", duration),
		logging.Float64("covered", p.covered))
	if !p.inGap {
		p.inGap = true
		if err := p.writer.WriteGap(); err != nil {
			p.logger.Warn("failed to write gap marker", logging.Error(err))
		}
	}
	p.baseOffset += p.covered
	p.covered = 0
	p.lastProgress = time.Now()
}

// noteOutage logs a backend failure and writes the gap marker once per
// outage. Coverage does not advance, so the audio is retried next tick.
func (p *Pipeline) noteOutage(err error) {
	p.logger.Warn("transcription window failed", logging.Error(err))
	p.lastProgress = time.Now()
	if p.inGap {
		return
	}
	p.inGap = true
	if writeErr := p.writer.WriteGap(); writeErr != nil {
		p.logger.Warn("failed to write gap marker", logging.Error(writeErr))
	}
}
