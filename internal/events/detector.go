package events

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"gavel/internal/logging"
	"gavel/internal/session"
	"gavel/internal/transcribe"
)

// Notifier is the slice of the notification service the detector needs.
type Notifier interface {
	NotifyTrigger(ctx context.Context, sessionID, phrase, offset, excerpt string) error
}

// EventStore persists detected trigger events.
type EventStore interface {
	RecordTriggerEvent(ctx context.Context, ev session.TriggerEvent) (bool, error)
}

// Detector scans transcript segments for configured trigger phrases. Matching
// is a case-insensitive substring test, and each (segment, phrase) pair fires
// at most once no matter how often overlapping windows replay the segment.
type Detector struct {
	phrases      []string
	sessionRowID int64
	sessionID    string
	notifier     Notifier
	store        EventStore
	logger       *slog.Logger

	mu   sync.Mutex
	seen map[emissionKey]struct{}
}

type emissionKey struct {
	segmentStartMS int64
	phrase         string
}

// NewDetector builds a detector for one session. notifier and store may be
// nil; detection then only logs.
func NewDetector(phrases []string, sessionRowID int64, sessionID string, notifier Notifier, store EventStore, logger *slog.Logger) *Detector {
	normalized := make([]string, 0, len(phrases))
	for _, phrase := range phrases {
		if trimmed := strings.TrimSpace(phrase); trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return &Detector{
		phrases:      normalized,
		sessionRowID: sessionRowID,
		sessionID:    sessionID,
		notifier:     notifier,
		store:        store,
		logger:       logging.NewComponentLogger(logger, "trigger detector"),
		seen:         make(map[emissionKey]struct{}),
	}
}

// Scan checks each segment against every trigger phrase and emits events for
// new matches. Notification and persistence failures are logged, never
// propagated; detection must not disturb capture.
func (d *Detector) Scan(ctx context.Context, segments []transcribe.Segment) {
	for _, segment := range segments {
		lowered := strings.ToLower(segment.Text)
		for _, phrase := range d.phrases {
			if !strings.Contains(lowered, strings.ToLower(phrase)) {
				continue
			}
			if !d.markSeen(segment, phrase) {
				continue
			}
			d.emit(ctx, segment, phrase)
		}
	}
}

func (d *Detector) markSeen(segment transcribe.Segment, phrase string) bool {
	key := emissionKey{
		segmentStartMS: int64(segment.Start * 1000),
		phrase:         strings.ToLower(phrase),
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.seen[key]; dup {
		return false
	}
	d.seen[key] = struct{}{}
	return true
}

func (d *Detector) emit(ctx context.Context, segment transcribe.Segment, phrase string) {
	offset := transcribe.FormatOffset(segment.Start)
	excerpt := strings.TrimSpace(segment.Text)

	d.logger.Info("trigger phrase detected",
		logging.String("phrase", phrase),
		logging.String("offset", offset),
		logging.String(logging.FieldSessionID, d.sessionID))

	if d.store != nil {
		inserted, err := d.store.RecordTriggerEvent(ctx, session.TriggerEvent{
			SessionRowID:   d.sessionRowID,
			SessionID:      d.sessionID,
			Phrase:         phrase,
			SegmentStartMS: int64(segment.Start * 1000),
			SegmentEndMS:   int64(segment.End * 1000),
			Excerpt:        excerpt,
		})
		if err != nil {
			d.logger.Warn("failed to persist trigger event", logging.Error(err))
		} else if !inserted {
			// Persisted by an earlier run of this session; still counts as seen.
			return
		}
	}

	if d.notifier != nil {
		if err := d.notifier.NotifyTrigger(ctx, d.sessionID, phrase, offset, excerpt); err != nil {
			d.logger.Warn("trigger notification failed", logging.Error(err))
		}
	}
}
