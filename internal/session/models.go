package session

import "time"

// State represents the lifecycle of a captured session.
type State string

const (
	StateRecording State = "recording"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
	StateFailed    State = "failed"
)

// InterruptedReason is the end reason set when sessions are reclaimed after
// an unclean daemon exit.
const InterruptedReason = "interrupted"

// Record represents a capture session persisted in SQLite.
type Record struct {
	ID             int64
	SessionID      string
	Committee      string
	Filename       string
	RunID          string
	State          State
	EndReason      string
	VideoPath      string
	AudioPath      string
	TranscriptPath string
	VideoRestarts  int
	AudioRestarts  int
	StartedAt      time.Time
	EndedAt        *time.Time
	LastHeartbeat  *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Duration returns the session length, using the current time for sessions
// that have not ended yet.
func (r *Record) Duration() time.Duration {
	if r == nil || r.StartedAt.IsZero() {
		return 0
	}
	end := time.Now().UTC()
	if r.EndedAt != nil {
		end = *r.EndedAt
	}
	if end.Before(r.StartedAt) {
		return 0
	}
	return end.Sub(r.StartedAt)
}

// TriggerEvent represents a detected trigger phrase persisted in SQLite.
type TriggerEvent struct {
	ID             int64
	SessionRowID   int64
	SessionID      string
	Phrase         string
	SegmentStartMS int64
	SegmentEndMS   int64
	Excerpt        string
	CreatedAt      time.Time
}
