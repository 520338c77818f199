package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"gavel/internal/config"
)

// Store manages session persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the session database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "sessions.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the location of the backing database file.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// CreateSession inserts a new session in the recording state.
func (s *Store) CreateSession(ctx context.Context, rec Record) (*Record, error) {
	if strings.TrimSpace(rec.SessionID) == "" {
		return nil, errors.New("session id is required")
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	startedAt := rec.StartedAt
	if startedAt.IsZero() {
		startedAt = now
	}

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO sessions (
            session_id, committee, filename, run_id, state,
            video_path, audio_path, transcript_path,
            started_at, last_heartbeat, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID,
		rec.Committee,
		rec.Filename,
		rec.RunID,
		StateRecording,
		nullableString(rec.VideoPath),
		nullableString(rec.AudioPath),
		nullableString(rec.TranscriptPath),
		startedAt.UTC().Format(time.RFC3339Nano),
		timestamp,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a session by row identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return rec, nil
}

// ActiveSession returns the most recent session still in the recording state,
// or nil when none is active.
func (s *Store) ActiveSession(ctx context.Context) (*Record, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE state = ? ORDER BY id DESC LIMIT 1`,
		StateRecording,
	)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active session: %w", err)
	}
	return rec, nil
}

// ListSessions returns sessions ordered newest first, up to limit. A limit of
// zero or less returns all sessions.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]*Record, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// UpdateHeartbeat refreshes the last heartbeat timestamp for a live session.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE sessions SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now, now, id,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// UpdateRestartCounts records how many times each capture target restarted.
func (s *Store) UpdateRestartCounts(ctx context.Context, id int64, video, audio int) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE sessions SET video_restarts = ?, audio_restarts = ?, updated_at = ? WHERE id = ?`,
		video, audio, time.Now().UTC().Format(time.RFC3339Nano), id,
	); err != nil {
		return fmt.Errorf("update restart counts: %w", err)
	}
	return nil
}

// FinishSession moves a session to a terminal state and records its outcome.
func (s *Store) FinishSession(ctx context.Context, id int64, state State, endReason string) error {
	switch state {
	case StateCompleted, StateAborted, StateFailed:
	default:
		return fmt.Errorf("finish session: state %q is not terminal", state)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE sessions
         SET state = ?, end_reason = ?, ended_at = ?, last_heartbeat = NULL, updated_at = ?
         WHERE id = ?`,
		state, nullableString(endReason), now, now, id,
	); err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	return nil
}

// ReclaimStale marks recording sessions whose heartbeat expired before cutoff
// as aborted. Sessions left behind by an unclean daemon exit are picked up
// here on the next start.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE sessions
         SET state = ?, end_reason = ?, ended_at = ?, last_heartbeat = NULL, updated_at = ?
         WHERE state = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)`,
		StateAborted,
		InterruptedReason,
		now,
		now,
		StateRecording,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale sessions: %w", err)
	}
	return res.RowsAffected()
}

// PruneEndedBefore removes terminal sessions that ended before cutoff along
// with their trigger events.
func (s *Store) PruneEndedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM sessions
         WHERE state != ? AND ended_at IS NOT NULL AND ended_at < ?`,
		StateRecording,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of sessions grouped by state.
func (s *Store) Stats(ctx context.Context) (map[State]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(1) FROM sessions GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("session stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[State]int)
	for rows.Next() {
		var state State
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[state] = count
	}
	return stats, rows.Err()
}

// RecordTriggerEvent persists a detected trigger phrase. The same phrase in
// the same segment is recorded at most once; the returned bool reports
// whether a new row was inserted.
func (s *Store) RecordTriggerEvent(ctx context.Context, ev TriggerEvent) (bool, error) {
	if ev.SessionRowID == 0 {
		return false, errors.New("trigger event requires a session row id")
	}
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO trigger_events (
            session_rowid, session_id, phrase, segment_start_ms, segment_end_ms, excerpt, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (session_rowid, segment_start_ms, phrase) DO NOTHING`,
		ev.SessionRowID,
		ev.SessionID,
		ev.Phrase,
		ev.SegmentStartMS,
		ev.SegmentEndMS,
		nullableString(ev.Excerpt),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("record trigger event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("trigger event rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListTriggerEvents returns the trigger events recorded for a session, in
// segment order.
func (s *Store) ListTriggerEvents(ctx context.Context, sessionRowID int64) ([]*TriggerEvent, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, session_rowid, session_id, phrase, segment_start_ms, segment_end_ms, excerpt, created_at
         FROM trigger_events WHERE session_rowid = ? ORDER BY segment_start_ms, phrase`,
		sessionRowID,
	)
	if err != nil {
		return nil, fmt.Errorf("list trigger events: %w", err)
	}
	defer rows.Close()

	var events []*TriggerEvent
	for rows.Next() {
		var (
			ev        TriggerEvent
			excerpt   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&ev.ID, &ev.SessionRowID, &ev.SessionID, &ev.Phrase, &ev.SegmentStartMS, &ev.SegmentEndMS, &excerpt, &createdAt); err != nil {
			return nil, err
		}
		ev.Excerpt = excerpt.String
		if parsed, err := parseTimeString(createdAt); err == nil {
			ev.CreatedAt = parsed
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

const sessionColumns = "id, session_id, committee, filename, run_id, state, end_reason, video_path, audio_path, transcript_path, video_restarts, audio_restarts, started_at, ended_at, last_heartbeat, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Record, error) {
	var (
		rec            Record
		endReason      sql.NullString
		videoPath      sql.NullString
		audioPath      sql.NullString
		transcriptPath sql.NullString
		startedAtRaw   string
		endedAtRaw     sql.NullString
		heartbeatRaw   sql.NullString
		createdAtRaw   string
		updatedAtRaw   string
	)

	if err := row.Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.Committee,
		&rec.Filename,
		&rec.RunID,
		&rec.State,
		&endReason,
		&videoPath,
		&audioPath,
		&transcriptPath,
		&rec.VideoRestarts,
		&rec.AudioRestarts,
		&startedAtRaw,
		&endedAtRaw,
		&heartbeatRaw,
		&createdAtRaw,
		&updatedAtRaw,
	); err != nil {
		return nil, err
	}

	rec.EndReason = endReason.String
	rec.VideoPath = videoPath.String
	rec.AudioPath = audioPath.String
	rec.TranscriptPath = transcriptPath.String

	if parsed, err := parseTimeString(startedAtRaw); err == nil {
		rec.StartedAt = parsed
	}
	if endedAtRaw.Valid {
		if parsed, err := parseTimeString(endedAtRaw.String); err == nil {
			rec.EndedAt = &parsed
		}
	}
	if heartbeatRaw.Valid {
		if parsed, err := parseTimeString(heartbeatRaw.String); err == nil {
			rec.LastHeartbeat = &parsed
		}
	}
	if parsed, err := parseTimeString(createdAtRaw); err == nil {
		rec.CreatedAt = parsed
	}
	if parsed, err := parseTimeString(updatedAtRaw); err == nil {
		rec.UpdatedAt = parsed
	}
	return &rec, nil
}

func parseTimeString(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return parsed.UTC(), nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) execWithoutResultRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}
