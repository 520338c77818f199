package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gavel/internal/config"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.RecordingsDir = filepath.Join(base, "recordings")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.WorkDir = filepath.Join(base, "work")

	store, err := Open(&cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createTestSession(t *testing.T, store *Store, sessionID string) *Record {
	t.Helper()
	rec, err := store.CreateSession(context.Background(), Record{
		SessionID: sessionID,
		Committee: "commerce",
		Filename:  "commerce012345",
		RunID:     "4f6c4a2e-run",
		VideoPath: "/tmp/" + sessionID + "_video.mp4",
		AudioPath: "/tmp/" + sessionID + "_audio.mp3",
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return rec
}

func TestCreateAndFinishSession(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	rec := createTestSession(t, store, "commerce_commerce012345")
	if rec.State != StateRecording {
		t.Fatalf("expected recording state, got %s", rec.State)
	}
	if rec.LastHeartbeat == nil {
		t.Fatal("expected initial heartbeat to be set")
	}

	active, err := store.ActiveSession(ctx)
	if err != nil {
		t.Fatalf("active session: %v", err)
	}
	if active == nil || active.ID != rec.ID {
		t.Fatalf("expected active session %d, got %+v", rec.ID, active)
	}

	if err := store.FinishSession(ctx, rec.ID, StateCompleted, "completed"); err != nil {
		t.Fatalf("finish session: %v", err)
	}

	finished, err := store.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if finished.State != StateCompleted {
		t.Fatalf("expected completed, got %s", finished.State)
	}
	if finished.EndedAt == nil {
		t.Fatal("expected ended_at to be set")
	}
	if finished.LastHeartbeat != nil {
		t.Fatal("expected heartbeat cleared on finish")
	}

	active, err = store.ActiveSession(ctx)
	if err != nil {
		t.Fatalf("active session after finish: %v", err)
	}
	if active != nil {
		t.Fatalf("expected no active session, got %+v", active)
	}
}

func TestFinishSessionRejectsNonTerminalState(t *testing.T) {
	store := newStore(t)
	rec := createTestSession(t, store, "floor_stv160")
	if err := store.FinishSession(context.Background(), rec.ID, StateRecording, ""); err == nil {
		t.Fatal("expected error for non-terminal state")
	}
}

func TestUpdateHeartbeatAndRestartCounts(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	rec := createTestSession(t, store, "floor_stv160")

	before := *rec.LastHeartbeat
	time.Sleep(10 * time.Millisecond)
	if err := store.UpdateHeartbeat(ctx, rec.ID); err != nil {
		t.Fatalf("update heartbeat: %v", err)
	}
	if err := store.UpdateRestartCounts(ctx, rec.ID, 2, 1); err != nil {
		t.Fatalf("update restart counts: %v", err)
	}

	updated, err := store.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if updated.LastHeartbeat == nil || !updated.LastHeartbeat.After(before) {
		t.Fatalf("expected heartbeat to advance past %v, got %v", before, updated.LastHeartbeat)
	}
	if updated.VideoRestarts != 2 || updated.AudioRestarts != 1 {
		t.Fatalf("unexpected restart counts: %d/%d", updated.VideoRestarts, updated.AudioRestarts)
	}
}

func TestReclaimStaleMarksInterrupted(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	rec := createTestSession(t, store, "floor_stv160")

	// Heartbeat is fresh, so a cutoff in the past reclaims nothing.
	reclaimed, err := store.ReclaimStale(ctx, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("reclaim stale: %v", err)
	}
	if reclaimed != 0 {
		t.Fatalf("expected no reclaimed sessions, got %d", reclaimed)
	}

	reclaimed, err = store.ReclaimStale(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("reclaim stale: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected 1 reclaimed session, got %d", reclaimed)
	}

	updated, err := store.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if updated.State != StateAborted {
		t.Fatalf("expected aborted, got %s", updated.State)
	}
	if updated.EndReason != InterruptedReason {
		t.Fatalf("unexpected end reason %q", updated.EndReason)
	}
}

func TestTriggerEventsDedupeBySegmentAndPhrase(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	rec := createTestSession(t, store, "floor_stv160")

	event := TriggerEvent{
		SessionRowID:   rec.ID,
		SessionID:      rec.SessionID,
		Phrase:         "unanimous consent",
		SegmentStartMS: 2530_000,
		SegmentEndMS:   2560_000,
		Excerpt:        "I ask unanimous consent that the quorum call be rescinded",
	}

	inserted, err := store.RecordTriggerEvent(ctx, event)
	if err != nil {
		t.Fatalf("record trigger event: %v", err)
	}
	if !inserted {
		t.Fatal("expected first event to insert")
	}

	inserted, err = store.RecordTriggerEvent(ctx, event)
	if err != nil {
		t.Fatalf("record duplicate trigger event: %v", err)
	}
	if inserted {
		t.Fatal("expected duplicate event to be ignored")
	}

	event.SegmentStartMS = 2560_000
	inserted, err = store.RecordTriggerEvent(ctx, event)
	if err != nil {
		t.Fatalf("record later trigger event: %v", err)
	}
	if !inserted {
		t.Fatal("expected event in a later segment to insert")
	}

	events, err := store.ListTriggerEvents(ctx, rec.ID)
	if err != nil {
		t.Fatalf("list trigger events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].SegmentStartMS != 2530_000 {
		t.Fatalf("expected events in segment order, got %d first", events[0].SegmentStartMS)
	}
}

func TestPruneEndedBeforeRemovesOldSessions(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	old := createTestSession(t, store, "floor_stv100")
	if err := store.FinishSession(ctx, old.ID, StateCompleted, "completed"); err != nil {
		t.Fatalf("finish old session: %v", err)
	}
	live := createTestSession(t, store, "floor_stv160")

	pruned, err := store.PruneEndedBefore(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned session, got %d", pruned)
	}

	remaining, err := store.ListSessions(ctx, 0)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != live.ID {
		t.Fatalf("expected only live session to remain, got %+v", remaining)
	}
}

func TestStatsGroupsByState(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	first := createTestSession(t, store, "floor_stv100")
	if err := store.FinishSession(ctx, first.ID, StateFailed, "failed"); err != nil {
		t.Fatalf("finish session: %v", err)
	}
	createTestSession(t, store, "floor_stv160")

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats[StateRecording] != 1 || stats[StateFailed] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
