package testsupport

import (
	"context"
	"testing"

	"gavel/internal/config"
	"gavel/internal/session"
)

// MustOpenStore opens a session.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *session.Store {
	t.Helper()

	store, err := session.Open(cfg)
	if err != nil {
		t.Fatalf("session.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewSession creates a recording session row for tests using the provided store.
func NewSession(t testing.TB, store *session.Store, sessionID, committee, filename string) *session.Record {
	t.Helper()

	rec, err := store.CreateSession(context.Background(), session.Record{
		SessionID: sessionID,
		Committee: committee,
		Filename:  filename,
	})
	if err != nil {
		t.Fatalf("store.CreateSession: %v", err)
	}
	return rec
}
