package main

import (
	"testing"

	"gavel/internal/testsupport"
)

func TestStatusWithoutSessions(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Active session:   none")
	requireContains(t, out, "No sessions recorded yet")
	requireContains(t, out, "sessions.db")
}

func TestStatusShowsActiveSession(t *testing.T) {
	env := setupCLITestEnv(t)

	store := testsupport.MustOpenStore(t, env.cfg)
	testsupport.NewSession(t, store, "commerce_commerce012345", "commerce", "commerce012345")

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "commerce_commerce012345")
	requireContains(t, out, "recording")
}
