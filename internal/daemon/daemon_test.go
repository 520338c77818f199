package daemon

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gavel/internal/config"
	"gavel/internal/discovery"
	"gavel/internal/logging"
	"gavel/internal/notifications"
	"gavel/internal/session"
	"gavel/internal/watcher"
)

type idleSource struct{}

func (idleSource) Poll(ctx context.Context) (discovery.Status, error) {
	return discovery.Status{}, nil
}

func newDaemonFixture(t *testing.T) (*Daemon, *config.Config) {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.RecordingsDir = filepath.Join(base, "recordings")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Discovery.PollInterval = 1

	store, err := session.Open(&cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	w := watcher.New(&cfg, logging.NewNop(), idleSource{}, store, notifications.NewService(&cfg))
	d, err := New(&cfg, store, logging.NewNop(), w)
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	return d, &cfg
}

func TestDaemonEnforcesSingleInstance(t *testing.T) {
	d, cfg := newDaemonFixture(t)

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	defer d.Stop()

	status := d.Status()
	if !status.Running {
		t.Fatal("expected running status")
	}
	if status.Phase != watcher.PhaseIdle {
		t.Fatalf("expected idle phase, got %q", status.Phase)
	}

	// A second daemon against the same lock path must refuse to start.
	store2, err := session.Open(cfg)
	if err != nil {
		t.Fatalf("open second store: %v", err)
	}
	defer store2.Close()
	w2 := watcher.New(cfg, logging.NewNop(), idleSource{}, store2, notifications.NewService(cfg))
	d2, err := New(cfg, store2, logging.NewNop(), w2)
	if err != nil {
		t.Fatalf("new second daemon: %v", err)
	}
	if err := d2.Start(ctx); err == nil {
		d2.Stop()
		t.Fatal("expected second instance to fail to start")
	}
}

func TestDaemonStopReleasesLock(t *testing.T) {
	d, cfg := newDaemonFixture(t)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	d.Stop()
	if d.Status().Running {
		t.Fatal("expected stopped status")
	}

	// The lock is free again.
	store2, err := session.Open(cfg)
	if err != nil {
		t.Fatalf("open second store: %v", err)
	}
	defer store2.Close()
	w2 := watcher.New(cfg, logging.NewNop(), idleSource{}, store2, notifications.NewService(cfg))
	d2, err := New(cfg, store2, logging.NewNop(), w2)
	if err != nil {
		t.Fatalf("new second daemon: %v", err)
	}
	if err := d2.Start(context.Background()); err != nil {
		t.Fatalf("expected restart after stop to succeed: %v", err)
	}
	d2.Stop()
}

func TestDaemonTestNotificationWithoutTopic(t *testing.T) {
	d, _ := newDaemonFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	sent, detail, err := d.TestNotification(ctx)
	if err != nil {
		t.Fatalf("test notification: %v", err)
	}
	if sent {
		t.Fatal("expected no send without a configured topic")
	}
	if detail == "" {
		t.Fatal("expected explanatory detail")
	}
}
