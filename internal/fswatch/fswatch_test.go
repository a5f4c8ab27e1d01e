package fswatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchCoalescesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 16)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, Options{Debounce: 50 * time.Millisecond}, func() { changed <- struct{}{} })
	}()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte(`{"n":1}`), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// Unrelated files in the same directory are ignored.
	_ = os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o644)

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatalf("no change callback")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("watch did not return after cancel")
	}
}

func TestBackoffCapped(t *testing.T) {
	b := newBackoff()
	for i := 0; i < 20; i++ {
		if d := b.next(); d > restartBackoffMax+restartBackoffMax/2 {
			t.Fatalf("backoff %s exceeds cap", d)
		}
	}
	b.reset()
	if b.cur != restartBackoffBase {
		t.Fatalf("reset: %s", b.cur)
	}
}

func TestWatchCatchesUpAfterMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "conf.d")
	path := filepath.Join(dir, "settings.json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 16)
	go func() {
		_ = Watch(ctx, path, Options{Debounce: 20 * time.Millisecond}, func() { changed <- struct{}{} })
	}()

	// The directory and file appear together before any watcher could attach.
	time.Sleep(50 * time.Millisecond)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatalf("change made before the watcher attached was never reported")
	}
}
