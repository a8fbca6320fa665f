package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type dropRecorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *dropRecorder) record(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *dropRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.paths))
	copy(out, r.paths)
	return out
}

func (r *dropRecorder) waitFor(t *testing.T, n int, timeout time.Duration) []string {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if got := r.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d drops, have %v", n, r.snapshot())
	return nil
}

func TestDetectsDroppedPDF(t *testing.T) {
	dir := t.TempDir()
	rec := &dropRecorder{}
	w := NewWatcher(dir, rec.record, WithDebounce(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "report.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0644); err != nil {
		t.Fatal(err)
	}

	got := rec.waitFor(t, 1, 3*time.Second)
	if got[0] != path {
		t.Errorf("dropped path = %q, want %q", got[0], path)
	}
}

func TestIgnoresNonPDF(t *testing.T) {
	dir := t.TempDir()
	rec := &dropRecorder{}
	w := NewWatcher(dir, rec.record, WithDebounce(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("text"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 0 {
		t.Errorf("expected no drops, got %v", got)
	}
}

func TestPicksUpExistingBacklog(t *testing.T) {
	dir := t.TempDir()
	backlog := filepath.Join(dir, "earlier.pdf")
	if err := os.WriteFile(backlog, []byte("%PDF-1.4"), 0644); err != nil {
		t.Fatal(err)
	}

	rec := &dropRecorder{}
	w := NewWatcher(dir, rec.record, WithDebounce(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	got := rec.waitFor(t, 1, time.Second)
	if got[0] != backlog {
		t.Errorf("backlog path = %q, want %q", got[0], backlog)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	w := NewWatcher(t.TempDir(), func(string) {})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
}
