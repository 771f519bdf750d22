package lotdir

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestDir(t *testing.T) *Dir {
	t.Helper()
	d, err := New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.Backoff = []time.Duration{
		20 * time.Millisecond,
		20 * time.Millisecond,
		50 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
	}
	d.StabilitySample = 5 * time.Millisecond
	return d
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestAwaitStableExistingFile(t *testing.T) {
	d := newTestDir(t)
	writeFile(t, filepath.Join(d.Path(), "track.jpg"), []byte("image"))

	got, err := d.AwaitStable(context.Background(), "track.jpg")
	if err != nil {
		t.Fatalf("AwaitStable: %v", err)
	}
	if got != filepath.Join(d.Path(), "track.jpg") {
		t.Fatalf("unexpected path %q", got)
	}
}

func TestAwaitStableLateFile(t *testing.T) {
	d := newTestDir(t)
	go func() {
		time.Sleep(30 * time.Millisecond)
		writeFile(t, filepath.Join(d.Path(), "track.jpg"), []byte("image"))
	}()

	got, err := d.AwaitStable(context.Background(), "track.jpg")
	if err != nil {
		t.Fatalf("AwaitStable: %v", err)
	}
	if filepath.Base(got) != "track.jpg" {
		t.Fatalf("unexpected path %q", got)
	}
}

func TestAwaitStablePrefixedFile(t *testing.T) {
	d := newTestDir(t)
	// The decoder sometimes prepends a numeric identifier to the announced name.
	writeFile(t, filepath.Join(d.Path(), "42_track.jpg"), []byte("image"))

	got, err := d.AwaitStable(context.Background(), "track.jpg")
	if err != nil {
		t.Fatalf("AwaitStable: %v", err)
	}
	if filepath.Base(got) != "42_track.jpg" {
		t.Fatalf("expected prefixed match, got %q", got)
	}
}

func TestAwaitStableNeverAppears(t *testing.T) {
	d := newTestDir(t)
	if _, err := d.AwaitStable(context.Background(), "ghost.png"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAwaitStableCancel(t *testing.T) {
	d := newTestDir(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.AwaitStable(ctx, "ghost.png"); err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestCleanupKeepsNewestAndActive(t *testing.T) {
	d := newTestDir(t)

	old := time.Now().Add(-time.Hour)
	for _, name := range []string{"a.png", "b.png", "c.png", "d.png"} {
		p := filepath.Join(d.Path(), name)
		writeFile(t, p, []byte("x"))
		if err := os.Chtimes(p, old, old); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
		old = old.Add(time.Minute)
	}
	// b.png is mid-poll; cleanup must never delete it.
	d.retain("b.png")
	defer d.release("b.png")

	removed := d.Cleanup(1)
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	for name, want := range map[string]bool{"a.png": false, "b.png": true, "c.png": false, "d.png": true} {
		_, err := os.Stat(filepath.Join(d.Path(), name))
		if exists := err == nil; exists != want {
			t.Errorf("%s exists = %v, want %v", name, exists, want)
		}
	}
}

func TestCleanupSparesFreshFiles(t *testing.T) {
	d := newTestDir(t)
	for _, name := range []string{"a.png", "b.png"} {
		writeFile(t, filepath.Join(d.Path(), name), []byte("x"))
	}
	if removed := d.Cleanup(0); removed != 0 {
		t.Fatalf("removed fresh files: %d", removed)
	}
}

func TestRemoveStaleMatching(t *testing.T) {
	d := newTestDir(t)
	oldTile := "TMT_ab_1_1_20250101_1100_0001.png"
	newTile := "TMT_ab_1_1_20250101_1200_0002.png"
	writeFile(t, filepath.Join(d.Path(), oldTile), []byte("x"))
	writeFile(t, filepath.Join(d.Path(), newTile), []byte("x"))
	writeFile(t, filepath.Join(d.Path(), "cover.jpg"), []byte("x"))

	d.RemoveStaleMatching("TMT_", "20250101_1200")

	if _, err := os.Stat(filepath.Join(d.Path(), oldTile)); err == nil {
		t.Error("stale tile not removed")
	}
	if _, err := os.Stat(filepath.Join(d.Path(), newTile)); err != nil {
		t.Error("current tile removed")
	}
	if _, err := os.Stat(filepath.Join(d.Path(), "cover.jpg")); err != nil {
		t.Error("unrelated file removed")
	}
}
