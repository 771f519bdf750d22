// Package lotdir watches the directory where the external decoder writes LOT
// data service files. The decoder announces file names before it finishes
// writing them, so every read goes through a bounded poll-and-retry that waits
// for the file to appear and for its size to settle.
package lotdir

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
)

// ErrNotFound is returned when a file never appears within the retry budget.
var ErrNotFound = errors.New("lot file never appeared")

// defaultBackoff is the wait schedule between appearance attempts: a short
// initial delay, then increasing backoff, bounded to five attempts.
var defaultBackoff = []time.Duration{
	500 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	time.Second,
	2 * time.Second,
}

// Dir is a handle on the decoder's output directory.
type Dir struct {
	path string
	log  hclog.Logger

	// Backoff is the appearance retry schedule; its length bounds attempts.
	Backoff []time.Duration
	// StabilitySample is how long to wait between the two size probes that
	// decide whether the writer has finished.
	StabilitySample time.Duration

	mu     sync.Mutex
	active map[string]int // announced name -> in-progress poll count
}

// New returns a Dir for path, creating the directory if needed.
func New(path string, log hclog.Logger) (*Dir, error) {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	return &Dir{
		path:            path,
		log:             log,
		Backoff:         defaultBackoff,
		StabilitySample: 100 * time.Millisecond,
		active:          make(map[string]int),
	}, nil
}

// Path returns the directory being watched.
func (d *Dir) Path() string { return d.path }

// resolve finds the on-disk path for an announced name: the exact name first,
// then any file with an unknown numeric prefix ("*_<name>") since the decoder
// may prepend an identifier not present in the announcement.
func (d *Dir) resolve(name string) (string, bool) {
	exact := filepath.Join(d.path, name)
	if _, err := os.Stat(exact); err == nil {
		return exact, true
	}
	matches, err := filepath.Glob(filepath.Join(d.path, "*_"+name))
	if err == nil && len(matches) > 0 {
		sort.Strings(matches)
		return matches[0], true
	}
	return "", false
}

// AwaitStable waits for the announced file to appear and stop growing, then
// returns its resolved path. The wait is timer driven with an fsnotify-backed
// early wakeup; it never blocks longer than the backoff budget. Cancel the
// context to abandon the wait.
func (d *Dir) AwaitStable(ctx context.Context, name string) (string, error) {
	d.retain(name)
	defer d.release(name)

	// Directory events shortcut the backoff sleeps; polling alone still
	// completes if the watcher cannot be created.
	var events chan struct{}
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		if err := watcher.Add(d.path); err == nil {
			events = make(chan struct{}, 1)
			go func() {
				for {
					select {
					case ev, ok := <-watcher.Events:
						if !ok {
							return
						}
						base := filepath.Base(ev.Name)
						if base == name || strings.HasSuffix(base, "_"+name) {
							select {
							case events <- struct{}{}:
							default:
							}
						}
					case <-watcher.Errors:
					case <-ctx.Done():
						return
					}
				}
			}()
		}
	}

	for attempt := 0; ; attempt++ {
		if path, ok := d.resolve(name); ok {
			if path, err := d.awaitSettled(ctx, path); err == nil {
				return path, nil
			} else if ctx.Err() != nil {
				return "", ctx.Err()
			}
			// Still growing after the stability budget: treat as one more
			// appearance attempt and fall through to the backoff wait.
		}
		if attempt >= len(d.Backoff) {
			d.log.Debug("lot file never appeared", "name", name, "attempts", attempt)
			return "", ErrNotFound
		}
		timer := time.NewTimer(d.Backoff[attempt])
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-events:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// awaitSettled returns once two size probes agree, retrying a few times while
// the writer is still appending.
func (d *Dir) awaitSettled(ctx context.Context, path string) (string, error) {
	for i := 0; i < 4; i++ {
		st1, err := os.Stat(path)
		if err != nil {
			return "", err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(d.StabilitySample):
		}
		st2, err := os.Stat(path)
		if err != nil {
			return "", err
		}
		if st1.Size() == st2.Size() {
			return path, nil
		}
	}
	return "", errors.New("file size still changing")
}

func (d *Dir) retain(name string) {
	d.mu.Lock()
	d.active[name]++
	d.mu.Unlock()
}

func (d *Dir) release(name string) {
	d.mu.Lock()
	if d.active[name] <= 1 {
		delete(d.active, name)
	} else {
		d.active[name]--
	}
	d.mu.Unlock()
}

// isActive reports whether base is the target of an in-progress poll, either
// under its announced name or a prefixed on-disk variant of it.
func (d *Dir) isActive(base string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for name := range d.active {
		if base == name || strings.HasSuffix(base, "_"+name) {
			return true
		}
	}
	return false
}

// minCleanupAge protects files the decoder has only just written; a freshly
// announced file may not have been registered as an active poll yet.
const minCleanupAge = time.Minute

// Cleanup removes the oldest files beyond keep, never touching a file that is
// the target of an in-progress poll or one modified within the last minute.
// It returns the number of files removed.
func (d *Dir) Cleanup(keep int) int {
	entries, err := os.ReadDir(d.path)
	if err != nil || len(entries) <= keep {
		return 0
	}

	type candidate struct {
		path    string
		modTime time.Time
	}
	var files []candidate
	now := time.Now()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if d.isActive(e.Name()) || now.Sub(info.ModTime()) < minCleanupAge {
			continue
		}
		files = append(files, candidate{filepath.Join(d.path, e.Name()), info.ModTime()})
	}
	if len(files) <= keep {
		return 0
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })

	removed := 0
	for _, f := range files[:len(files)-keep] {
		if os.Remove(f.path) == nil {
			removed++
		}
	}
	if removed > 0 {
		d.log.Debug("cleaned up lot files", "removed", removed, "kept", keep)
	}
	return removed
}

// RemoveStaleMatching deletes files whose base name contains marker but not
// exclude, used to drop a superseded tile generation. Active poll targets are
// left alone.
func (d *Dir) RemoveStaleMatching(marker, exclude string) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.Contains(name, marker) || strings.Contains(name, exclude) {
			continue
		}
		if d.isActive(name) {
			continue
		}
		_ = os.Remove(filepath.Join(d.path, name))
	}
}
