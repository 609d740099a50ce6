// Package watcher polls the peer's local document file for external edits
// and turns them into operations, per spec §4.8. It polls mtime rather than
// using an event-driven filesystem watcher because the protocol's
// convergence timing is specified in terms of a fixed poll interval and a
// monitor-suppression window around the engine's own writes; an
// event-driven watcher would need to reimplement that suppression window
// on top of OS-specific event coalescing for no benefit here.
package watcher

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Narendra20078/AtomEdit/internal/document"
	"github.com/Narendra20078/AtomEdit/internal/types"
)

// Stamper produces the author/timestamp/sequence triple for a freshly
// diffed operation. It is owned by the engine so sequence numbers stay a
// single per-peer monotonic counter shared with any other op source.
type Stamper func() (author string, timestamp int64, sequence int64)

// Watcher polls path for mtime changes and feeds resulting operations to
// onOps. While suppressed (between Suppress and Resume, the engine is
// mid-write) a detected
// change is treated as self-induced: the snapshot is refreshed silently and
// no operations are produced.
type Watcher struct {
	path  string
	stamp Stamper
	onOps func([]types.Operation)
	log   *logrus.Entry
	poll  time.Duration

	mu      sync.Mutex
	prev    []string
	lastMod time.Time

	suppressed atomic.Bool
}

func New(path string, poll time.Duration, stamp Stamper, onOps func([]types.Operation), log *logrus.Entry) *Watcher {
	return &Watcher{path: path, poll: poll, stamp: stamp, onOps: onOps, log: log}
}

// Seed primes the watcher's snapshot without producing operations, used at
// startup once the local file has been initialized from the master file.
func (w *Watcher) Seed(content []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prev = append([]string(nil), content...)
	w.lastMod = modTime(w.path)
}

// Suppress marks an imminent self-induced write so the next poll refreshes
// the snapshot silently instead of emitting operations. Call Resume once
// the write (and the RefreshSnapshot call that follows it) completes.
func (w *Watcher) Suppress()           { w.suppressed.Store(true) }
func (w *Watcher) Resume()             { w.suppressed.Store(false) }
func (w *Watcher) IsSuppressed() bool  { return w.suppressed.Load() }

// RefreshSnapshot replaces the watcher's notion of "previous content" and
// "last seen mtime" to the given state — used by the engine right after it
// writes the local file, so the next poll sees no diff.
func (w *Watcher) RefreshSnapshot(content []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prev = append([]string(nil), content...)
	w.lastMod = modTime(w.path)
}

// Run polls until stop is closed.
func (w *Watcher) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.pollOnce()
		}
	}
}

func (w *Watcher) pollOnce() {
	mt := modTime(w.path)

	w.mu.Lock()
	changed := mt.After(w.lastMod)
	w.mu.Unlock()
	if !changed {
		return
	}

	if w.suppressed.Load() {
		content := readLines(w.path)
		w.mu.Lock()
		w.prev = content
		w.lastMod = mt
		w.mu.Unlock()
		return
	}

	content := readLines(w.path)
	w.mu.Lock()
	prev := w.prev
	w.mu.Unlock()

	ops := document.Diff(prev, content, func() (string, int64, int64) { return w.stamp() })
	w.mu.Lock()
	w.prev = content
	w.lastMod = mt
	w.mu.Unlock()

	if len(ops) > 0 {
		w.log.WithField("count", len(ops)).Debug("local change detected")
		w.onOps(ops)
	}
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func readLines(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return splitLines(string(data))
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
