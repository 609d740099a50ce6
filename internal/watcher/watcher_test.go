package watcher_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/Narendra20078/AtomEdit/internal/types"
	"github.com/Narendra20078/AtomEdit/internal/watcher"
)

func silentLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l.WithField("peer", "test")
}

type collector struct {
	mu  sync.Mutex
	all []types.Operation
}

func (c *collector) add(ops []types.Operation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.all = append(c.all, ops...)
}

func (c *collector) snapshot() []types.Operation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Operation, len(c.all))
	copy(out, c.all)
	return out
}

func stamp() (string, int64, int64) { return "alice", time.Now().UnixMilli(), 1 }

func TestWatcher_DetectsExternalEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello\n"), 0o644))

	c := &collector{}
	w := watcher.New(path, 5*time.Millisecond, stamp, c.add, silentLog())
	w.Seed([]string{"hello"})

	stop := make(chan struct{})
	go w.Run(stop)
	defer close(stop)

	time.Sleep(15 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("goodbye\n"), 0o644))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(c.snapshot()) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	ops := c.snapshot()
	require.Len(t, ops, 1)
	require.Equal(t, types.Replace, ops[0].Kind)
}

func TestWatcher_SuppressedChangeProducesNoOps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello\n"), 0o644))

	c := &collector{}
	w := watcher.New(path, 5*time.Millisecond, stamp, c.add, silentLog())
	w.Seed([]string{"hello"})

	stop := make(chan struct{})
	go w.Run(stop)
	defer close(stop)

	w.Suppress()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("self-write\n"), 0o644))
	time.Sleep(30 * time.Millisecond)
	w.Resume()

	require.Empty(t, c.snapshot())
	require.False(t, w.IsSuppressed())
}

func TestWatcher_RefreshSnapshotPreventsFalsePositive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1\n"), 0o644))

	c := &collector{}
	w := watcher.New(path, 5*time.Millisecond, stamp, c.add, silentLog())
	w.Seed([]string{"v1"})

	require.NoError(t, os.WriteFile(path, []byte("v2\n"), 0o644))
	w.RefreshSnapshot([]string{"v2"})

	stop := make(chan struct{})
	go w.Run(stop)
	defer close(stop)

	time.Sleep(30 * time.Millisecond)
	require.Empty(t, c.snapshot())
}
