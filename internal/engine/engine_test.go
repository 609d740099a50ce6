package engine_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/Narendra20078/AtomEdit/internal/config"
	"github.com/Narendra20078/AtomEdit/internal/engine"
	"github.com/Narendra20078/AtomEdit/internal/mailbox"
	"github.com/Narendra20078/AtomEdit/internal/registry"
	"github.com/Narendra20078/AtomEdit/internal/types"
	"github.com/Narendra20078/AtomEdit/internal/watcher"
)

func silentLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l.WithField("peer", "test")
}

type peer struct {
	eng   *engine.Engine
	watch *watcher.Watcher
	mbox  *mailbox.Server
	reg   *registry.Registry
	local string
	stop  chan struct{}
}

func spinUpPeer(t *testing.T, dbPath, masterFile, name string, cfg config.Config, initial []string) *peer {
	t.Helper()

	mbox, err := mailbox.Listen("127.0.0.1:0", cfg.MailboxCapacity, silentLog())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mbox.Close() })

	self := types.PeerInfo{Name: name, Addr: mbox.Addr()}

	reg, err := registry.Open(dbPath, self, cfg.MaxPeers)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	_, err = reg.Join()
	require.NoError(t, err)

	localFile := filepath.Join(filepath.Dir(masterFile), name+"_doc.txt")
	require.NoError(t, writeLines(localFile, initial))

	sender := mailbox.NewSender(self, cfg.SendRetries, cfg.SendRetryBase, silentLog())

	eng := engine.New(self, localFile, cfg, silentLog(), reg, mbox, sender, nil)
	watch := watcher.New(localFile, cfg.PollInterval, eng.Stamp, eng.OnLocalOps, silentLog())
	eng.SetWatcher(watch)
	watch.Seed(initial)

	p := &peer{eng: eng, watch: watch, mbox: mbox, reg: reg, local: localFile, stop: make(chan struct{})}
	go watch.Run(p.stop)
	go eng.ListenerLoop(p.stop)
	go eng.Run(p.stop)

	t.Cleanup(func() { close(p.stop) })
	return p
}

func writeLines(path string, lines []string) error {
	var data []byte
	for _, l := range lines {
		data = append(data, []byte(l)...)
		data = append(data, '\n')
	}
	return os.WriteFile(path, data, 0o644)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	s := string(data)
	if s == "" {
		return nil
	}
	if s[len(s)-1] == '\n' {
		s = s[:len(s)-1]
	}
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}

func testConfig(masterFile, registryPath string) config.Config {
	cfg := config.Default()
	cfg.MasterFile = masterFile
	cfg.RegistryPath = registryPath
	cfg.PollInterval = 5 * time.Millisecond
	cfg.BatchTick = 5 * time.Millisecond
	cfg.SettleDelay = 20 * time.Millisecond
	cfg.OpThreshold = 1
	cfg.SendRetries = 3
	cfg.SendRetryBase = 10 * time.Millisecond
	cfg.HeartbeatPeriod = time.Second
	return cfg
}

// TestTwoPeers_NonConflictingEditsConverge exercises spec §8's two-peer
// non-conflicting merge scenario: both peers edit distinct lines, and the
// engine's control loop converges both peers' local files to the same
// content.
func TestTwoPeers_NonConflictingEditsConverge(t *testing.T) {
	dir := t.TempDir()
	master := filepath.Join(dir, "centeralFile.txt")
	dbPath := filepath.Join(dir, "registry.db")
	initial := []string{"line one", "line two"}
	require.NoError(t, writeLines(master, initial))

	cfg := testConfig(master, dbPath)

	alice := spinUpPeer(t, dbPath, master, "alice", cfg, initial)
	bob := spinUpPeer(t, dbPath, master, "bob", cfg, initial)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, writeLines(alice.local, []string{"line ONE", "line two"}))
	require.NoError(t, writeLines(bob.local, []string{"line one", "line TWO"}))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		a := readLines(t, alice.local)
		b := readLines(t, bob.local)
		if len(a) == 2 && len(b) == 2 && a[0] == "line ONE" && a[1] == "line TWO" && b[0] == "line ONE" && b[1] == "line TWO" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("peers did not converge: alice=%v bob=%v", readLines(t, alice.local), readLines(t, bob.local))
}

// TestTwoPeers_ConflictingEditsResolveDeterministically exercises spec §8's
// conflicting-edit scenario: both peers replace the same column range on the
// same line, and every peer ends up with the same winner by the total order.
func TestTwoPeers_ConflictingEditsResolveDeterministically(t *testing.T) {
	dir := t.TempDir()
	master := filepath.Join(dir, "centeralFile.txt")
	dbPath := filepath.Join(dir, "registry.db")
	initial := []string{"A"}
	require.NoError(t, writeLines(master, initial))

	cfg := testConfig(master, dbPath)

	alice := spinUpPeer(t, dbPath, master, "alice", cfg, initial)
	bob := spinUpPeer(t, dbPath, master, "bob", cfg, initial)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, writeLines(alice.local, []string{"B"}))
	require.NoError(t, writeLines(bob.local, []string{"C"}))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		a := readLines(t, alice.local)
		b := readLines(t, bob.local)
		if len(a) == 1 && len(b) == 1 && a[0] == b[0] && (a[0] == "B" || a[0] == "C") {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("peers did not converge to a single winner: alice=%v bob=%v", readLines(t, alice.local), readLines(t, bob.local))
}
