package registry_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Narendra20078/AtomEdit/internal/registry"
	"github.com/Narendra20078/AtomEdit/internal/types"
)

func open(t *testing.T, dbPath string, name string, maxPeers int) *registry.Registry {
	t.Helper()
	r, err := registry.Open(dbPath, types.PeerInfo{Name: name, Addr: "127.0.0.1:0"}, maxPeers)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestJoin_AcceptsUntilFull(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "registry.db")

	alice := open(t, dbPath, "alice", 2)
	outcome, err := alice.Join()
	require.NoError(t, err)
	require.Equal(t, types.JoinAccepted, outcome)

	bob := open(t, dbPath, "bob", 2)
	outcome, err = bob.Join()
	require.NoError(t, err)
	require.Equal(t, types.JoinAccepted, outcome)

	carol := open(t, dbPath, "carol", 2)
	outcome, err = carol.Join()
	require.NoError(t, err)
	require.Equal(t, types.JoinFull, outcome)
}

func TestJoin_ExistingNameReconnectsWithoutChangingCount(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "registry.db")

	alice := open(t, dbPath, "alice", 5)
	_, err := alice.Join()
	require.NoError(t, err)

	aliceAgain := open(t, dbPath, "alice", 5)
	outcome, err := aliceAgain.Join()
	require.NoError(t, err)
	require.Equal(t, types.JoinReconnected, outcome)

	peers, err := aliceAgain.ActivePeers()
	require.NoError(t, err)
	require.Len(t, peers, 1)
}

func TestIsLeader_LexicographicallySmallestActiveName(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "registry.db")

	bob := open(t, dbPath, "bob", 5)
	_, err := bob.Join()
	require.NoError(t, err)

	alice := open(t, dbPath, "alice", 5)
	_, err = alice.Join()
	require.NoError(t, err)

	isLeader, err := alice.IsLeader()
	require.NoError(t, err)
	require.True(t, isLeader)

	isLeader, err = bob.IsLeader()
	require.NoError(t, err)
	require.False(t, isLeader)
}

func TestLeave_FreesSlotForReuse(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "registry.db")

	alice := open(t, dbPath, "alice", 1)
	_, err := alice.Join()
	require.NoError(t, err)
	require.NoError(t, alice.Leave())

	bob := open(t, dbPath, "bob", 1)
	outcome, err := bob.Join()
	require.NoError(t, err)
	require.Equal(t, types.JoinAccepted, outcome)
}

func TestGlobalOpCount_AddAndReset(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "registry.db")
	alice := open(t, dbPath, "alice", 5)

	v, err := alice.AddGlobalOpCount(3)
	require.NoError(t, err)
	require.Equal(t, 3, v)

	v, err = alice.AddGlobalOpCount(2)
	require.NoError(t, err)
	require.Equal(t, 5, v)

	require.NoError(t, alice.ResetGlobalOpCount())
	v, err = alice.GlobalOpCount()
	require.NoError(t, err)
	require.Equal(t, 0, v)
}

func TestHeartbeatAndPruneStale(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "registry.db")

	alice := open(t, dbPath, "alice", 5)
	_, err := alice.Join()
	require.NoError(t, err)

	bob := open(t, dbPath, "bob", 5)
	_, err = bob.Join()
	require.NoError(t, err)
	require.NoError(t, bob.Heartbeat())

	removed, err := alice.PruneStale(10 * time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, removed)

	time.Sleep(20 * time.Millisecond)

	removed, err = alice.PruneStale(10 * time.Millisecond)
	require.NoError(t, err)
	require.Contains(t, removed, "bob")
}
