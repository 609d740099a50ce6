// Package registry implements the host-wide peer table and global
// operation counter described in spec §3/§4.1. It is backed by a SQLite
// file shared by every peer process on the host, which gives the required
// "slot activation and count adjustment as one observable step" guarantee
// through ordinary SQL transactions instead of compare-and-swap on a
// shared-memory segment.
package registry

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Narendra20078/AtomEdit/internal/types"
)

// Registry is a client of the shared peer table. Every peer process opens
// its own Registry against the same database file.
type Registry struct {
	db       *sql.DB
	self     types.PeerInfo
	maxPeers int
}

// Open attaches to (and, on first attach, initializes) the registry file at
// path. First-attach initialization is guarded by SQLite's own
// transactional "CREATE TABLE IF NOT EXISTS", which serializes concurrent
// first-attachers instead of racing on a "no active slot yet" check.
func Open(path string, self types.PeerInfo, maxPeers int) (*Registry, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS peers (
		name TEXT PRIMARY KEY,
		addr TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 0,
		last_seen DATETIME
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init peers table: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS counters (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		global_op_count INTEGER NOT NULL DEFAULT 0
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init counters table: %w", err)
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO counters (id, global_op_count) VALUES (1, 0)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed counters row: %w", err)
	}

	return &Registry{db: db, self: self, maxPeers: maxPeers}, nil
}

func (r *Registry) Close() error { return r.db.Close() }

// Join atomically claims a free slot for self, or detects an existing
// active slot with the same name and treats it as a reconnect (address
// updated, count unchanged).
func (r *Registry) Join() (types.JoinOutcome, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return types.JoinFull, fmt.Errorf("begin join: %w", err)
	}
	defer tx.Rollback()

	var active int
	err = tx.QueryRow(`SELECT active FROM peers WHERE name = ?`, r.self.Name).Scan(&active)
	switch {
	case err == sql.ErrNoRows:
		var count int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM peers WHERE active = 1`).Scan(&count); err != nil {
			return types.JoinFull, fmt.Errorf("count active peers: %w", err)
		}
		if count >= r.maxPeers {
			return types.JoinFull, nil
		}
		if _, err := tx.Exec(`INSERT INTO peers (name, addr, active, last_seen) VALUES (?, ?, 1, ?)`,
			r.self.Name, r.self.Addr, time.Now()); err != nil {
			return types.JoinFull, fmt.Errorf("insert peer: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return types.JoinFull, fmt.Errorf("commit join: %w", err)
		}
		return types.JoinAccepted, nil
	case err != nil:
		return types.JoinFull, fmt.Errorf("lookup peer: %w", err)
	}

	if active == 0 {
		var count int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM peers WHERE active = 1`).Scan(&count); err != nil {
			return types.JoinFull, fmt.Errorf("count active peers: %w", err)
		}
		if count >= r.maxPeers {
			return types.JoinFull, nil
		}
	}
	if _, err := tx.Exec(`UPDATE peers SET addr = ?, active = 1, last_seen = ? WHERE name = ?`,
		r.self.Addr, time.Now(), r.self.Name); err != nil {
		return types.JoinFull, fmt.Errorf("reconnect peer: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return types.JoinFull, fmt.Errorf("commit reconnect: %w", err)
	}
	if active == 0 {
		return types.JoinAccepted, nil
	}
	return types.JoinReconnected, nil
}

// Leave releases self's slot.
func (r *Registry) Leave() error {
	_, err := r.db.Exec(`UPDATE peers SET active = 0 WHERE name = ?`, r.self.Name)
	return err
}

// ActivePeers returns every active slot, self included, ordered by name —
// the total order used for leader election and conflict tiebreak.
func (r *Registry) ActivePeers() ([]types.PeerInfo, error) {
	rows, err := r.db.Query(`SELECT name, addr FROM peers WHERE active = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query active peers: %w", err)
	}
	defer rows.Close()

	var out []types.PeerInfo
	for rows.Next() {
		var p types.PeerInfo
		if err := rows.Scan(&p.Name, &p.Addr); err != nil {
			return nil, fmt.Errorf("scan peer row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// IsLeader reports whether self is the lexicographically smallest active
// peer name.
func (r *Registry) IsLeader() (bool, error) {
	peers, err := r.ActivePeers()
	if err != nil {
		return false, err
	}
	if len(peers) == 0 {
		return false, nil
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].Name < peers[j].Name })
	return peers[0].Name == r.self.Name, nil
}

// Heartbeat refreshes self's last-seen timestamp, keeping self's slot alive
// under PruneStale.
func (r *Registry) Heartbeat() error {
	_, err := r.db.Exec(`UPDATE peers SET last_seen = ? WHERE name = ?`, time.Now(), r.self.Name)
	return err
}

// PruneStale deactivates active peers (other than self) whose last_seen is
// older than olderThan, returning their names. The design does not call
// this automatically by default — see DESIGN.md's open-question decision
// on dead-peer eviction; it exists for deployments that opt into
// heartbeat-based liveness.
func (r *Registry) PruneStale(olderThan time.Duration) ([]string, error) {
	deadline := time.Now().Add(-olderThan)
	rows, err := r.db.Query(`SELECT name FROM peers WHERE active = 1 AND name != ? AND (last_seen IS NULL OR last_seen < ?)`,
		r.self.Name, deadline)
	if err != nil {
		return nil, fmt.Errorf("query stale peers: %w", err)
	}
	var stale []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan stale peer: %w", err)
		}
		stale = append(stale, name)
	}
	rows.Close()

	for _, name := range stale {
		if _, err := r.db.Exec(`UPDATE peers SET active = 0 WHERE name = ?`, name); err != nil {
			return nil, fmt.Errorf("deactivate stale peer %s: %w", name, err)
		}
	}
	return stale, nil
}

// AddGlobalOpCount atomically adds delta to the global op counter and
// returns the new value — the merge trigger read by the broadcast engine.
func (r *Registry) AddGlobalOpCount(delta int) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin counter update: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE counters SET global_op_count = global_op_count + ? WHERE id = 1`, delta); err != nil {
		return 0, fmt.Errorf("add to counter: %w", err)
	}
	var v int
	if err := tx.QueryRow(`SELECT global_op_count FROM counters WHERE id = 1`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit counter update: %w", err)
	}
	return v, nil
}

// ResetGlobalOpCount zeroes the counter at the end of a merge round.
func (r *Registry) ResetGlobalOpCount() error {
	_, err := r.db.Exec(`UPDATE counters SET global_op_count = 0 WHERE id = 1`)
	return err
}

// GlobalOpCount reads the counter without mutating it.
func (r *Registry) GlobalOpCount() (int, error) {
	var v int
	err := r.db.QueryRow(`SELECT global_op_count FROM counters WHERE id = 1`).Scan(&v)
	return v, err
}
