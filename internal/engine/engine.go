// Package engine implements the broadcast/merge control loop of spec §4.7:
// it drains local and received operations, batches them against the global
// op counter threshold, broadcasts, waits for stragglers, deduplicates,
// computes the deterministic merge, writes the local (and, if leader,
// master) file under monitor suppression, and rebroadcasts for
// convergence.
package engine

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Narendra20078/AtomEdit/internal/config"
	"github.com/Narendra20078/AtomEdit/internal/display"
	"github.com/Narendra20078/AtomEdit/internal/document"
	"github.com/Narendra20078/AtomEdit/internal/mailbox"
	"github.com/Narendra20078/AtomEdit/internal/registry"
	"github.com/Narendra20078/AtomEdit/internal/types"
	"github.com/Narendra20078/AtomEdit/internal/watcher"
)

// Engine owns a peer's mutable runtime state: the local and received op
// buffers, the seen set, and the document snapshot the watcher diffs
// against.
type Engine struct {
	self      types.PeerInfo
	localFile string
	cfg       config.Config
	log       *logrus.Entry

	reg    *registry.Registry
	mbox   *mailbox.Server
	sender *mailbox.Sender
	watch  *watcher.Watcher

	localBuf    opBuffer
	receivedBuf opBuffer

	seenMu sync.Mutex // guards seen: read by ListenerLoop, read+written by tick(), on separate goroutines
	seen   document.SeenSet

	localSeq int64 // per-peer monotonic sequence, stamped on every op this peer produces

	pendingLocal []types.Operation // local ops awaiting the next broadcast, held across ticks below the threshold
}

func New(self types.PeerInfo, localFile string, cfg config.Config, log *logrus.Entry, reg *registry.Registry, mbox *mailbox.Server, sender *mailbox.Sender, watch *watcher.Watcher) *Engine {
	return &Engine{
		self:      self,
		localFile: localFile,
		cfg:       cfg,
		log:       log,
		reg:       reg,
		mbox:      mbox,
		sender:    sender,
		watch:     watch,
		seen:      document.NewSeenSet(),
	}
}

// SetWatcher wires the file watcher into the engine after construction,
// breaking the constructor cycle between the two (the watcher needs the
// engine's Stamp/OnLocalOps callbacks; the engine needs the watcher to
// suppress and refresh around its own writes).
func (e *Engine) SetWatcher(w *watcher.Watcher) { e.watch = w }

// Stamp produces the (author, timestamp, sequence) triple for an operation
// this peer originates — used by the watcher's diff engine.
func (e *Engine) Stamp() (string, int64, int64) {
	seq := atomic.AddInt64(&e.localSeq, 1)
	return e.self.Name, time.Now().UnixMilli(), seq
}

// OnLocalOps is the watcher's callback: it appends freshly diffed
// operations to the local buffer and adds their count to the shared global
// op counter.
func (e *Engine) OnLocalOps(ops []types.Operation) {
	e.localBuf.Append(ops...)
	if _, err := e.reg.AddGlobalOpCount(len(ops)); err != nil {
		e.log.WithError(err).Error("failed to advance global op count")
	}
	for _, o := range ops {
		e.log.WithFields(logrus.Fields{
			"line": o.Line, "c0": o.C0, "c1": o.C1, "old": o.Old, "new": o.New,
		}).Info("local change detected")
	}
}

// ListenerLoop drains the mailbox inbox, backing off a little when it is
// empty, and feeds genuinely new operations into the received buffer and
// global counter. Self-sent operations never arrive here: a peer never
// dials its own mailbox.
func (e *Engine) ListenerLoop(stop <-chan struct{}) {
	backoffDelay := 50 * time.Millisecond
	for {
		select {
		case <-stop:
			return
		default:
		}

		op, ok := e.mbox.Inbox().Receive()
		if !ok {
			time.Sleep(backoffDelay)
			continue
		}

		fp := op.Fingerprint()
		e.seenMu.Lock()
		alreadySeen := e.seen.Has(fp)
		e.seenMu.Unlock()
		if alreadySeen || e.inReceivedBuf(fp) {
			continue
		}
		e.receivedBuf.Append(op)
		if _, err := e.reg.AddGlobalOpCount(1); err != nil {
			e.log.WithError(err).Error("failed to advance global op count")
		}
		e.log.WithFields(logrus.Fields{"author": op.Author, "sequence": op.Sequence}).Debug("received op")
	}
}

func (e *Engine) inReceivedBuf(fp string) bool {
	e.receivedBuf.mu.Lock()
	defer e.receivedBuf.mu.Unlock()
	for _, o := range e.receivedBuf.ops {
		if o.Fingerprint() == fp {
			return true
		}
	}
	return false
}

// HeartbeatLoop keeps this peer's registry slot's last-seen timestamp
// fresh.
func (e *Engine) HeartbeatLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(e.cfg.HeartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := e.reg.Heartbeat(); err != nil {
				e.log.WithError(err).Warn("heartbeat failed")
			}
		}
	}
}

// Run drives the batch/merge tick loop until stop is closed.
func (e *Engine) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(e.cfg.BatchTick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

func (e *Engine) tick() {
	l := e.localBuf.Drain()
	r := e.receivedBuf.Drain()

	if len(l) > 0 {
		e.pendingLocal = append(e.pendingLocal, l...)
	}

	total, err := e.reg.GlobalOpCount()
	if err != nil {
		e.log.WithError(err).Error("failed to read global op count")
		return
	}
	if total < e.cfg.OpThreshold {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Every log line produced by this round carries the same correlation
	// token, so peers' logs can be lined up by merge round when tailed
	// together.
	round := e.log.WithField("round", uuid.NewString())

	peers, err := e.reg.ActivePeers()
	if err != nil {
		round.WithError(err).Error("failed to list active peers for broadcast")
		return
	}

	// Broadcast phase: send buffered local ops immediately.
	if len(e.pendingLocal) > 0 {
		for _, op := range e.pendingLocal {
			e.sender.Broadcast(ctx, peers, op)
		}
		round.WithField("count", len(e.pendingLocal)).Info("broadcast local ops")
	}

	// Settle delay: let peers' listeners drain.
	time.Sleep(e.cfg.SettleDelay)

	// Aggregation phase: late arrivals.
	lateReceived := e.receivedBuf.Drain()
	lateLocal := e.localBuf.Drain()

	all := make([]types.Operation, 0, len(e.pendingLocal)+len(r)+len(lateReceived)+len(lateLocal))
	all = append(all, e.pendingLocal...)
	all = append(all, r...)
	all = append(all, lateReceived...)
	all = append(all, lateLocal...)
	e.pendingLocal = nil

	e.seenMu.Lock()
	unique := dedup(all, e.seen)
	e.seenMu.Unlock()
	if len(unique) == 0 {
		if err := e.reg.ResetGlobalOpCount(); err != nil {
			round.WithError(err).Error("failed to reset global op count")
		}
		return
	}

	round.WithFields(logrus.Fields{"batch": len(unique), "total": total}).Info("merging batch")

	master := readLines(e.cfg.MasterFile)
	doc := document.New(master)
	e.seenMu.Lock()
	document.Merge(&doc, unique, e.seen)
	e.seenMu.Unlock()

	e.writeConverged(round, doc, unique, peers)

	for _, op := range unique {
		e.sender.Broadcast(ctx, peers, op)
	}

	if err := e.reg.ResetGlobalOpCount(); err != nil {
		round.WithError(err).Error("failed to reset global op count")
	}
}

// dedup drops operations whose fingerprint is already in seen, or which
// repeat within the batch itself.
func dedup(ops []types.Operation, seen document.SeenSet) []types.Operation {
	local := make(map[string]struct{}, len(ops))
	out := make([]types.Operation, 0, len(ops))
	for _, o := range ops {
		fp := o.Fingerprint()
		if seen.Has(fp) {
			continue
		}
		if _, dup := local[fp]; dup {
			continue
		}
		local[fp] = struct{}{}
		out = append(out, o)
	}
	return out
}

func (e *Engine) writeConverged(log *logrus.Entry, doc document.Document, changed []types.Operation, peers []types.PeerInfo) {
	e.watch.Suppress()
	defer e.watch.Resume()

	isLeader, err := e.reg.IsLeader()
	if err != nil {
		log.WithError(err).Error("failed to evaluate leadership")
	}
	if isLeader {
		if err := writeLines(e.cfg.MasterFile, doc.Lines); err != nil {
			log.WithError(err).Error("failed to write master file")
		} else {
			log.Info("wrote master file as leader")
		}
	}
	if err := writeLines(e.localFile, doc.Lines); err != nil {
		log.WithError(err).Error("failed to write local file")
	}

	e.watch.RefreshSnapshot(doc.Lines)

	display.Show(os.Stdout, e.localFile, doc.Lines, changed, peers)
}
