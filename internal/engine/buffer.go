package engine

import (
	"sync"

	"github.com/Narendra20078/AtomEdit/internal/types"
)

// opBuffer is a single-consumer, multi-producer queue of operations. Drain
// atomically hands ownership of the current contents to the caller and
// installs a fresh empty container, so no producer ever observes a torn
// drain — the ownership-transfer pattern spec §9 calls for in place of an
// in-place swap on shared state.
type opBuffer struct {
	mu  sync.Mutex
	ops []types.Operation
}

func (b *opBuffer) Append(ops ...types.Operation) {
	if len(ops) == 0 {
		return
	}
	b.mu.Lock()
	b.ops = append(b.ops, ops...)
	b.mu.Unlock()
}

func (b *opBuffer) Drain() []types.Operation {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.ops
	b.ops = nil
	return out
}
