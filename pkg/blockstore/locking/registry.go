package locking

import (
	"sync"
	"sync/atomic"

	"github.com/cryfs/cryfs-sub001/pkg/blockid"
)

// lockEntry is the per-block-id lock held for the lifetime of a live
// [Block] handle.
type lockEntry struct {
	mu       sync.Mutex
	refCount atomic.Int32
}

// lockPool hands out a held, reference-counted lockEntry per block id
// and reclaims entries once the last handle referencing them releases.
// One lockPool belongs to exactly one Store; ids are not meaningfully
// shared across independently constructed stores.
type lockPool struct {
	entries sync.Map // map[blockid.BlockId]*lockEntry
}

// acquire returns a locked entry for id, blocking if another handle
// currently holds it. The caller must pass the returned entry to
// release exactly once.
func (p *lockPool) acquire(id blockid.BlockId) *lockEntry {
	entry := p.getOrCreate(id)
	entry.mu.Lock()

	return entry
}

func (p *lockPool) getOrCreate(id blockid.BlockId) *lockEntry {
	for {
		if val, loaded := p.entries.Load(id); loaded {
			entry, _ := val.(*lockEntry)

			for {
				old := entry.refCount.Load()
				if old <= 0 {
					// Being reclaimed by release; retry against a fresh
					// entry rather than resurrect this one.
					break
				}

				if entry.refCount.CompareAndSwap(old, old+1) {
					return entry
				}
			}

			continue
		}

		entry := &lockEntry{}
		entry.refCount.Store(1)

		if _, loaded := p.entries.LoadOrStore(id, entry); !loaded {
			return entry
		}
	}
}

// release unlocks entry and removes it from the pool once no other
// handle holds a reference.
func (p *lockPool) release(id blockid.BlockId, entry *lockEntry) {
	entry.mu.Unlock()

	if entry.refCount.Add(-1) <= 0 {
		p.entries.CompareAndDelete(id, entry)
	}
}
