package physical

import (
	"runtime"
	"sync"

	"github.com/cryfs/cryfs-sub001/pkg/blockid"
	"github.com/cryfs/cryfs-sub001/pkg/blockstore"
)

// InMemory is a blockstore.Store2 backed by a plain map, guarded by a
// mutex. It exists for tests and small mounts; nothing it stores
// survives process exit.
type InMemory struct {
	mu     sync.Mutex
	blocks map[blockid.BlockId]blockstore.Data
}

// NewInMemory returns an empty InMemory store.
func NewInMemory() *InMemory {
	return &InMemory{blocks: make(map[blockid.BlockId]blockstore.Data)}
}

func (m *InMemory) TryCreate(id blockid.BlockId, data blockstore.Data) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.blocks[id]; exists {
		return false, nil
	}

	m.blocks[id] = cloneData(data)

	return true, nil
}

func (m *InMemory) Store(id blockid.BlockId, data blockstore.Data) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blocks[id] = cloneData(data)

	return nil
}

func (m *InMemory) Load(id blockid.BlockId) (blockstore.Data, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.blocks[id]
	if !ok {
		return nil, false, nil
	}

	return cloneData(data), true, nil
}

func (m *InMemory) Remove(id blockid.BlockId) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.blocks[id]; !ok {
		return false, nil
	}

	delete(m.blocks, id)

	return true, nil
}

func (m *InMemory) NumBlocks() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return uint64(len(m.blocks)), nil
}

// EstimateNumFreeBytes reports, as a rough heuristic, the memory the Go
// runtime has obtained from the OS minus the heap bytes in use
// (runtime.MemStats Sys - HeapInuse, or 0). It does not report total
// system memory; there is no real capacity limit for a map-backed store.
func (m *InMemory) EstimateNumFreeBytes() (uint64, error) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	if stats.Sys > stats.HeapInuse {
		return stats.Sys - stats.HeapInuse, nil
	}

	return 0, nil
}

// BlockSizeFromPhysicalBlockSize is the identity: the in-memory
// backend adds no header.
func (m *InMemory) BlockSizeFromPhysicalBlockSize(n uint64) uint64 {
	return n
}

func (m *InMemory) ForEachBlock(cb func(blockid.BlockId) error) error {
	m.mu.Lock()
	ids := make([]blockid.BlockId, 0, len(m.blocks))
	for id := range m.blocks {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := cb(id); err != nil {
			return err
		}
	}

	return nil
}

func cloneData(d blockstore.Data) blockstore.Data {
	out := make(blockstore.Data, len(d))
	copy(out, d)

	return out
}

var _ blockstore.Store2 = (*InMemory)(nil)
