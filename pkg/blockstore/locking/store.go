package locking

import (
	"fmt"
	"sync"

	"github.com/cryfs/cryfs-sub001/pkg/blockid"
	"github.com/cryfs/cryfs-sub001/pkg/blockstore"
)

// Store adapts an inner blockstore.Store2 to the handle-based
// blockstore.Store contract, serializing concurrent operations on the
// same block id.
type Store struct {
	inner blockstore.Store2
	locks lockPool

	// structureMu is held for RLock by every per-id operation and for
	// Lock by NumBlocks/ForEachBlock, so a structural scan never
	// observes a block mid-create or mid-remove.
	structureMu sync.RWMutex
}

// New returns a locking.Store wrapping inner.
func New(inner blockstore.Store2) *Store {
	return &Store{inner: inner}
}

func (s *Store) TryCreate(id blockid.BlockId, data blockstore.Data) (blockstore.Block, bool, error) {
	s.structureMu.RLock()
	defer s.structureMu.RUnlock()

	entry := s.locks.acquire(id)

	ok, err := s.inner.TryCreate(id, data)
	if err != nil {
		s.locks.release(id, entry)

		return nil, false, err
	}

	if !ok {
		s.locks.release(id, entry)

		return nil, false, nil
	}

	return newHandle(s, id, entry, data), true, nil
}

func (s *Store) Create(data blockstore.Data) (blockstore.Block, error) {
	const maxAttempts = 1000

	for attempt := 0; attempt < maxAttempts; attempt++ {
		id, err := blockstore.CreateBlockId()
		if err != nil {
			return nil, err
		}

		block, ok, err := s.TryCreate(id, data)
		if err != nil {
			return nil, err
		}

		if ok {
			return block, nil
		}
	}

	return nil, fmt.Errorf("locking: exhausted %d create attempts", maxAttempts)
}

func (s *Store) Load(id blockid.BlockId) (blockstore.Block, bool, error) {
	s.structureMu.RLock()
	defer s.structureMu.RUnlock()

	entry := s.locks.acquire(id)

	data, found, err := s.inner.Load(id)
	if err != nil || !found {
		s.locks.release(id, entry)

		return nil, found, err
	}

	return newHandle(s, id, entry, data), true, nil
}

func (s *Store) Overwrite(id blockid.BlockId, data blockstore.Data) (blockstore.Block, error) {
	s.structureMu.RLock()
	defer s.structureMu.RUnlock()

	entry := s.locks.acquire(id)

	if err := s.inner.Store(id, data); err != nil {
		s.locks.release(id, entry)

		return nil, err
	}

	return newHandle(s, id, entry, data), nil
}

func (s *Store) Remove(id blockid.BlockId) (bool, error) {
	s.structureMu.RLock()
	defer s.structureMu.RUnlock()

	entry := s.locks.acquire(id)
	defer s.locks.release(id, entry)

	return s.inner.Remove(id)
}

func (s *Store) NumBlocks() (uint64, error) {
	s.structureMu.Lock()
	defer s.structureMu.Unlock()

	return s.inner.NumBlocks()
}

func (s *Store) EstimateNumFreeBytes() (uint64, error) {
	return s.inner.EstimateNumFreeBytes()
}

func (s *Store) BlockSizeFromPhysicalBlockSize(n uint64) uint64 {
	return s.inner.BlockSizeFromPhysicalBlockSize(n)
}

func (s *Store) ForEachBlock(cb func(blockid.BlockId) error) error {
	s.structureMu.Lock()
	defer s.structureMu.Unlock()

	return s.inner.ForEachBlock(cb)
}

var _ blockstore.Store = (*Store)(nil)
