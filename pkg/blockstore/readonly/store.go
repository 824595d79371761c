// Package readonly wraps a blockstore.Store2 and rejects every
// mutating call, for exclusive mounts and detached recovery mounts
// that must guarantee the backend is never touched.
package readonly

import (
	"github.com/cryfs/cryfs-sub001/pkg/blockid"
	"github.com/cryfs/cryfs-sub001/pkg/blockstore"
)

// Store rejects TryCreate, Store, and Remove with blockstore.ErrReadOnly;
// every other call is forwarded to inner unchanged.
type Store struct {
	inner blockstore.Store2
}

// New returns a readonly.Store wrapping inner.
func New(inner blockstore.Store2) *Store {
	return &Store{inner: inner}
}

func (s *Store) TryCreate(blockid.BlockId, blockstore.Data) (bool, error) {
	return false, blockstore.ErrReadOnly
}

func (s *Store) Store(blockid.BlockId, blockstore.Data) error {
	return blockstore.ErrReadOnly
}

func (s *Store) Load(id blockid.BlockId) (blockstore.Data, bool, error) {
	return s.inner.Load(id)
}

func (s *Store) Remove(blockid.BlockId) (bool, error) {
	return false, blockstore.ErrReadOnly
}

func (s *Store) NumBlocks() (uint64, error) {
	return s.inner.NumBlocks()
}

func (s *Store) EstimateNumFreeBytes() (uint64, error) {
	return s.inner.EstimateNumFreeBytes()
}

func (s *Store) BlockSizeFromPhysicalBlockSize(n uint64) uint64 {
	return s.inner.BlockSizeFromPhysicalBlockSize(n)
}

func (s *Store) ForEachBlock(cb func(blockid.BlockId) error) error {
	return s.inner.ForEachBlock(cb)
}

var _ blockstore.Store2 = (*Store)(nil)
