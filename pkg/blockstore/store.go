package blockstore

import (
	"fmt"

	"github.com/cryfs/cryfs-sub001/pkg/blockid"
)

// Data is a block's logical payload. Layers copy it on the way in and
// out; callers must not assume aliasing either direction.
type Data []byte

// Store2 is the flat, stateless block-store contract. Every layer in
// the stack (physical, encrypted, integrity) implements this
// interface and wraps an inner Store2 by value.
type Store2 interface {
	// TryCreate atomically creates a block with the given id and data.
	// Reports false, with no error, iff a block with that id already
	// exists. Any other failure is returned as a non-nil error.
	TryCreate(id blockid.BlockId, data Data) (bool, error)

	// Store creates or overwrites a block unconditionally.
	Store(id blockid.BlockId, data Data) error

	// Load returns the block's data, or (nil, false, nil) if the
	// block does not exist. A decryption failure (logged by the
	// encryption layer) surfaces as (nil, false, nil) too, so the
	// "not found" return is deliberately overloaded. An integrity
	// violation is returned as an error wrapping [ErrIntegrityViolation]
	// after the integrity layer has run its violation callback, and an
	// unknown format version as an error wrapping [ErrUnsupportedFormat].
	Load(id blockid.BlockId) (Data, bool, error)

	// Remove deletes a block. Reports true iff a block was removed.
	Remove(id blockid.BlockId) (bool, error)

	// NumBlocks reports the number of blocks currently stored.
	NumBlocks() (uint64, error)

	// EstimateNumFreeBytes estimates remaining backend capacity.
	EstimateNumFreeBytes() (uint64, error)

	// BlockSizeFromPhysicalBlockSize returns the logical block size a
	// physical block of size n would yield after this layer's header
	// is removed. Composable: a wrapper subtracts its own header size
	// from the inner layer's result, clamped at zero.
	BlockSizeFromPhysicalBlockSize(n uint64) uint64

	// ForEachBlock invokes cb once for every block currently stored.
	// Iteration stops at the first error returned by cb.
	ForEachBlock(cb func(blockid.BlockId) error) error
}

// CreateBlockId returns a fresh, uniformly random block id. Layers
// that need collision-aware creation should call this rather than
// deriving ids from content or other state.
func CreateBlockId() (blockid.BlockId, error) {
	return blockid.New()
}

// Create generates a fresh block id and stores data under it, retrying
// on the (statistically negligible) chance of a collision with an
// existing id.
func Create(s Store2, data Data) (blockid.BlockId, error) {
	const maxAttempts = 1000

	for attempt := 0; attempt < maxAttempts; attempt++ {
		id, err := CreateBlockId()
		if err != nil {
			return blockid.BlockId{}, err
		}

		ok, err := s.TryCreate(id, data)
		if err != nil {
			return blockid.BlockId{}, err
		}

		if ok {
			return id, nil
		}
	}

	return blockid.BlockId{}, fmt.Errorf("blockstore: exhausted %d create attempts", maxAttempts)
}

// Block is a handle to a live, in-memory-buffered block returned by
// the handle-based [Store]. A Block may buffer writes; Flush and Close
// MUST persist dirty data. A Block is not safe for concurrent use by
// multiple goroutines; the store that issued it guarantees it is the
// unique live lease on its id.
type Block interface {
	// BlockId returns the id this handle was opened or created for.
	BlockId() blockid.BlockId

	// Data returns the full current contents of the block.
	Data() Data

	// Write copies src into the block's buffer starting at offset,
	// growing the buffer if needed, and marks it dirty.
	Write(src []byte, offset uint64) error

	// Resize truncates or grows the block's buffer to newSize and
	// marks it dirty if the size changed.
	Resize(newSize uint64) error

	// Size returns the current buffer length.
	Size() uint64

	// Flush persists dirty data to the inner store without releasing
	// the handle's lock.
	Flush() error

	// Close flushes (if dirty) and releases the handle's per-id lock.
	// After Close, all other methods return [ErrClosed].
	Close() error
}

// Store is the handle-based block-store contract consumed by the blob
// layer. It is implemented on top of a [Store2] by the locking layer.
type Store interface {
	// TryCreate creates a new block with the given initial data,
	// returning its handle. Reports (nil, false, nil) iff a block with
	// that id already exists.
	TryCreate(id blockid.BlockId, data Data) (Block, bool, error)

	// Create generates a fresh id and creates a block under it.
	Create(data Data) (Block, error)

	// Load opens an existing block for read/write, or returns
	// (nil, false, nil) if it does not exist.
	Load(id blockid.BlockId) (Block, bool, error)

	// Overwrite creates or replaces a block unconditionally and
	// returns its handle.
	Overwrite(id blockid.BlockId, data Data) (Block, error)

	// Remove deletes a block. Reports true iff a block was removed.
	Remove(id blockid.BlockId) (bool, error)

	// NumBlocks reports the number of blocks currently stored.
	NumBlocks() (uint64, error)

	// EstimateNumFreeBytes estimates remaining backend capacity.
	EstimateNumFreeBytes() (uint64, error)

	// BlockSizeFromPhysicalBlockSize mirrors [Store2.BlockSizeFromPhysicalBlockSize].
	BlockSizeFromPhysicalBlockSize(n uint64) uint64

	// ForEachBlock invokes cb once for every block currently stored.
	ForEachBlock(cb func(blockid.BlockId) error) error
}
