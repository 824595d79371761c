package locking

import (
	"fmt"

	"github.com/cryfs/cryfs-sub001/pkg/blockid"
	"github.com/cryfs/cryfs-sub001/pkg/blockstore"
)

// handle is the locking layer's [blockstore.Block] implementation. It
// buffers writes in memory and flushes the whole block to the inner
// Store2 on Flush/Close, holding id's per-block lock for its entire
// lifetime.
type handle struct {
	store *Store
	id    blockid.BlockId
	entry *lockEntry

	data   blockstore.Data
	dirty  bool
	closed bool
}

func newHandle(store *Store, id blockid.BlockId, entry *lockEntry, data blockstore.Data) *handle {
	owned := make(blockstore.Data, len(data))
	copy(owned, data)

	return &handle{store: store, id: id, entry: entry, data: owned}
}

func (h *handle) BlockId() blockid.BlockId {
	return h.id
}

func (h *handle) Data() blockstore.Data {
	out := make(blockstore.Data, len(h.data))
	copy(out, h.data)

	return out
}

func (h *handle) Write(src []byte, offset uint64) error {
	if h.closed {
		return blockstore.ErrClosed
	}

	end := offset + uint64(len(src))
	if end > uint64(len(h.data)) {
		grown := make(blockstore.Data, end)
		copy(grown, h.data)
		h.data = grown
	}

	copy(h.data[offset:end], src)
	h.dirty = true

	return nil
}

func (h *handle) Resize(newSize uint64) error {
	if h.closed {
		return blockstore.ErrClosed
	}

	if newSize == uint64(len(h.data)) {
		return nil
	}

	resized := make(blockstore.Data, newSize)
	copy(resized, h.data)
	h.data = resized
	h.dirty = true

	return nil
}

func (h *handle) Size() uint64 {
	return uint64(len(h.data))
}

func (h *handle) Flush() error {
	if h.closed {
		return blockstore.ErrClosed
	}

	if !h.dirty {
		return nil
	}

	if err := h.store.inner.Store(h.id, h.data); err != nil {
		return fmt.Errorf("locking: flush block %s: %w", h.id, err)
	}

	h.dirty = false

	return nil
}

func (h *handle) Close() error {
	if h.closed {
		return blockstore.ErrClosed
	}

	err := h.Flush()
	h.closed = true
	h.store.locks.release(h.id, h.entry)

	return err
}

var _ blockstore.Block = (*handle)(nil)
