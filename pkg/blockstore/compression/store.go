// Package compression provides optional compression decorators for
// the block-store stack: a pass-through no-op and a gzip-backed one.
//
// No compression library appears anywhere in the retrieved example
// pack, so the gzip variant is built on the standard library's
// compress/gzip rather than a third-party codec -- see DESIGN.md.
package compression

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/cryfs/cryfs-sub001/pkg/blockid"
	"github.com/cryfs/cryfs-sub001/pkg/blockstore"
)

// Codec transforms a block's plaintext on the way to and from the
// backend.
type Codec interface {
	Compress(data blockstore.Data) (blockstore.Data, error)
	Decompress(data blockstore.Data) (blockstore.Data, error)
}

// Store wraps an inner blockstore.Store2, applying codec to every
// block on the way in and out.
type Store struct {
	inner blockstore.Store2
	codec Codec
}

// New returns a compression.Store wrapping inner with codec.
func New(inner blockstore.Store2, codec Codec) *Store {
	return &Store{inner: inner, codec: codec}
}

func (s *Store) TryCreate(id blockid.BlockId, data blockstore.Data) (bool, error) {
	compressed, err := s.codec.Compress(data)
	if err != nil {
		return false, fmt.Errorf("compression: compress block %s: %w", id, err)
	}

	return s.inner.TryCreate(id, compressed)
}

func (s *Store) Store(id blockid.BlockId, data blockstore.Data) error {
	compressed, err := s.codec.Compress(data)
	if err != nil {
		return fmt.Errorf("compression: compress block %s: %w", id, err)
	}

	return s.inner.Store(id, compressed)
}

func (s *Store) Load(id blockid.BlockId) (blockstore.Data, bool, error) {
	compressed, found, err := s.inner.Load(id)
	if err != nil || !found {
		return nil, found, err
	}

	data, err := s.codec.Decompress(compressed)
	if err != nil {
		return nil, false, fmt.Errorf("compression: decompress block %s: %w", id, err)
	}

	return data, true, nil
}

func (s *Store) Remove(id blockid.BlockId) (bool, error) {
	return s.inner.Remove(id)
}

func (s *Store) NumBlocks() (uint64, error) {
	return s.inner.NumBlocks()
}

func (s *Store) EstimateNumFreeBytes() (uint64, error) {
	return s.inner.EstimateNumFreeBytes()
}

// BlockSizeFromPhysicalBlockSize returns the inner layer's result
// unchanged: compression ratio is data-dependent, so no fixed header
// size can be subtracted here.
func (s *Store) BlockSizeFromPhysicalBlockSize(n uint64) uint64 {
	return s.inner.BlockSizeFromPhysicalBlockSize(n)
}

func (s *Store) ForEachBlock(cb func(blockid.BlockId) error) error {
	return s.inner.ForEachBlock(cb)
}

var _ blockstore.Store2 = (*Store)(nil)

// PassThrough is a Codec that returns its input unchanged.
type PassThrough struct{}

func (PassThrough) Compress(data blockstore.Data) (blockstore.Data, error)   { return data, nil }
func (PassThrough) Decompress(data blockstore.Data) (blockstore.Data, error) { return data, nil }

var _ Codec = PassThrough{}

// Gzip is a Codec backed by compress/gzip at the given level (e.g.
// gzip.DefaultCompression).
type Gzip struct {
	Level int
}

func (g Gzip) Compress(data blockstore.Data) (blockstore.Data, error) {
	var buf bytes.Buffer

	w, err := gzip.NewWriterLevel(&buf, g.Level)
	if err != nil {
		return nil, fmt.Errorf("compression: new gzip writer: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("compression: gzip write: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compression: gzip close: %w", err)
	}

	return buf.Bytes(), nil
}

func (g Gzip) Decompress(data blockstore.Data) (blockstore.Data, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("compression: new gzip reader: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("compression: gzip read: %w", err)
	}

	return out, nil
}

var _ Codec = Gzip{}
