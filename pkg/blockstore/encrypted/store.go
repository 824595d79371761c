package encrypted

import (
	"encoding/binary"
	"fmt"

	"github.com/cryfs/cryfs-sub001/internal/obslog"
	"github.com/cryfs/cryfs-sub001/pkg/blockid"
	"github.com/cryfs/cryfs-sub001/pkg/blockstore"
	"github.com/cryfs/cryfs-sub001/pkg/blockstore/cipher"
)

// Format versions for the 2-byte header this layer prepends to every
// ciphertext. formatVersionLegacy additionally prepended the block id
// to the plaintext, a responsibility the integrity layer now owns;
// reads of that format migrate by stripping the redundant prefix but
// do not eagerly rewrite the block. The integrity layer does not
// rewrite it either; see DESIGN.md for that policy.
const (
	formatVersionCurrent uint16 = 1
	formatVersionLegacy  uint16 = 0
	headerSize                  = 2
	legacyBlockIDPrefixSize     = blockid.Size
)

// Store is the authenticated-encryption layer. It wraps an inner
// blockstore.Store2 and transparently encrypts/decrypts every block
// with a single cipher.Algorithm and key fixed at construction.
type Store struct {
	inner  blockstore.Store2
	alg    cipher.Algorithm
	key    []byte
	logger obslog.Logger
}

// Option configures a Store at construction.
type Option func(*Store)

// WithLogger overrides the default no-op logger.
func WithLogger(l obslog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New returns an encrypted.Store wrapping inner, using alg and key for
// every block. key is copied; its length must equal alg.KeySize().
func New(inner blockstore.Store2, alg cipher.Algorithm, key []byte, opts ...Option) (*Store, error) {
	if len(key) != alg.KeySize() {
		return nil, fmt.Errorf("encrypted: %s requires a %d-byte key, got %d", alg.Name(), alg.KeySize(), len(key))
	}

	ownKey := make([]byte, len(key))
	copy(ownKey, key)

	s := &Store{
		inner:  inner,
		alg:    alg,
		key:    ownKey,
		logger: obslog.Noop().WithComponent("encrypted"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *Store) encrypt(plaintext blockstore.Data) (blockstore.Data, error) {
	ciphertext, err := s.alg.Seal(s.key, plaintext)
	if err != nil {
		return nil, fmt.Errorf("encrypted: seal: %w", err)
	}

	out := make(blockstore.Data, headerSize+len(ciphertext))
	binary.LittleEndian.PutUint16(out, formatVersionCurrent)
	copy(out[headerSize:], ciphertext)

	return out, nil
}

// decrypt returns the plaintext, or (nil, false, nil) on a decryption
// (authentication) failure -- which per spec.md §4.2 is distinct from
// an integrity violation and must not be reported as one. An unknown
// format version is a hard error: it means the block was written by a
// newer release.
func (s *Store) decrypt(blob blockstore.Data) (blockstore.Data, bool, error) {
	if len(blob) < headerSize {
		s.logger.Warn("ciphertext shorter than header", map[string]any{"len": len(blob)})

		return nil, false, nil
	}

	version := binary.LittleEndian.Uint16(blob)
	ciphertext := blob[headerSize:]

	switch version {
	case formatVersionCurrent:
		plaintext, err := s.alg.Open(s.key, ciphertext)
		if err != nil {
			s.logger.Warn("decryption failed", map[string]any{"reason": err.Error()})

			return nil, false, nil
		}

		return plaintext, true, nil

	case formatVersionLegacy:
		plaintext, err := s.alg.Open(s.key, ciphertext)
		if err != nil {
			s.logger.Warn("decryption failed (legacy format)", map[string]any{"reason": err.Error()})

			return nil, false, nil
		}

		if len(plaintext) < legacyBlockIDPrefixSize {
			s.logger.Warn("legacy plaintext shorter than embedded block id", map[string]any{"len": len(plaintext)})

			return nil, false, nil
		}

		// The legacy format embedded the block id directly in the
		// plaintext. The integrity layer now carries that
		// responsibility in its own header, so strip the redundant
		// prefix; the remaining bytes are the integrity-layer
		// plaintext exactly as the current format would produce it.
		return plaintext[legacyBlockIDPrefixSize:], true, nil

	default:
		return nil, false, fmt.Errorf("encrypted: %w: format version %d", blockstore.ErrUnsupportedFormat, version)
	}
}

func (s *Store) TryCreate(id blockid.BlockId, data blockstore.Data) (bool, error) {
	ciphertext, err := s.encrypt(data)
	if err != nil {
		return false, err
	}

	return s.inner.TryCreate(id, ciphertext)
}

func (s *Store) Store(id blockid.BlockId, data blockstore.Data) error {
	ciphertext, err := s.encrypt(data)
	if err != nil {
		return err
	}

	return s.inner.Store(id, ciphertext)
}

func (s *Store) Load(id blockid.BlockId) (blockstore.Data, bool, error) {
	blob, found, err := s.inner.Load(id)
	if err != nil || !found {
		return nil, false, err
	}

	return s.decrypt(blob)
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

// BlockSizeFromPhysicalBlockSize subtracts this layer's fixed header
// (the 2-byte format version plus the cipher's nonce/IV and, for
// authenticated ciphers, its auth tag) from the inner layer's result,
// clamped at zero.
func (s *Store) BlockSizeFromPhysicalBlockSize(n uint64) uint64 {
	inner := s.inner.BlockSizeFromPhysicalBlockSize(n)
	overhead := uint64(headerSize + s.alg.Overhead())

	if inner < overhead {
		return 0
	}

	return inner - overhead
}

func (s *Store) ForEachBlock(cb func(blockid.BlockId) error) error {
	return s.inner.ForEachBlock(cb)
}

var _ blockstore.Store2 = (*Store)(nil)
