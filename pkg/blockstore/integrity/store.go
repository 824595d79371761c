package integrity

import (
	"errors"
	"fmt"

	"github.com/cryfs/cryfs-sub001/internal/obslog"
	"github.com/cryfs/cryfs-sub001/pkg/blockid"
	"github.com/cryfs/cryfs-sub001/pkg/blockstore"
)

// Store is the version-counter integrity layer. It wraps an inner
// blockstore.Store2 (normally the encryption layer) and a
// [KnownBlockVersions] tracking the highest version seen per block.
type Store struct {
	inner blockstore.Store2
	known *KnownBlockVersions

	missingBlockIsViolation bool
	onViolation             func(reason string)
	logger                  obslog.Logger
}

// Option configures a Store at construction.
type Option func(*Store)

// WithMissingBlockIsViolation enables exclusive-client mode: a block
// this client has previously seen (and has not deleted) but the
// backend no longer has is itself treated as an integrity violation,
// rather than an ordinary "not found". Use this only when this
// filesystem is known to be the sole writer to the backend.
func WithMissingBlockIsViolation(b bool) Option {
	return func(s *Store) { s.missingBlockIsViolation = b }
}

// WithViolationCallback sets the function invoked, in addition to the
// sticky on-disk flag, whenever an integrity violation is detected.
func WithViolationCallback(f func(reason string)) Option {
	return func(s *Store) { s.onViolation = f }
}

// WithLogger overrides the default no-op logger.
func WithLogger(l obslog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New returns an integrity.Store wrapping inner, tracking versions in
// known. known's lifecycle must bracket the returned Store's (and the
// caller remains responsible for calling known.Close once all use of
// the store has stopped).
func New(inner blockstore.Store2, known *KnownBlockVersions, opts ...Option) *Store {
	s := &Store{
		inner:  inner,
		known:  known,
		logger: obslog.Noop().WithComponent("integrity"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Store) reportViolation(reason string) error {
	if err := s.known.MarkIntegrityViolation(); err != nil {
		s.logger.Error("failed to persist integrity violation flag", err)
	}

	s.logger.Warn("integrity violation", map[string]any{"reason": reason})

	if s.onViolation != nil {
		s.onViolation(reason)
	}

	return fmt.Errorf("%w: %s", blockstore.ErrIntegrityViolation, reason)
}

func (s *Store) wrap(id blockid.BlockId, data blockstore.Data) (blockstore.Data, error) {
	v, err := s.known.IncrementVersion(id)
	if err != nil {
		return nil, err
	}

	hdr := encodeHeader(id, s.known.MyClientID(), v)
	plaintext := make(blockstore.Data, len(hdr)+len(data))
	copy(plaintext, hdr)
	copy(plaintext[len(hdr):], data)

	return plaintext, nil
}

func (s *Store) TryCreate(id blockid.BlockId, data blockstore.Data) (bool, error) {
	plaintext, err := s.wrap(id, data)
	if err != nil {
		return false, err
	}

	return s.inner.TryCreate(id, plaintext)
}

func (s *Store) Store(id blockid.BlockId, data blockstore.Data) error {
	plaintext, err := s.wrap(id, data)
	if err != nil {
		return err
	}

	return s.inner.Store(id, plaintext)
}

// Load reads and verifies a block. It returns (nil, false, nil) for an
// ordinary miss, and a non-nil error wrapping
// blockstore.ErrIntegrityViolation for rollback, staleness, id
// rebinding, or (when configured) a missing block this client
// previously wrote.
func (s *Store) Load(id blockid.BlockId) (blockstore.Data, bool, error) {
	plaintext, found, err := s.inner.Load(id)
	if err != nil {
		return nil, false, err
	}

	if !found {
		if s.missingBlockIsViolation {
			if client, known := s.known.LastUpdateClient(id); known && client != clientIDDeleted {
				return nil, false, s.reportViolation(fmt.Sprintf("block %s is known to this client but missing from the backend", id))
			}
		}

		return nil, false, nil
	}

	hdr, payload, err := decodeHeader(plaintext)
	if err != nil {
		if errors.Is(err, errHeaderTooShort) {
			s.logger.Warn("plaintext too short for an integrity header", map[string]any{"block_id": id.String()})

			return nil, false, nil
		}

		return nil, false, err
	}

	if hdr.blockID != id {
		return nil, false, s.reportViolation(fmt.Sprintf("id rebinding: block requested as %s carries on-disk header for %s", id, hdr.blockID))
	}

	if hdr.legacy {
		s.logger.Warn("read legacy (unversioned) integrity header; not eagerly rewriting", map[string]any{"block_id": id.String()})

		return blockstore.Data(payload), true, nil
	}

	accepted, reason := s.known.CheckAndUpdateVersion(hdr.clientID, id, hdr.version)
	if !accepted {
		return nil, false, s.reportViolation(reason)
	}

	return blockstore.Data(payload), true, nil
}

// Remove marks id deleted (the last_update_client sentinel) before
// removing it from the inner store, not after. The mark is held in
// memory and reaches the state file on the next Save or Close. Once
// marked, a reappearance of the block's last seen version is rejected
// as stale rather than accepted as a fresh write. Whether a crash in
// that window can still produce a false missing-block violation under
// WithMissingBlockIsViolation is an open question inherited from the
// source design; see DESIGN.md.
func (s *Store) Remove(id blockid.BlockId) (bool, error) {
	s.known.MarkDeleted(id)

	return s.inner.Remove(id)
}

func (s *Store) NumBlocks() (uint64, error) {
	return s.inner.NumBlocks()
}

func (s *Store) EstimateNumFreeBytes() (uint64, error) {
	return s.inner.EstimateNumFreeBytes()
}

// BlockSizeFromPhysicalBlockSize subtracts this layer's header size
// from the inner layer's result, clamped at zero.
func (s *Store) BlockSizeFromPhysicalBlockSize(n uint64) uint64 {
	inner := s.inner.BlockSizeFromPhysicalBlockSize(n)

	if inner < headerSizeCurrent {
		return 0
	}

	return inner - headerSizeCurrent
}

// ForEachBlock invokes cb once for every block the inner layer
// reports. Under [WithMissingBlockIsViolation], it also tracks which of
// this client's known, non-deleted blocks were actually enumerated; any
// left over once iteration completes -- known to this client but never
// surfaced during a full backend scan -- triggers a violation the same
// way a missing block does on an individual Load.
func (s *Store) ForEachBlock(cb func(blockid.BlockId) error) error {
	if !s.missingBlockIsViolation {
		return s.inner.ForEachBlock(cb)
	}

	seen := make(map[blockid.BlockId]struct{})

	err := s.inner.ForEachBlock(func(id blockid.BlockId) error {
		seen[id] = struct{}{}

		return cb(id)
	})
	if err != nil {
		return err
	}

	var missing []blockid.BlockId

	for _, id := range s.known.ExistingBlocks() {
		if _, ok := seen[id]; !ok {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		return s.reportViolation(fmt.Sprintf("%d block(s) known to this client were not enumerated during for_each_block, first missing: %s", len(missing), missing[0]))
	}

	return nil
}

var _ blockstore.Store2 = (*Store)(nil)
