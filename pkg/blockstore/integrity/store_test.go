package integrity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryfs/cryfs-sub001/internal/fsx"
	"github.com/cryfs/cryfs-sub001/pkg/blockid"
	"github.com/cryfs/cryfs-sub001/pkg/blockstore"
	"github.com/cryfs/cryfs-sub001/pkg/blockstore/integrity"
	"github.com/cryfs/cryfs-sub001/pkg/blockstore/physical"
)

func newTestStore(t *testing.T, opts ...integrity.Option) (*integrity.Store, blockstore.Store2, *integrity.KnownBlockVersions) {
	t.Helper()

	inner := physical.NewInMemory()

	path := t.TempDir() + "/integrity.state"

	known, err := integrity.LoadOrCreate(path, fsx.NewReal())
	require.NoError(t, err)

	return integrity.New(inner, known, opts...), inner, known
}

func TestStore_RoundTrip(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestStore(t)

	id, err := blockid.New()
	require.NoError(t, err)

	require.NoError(t, s.Store(id, blockstore.Data("hello")))

	got, found, err := s.Load(id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, blockstore.Data("hello"), got)
}

func TestStore_OverwriteIncrementsVersion(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestStore(t)

	id, err := blockid.New()
	require.NoError(t, err)

	require.NoError(t, s.Store(id, blockstore.Data("v1")))
	require.NoError(t, s.Store(id, blockstore.Data("v2")))

	got, found, err := s.Load(id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, blockstore.Data("v2"), got)
}

func TestStore_RollbackIsDetected(t *testing.T) {
	t.Parallel()

	s, inner, _ := newTestStore(t)

	id, err := blockid.New()
	require.NoError(t, err)

	require.NoError(t, s.Store(id, blockstore.Data("v1")))

	raw, found, err := inner.Load(id)
	require.NoError(t, err)
	require.True(t, found)

	require.NoError(t, s.Store(id, blockstore.Data("v2")))

	// Replay the old (lower-version) plaintext back onto the inner
	// store, simulating an attacker restoring a stale backup of a
	// single block.
	require.NoError(t, inner.Store(id, raw))

	_, found, err = s.Load(id)
	require.ErrorIs(t, err, blockstore.ErrIntegrityViolation)
	assert.False(t, found)
}

func TestStore_IDRebindingIsDetected(t *testing.T) {
	t.Parallel()

	s, inner, _ := newTestStore(t)

	idA, err := blockid.New()
	require.NoError(t, err)
	idB, err := blockid.New()
	require.NoError(t, err)

	require.NoError(t, s.Store(idA, blockstore.Data("a-payload")))

	rawA, found, err := inner.Load(idA)
	require.NoError(t, err)
	require.True(t, found)

	// Copy A's ciphertext (with its embedded header for id A) under
	// id B's key directly on the backend -- a swap attack.
	require.NoError(t, inner.Store(idB, rawA))

	_, found, err = s.Load(idB)
	require.ErrorIs(t, err, blockstore.ErrIntegrityViolation)
	assert.False(t, found)
}

func TestStore_MissingBlockIsOrdinaryMissByDefault(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestStore(t)

	id, err := blockid.New()
	require.NoError(t, err)

	require.NoError(t, s.Store(id, blockstore.Data("payload")))
	_, err = s.Remove(id)
	require.NoError(t, err)

	_, found, err := s.Load(id)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_MissingKnownBlockIsViolationInExclusiveMode(t *testing.T) {
	t.Parallel()

	inner := physical.NewInMemory()
	path := t.TempDir() + "/integrity.state"

	known, err := integrity.LoadOrCreate(path, fsx.NewReal())
	require.NoError(t, err)

	s := integrity.New(inner, known, integrity.WithMissingBlockIsViolation(true))

	id, err := blockid.New()
	require.NoError(t, err)

	require.NoError(t, s.Store(id, blockstore.Data("payload")))

	// Delete directly on the backend, bypassing s.Remove, so known
	// still believes the block should exist.
	_, err = inner.Remove(id)
	require.NoError(t, err)

	_, found, err := s.Load(id)
	require.ErrorIs(t, err, blockstore.ErrIntegrityViolation)
	assert.False(t, found)
}

func TestStore_DeletedBlockIsNotAViolationWhenMissing(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestStore(t, integrity.WithMissingBlockIsViolation(true))

	id, err := blockid.New()
	require.NoError(t, err)

	require.NoError(t, s.Store(id, blockstore.Data("payload")))
	_, err = s.Remove(id)
	require.NoError(t, err)

	_, found, err := s.Load(id)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_ViolationCallbackFires(t *testing.T) {
	t.Parallel()

	var reasons []string

	inner := physical.NewInMemory()
	path := t.TempDir() + "/integrity.state"

	known, err := integrity.LoadOrCreate(path, fsx.NewReal())
	require.NoError(t, err)

	s := integrity.New(inner, known, integrity.WithViolationCallback(func(reason string) {
		reasons = append(reasons, reason)
	}))

	id, err := blockid.New()
	require.NoError(t, err)

	require.NoError(t, s.Store(id, blockstore.Data("v1")))

	raw, _, err := inner.Load(id)
	require.NoError(t, err)

	require.NoError(t, s.Store(id, blockstore.Data("v2")))
	require.NoError(t, inner.Store(id, raw))

	_, _, err = s.Load(id)
	require.Error(t, err)
	assert.Len(t, reasons, 1)
	assert.True(t, known.IntegrityViolationOnPreviousRun())
}

func TestStore_ForEachBlockIgnoresKnownBlocksByDefault(t *testing.T) {
	t.Parallel()

	s, inner, _ := newTestStore(t)

	id, err := blockid.New()
	require.NoError(t, err)

	require.NoError(t, s.Store(id, blockstore.Data("payload")))

	// Remove directly on the backend, bypassing s.Remove. Without
	// exclusive-client mode, ForEachBlock must not care.
	_, err = inner.Remove(id)
	require.NoError(t, err)

	require.NoError(t, s.ForEachBlock(func(blockid.BlockId) error { return nil }))
}

func TestStore_ForEachBlockDetectsMissingKnownBlockInExclusiveMode(t *testing.T) {
	t.Parallel()

	inner := physical.NewInMemory()
	path := t.TempDir() + "/integrity.state"

	known, err := integrity.LoadOrCreate(path, fsx.NewReal())
	require.NoError(t, err)

	s := integrity.New(inner, known, integrity.WithMissingBlockIsViolation(true))

	id, err := blockid.New()
	require.NoError(t, err)

	require.NoError(t, s.Store(id, blockstore.Data("payload")))

	// Delete directly on the backend, bypassing s.Remove, so known
	// still believes the block should exist.
	_, err = inner.Remove(id)
	require.NoError(t, err)

	err = s.ForEachBlock(func(blockid.BlockId) error { return nil })
	require.ErrorIs(t, err, blockstore.ErrIntegrityViolation)
	assert.True(t, known.IntegrityViolationOnPreviousRun())
}

func TestStore_ForEachBlockPassesInExclusiveModeWhenNothingMissing(t *testing.T) {
	t.Parallel()

	s, _, known := newTestStore(t, integrity.WithMissingBlockIsViolation(true))

	id, err := blockid.New()
	require.NoError(t, err)

	require.NoError(t, s.Store(id, blockstore.Data("payload")))

	var seen []blockid.BlockId

	err = s.ForEachBlock(func(bid blockid.BlockId) error {
		seen = append(seen, bid)

		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []blockid.BlockId{id}, seen)
	assert.False(t, known.IntegrityViolationOnPreviousRun())
}

func TestStore_ForEachBlockInExclusiveModeIgnoresDeletedBlocks(t *testing.T) {
	t.Parallel()

	s, _, known := newTestStore(t, integrity.WithMissingBlockIsViolation(true))

	id, err := blockid.New()
	require.NoError(t, err)

	require.NoError(t, s.Store(id, blockstore.Data("payload")))
	_, err = s.Remove(id)
	require.NoError(t, err)

	err = s.ForEachBlock(func(blockid.BlockId) error { return nil })
	require.NoError(t, err)
	assert.False(t, known.IntegrityViolationOnPreviousRun())
}

func TestStore_BlockSizeFromPhysicalBlockSize_ClampsAtZero(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestStore(t)

	assert.EqualValues(t, 0, s.BlockSizeFromPhysicalBlockSize(0))
}
