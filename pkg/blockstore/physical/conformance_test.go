package physical_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryfs/cryfs-sub001/pkg/blockid"
	"github.com/cryfs/cryfs-sub001/pkg/blockstore"
)

// conformanceStore is the subset of blockstore.Store2 the conformance
// suite exercises; both physical backends satisfy it directly.
type conformanceStore = blockstore.Store2

// runConformanceSuite checks the invariants from spec.md §8 that every
// Store2 implementation must uphold, regardless of backend.
func runConformanceSuite(t *testing.T, newStore func(t *testing.T) conformanceStore) {
	t.Helper()

	t.Run("round-trip", func(t *testing.T) {
		t.Parallel()

		s := newStore(t)
		id, err := blockid.New()
		require.NoError(t, err)

		require.NoError(t, s.Store(id, blockstore.Data("hello world")))

		got, found, err := s.Load(id)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, blockstore.Data("hello world"), got)
	})

	t.Run("overwrite", func(t *testing.T) {
		t.Parallel()

		s := newStore(t)
		id, err := blockid.New()
		require.NoError(t, err)

		require.NoError(t, s.Store(id, blockstore.Data("v1")))
		require.NoError(t, s.Store(id, blockstore.Data("v2")))

		got, found, err := s.Load(id)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, blockstore.Data("v2"), got)
	})

	t.Run("load missing returns not-found", func(t *testing.T) {
		t.Parallel()

		s := newStore(t)
		id, err := blockid.New()
		require.NoError(t, err)

		got, found, err := s.Load(id)
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, got)
	})

	t.Run("try-create rejects existing id", func(t *testing.T) {
		t.Parallel()

		s := newStore(t)
		id, err := blockid.New()
		require.NoError(t, err)

		ok, err := s.TryCreate(id, blockstore.Data("first"))
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = s.TryCreate(id, blockstore.Data("second"))
		require.NoError(t, err)
		assert.False(t, ok)

		got, _, err := s.Load(id)
		require.NoError(t, err)
		assert.Equal(t, blockstore.Data("first"), got)
	})

	t.Run("remove reports whether a block existed", func(t *testing.T) {
		t.Parallel()

		s := newStore(t)
		id, err := blockid.New()
		require.NoError(t, err)

		removed, err := s.Remove(id)
		require.NoError(t, err)
		assert.False(t, removed)

		require.NoError(t, s.Store(id, blockstore.Data("x")))

		removed, err = s.Remove(id)
		require.NoError(t, err)
		assert.True(t, removed)

		_, found, err := s.Load(id)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("num-blocks matches for-each-block enumeration", func(t *testing.T) {
		t.Parallel()

		s := newStore(t)

		const n = 20

		ids := make([]blockid.BlockId, 0, n)

		for i := 0; i < n; i++ {
			id, err := blockid.New()
			require.NoError(t, err)
			require.NoError(t, s.Store(id, blockstore.Data("x")))
			ids = append(ids, id)
		}

		count, err := s.NumBlocks()
		require.NoError(t, err)
		assert.EqualValues(t, n, count)

		seen := make(map[blockid.BlockId]bool)

		err = s.ForEachBlock(func(id blockid.BlockId) error {
			seen[id] = true

			return nil
		})
		require.NoError(t, err)
		assert.Len(t, seen, n)

		for _, id := range ids {
			assert.True(t, seen[id])
		}
	})

	t.Run("estimate-num-free-bytes returns a positive estimate", func(t *testing.T) {
		t.Parallel()

		s := newStore(t)

		free, err := s.EstimateNumFreeBytes()
		require.NoError(t, err)
		assert.Positive(t, free)
	})
}
