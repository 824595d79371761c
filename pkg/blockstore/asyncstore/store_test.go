package asyncstore_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryfs/cryfs-sub001/pkg/blockid"
	"github.com/cryfs/cryfs-sub001/pkg/blockstore"
	"github.com/cryfs/cryfs-sub001/pkg/blockstore/asyncstore"
	"github.com/cryfs/cryfs-sub001/pkg/blockstore/physical"
)

func TestStore_RoundTrip(t *testing.T) {
	t.Parallel()

	s := asyncstore.New(physical.NewInMemory(), 4)
	defer s.Close()

	id, err := blockid.New()
	require.NoError(t, err)

	require.NoError(t, s.Store(id, blockstore.Data("payload")))

	got, found, err := s.Load(id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, blockstore.Data("payload"), got)
}

func TestStore_ConcurrentCallsAllComplete(t *testing.T) {
	t.Parallel()

	s := asyncstore.New(physical.NewInMemory(), 4)
	defer s.Close()

	const n = 50

	var wg sync.WaitGroup

	ids := make([]blockid.BlockId, n)

	for i := 0; i < n; i++ {
		id, err := blockid.New()
		require.NoError(t, err)

		ids[i] = id
	}

	for i := 0; i < n; i++ {
		wg.Add(1)

		go func(id blockid.BlockId) {
			defer wg.Done()

			assert.NoError(t, s.Store(id, blockstore.Data("x")))
		}(ids[i])
	}

	wg.Wait()

	count, err := s.NumBlocks()
	require.NoError(t, err)
	assert.EqualValues(t, n, count)
}

func TestNew_ClampsWorkersToAtLeastOne(t *testing.T) {
	t.Parallel()

	s := asyncstore.New(physical.NewInMemory(), 0)
	defer s.Close()

	id, err := blockid.New()
	require.NoError(t, err)

	require.NoError(t, s.Store(id, blockstore.Data("x")))
}
