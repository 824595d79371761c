package readonly_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryfs/cryfs-sub001/pkg/blockid"
	"github.com/cryfs/cryfs-sub001/pkg/blockstore"
	"github.com/cryfs/cryfs-sub001/pkg/blockstore/physical"
	"github.com/cryfs/cryfs-sub001/pkg/blockstore/readonly"
)

func TestStore_RejectsMutation(t *testing.T) {
	t.Parallel()

	inner := physical.NewInMemory()

	id, err := blockid.New()
	require.NoError(t, err)
	require.NoError(t, inner.Store(id, blockstore.Data("payload")))

	s := readonly.New(inner)

	_, err = s.TryCreate(id, blockstore.Data("x"))
	assert.ErrorIs(t, err, blockstore.ErrReadOnly)

	err = s.Store(id, blockstore.Data("x"))
	assert.ErrorIs(t, err, blockstore.ErrReadOnly)

	_, err = s.Remove(id)
	assert.ErrorIs(t, err, blockstore.ErrReadOnly)
}

func TestStore_AllowsReads(t *testing.T) {
	t.Parallel()

	inner := physical.NewInMemory()

	id, err := blockid.New()
	require.NoError(t, err)
	require.NoError(t, inner.Store(id, blockstore.Data("payload")))

	s := readonly.New(inner)

	data, found, err := s.Load(id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, blockstore.Data("payload"), data)

	n, err := s.NumBlocks()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
