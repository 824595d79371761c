package blockid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryfs/cryfs-sub001/pkg/blockid"
)

func TestNew_IsRandomAndFixedLength(t *testing.T) {
	t.Parallel()

	a, err := blockid.New()
	require.NoError(t, err)

	b, err := blockid.New()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.False(t, a.IsZero())
}

func TestStringParse_RoundTrip(t *testing.T) {
	t.Parallel()

	id, err := blockid.New()
	require.NoError(t, err)

	s := id.String()
	assert.Len(t, s, 32)

	parsed, err := blockid.Parse(s)
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParse_RejectsWrongLength(t *testing.T) {
	t.Parallel()

	_, err := blockid.Parse("deadbeef")
	require.ErrorIs(t, err, blockid.ErrInvalidLength)
}

func TestZero_IsZero(t *testing.T) {
	t.Parallel()

	assert.True(t, blockid.Zero.IsZero())
}
