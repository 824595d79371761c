package cipher_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryfs/cryfs-sub001/pkg/blockstore"
	"github.com/cryfs/cryfs-sub001/pkg/blockstore/cipher"
)

func authenticatedKey(t *testing.T, size int) []byte {
	t.Helper()

	key := make([]byte, size)
	for i := range key {
		key[i] = byte(i)
	}

	return key
}

func TestLookup_AuthenticatedCiphersRoundTrip(t *testing.T) {
	t.Parallel()

	for _, name := range []string{cipher.NameAES256GCM, cipher.NameTwofish256} {
		name := name

		t.Run(name, func(t *testing.T) {
			t.Parallel()

			alg, err := cipher.Lookup(name, false)
			require.NoError(t, err)
			assert.True(t, alg.Authenticated())

			key := authenticatedKey(t, alg.KeySize())
			plaintext := []byte("the quick brown fox jumps over the lazy dog")

			ciphertext, err := alg.Seal(key, plaintext)
			require.NoError(t, err)
			assert.NotEqual(t, plaintext, ciphertext)

			got, err := alg.Open(key, ciphertext)
			require.NoError(t, err)
			assert.Equal(t, plaintext, got)
		})
	}
}

func TestLookup_NonAuthenticatedCiphersRequireConfirmation(t *testing.T) {
	t.Parallel()

	for _, name := range []string{cipher.NameAES256CFB, cipher.NameCast256CFB} {
		_, err := cipher.Lookup(name, false)
		require.ErrorIs(t, err, blockstore.ErrUnsupportedCipher)

		alg, err := cipher.Lookup(name, true)
		require.NoError(t, err)
		assert.False(t, alg.Authenticated())

		key := authenticatedKey(t, alg.KeySize())
		plaintext := []byte("non-authenticated round trip")

		ciphertext, err := alg.Seal(key, plaintext)
		require.NoError(t, err)

		got, err := alg.Open(key, ciphertext)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestLookup_UnknownNameRejected(t *testing.T) {
	t.Parallel()

	_, err := cipher.Lookup("does-not-exist", true)
	require.ErrorIs(t, err, blockstore.ErrUnsupportedCipher)
}

func TestLookup_RecognizedButUnimplementedNamesRejected(t *testing.T) {
	t.Parallel()

	for _, name := range []string{cipher.NameSerpent256, cipher.NameMars256} {
		_, err := cipher.Lookup(name, true)
		require.ErrorIs(t, err, blockstore.ErrUnsupportedCipher)
	}
}

func TestAESGCM_TamperDetection(t *testing.T) {
	t.Parallel()

	alg, err := cipher.Lookup(cipher.NameAES256GCM, false)
	require.NoError(t, err)

	key := authenticatedKey(t, alg.KeySize())

	ciphertext, err := alg.Seal(key, []byte("payload"))
	require.NoError(t, err)

	tampered := bytes.Clone(ciphertext)
	tampered[len(tampered)-1] ^= 0xFF

	_, err = alg.Open(key, tampered)
	require.Error(t, err)
}
