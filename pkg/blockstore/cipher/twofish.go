package cipher

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/twofish"
)

// twofishGCM wraps Twofish (a 16-byte-block cipher, like AES) in GCM
// mode, giving it the same authenticated-encryption properties as the
// default algorithm for deployments that want a non-AES primitive.
type twofishGCM struct{}

func newTwofishGCM() Algorithm { return twofishGCM{} }

func (twofishGCM) Name() string        { return NameTwofish256 }
func (twofishGCM) KeySize() int        { return 32 }
func (twofishGCM) Authenticated() bool { return true }
func (twofishGCM) Overhead() int        { return 12 + 16 }

func (t twofishGCM) Seal(key, plaintext []byte) ([]byte, error) {
	gcm, err := t.gcm(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cipher: generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (t twofishGCM) Open(key, ciphertext []byte) ([]byte, error) {
	gcm, err := t.gcm(key)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("cipher: %s: ciphertext shorter than nonce", t.Name())
	}

	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("cipher: %s: authentication failed: %w", t.Name(), err)
	}

	return plaintext, nil
}

func (t twofishGCM) gcm(key []byte) (cipher.AEAD, error) {
	if len(key) != t.KeySize() {
		return nil, fmt.Errorf("cipher: %s requires a %d-byte key, got %d", t.Name(), t.KeySize(), len(key))
	}

	block, err := twofish.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: new twofish block: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher: new gcm: %w", err)
	}

	return gcm, nil
}
