package cipher

import (
	stdcipher "crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// aesCFB is AES-256 in CFB mode: confidentiality only, no
// authentication tag. Kept for compatibility with filesystems created
// before authenticated ciphers were the default. The integrity layer
// above it checks only its own header fields (block id, writer,
// version), so tampering with payload bytes goes undetected.
type aesCFB struct{}

func newAESCFB() Algorithm { return aesCFB{} }

func (aesCFB) Name() string        { return NameAES256CFB }
func (aesCFB) KeySize() int        { return 32 }
func (aesCFB) Authenticated() bool { return false }
func (aesCFB) Overhead() int        { return 16 }

func (a aesCFB) Seal(key, plaintext []byte) ([]byte, error) {
	block, err := stdcipher.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %s: new block: %w", a.Name(), err)
	}

	iv := make([]byte, stdcipher.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("cipher: %s: generate iv: %w", a.Name(), err)
	}

	ciphertext := make([]byte, len(iv)+len(plaintext))
	copy(ciphertext, iv)

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[len(iv):], plaintext)

	return ciphertext, nil
}

func (a aesCFB) Open(key, ciphertext []byte) ([]byte, error) {
	block, err := stdcipher.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %s: new block: %w", a.Name(), err)
	}

	if len(ciphertext) < stdcipher.BlockSize {
		return nil, fmt.Errorf("cipher: %s: ciphertext shorter than iv", a.Name())
	}

	iv, sealed := ciphertext[:stdcipher.BlockSize], ciphertext[stdcipher.BlockSize:]

	plaintext := make([]byte, len(sealed))
	stream := cipher.NewCFBDecrypter(block, iv)
	stream.XORKeyStream(plaintext, sealed)

	return plaintext, nil
}
