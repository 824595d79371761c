package cipher

import (
	"fmt"

	"github.com/cryfs/cryfs-sub001/pkg/blockstore"
)

// Algorithm is a symmetric cipher identified by a stable string name.
// Implementations are stateless; the key is supplied per call so a
// single Algorithm value can be shared across encrypted.Store
// instances using different keys.
type Algorithm interface {
	// Name returns the stable string persisted in the caller's
	// configuration (e.g. "aes-256-gcm").
	Name() string

	// KeySize returns the required key length in bytes.
	KeySize() int

	// Overhead returns the fixed number of bytes Seal adds on top of
	// the plaintext length (nonce/IV plus, for authenticated modes,
	// the auth tag).
	Overhead() int

	// Authenticated reports whether this cipher provides both
	// confidentiality and integrity on its own. Non-authenticated
	// (CFB) ciphers rely entirely on the integrity layer above them.
	Authenticated() bool

	// Seal encrypts plaintext under key, returning ciphertext that
	// embeds whatever nonce/IV is needed to decrypt it.
	Seal(key, plaintext []byte) ([]byte, error)

	// Open decrypts ciphertext produced by Seal under the same key.
	// Returns an error (not a panic) on authentication failure or
	// truncated input; callers must treat any error here as a
	// decryption failure per spec.md §4.2, not an integrity violation.
	Open(key, ciphertext []byte) ([]byte, error)
}

// names recognized by the registry. Algorithms without a factory are
// known by name (for config compatibility and clear error messages)
// but have no implementation available anywhere in the Go ecosystem
// this module draws from; see DESIGN.md.
const (
	NameAES256GCM  = "aes-256-gcm"
	NameAES256CFB  = "aes-256-cfb"
	NameTwofish256 = "twofish-256-gcm"
	NameCast256CFB = "cast-256-cfb"
	NameSerpent256 = "serpent-256-gcm"
	NameMars256    = "mars-256-gcm"
)

var unimplementedNames = map[string]bool{
	NameSerpent256: true,
	NameMars256:    true,
}

var registry = map[string]func() Algorithm{
	NameAES256GCM:  func() Algorithm { return newAESGCM() },
	NameAES256CFB:  func() Algorithm { return newAESCFB() },
	NameTwofish256: func() Algorithm { return newTwofishGCM() },
	NameCast256CFB: func() Algorithm { return newCast5CFB() },
}

// Lookup returns the Algorithm registered under name.
//
// Non-authenticated ciphers (aes-256-cfb, cast-256-cfb) are returned
// successfully but require the caller to have explicitly confirmed the
// warning described in spec.md §4.2 by setting
// confirmedNonAuthenticatedWarning to true; otherwise Lookup fails so a
// filesystem cannot silently end up with a non-authenticated cipher.
func Lookup(name string, confirmedNonAuthenticatedWarning bool) (Algorithm, error) {
	factory, ok := registry[name]
	if !ok {
		if unimplementedNames[name] {
			return nil, fmt.Errorf("%w: %q is a recognized cipher name but no implementation is available", blockstore.ErrUnsupportedCipher, name)
		}

		return nil, fmt.Errorf("%w: %q", blockstore.ErrUnsupportedCipher, name)
	}

	alg := factory()

	if !alg.Authenticated() && !confirmedNonAuthenticatedWarning {
		return nil, fmt.Errorf("%w: %q is not an authenticated cipher; the integrity layer alone will not detect tampering with ciphertext bytes unless this is explicitly confirmed", blockstore.ErrUnsupportedCipher, name)
	}

	return alg, nil
}

// Names returns every cipher name the registry recognizes, including
// names with no available implementation.
func Names() []string {
	names := make([]string, 0, len(registry)+len(unimplementedNames))

	for name := range registry {
		names = append(names, name)
	}

	for name := range unimplementedNames {
		names = append(names, name)
	}

	return names
}
