// Package integrity implements the version-counter integrity layer of
// the block-store stack -- the layer responsible for detecting
// rollback (an attacker replaying an old, superseded block version),
// deletion, and id-rebinding (swapping the ciphertext of one block
// under another's id).
//
// It sits directly above the encryption layer: the header it prepends
// to every plaintext is itself encrypted by the layer below, so it is
// authenticated "for free" by the cipher's own tag. See DESIGN.md for
// why this module resolves the apparent offset-table/prepend-order
// ambiguity in favor of the prepend-to-plaintext reading.
//
// [KnownBlockVersions] is the only state this module keeps outside the
// block store itself; its lifecycle must bracket every operation
// issued through [Store], from construction to the final
// [KnownBlockVersions.Close].
package integrity
