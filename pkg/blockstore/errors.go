package blockstore

import "errors"

// Sentinel errors returned by blockstore layers and their decorators.
//
// Callers should use [errors.Is] to classify errors. "Not found" is
// deliberately not a sentinel: the contract expresses it as
// (nil, false, nil) / (false) returns, matching the taxonomy in spec.md §7 where absence
// is not itself an error.
var (
	// ErrUnsupportedFormat indicates a block or state file carries a
	// format_version this build does not understand. This is a hard
	// error (not a nil/false return): it means the filesystem was
	// written by a newer release.
	ErrUnsupportedFormat = errors.New("blockstore: unsupported format version")

	// ErrIntegrityViolation is wrapped into the error the integrity
	// layer returns from Load and ForEachBlock when it detects a
	// violation, and into the error returned when a KnownBlockVersions
	// state file records an unacknowledged violation. The configured
	// violation callback receives only the reason string.
	ErrIntegrityViolation = errors.New("blockstore: integrity violation")

	// ErrUnsupportedCipher indicates a cipher algorithm name has no
	// available implementation (see pkg/blockstore/cipher).
	ErrUnsupportedCipher = errors.New("blockstore: unsupported cipher")

	// ErrLogicError indicates an internal invariant was violated (e.g.
	// a version counter overflow). Callers should treat this as fatal.
	ErrLogicError = errors.New("blockstore: logic error")

	// ErrClosed is returned by a [Block] handle after it has been
	// flushed and closed.
	ErrClosed = errors.New("blockstore: closed")

	// ErrReadOnly is returned by the readonly decorator for any
	// mutating call.
	ErrReadOnly = errors.New("blockstore: read-only")
)
