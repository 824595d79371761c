package integrity

import (
	"errors"
	"fmt"

	"github.com/cryfs/cryfs-sub001/pkg/blockstore"
)

// errUnsupportedStateFormat wraps blockstore.ErrUnsupportedFormat for
// the known-block-versions state file specifically, so callers can
// still classify it with errors.Is(err, blockstore.ErrUnsupportedFormat).
var errUnsupportedStateFormat = fmt.Errorf("%w: knownblockversions state file", blockstore.ErrUnsupportedFormat)

// errHeaderTooShort indicates the on-disk plaintext is shorter than
// any recognized integrity header. Treated as a soft "not found"
// result, like a decryption failure, rather than a hard error: a
// truncated blob is indistinguishable from random noise.
var errHeaderTooShort = errors.New("integrity: header too short")
