package integrity

import (
	"encoding/binary"
	"fmt"

	"github.com/cryfs/cryfs-sub001/pkg/blockid"
	"github.com/cryfs/cryfs-sub001/pkg/blockstore"
)

// Integrity header prepended to every plaintext handed to the
// encryption layer below:
//
//	u16  format version
//	[16] block id
//	u32  writer client id   (format 1 only)
//	u64  version counter    (format 1 only)
//
// Format 0 is the legacy variant: it embeds only the block id, with no
// writer or version tracking, from before this layer gained rollback
// detection.
const (
	headerFormatVersionCurrent uint16 = 1
	headerFormatVersionLegacy  uint16 = 0

	headerSizeCurrent = 2 + blockid.Size + 4 + 8 // = 30
	headerSizeLegacy  = 2 + blockid.Size         // = 18
)

type header struct {
	legacy   bool
	blockID  blockid.BlockId
	clientID uint32
	version  uint64
}

func encodeHeader(id blockid.BlockId, clientID uint32, version uint64) []byte {
	buf := make([]byte, headerSizeCurrent)

	binary.LittleEndian.PutUint16(buf[0:2], headerFormatVersionCurrent)
	copy(buf[2:2+blockid.Size], id[:])
	binary.LittleEndian.PutUint32(buf[2+blockid.Size:2+blockid.Size+4], clientID)
	binary.LittleEndian.PutUint64(buf[2+blockid.Size+4:], version)

	return buf
}

// decodeHeader splits plaintext into its integrity header and the
// remaining payload. Returns errHeaderTooShort for a plaintext too
// short to carry any recognized header, and blockstore.ErrUnsupportedFormat
// for a recognized-but-unsupported format version.
func decodeHeader(plaintext []byte) (header, []byte, error) {
	if len(plaintext) < 2 {
		return header{}, nil, errHeaderTooShort
	}

	version := binary.LittleEndian.Uint16(plaintext[0:2])

	switch version {
	case headerFormatVersionCurrent:
		if len(plaintext) < headerSizeCurrent {
			return header{}, nil, errHeaderTooShort
		}

		var id blockid.BlockId
		copy(id[:], plaintext[2:2+blockid.Size])

		clientID := binary.LittleEndian.Uint32(plaintext[2+blockid.Size : 2+blockid.Size+4])
		ver := binary.LittleEndian.Uint64(plaintext[2+blockid.Size+4:])

		return header{blockID: id, clientID: clientID, version: ver}, plaintext[headerSizeCurrent:], nil

	case headerFormatVersionLegacy:
		if len(plaintext) < headerSizeLegacy {
			return header{}, nil, errHeaderTooShort
		}

		var id blockid.BlockId
		copy(id[:], plaintext[2:2+blockid.Size])

		return header{legacy: true, blockID: id}, plaintext[headerSizeLegacy:], nil

	default:
		return header{}, nil, fmt.Errorf("%w: integrity header version %d", blockstore.ErrUnsupportedFormat, version)
	}
}
