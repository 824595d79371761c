package integrity

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cryfs/cryfs-sub001/pkg/blockid"
)

// State file format, little-endian, length-prefixed, self-describing:
//
//	string "cryfs.integritydata.knownblockversions;1"
//	bool   integrity_violation_on_previous_run
//	u64    N
//	{ u32 client_id ; 16 bytes block_id ; u64 version } x N
//	u64    M
//	{ 16 bytes block_id ; u32 last_update_client } x M
//
// A legacy header ending ";0" is accepted on read and rewritten as
// ";1" on the next save -- the wire layout is otherwise identical,
// the version suffix exists purely so a future incompatible change
// has somewhere to signal it.
const (
	stateHeaderPrefix  = "cryfs.integritydata.knownblockversions;"
	stateHeaderCurrent = stateHeaderPrefix + "1"
	stateHeaderLegacy  = stateHeaderPrefix + "0"
)

type knownVersionEntry struct {
	clientID uint32
	blockID  blockid.BlockId
	version  uint64
}

type lastUpdateEntry struct {
	blockID blockid.BlockId
	client  uint32
}

type stateFile struct {
	integrityViolationOnPreviousRun bool
	knownVersions                   []knownVersionEntry
	lastUpdateClients               []lastUpdateEntry
}

func encodeState(s stateFile) []byte {
	var buf bytes.Buffer

	writeString(&buf, stateHeaderCurrent)
	writeBool(&buf, s.integrityViolationOnPreviousRun)

	_ = binary.Write(&buf, binary.LittleEndian, uint64(len(s.knownVersions)))

	for _, e := range s.knownVersions {
		_ = binary.Write(&buf, binary.LittleEndian, e.clientID)
		buf.Write(e.blockID[:])
		_ = binary.Write(&buf, binary.LittleEndian, e.version)
	}

	_ = binary.Write(&buf, binary.LittleEndian, uint64(len(s.lastUpdateClients)))

	for _, e := range s.lastUpdateClients {
		buf.Write(e.blockID[:])
		_ = binary.Write(&buf, binary.LittleEndian, e.client)
	}

	return buf.Bytes()
}

func decodeState(raw []byte) (stateFile, error) {
	r := bytes.NewReader(raw)

	header, err := readString(r)
	if err != nil {
		return stateFile{}, fmt.Errorf("integrity: read state header: %w", err)
	}

	if header != stateHeaderCurrent && header != stateHeaderLegacy {
		return stateFile{}, fmt.Errorf("integrity: %w: unrecognized state file header %q", errUnsupportedStateFormat, header)
	}

	violated, err := readBool(r)
	if err != nil {
		return stateFile{}, fmt.Errorf("integrity: read violation flag: %w", err)
	}

	n, err := readUint64(r)
	if err != nil {
		return stateFile{}, fmt.Errorf("integrity: read known-versions count: %w", err)
	}

	knownVersions := make([]knownVersionEntry, 0, n)

	for i := uint64(0); i < n; i++ {
		var e knownVersionEntry

		clientID, err := readUint32(r)
		if err != nil {
			return stateFile{}, fmt.Errorf("integrity: read known-version client id: %w", err)
		}

		e.clientID = clientID

		if _, err := io.ReadFull(r, e.blockID[:]); err != nil {
			return stateFile{}, fmt.Errorf("integrity: read known-version block id: %w", err)
		}

		version, err := readUint64(r)
		if err != nil {
			return stateFile{}, fmt.Errorf("integrity: read known-version version: %w", err)
		}

		e.version = version
		knownVersions = append(knownVersions, e)
	}

	m, err := readUint64(r)
	if err != nil {
		return stateFile{}, fmt.Errorf("integrity: read last-update count: %w", err)
	}

	lastUpdate := make([]lastUpdateEntry, 0, m)

	for i := uint64(0); i < m; i++ {
		var e lastUpdateEntry

		if _, err := io.ReadFull(r, e.blockID[:]); err != nil {
			return stateFile{}, fmt.Errorf("integrity: read last-update block id: %w", err)
		}

		client, err := readUint32(r)
		if err != nil {
			return stateFile{}, fmt.Errorf("integrity: read last-update client: %w", err)
		}

		e.client = client
		lastUpdate = append(lastUpdate, e)
	}

	return stateFile{
		integrityViolationOnPreviousRun: violated,
		knownVersions:                   knownVersions,
		lastUpdateClients:               lastUpdate,
	}, nil
}

func writeString(buf *bytes.Buffer, s string) {
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(s)))
	buf.WriteString(s)
}

func writeBool(buf *bytes.Buffer, b bool) {
	if b {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func readString(r io.Reader) (string, error) {
	length, err := readUint32(r)
	if err != nil {
		return "", err
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}

	return string(buf), nil
}

func readBool(r io.Reader) (bool, error) {
	var b [1]byte

	if _, err := io.ReadFull(r, b[:]); err != nil {
		return false, err
	}

	return b[0] != 0, nil
}

func readUint32(r io.Reader) (uint32, error) {
	var v uint32

	err := binary.Read(r, binary.LittleEndian, &v)

	return v, err
}

func readUint64(r io.Reader) (uint64, error) {
	var v uint64

	err := binary.Read(r, binary.LittleEndian, &v)

	return v, err
}
