package integrity

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/cryfs/cryfs-sub001/internal/fsx"
	"github.com/cryfs/cryfs-sub001/pkg/blockid"
	"github.com/cryfs/cryfs-sub001/pkg/blockstore"
)

// clientIDDeleted is the sentinel last_update_client value recorded
// when a block is removed: it can never be a real client id (client
// ids are generated nonzero), so its presence in LastUpdateClient
// unambiguously means "this id was deleted, not merely never seen".
const clientIDDeleted uint32 = 0

type versionKey struct {
	clientID uint32
	blockID  blockid.BlockId
}

// KnownBlockVersions is the only persisted state the integrity layer
// owns: the highest version seen from every (client, block) pair, and
// which client most recently wrote each block. Its lifecycle must
// bracket every operation issued through [Store] -- load it before
// constructing the store, and [Close] it only after the store (and
// everything above it) has stopped issuing calls.
type KnownBlockVersions struct {
	mu sync.Mutex

	myClientID                      uint32
	knownVersions                   map[versionKey]uint64
	lastUpdateClient                map[blockid.BlockId]uint32
	integrityViolationOnPreviousRun bool

	statePath string
	fs        fsx.FS
	writer    *fsx.AtomicWriter
}

// LoadOrCreate loads the state file at statePath, or creates a fresh,
// empty state (with a newly generated client id) if it does not
// exist. It fails if the loaded state records that a previous run
// observed an integrity violation; use
// [LoadOrCreateIgnoringPreviousViolation] to mount anyway.
func LoadOrCreate(statePath string, fs fsx.FS) (*KnownBlockVersions, error) {
	return loadOrCreate(statePath, fs, false)
}

// LoadOrCreateIgnoringPreviousViolation is [LoadOrCreate] but proceeds
// even if the loaded state's integrity_violation_on_previous_run flag
// is set. Callers should only use this after an operator has
// acknowledged the prior violation.
func LoadOrCreateIgnoringPreviousViolation(statePath string, fs fsx.FS) (*KnownBlockVersions, error) {
	return loadOrCreate(statePath, fs, true)
}

func loadOrCreate(statePath string, fs fsx.FS, ignorePreviousViolation bool) (*KnownBlockVersions, error) {
	exists, err := fs.Exists(statePath)
	if err != nil {
		return nil, fmt.Errorf("integrity: stat state file: %w", err)
	}

	if !exists {
		clientID, err := newClientID()
		if err != nil {
			return nil, err
		}

		return &KnownBlockVersions{
			myClientID:        clientID,
			knownVersions:     make(map[versionKey]uint64),
			lastUpdateClient:  make(map[blockid.BlockId]uint32),
			statePath:         statePath,
			fs:                fs,
			writer:            fsx.NewAtomicWriter(fs),
		}, nil
	}

	raw, err := fs.ReadFile(statePath)
	if err != nil {
		return nil, fmt.Errorf("integrity: read state file: %w", err)
	}

	sf, err := decodeState(raw)
	if err != nil {
		return nil, err
	}

	if sf.integrityViolationOnPreviousRun && !ignorePreviousViolation {
		return nil, fmt.Errorf("%w: a previous run recorded an integrity violation that was never acknowledged", blockstore.ErrIntegrityViolation)
	}

	clientID, err := newClientID()
	if err != nil {
		return nil, err
	}

	knownVersions := make(map[versionKey]uint64, len(sf.knownVersions))
	for _, e := range sf.knownVersions {
		knownVersions[versionKey{clientID: e.clientID, blockID: e.blockID}] = e.version
	}

	lastUpdateClient := make(map[blockid.BlockId]uint32, len(sf.lastUpdateClients))
	for _, e := range sf.lastUpdateClients {
		lastUpdateClient[e.blockID] = e.client
	}

	return &KnownBlockVersions{
		myClientID:                      clientID,
		knownVersions:                   knownVersions,
		lastUpdateClient:                lastUpdateClient,
		integrityViolationOnPreviousRun: sf.integrityViolationOnPreviousRun,
		statePath:                       statePath,
		fs:                              fs,
		writer:                          fsx.NewAtomicWriter(fs),
	}, nil
}

// newClientID generates a random nonzero client id: 0 is reserved as
// the "deleted" sentinel in last_update_client.
func newClientID() (uint32, error) {
	for {
		var buf [4]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("integrity: generate client id: %w", err)
		}

		id := binary.LittleEndian.Uint32(buf[:])
		if id != clientIDDeleted {
			return id, nil
		}
	}
}

// MyClientID returns the client id this instance writes blocks under.
func (k *KnownBlockVersions) MyClientID() uint32 {
	return k.myClientID
}

// IntegrityViolationOnPreviousRun reports whether the loaded state
// recorded an unacknowledged violation from a previous run.
func (k *KnownBlockVersions) IntegrityViolationOnPreviousRun() bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.integrityViolationOnPreviousRun
}

// MarkIntegrityViolation sets the sticky on-previous-run flag and
// persists it immediately, so the violation survives even a crash
// that follows right after it is detected.
func (k *KnownBlockVersions) MarkIntegrityViolation() error {
	k.mu.Lock()
	k.integrityViolationOnPreviousRun = true
	k.mu.Unlock()

	return k.Save()
}

// IncrementVersion advances the version counter for (myClientID, id)
// and records myClientID as the block's last writer, returning the
// new version. Fails with blockstore.ErrLogicError on overflow.
func (k *KnownBlockVersions) IncrementVersion(id blockid.BlockId) (uint64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	key := versionKey{clientID: k.myClientID, blockID: id}
	cur := k.knownVersions[key]

	if cur == math.MaxUint64 {
		return 0, fmt.Errorf("%w: version counter overflow for block %s", blockstore.ErrLogicError, id)
	}

	next := cur + 1
	k.knownVersions[key] = next
	k.lastUpdateClient[id] = k.myClientID

	return next, nil
}

// CheckAndUpdateVersion validates an on-disk (writer, version) pair
// read back for id against the highest version previously known from
// that writer. It rejects a rollback (version below what's known from
// that writer) and a stale rewrite (the writer's last known version
// again, while a different client is recorded as the block's last
// writer -- i.e. a superseded write being replayed). On accept,
// it records the new high-water mark and writer.
func (k *KnownBlockVersions) CheckAndUpdateVersion(writer uint32, id blockid.BlockId, version uint64) (accepted bool, reason string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	key := versionKey{clientID: writer, blockID: id}
	known := k.knownVersions[key]

	if version < known {
		return false, fmt.Sprintf("rollback: block %s from client %d has version %d, last known version is %d", id, writer, version, known)
	}

	if version == known {
		if last, ok := k.lastUpdateClient[id]; ok && last != writer {
			return false, fmt.Sprintf("stale write: block %s at version %d was last written by client %d, not client %d", id, version, last, writer)
		}
	}

	k.knownVersions[key] = version
	k.lastUpdateClient[id] = writer

	return true, ""
}

// MarkDeleted records id as deleted: a later on-disk reappearance
// under any writer is then a rebinding/rollback rather than a fresh
// write, because last_update_client no longer names a real client.
func (k *KnownBlockVersions) MarkDeleted(id blockid.BlockId) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.lastUpdateClient[id] = clientIDDeleted
}

// ExistingBlocks returns every block id this instance believes
// currently exists on the backend: present in last_update_client and
// not marked deleted. [Store.ForEachBlock] uses this, under
// exclusive-client mode, to detect a block this client wrote that a
// full backend scan never turned up. Guarded by the same mutex as
// CheckAndUpdateVersion/IncrementVersion/MarkDeleted.
func (k *KnownBlockVersions) ExistingBlocks() []blockid.BlockId {
	k.mu.Lock()
	defer k.mu.Unlock()

	ids := make([]blockid.BlockId, 0, len(k.lastUpdateClient))

	for id, client := range k.lastUpdateClient {
		if client != clientIDDeleted {
			ids = append(ids, id)
		}
	}

	return ids
}

// LastUpdateClient returns the client id that most recently wrote id,
// and whether id has ever been observed at all. A present but
// clientIDDeleted entry means id was deleted, not merely unseen.
func (k *KnownBlockVersions) LastUpdateClient(id blockid.BlockId) (client uint32, known bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	client, known = k.lastUpdateClient[id]

	return client, known
}

// Save persists the current state atomically.
func (k *KnownBlockVersions) Save() error {
	k.mu.Lock()

	sf := stateFile{integrityViolationOnPreviousRun: k.integrityViolationOnPreviousRun}

	for key, version := range k.knownVersions {
		sf.knownVersions = append(sf.knownVersions, knownVersionEntry{clientID: key.clientID, blockID: key.blockID, version: version})
	}

	for id, client := range k.lastUpdateClient {
		sf.lastUpdateClients = append(sf.lastUpdateClients, lastUpdateEntry{blockID: id, client: client})
	}

	k.mu.Unlock()

	raw := encodeState(sf)

	return k.writer.WriteWithDefaults(k.statePath, bytes.NewReader(raw))
}

// Close persists the current state. It is the closing half of the
// bracket described on [KnownBlockVersions]; callers should invoke it
// once, after every operation through the integrity store has
// completed.
func (k *KnownBlockVersions) Close() error {
	return k.Save()
}
