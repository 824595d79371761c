package physical

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/cryfs/cryfs-sub001/internal/fsx"
	"github.com/cryfs/cryfs-sub001/pkg/blockid"
	"github.com/cryfs/cryfs-sub001/pkg/blockstore"
)

// fileHeaderPrefix is the literal ASCII prefix every block file on
// disk begins with. The trailing byte distinguishes format revisions;
// "0" is the only one this build understands.
const (
	fileHeaderPrefix      = "cryfs;block;"
	fileHeaderVersionByte = '0'
	fileHeader            = fileHeaderPrefix + string(fileHeaderVersionByte) + "\x00"
	fileHeaderSize        = len(fileHeaderPrefix) + 2 // version byte + NUL
)

const hexDigits = "0123456789ABCDEF"

// OnDisk stores one file per block under rootDir, split into a
// 3-hex-char directory and a 29-hex-char filename to keep any single
// directory small.
//
//	rootDir/
//	  <3 hex>/
//	    <29 hex>
type OnDisk struct {
	rootDir string
	fs      fsx.FS
	writer  *fsx.AtomicWriter
}

// NewOnDisk returns an OnDisk backend rooted at dir, using fsys for
// all file I/O. dir must already exist.
func NewOnDisk(dir string, fsys fsx.FS) *OnDisk {
	return &OnDisk{
		rootDir: dir,
		fs:      fsys,
		writer:  fsx.NewAtomicWriter(fsys),
	}
}

func blockPath(rootDir string, id blockid.BlockId) string {
	hexID := id.String()

	return filepath.Join(rootDir, hexID[:3], hexID[3:])
}

func (d *OnDisk) TryCreate(id blockid.BlockId, data blockstore.Data) (bool, error) {
	path := blockPath(d.rootDir, id)

	if err := d.fs.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, fmt.Errorf("physical: mkdir: %w", err)
	}

	f, err := d.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("physical: create block file: %w", err)
	}

	if err := writeBlockFile(f, data); err != nil {
		_ = f.Close()
		_ = d.fs.Remove(path)

		return false, err
	}

	return true, nil
}

func (d *OnDisk) Store(id blockid.BlockId, data blockstore.Data) error {
	path := blockPath(d.rootDir, id)

	if err := d.fs.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("physical: mkdir: %w", err)
	}

	buf := make([]byte, 0, fileHeaderSize+len(data))
	buf = append(buf, fileHeader...)
	buf = append(buf, data...)

	return d.writer.Write(path, bytes.NewReader(buf), fsx.AtomicWriteOptions{SyncDir: true, Perm: 0o600})
}

func writeBlockFile(f fsx.File, data blockstore.Data) error {
	if _, err := f.Write([]byte(fileHeader)); err != nil {
		return fmt.Errorf("physical: write header: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("physical: write payload: %w", err)
	}

	if err := f.Sync(); err != nil {
		return fmt.Errorf("physical: sync: %w", err)
	}

	return f.Close()
}

func (d *OnDisk) Load(id blockid.BlockId) (blockstore.Data, bool, error) {
	path := blockPath(d.rootDir, id)

	raw, err := d.fs.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("physical: read block file: %w", err)
	}

	payload, err := stripFileHeader(raw)
	if err != nil {
		return nil, false, err
	}

	return payload, true, nil
}

// stripFileHeader validates the fixed ASCII header and returns the
// payload that follows it. A header carrying the accepted prefix but a
// different version byte means the filesystem was written by a newer
// release -- a hard error, not a missing-block return.
func stripFileHeader(raw []byte) ([]byte, error) {
	if len(raw) < fileHeaderSize {
		return nil, fmt.Errorf("physical: %w: file too small", blockstore.ErrUnsupportedFormat)
	}

	if !bytes.HasPrefix(raw, []byte(fileHeaderPrefix)) {
		return nil, fmt.Errorf("physical: %w: missing block header", blockstore.ErrUnsupportedFormat)
	}

	if raw[len(fileHeaderPrefix)] != fileHeaderVersionByte {
		return nil, fmt.Errorf("physical: %w: block file from a newer filesystem version", blockstore.ErrUnsupportedFormat)
	}

	if raw[fileHeaderSize-1] != 0 {
		return nil, fmt.Errorf("physical: %w: malformed block header", blockstore.ErrUnsupportedFormat)
	}

	return raw[fileHeaderSize:], nil
}

func (d *OnDisk) Remove(id blockid.BlockId) (bool, error) {
	path := blockPath(d.rootDir, id)

	err := d.fs.Remove(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("physical: remove block file: %w", err)
	}

	return true, nil
}

func (d *OnDisk) NumBlocks() (uint64, error) {
	var count uint64

	err := d.ForEachBlock(func(blockid.BlockId) error {
		count++

		return nil
	})

	return count, err
}

// EstimateNumFreeBytes reports the backing filesystem's free space via
// statfs.
func (d *OnDisk) EstimateNumFreeBytes() (uint64, error) {
	var stat unix.Statfs_t

	if err := unix.Statfs(d.rootDir, &stat); err != nil {
		return 0, fmt.Errorf("physical: statfs: %w", err)
	}

	//nolint:gosec // Bsize/Bavail are platform-dependent signed/unsigned widths; free space is never negative in practice.
	return uint64(stat.Bsize) * stat.Bavail, nil
}

// BlockSizeFromPhysicalBlockSize subtracts the fixed on-disk file
// header, clamped at zero.
func (d *OnDisk) BlockSizeFromPhysicalBlockSize(n uint64) uint64 {
	if n < uint64(fileHeaderSize) {
		return 0
	}

	return n - uint64(fileHeaderSize)
}

func (d *OnDisk) ForEachBlock(cb func(blockid.BlockId) error) error {
	topEntries, err := d.fs.ReadDir(d.rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("physical: read root dir: %w", err)
	}

	for _, topEntry := range topEntries {
		if !topEntry.IsDir() || !isHexString(topEntry.Name(), 3) {
			continue
		}

		subDir := filepath.Join(d.rootDir, topEntry.Name())

		subEntries, err := d.fs.ReadDir(subDir)
		if err != nil {
			return fmt.Errorf("physical: read block dir %q: %w", subDir, err)
		}

		for _, subEntry := range subEntries {
			if subEntry.IsDir() || !isHexString(subEntry.Name(), blockid.Size*2-3) {
				continue
			}

			id, err := blockid.Parse(topEntry.Name() + subEntry.Name())
			if err != nil {
				continue
			}

			if err := cb(id); err != nil {
				return err
			}
		}
	}

	return nil
}

func isHexString(s string, wantLen int) bool {
	if len(s) != wantLen {
		return false
	}

	return strings.IndexFunc(s, func(r rune) bool {
		return !strings.ContainsRune(hexDigits, r)
	}) == -1
}

var _ blockstore.Store2 = (*OnDisk)(nil)
