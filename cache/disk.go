package cache

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// Disk is a Store that keeps one file per key under a root directory,
// fanned out by the first two hex characters of the key. Writes go to a
// temporary file that is renamed into place, so readers never see a
// partial value.
type Disk struct {
	root        string
	compression Compression

	hits   atomic.Int64
	misses atomic.Int64
}

// DiskOption configures a Disk store.
type DiskOption func(*Disk)

// WithCompression sets the codec used for new values. Existing files are
// read with whatever codec they were written with.
func WithCompression(c Compression) DiskOption {
	return func(d *Disk) { d.compression = c }
}

// OpenDisk opens (creating if needed) a disk store rooted at dir.
func OpenDisk(dir string, opts ...DiskOption) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating cache directory %s", dir)
	}
	d := &Disk{root: dir, compression: CompressionZstd}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *Disk) path(key Key) string {
	name := key.String()
	return filepath.Join(d.root, name[:2], name+".bin")
}

// Get reads and decompresses the value for key.
func (d *Disk) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	block, err := os.ReadFile(d.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		d.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "reading cache entry %s", key)
	}
	value, err := decompressBlock(block)
	if err != nil {
		return nil, false, errors.Wrapf(err, "cache entry %s", key)
	}
	d.hits.Add(1)
	return value, true, nil
}

// Put compresses and writes value under key.
func (d *Disk) Put(ctx context.Context, key Key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	block, err := compressBlock(value, d.compression)
	if err != nil {
		return err
	}

	final := d.path(key)
	dir := filepath.Dir(final)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(block); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(err, "writing %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "closing %s", tmpName)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "renaming into %s", final)
	}
	return nil
}

// Stats returns hit and miss counts.
func (d *Disk) Stats() Stats {
	return Stats{Hits: d.hits.Load(), Misses: d.misses.Load()}
}

// Root returns the store's directory.
func (d *Disk) Root() string { return d.root }

func (d *Disk) Close() error { return nil }
