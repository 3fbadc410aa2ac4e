package hdbscan

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/cockroachdb/errors"
)

// Cached results are encoded as:
//
//	magic   [4]byte "HDBK"
//	version uint16
//	merges  uint64, then per merge: left, right int64; distance float64; size int64
//	hasMST  uint8
//	edges   uint64, then per edge: source, target int64; weight float64
//
// All integers are little-endian.
var codecMagic = [4]byte{'H', 'D', 'B', 'K'}

const codecVersion uint16 = 1

// encodeResult serializes a tree and optional spanning tree for caching.
func encodeResult(tree SingleLinkageTree, mst []Edge) []byte {
	size := 4 + 2 + 8 + len(tree)*32 + 1 + 8 + len(mst)*24
	buf := make([]byte, 0, size)

	buf = append(buf, codecMagic[:]...)
	buf = binary.LittleEndian.AppendUint16(buf, codecVersion)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(tree)))
	for _, m := range tree {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(int64(m.Left)))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(int64(m.Right)))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(m.Distance))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(int64(m.Size)))
	}

	if mst == nil {
		buf = append(buf, 0)
		return binary.LittleEndian.AppendUint64(buf, 0)
	}
	buf = append(buf, 1)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(mst)))
	for _, e := range mst {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(int64(e.Source)))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(int64(e.Target)))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(e.Weight))
	}
	return buf
}

// decodeResult is the inverse of encodeResult. Any malformed input returns
// ErrCorruptCacheEntry.
func decodeResult(b []byte) (SingleLinkageTree, []Edge, error) {
	r := bytes.NewReader(b)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil || magic != codecMagic {
		return nil, nil, errors.Wrap(ErrCorruptCacheEntry, "bad magic")
	}
	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, nil, errors.Wrap(ErrCorruptCacheEntry, "truncated header")
	}
	if version != codecVersion {
		return nil, nil, errors.Wrapf(ErrCorruptCacheEntry, "version %d, want %d", version, codecVersion)
	}

	count, err := readCount(r, 32)
	if err != nil {
		return nil, nil, err
	}
	tree := make(SingleLinkageTree, count)
	for i := range tree {
		var row [4]uint64
		if err := binary.Read(r, binary.LittleEndian, &row); err != nil {
			return nil, nil, errors.Wrapf(ErrCorruptCacheEntry, "merge %d truncated", i)
		}
		tree[i] = Merge{
			Left:     int(int64(row[0])),
			Right:    int(int64(row[1])),
			Distance: math.Float64frombits(row[2]),
			Size:     int(int64(row[3])),
		}
	}

	hasMST, err := r.ReadByte()
	if err != nil || hasMST > 1 {
		return nil, nil, errors.Wrap(ErrCorruptCacheEntry, "bad spanning tree flag")
	}
	count, err = readCount(r, 24)
	if err != nil {
		return nil, nil, err
	}
	var mst []Edge
	if hasMST == 1 {
		mst = make([]Edge, count)
		for i := range mst {
			var row [3]uint64
			if err := binary.Read(r, binary.LittleEndian, &row); err != nil {
				return nil, nil, errors.Wrapf(ErrCorruptCacheEntry, "edge %d truncated", i)
			}
			mst[i] = Edge{
				Source: int(int64(row[0])),
				Target: int(int64(row[1])),
				Weight: math.Float64frombits(row[2]),
			}
		}
	} else if count != 0 {
		return nil, nil, errors.Wrap(ErrCorruptCacheEntry, "edges present without spanning tree flag")
	}

	if r.Len() != 0 {
		return nil, nil, errors.Wrapf(ErrCorruptCacheEntry, "%d trailing bytes", r.Len())
	}
	return tree, mst, nil
}

// readCount reads a row count and checks it against the bytes left.
func readCount(r *bytes.Reader, rowSize int) (int, error) {
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return 0, errors.Wrap(ErrCorruptCacheEntry, "truncated count")
	}
	if count > uint64(r.Len()/rowSize) {
		return 0, errors.Wrapf(ErrCorruptCacheEntry, "count %d exceeds payload", count)
	}
	return int(count), nil
}
