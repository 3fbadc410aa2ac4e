// Package cache provides content-addressable stores for memoized results.
//
// A Key is the blake3-256 digest of a canonical encoding of every input
// that affects a result. Stores map keys to opaque byte values and never
// interpret them.
package cache

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"

	"lukechampine.com/blake3"
)

// KeySize is the length of a Key in bytes.
const KeySize = 32

// Key identifies a cached value by the digest of its inputs.
type Key [KeySize]byte

// String returns the key as lowercase hex.
func (k Key) String() string { return hex.EncodeToString(k[:]) }

// Stats reports lookup counters.
type Stats struct {
	Hits   int64
	Misses int64
}

// Store is a content-addressable byte store. Implementations are safe for
// concurrent use. Returned slices must be treated as read-only.
type Store interface {
	// Get returns the value for key. ok is false on a miss; err is reserved
	// for backend failures. A store may return ok with a non-nil err when
	// the value was found but a secondary write failed.
	Get(ctx context.Context, key Key) (value []byte, ok bool, err error)
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key Key, value []byte) error
	// Stats returns hit and miss counts since the store was opened.
	Stats() Stats
	// Close releases resources held by the store.
	Close() error
}

// Hasher builds a Key from typed fields. Every field is written with a
// fixed-width or length-prefixed encoding so distinct inputs never collide
// by concatenation.
type Hasher struct {
	h   hash.Hash
	buf [8]byte
}

// NewHasher returns a Hasher over blake3-256.
func NewHasher() *Hasher {
	return &Hasher{h: blake3.New(KeySize, nil)}
}

// Uint64 writes v as 8 little-endian bytes.
func (h *Hasher) Uint64(v uint64) *Hasher {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	h.h.Write(h.buf[:])
	return h
}

// Int writes v as a signed 64-bit value.
func (h *Hasher) Int(v int) *Hasher { return h.Uint64(uint64(int64(v))) }

// Float64 writes the IEEE-754 bits of v.
func (h *Hasher) Float64(v float64) *Hasher { return h.Uint64(math.Float64bits(v)) }

// Float64s writes a length prefix followed by the bits of every value.
func (h *Hasher) Float64s(vs []float64) *Hasher {
	h.Int(len(vs))
	for _, v := range vs {
		h.Float64(v)
	}
	return h
}

// Bool writes a single byte.
func (h *Hasher) Bool(v bool) *Hasher {
	if v {
		h.buf[0] = 1
	} else {
		h.buf[0] = 0
	}
	h.h.Write(h.buf[:1])
	return h
}

// String writes a length prefix followed by the bytes of s.
func (h *Hasher) String(s string) *Hasher {
	h.Int(len(s))
	h.h.Write([]byte(s))
	return h
}

// Sum returns the key for everything written so far.
func (h *Hasher) Sum() Key {
	var k Key
	copy(k[:], h.h.Sum(nil))
	return k
}
