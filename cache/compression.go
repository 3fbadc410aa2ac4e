package cache

import (
	"encoding/binary"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how the disk store encodes values.
type Compression uint8

const (
	// CompressionNone stores values as-is.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 Compression = 1
	// CompressionZstd uses zstd (better ratio). The default.
	CompressionZstd Compression = 2
)

// ParseCompression maps "none", "lz4" and "zstd" to a Compression.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd", "":
		return CompressionZstd, nil
	default:
		return 0, errors.Newf("cache: unknown compression %q", name)
	}
}

var errCorruptBlock = errors.New("cache: corrupt block")

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, errors.Wrap(err, "zstd encoder")
	}
	return enc, nil
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "zstd decoder")
	}
	return dec, nil
}

// Block format: [type uint8][uncompressed uint32][payload...]. Payloads
// that do not shrink are stored with type CompressionNone.
const blockHeaderSize = 5

func compressBlock(data []byte, c Compression) ([]byte, error) {
	var payload []byte
	switch c {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, errors.Wrap(err, "lz4 compress")
		}
		payload = buf[:n]
	case CompressionZstd:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, err
		}
		payload = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	}

	if len(payload) == 0 || len(payload) >= len(data) {
		c, payload = CompressionNone, data
	}

	out := make([]byte, blockHeaderSize+len(payload))
	out[0] = byte(c)
	binary.LittleEndian.PutUint32(out[1:], uint32(len(data)))
	copy(out[blockHeaderSize:], payload)
	return out, nil
}

func decompressBlock(block []byte) ([]byte, error) {
	if len(block) < blockHeaderSize {
		return nil, errors.Wrap(errCorruptBlock, "block too small for header")
	}
	size := binary.LittleEndian.Uint32(block[1:])
	payload := block[blockHeaderSize:]

	switch Compression(block[0]) {
	case CompressionNone:
		if uint32(len(payload)) != size {
			return nil, errors.Wrapf(errCorruptBlock, "stored %d bytes, header says %d", len(payload), size)
		}
		return payload, nil
	case CompressionLZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, errors.Wrapf(errCorruptBlock, "lz4 decompress: %v", err)
		}
		if uint32(n) != size {
			return nil, errors.Wrap(errCorruptBlock, "decompressed size mismatch")
		}
		return out, nil
	case CompressionZstd:
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, err
		}
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(payload, make([]byte, 0, size))
		if err != nil {
			return nil, errors.Wrapf(errCorruptBlock, "zstd decompress: %v", err)
		}
		if uint32(len(out)) != size {
			return nil, errors.Wrap(errCorruptBlock, "decompressed size mismatch")
		}
		return out, nil
	default:
		return nil, errors.Wrapf(errCorruptBlock, "unknown compression %d", block[0])
	}
}
