package heapdump

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the payload encoding of a dump.
type Compression uint8

const (
	// None stores the arena bytes as-is.
	None Compression = 0
	// LZ4 uses LZ4 block compression (fast, the default).
	LZ4 Compression = 1
	// Zstd uses Zstandard (better ratio for sparse arenas).
	Zstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression maps a name as returned by String back to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	default:
		return None, fmt.Errorf("heapdump: unknown compression %q", s)
	}
}

var errSizeMismatch = errors.New("heapdump: decompressed size mismatch")

const (
	// maxRawSize is the largest arena a dump may describe.
	maxRawSize uint64 = 1 << 36

	// An LZ4 sequence expands by at most 255 bytes per input byte, the densest
	// match-length encoding. The constant covers the trailing literals.
	lz4MaxRatio = 255
	lz4Slack    = 16

	// A zstd block decodes to at most 128 KiB and costs at least 4 bytes on
	// the wire (a 3 byte header plus one RLE byte).
	zstdMaxBlockSize = 128 << 10
	zstdMinBlockSize = 4
)

// maxDecodedSize returns the largest output a payload of payloadSize bytes
// can decode to under c, or 0 for an unknown compression.
func maxDecodedSize(c Compression, payloadSize int) uint64 {
	p := uint64(payloadSize)
	switch c {
	case None:
		return p
	case LZ4:
		return p*lz4MaxRatio + lz4Slack
	case Zstd:
		return (p/zstdMinBlockSize + 1) * zstdMaxBlockSize
	default:
		return 0
	}
}

// ZSTD encoder/decoder pools for efficiency
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxRawSize))
	return dec
}

// compress encodes data with c. When compression does not pay off the data is
// returned unchanged together with None, so the manifest always records the
// encoding actually used.
func compress(data []byte, c Compression) ([]byte, Compression, error) {
	if len(data) == 0 {
		return data, None, nil
	}

	var out []byte
	switch c {
	case None:
		return data, None, nil
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, None, err
		}
		out = buf[:n]
	case Zstd:
		enc := getZstdEncoder()
		out = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, None, fmt.Errorf("heapdump: unknown compression %d", uint8(c))
	}

	// Incompressible input (LZ4 reports n == 0) or a ratio above 0.9 is stored raw.
	if len(out) == 0 || float64(len(out)) > float64(len(data))*0.9 {
		return data, None, nil
	}
	return out, c, nil
}

func decompress(payload []byte, c Compression, rawSize int) ([]byte, error) {
	switch c {
	case None:
		if len(payload) != rawSize {
			return nil, errSizeMismatch
		}
		return payload, nil
	case LZ4:
		out := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, err
		}
		if n != rawSize {
			return nil, errSizeMismatch
		}
		return out, nil
	case Zstd:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(payload, make([]byte, 0, rawSize))
		if err != nil {
			return nil, err
		}
		if len(out) != rawSize {
			return nil, errSizeMismatch
		}
		return out, nil
	default:
		return nil, fmt.Errorf("heapdump: unknown compression %d", uint8(c))
	}
}
