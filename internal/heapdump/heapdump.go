// Package heapdump encodes arena snapshots for offline inspection.
//
// A dump is laid out as
//
//	magic "VDMP" | version uint16 | manifest length uint32 | CBOR manifest | payload
//
// with little-endian integers. The manifest carries the chunk table and
// describes how the payload (the raw arena bytes) was compressed.
package heapdump

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/hupe1980/valloc/internal/conv"
	"github.com/hupe1980/valloc/internal/hash"
)

const (
	// Version is the current format version.
	Version    uint16 = 1
	headerSize        = 10

	// maxManifestSize bounds the manifest a reader is willing to decode.
	maxManifestSize = 64 << 20
)

var magic = [4]byte{'V', 'D', 'M', 'P'}

var (
	// ErrBadMagic is returned when the input does not start with a dump header.
	ErrBadMagic = errors.New("heapdump: bad magic")
	// ErrUnsupportedVersion is returned for dumps written by a newer format.
	ErrUnsupportedVersion = errors.New("heapdump: unsupported version")
	// ErrChecksum is returned when the decoded payload does not match the manifest.
	ErrChecksum = errors.New("heapdump: checksum mismatch")
	// ErrRawSize is returned when the manifest claims more arena bytes than
	// the payload can decode to.
	ErrRawSize = errors.New("heapdump: implausible raw size")
)

var encMode = func() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Chunk is one entry of the chunk table.
type Chunk struct {
	Base  uint64 `cbor:"1,keyasint"`
	Size  uint64 `cbor:"2,keyasint"`
	InUse bool   `cbor:"3,keyasint"`
}

// Manifest describes a dump.
type Manifest struct {
	Capacity    uint64      `cbor:"1,keyasint"`
	Compression Compression `cbor:"2,keyasint"`
	RawSize     uint64      `cbor:"3,keyasint"`
	PayloadSize uint64      `cbor:"4,keyasint"`
	Checksum    uint32      `cbor:"5,keyasint"` // CRC32-C of the raw arena bytes
	CreatedUnix int64       `cbor:"6,keyasint"`
	Chunks      []Chunk     `cbor:"7,keyasint"`
}

// Write encodes a dump of data to w. The Compression, RawSize, PayloadSize and
// Checksum fields of m are filled in by Write. It returns the number of bytes
// written.
func Write(w io.Writer, m Manifest, data []byte, c Compression) (int64, error) {
	if uint64(len(data)) > maxRawSize {
		return 0, fmt.Errorf("heapdump: %d bytes exceed the %d byte dump limit", len(data), maxRawSize)
	}

	payload, used, err := compress(data, c)
	if err != nil {
		return 0, fmt.Errorf("heapdump: compress: %w", err)
	}

	m.Compression = used
	m.RawSize = uint64(len(data))
	m.PayloadSize = uint64(len(payload))
	m.Checksum = hash.CRC32C(data)

	manifest, err := encMode.Marshal(m)
	if err != nil {
		return 0, fmt.Errorf("heapdump: encode manifest: %w", err)
	}

	var hdr [headerSize]byte
	copy(hdr[:4], magic[:])
	binary.LittleEndian.PutUint16(hdr[4:], Version)
	binary.LittleEndian.PutUint32(hdr[6:], uint32(len(manifest)))

	var written int64
	for _, part := range [][]byte{hdr[:], manifest, payload} {
		n, err := w.Write(part)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// Read decodes a dump from r and returns its manifest and the raw arena bytes.
func Read(r io.Reader) (Manifest, []byte, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Manifest{}, nil, fmt.Errorf("heapdump: read header: %w", err)
	}
	if [4]byte(hdr[:4]) != magic {
		return Manifest{}, nil, ErrBadMagic
	}
	if v := binary.LittleEndian.Uint16(hdr[4:]); v != Version {
		return Manifest{}, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}

	size := binary.LittleEndian.Uint32(hdr[6:])
	if size > maxManifestSize {
		return Manifest{}, nil, fmt.Errorf("heapdump: manifest of %d bytes exceeds limit", size)
	}
	raw := make([]byte, size)
	if _, err := io.ReadFull(r, raw); err != nil {
		return Manifest{}, nil, fmt.Errorf("heapdump: read manifest: %w", err)
	}

	var m Manifest
	if err := cbor.Unmarshal(raw, &m); err != nil {
		return Manifest{}, nil, fmt.Errorf("heapdump: decode manifest: %w", err)
	}
	if m.RawSize != m.Capacity {
		return Manifest{}, nil, fmt.Errorf("heapdump: payload covers %d of %d bytes", m.RawSize, m.Capacity)
	}
	rawSize, err := conv.Uint64ToInt(m.RawSize)
	if err != nil {
		return Manifest{}, nil, fmt.Errorf("heapdump: raw size: %w", err)
	}
	payloadSize, err := conv.Uint64ToInt64(m.PayloadSize)
	if err != nil {
		return Manifest{}, nil, fmt.Errorf("heapdump: payload size: %w", err)
	}

	payload, err := io.ReadAll(io.LimitReader(r, payloadSize))
	if err != nil {
		return Manifest{}, nil, fmt.Errorf("heapdump: read payload: %w", err)
	}
	if uint64(len(payload)) != m.PayloadSize {
		return Manifest{}, nil, fmt.Errorf("heapdump: read payload: %w", io.ErrUnexpectedEOF)
	}

	// The checksum only covers decoded bytes, so the claimed size is bounded by
	// what the payload can expand to before anything is allocated for it.
	if limit := maxDecodedSize(m.Compression, len(payload)); m.RawSize > min(limit, maxRawSize) {
		return Manifest{}, nil, fmt.Errorf("%w: %d bytes from a %d byte %s payload",
			ErrRawSize, m.RawSize, len(payload), m.Compression)
	}

	data, err := decompress(payload, m.Compression, rawSize)
	if err != nil {
		return Manifest{}, nil, fmt.Errorf("heapdump: decompress: %w", err)
	}
	if hash.CRC32C(data) != m.Checksum {
		return Manifest{}, nil, ErrChecksum
	}

	return m, data, nil
}
