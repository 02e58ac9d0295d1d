package heapdump

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/valloc/internal/hash"
	"github.com/hupe1980/valloc/testutil"
)

func TestCompress_RoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("hello arena! "), 1000)

	for _, c := range []Compression{LZ4, Zstd} {
		t.Run(c.String(), func(t *testing.T) {
			payload, used, err := compress(data, c)
			require.NoError(t, err)
			assert.Equal(t, c, used)
			assert.Less(t, len(payload), len(data)/2, "repeated data should compress well")

			out, err := decompress(payload, used, len(data))
			require.NoError(t, err)
			assert.Equal(t, data, out)
		})
	}
}

func TestCompress_IncompressibleStoredRaw(t *testing.T) {
	data := testutil.NewRNG(7).Bytes(4096)

	payload, used, err := compress(data, LZ4)
	require.NoError(t, err)
	assert.Equal(t, None, used)
	assert.Equal(t, data, payload)
}

func TestParseCompression(t *testing.T) {
	for _, c := range []Compression{None, LZ4, Zstd} {
		got, err := ParseCompression(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	_, err := ParseCompression("snappy")
	assert.Error(t, err)
}

func TestWriteRead(t *testing.T) {
	data := make([]byte, 8192)
	copy(data, "Hello")
	copy(data[4096:], "World")

	m := Manifest{
		Capacity:    uint64(len(data)),
		CreatedUnix: 1700000000,
		Chunks: []Chunk{
			{Base: 0, Size: 6, InUse: true},
			{Base: 6, Size: 8186},
		},
	}

	for _, c := range []Compression{None, LZ4, Zstd} {
		t.Run(c.String(), func(t *testing.T) {
			var buf bytes.Buffer
			n, err := Write(&buf, m, data, c)
			require.NoError(t, err)
			assert.Equal(t, int64(buf.Len()), n)

			got, out, err := Read(&buf)
			require.NoError(t, err)
			assert.Equal(t, data, out)
			assert.Equal(t, m.Chunks, got.Chunks)
			assert.Equal(t, m.Capacity, got.Capacity)
			assert.Equal(t, c, got.Compression)
			assert.Equal(t, int64(1700000000), got.CreatedUnix)
		})
	}
}

func TestRead_Corrupt(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 1024)

	var buf bytes.Buffer
	_, err := Write(&buf, Manifest{Capacity: 1024}, data, None)
	require.NoError(t, err)
	good := buf.Bytes()

	t.Run("bad magic", func(t *testing.T) {
		b := bytes.Clone(good)
		b[0] = 'X'
		_, _, err := Read(bytes.NewReader(b))
		assert.ErrorIs(t, err, ErrBadMagic)
	})

	t.Run("future version", func(t *testing.T) {
		b := bytes.Clone(good)
		b[4] = 9
		_, _, err := Read(bytes.NewReader(b))
		assert.ErrorIs(t, err, ErrUnsupportedVersion)
	})

	t.Run("flipped payload byte", func(t *testing.T) {
		b := bytes.Clone(good)
		b[len(b)-1] ^= 0xFF
		_, _, err := Read(bytes.NewReader(b))
		assert.ErrorIs(t, err, ErrChecksum)
	})

	t.Run("truncated", func(t *testing.T) {
		_, _, err := Read(bytes.NewReader(good[:len(good)-10]))
		assert.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		_, _, err := Read(bytes.NewReader(nil))
		assert.Error(t, err)
	})
}

// encodeFrame frames m and payload without any of the consistency checks Write
// applies, the way a damaged or hand-edited file would look.
func encodeFrame(t *testing.T, m Manifest, payload []byte) []byte {
	t.Helper()

	raw, err := encMode.Marshal(m)
	require.NoError(t, err)

	var hdr [headerSize]byte
	copy(hdr[:4], magic[:])
	binary.LittleEndian.PutUint16(hdr[4:], Version)
	binary.LittleEndian.PutUint32(hdr[6:], uint32(len(raw)))

	return append(append(hdr[:], raw...), payload...)
}

func TestRead_ImplausibleRawSize(t *testing.T) {
	data := make([]byte, 4096)

	for _, c := range []Compression{None, LZ4, Zstd} {
		t.Run(c.String(), func(t *testing.T) {
			payload, used, err := compress(data, c)
			require.NoError(t, err)
			require.Equal(t, c, used)

			m := Manifest{
				Compression: used,
				PayloadSize: uint64(len(payload)),
				Checksum:    hash.CRC32C(data),
			}

			t.Run("huge", func(t *testing.T) {
				m := m
				m.Capacity, m.RawSize = 1<<60, 1<<60
				_, _, err := Read(bytes.NewReader(encodeFrame(t, m, payload)))
				assert.ErrorIs(t, err, ErrRawSize)
			})

			t.Run("just above bound", func(t *testing.T) {
				m := m
				m.RawSize = min(maxDecodedSize(used, len(payload)), maxRawSize) + 1
				m.Capacity = m.RawSize
				_, _, err := Read(bytes.NewReader(encodeFrame(t, m, payload)))
				assert.ErrorIs(t, err, ErrRawSize)
			})

			t.Run("honest", func(t *testing.T) {
				m := m
				m.Capacity, m.RawSize = 4096, 4096
				_, got, err := Read(bytes.NewReader(encodeFrame(t, m, payload)))
				require.NoError(t, err)
				assert.Equal(t, data, got)
			})
		})
	}
}

func TestMaxDecodedSize(t *testing.T) {
	assert.Equal(t, uint64(100), maxDecodedSize(None, 100))
	assert.Equal(t, uint64(100*lz4MaxRatio+lz4Slack), maxDecodedSize(LZ4, 100))
	assert.Equal(t, uint64(26*zstdMaxBlockSize), maxDecodedSize(Zstd, 100))
	assert.Equal(t, uint64(0), maxDecodedSize(Compression(9), 100))
}
