package valloc

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hupe1980/valloc/internal/conv"
	"github.com/hupe1980/valloc/internal/heapdump"
	"github.com/hupe1980/valloc/resource"
)

// Compression selects how Dump encodes the arena bytes.
type Compression = heapdump.Compression

const (
	CompressionNone = heapdump.None
	CompressionLZ4  = heapdump.LZ4
	CompressionZstd = heapdump.Zstd
)

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) {
	return heapdump.ParseCompression(s)
}

type dumpOptions struct {
	compression Compression
	now         func() time.Time
}

// DumpOption configures Dump.
type DumpOption func(*dumpOptions)

// WithCompression sets the payload compression. The default is LZ4. Data that
// does not compress is stored raw regardless.
func WithCompression(c Compression) DumpOption {
	return func(o *dumpOptions) {
		o.compression = c
	}
}

// Dump writes a snapshot of the chunk table and the arena bytes to w for
// offline inspection. Writes are throttled by the IO limit of the resource
// controller given to WithResourceController. It returns the number of bytes
// written.
//
// Dumps cannot be loaded back into an allocator.
func (a *Allocator) Dump(ctx context.Context, w io.Writer, optFns ...DumpOption) (int64, error) {
	opts := dumpOptions{compression: CompressionLZ4, now: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}

	n, err := a.dump(ctx, w, opts)
	a.logger.LogDump(ctx, n, opts.compression, err)
	return n, err
}

func (a *Allocator) dump(ctx context.Context, w io.Writer, opts dumpOptions) (int64, error) {
	if err := a.usable(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	capacity, err := conv.IntToUint64(a.ledger.Capacity())
	if err != nil {
		return 0, err
	}
	chunks := a.ledger.Chunks()
	m := heapdump.Manifest{
		Capacity:    capacity,
		CreatedUnix: opts.now().Unix(),
		Chunks:      make([]heapdump.Chunk, len(chunks)),
	}
	for i, c := range chunks {
		base, err := conv.IntToUint64(c.Base)
		if err != nil {
			return 0, fmt.Errorf("chunk %d: %w", i, err)
		}
		size, err := conv.IntToUint64(c.Size)
		if err != nil {
			return 0, fmt.Errorf("chunk %d: %w", i, err)
		}
		m.Chunks[i] = heapdump.Chunk{Base: base, Size: size, InUse: c.InUse}
	}

	rw := resource.NewRateLimitedWriter(ctx, w, a.opts.resources)
	return heapdump.Write(rw, m, a.arena.Bytes(), opts.compression)
}

// DumpImage is a decoded heap dump.
type DumpImage struct {
	Capacity    int
	Compression Compression
	CreatedAt   time.Time
	Chunks      []ChunkInfo
	Data        []byte
}

// Bytes returns the arena bytes covered by c, which must be one of d.Chunks.
func (d *DumpImage) Bytes(c ChunkInfo) []byte {
	return d.Data[c.Base:c.End():c.End()]
}

// InUse returns the bytes held by allocated chunks.
func (d *DumpImage) InUse() int {
	n := 0
	for _, c := range d.Chunks {
		if c.InUse {
			n += c.Size
		}
	}
	return n
}

// ReadDump decodes a dump written by Allocator.Dump. Failures to parse the
// input are reported as ErrCorruptDump.
func ReadDump(r io.Reader) (*DumpImage, error) {
	m, data, err := heapdump.Read(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptDump, err)
	}

	img := &DumpImage{
		Capacity:    int(m.Capacity),
		Compression: m.Compression,
		CreatedAt:   time.Unix(m.CreatedUnix, 0),
		Chunks:      make([]ChunkInfo, len(m.Chunks)),
		Data:        data,
	}

	next := uint64(0)
	for i, c := range m.Chunks {
		if c.Base != next || c.Size == 0 {
			return nil, fmt.Errorf("%w: chunk %d does not continue the table", ErrCorruptDump, i)
		}
		// Base == next <= Capacity, so the subtraction cannot wrap.
		if c.Size > m.Capacity-c.Base {
			return nil, fmt.Errorf("%w: chunk %d ends past the %d byte arena", ErrCorruptDump, i, m.Capacity)
		}
		next = c.Base + c.Size
		img.Chunks[i] = ChunkInfo{Base: int(c.Base), Size: int(c.Size), InUse: c.InUse}
	}
	if next != m.Capacity {
		return nil, fmt.Errorf("%w: chunk table covers %d of %d bytes", ErrCorruptDump, next, m.Capacity)
	}

	return img, nil
}
