package valloc_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/valloc"
)

func TestBasicMetricsCollector(t *testing.T) {
	metrics := &valloc.BasicMetricsCollector{}
	a := newAllocator(t, 32, valloc.WithMetricsCollector(metrics))

	p, err := valloc.Alloc[byte](a, 8)
	require.NoError(t, err)
	_, err = valloc.Alloc[byte](a, 64)
	require.Error(t, err)

	require.NoError(t, valloc.Write(a, p, 1))
	_, err = valloc.Read(a, p)
	require.NoError(t, err)
	_, err = valloc.Read(a, p.Add(8))
	require.Error(t, err)

	q, err := valloc.Realloc(a, p, 16)
	require.NoError(t, err)
	require.NoError(t, valloc.Free(a, &q))
	require.Error(t, valloc.Free(a, &q))

	stats := metrics.GetStats()
	assert.Equal(t, int64(2), stats.AllocCount)
	assert.Equal(t, int64(1), stats.AllocErrors)
	assert.Equal(t, int64(8), stats.AllocBytes)
	assert.Equal(t, int64(2), stats.FreeCount)
	assert.Equal(t, int64(1), stats.FreeErrors)
	assert.Equal(t, int64(16), stats.FreeBytes)
	assert.Equal(t, int64(1), stats.ReallocCount)
	assert.Equal(t, int64(0), stats.ReallocMoves)
	assert.Equal(t, int64(2), stats.ReadCount)
	assert.Equal(t, int64(1), stats.WriteCount)
	assert.Equal(t, int64(1), stats.AccessErrors)
	assert.Equal(t, int64(2), stats.AccessBytes)
}

func TestWithMetricsCollector_Nil(t *testing.T) {
	a := newAllocator(t, 32, valloc.WithMetricsCollector(nil), valloc.WithLogger(nil))

	_, err := valloc.Alloc[byte](a, 8)
	require.NoError(t, err)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := valloc.NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	a := newAllocator(t, 32, valloc.WithLogger(logger))

	p, err := valloc.Alloc[byte](a, 8)
	require.NoError(t, err)
	require.NoError(t, valloc.Free(a, &p))
	require.Error(t, valloc.Free(a, &p))

	out := buf.String()
	assert.Contains(t, out, `"msg":"alloc completed"`)
	assert.Contains(t, out, `"msg":"free completed"`)
	assert.Contains(t, out, `"msg":"free failed"`)
	assert.Contains(t, out, `"capacity":32`)
	assert.Contains(t, out, `valloc: double free`)
}

func TestNoopLogger(t *testing.T) {
	logger := valloc.NoopLogger()
	assert.False(t, logger.Enabled(t.Context(), slog.LevelError))
}
