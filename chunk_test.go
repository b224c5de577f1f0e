package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chunkTestA struct{ V uint64 }
type chunkTestB struct{ V [16]byte }

func TestComputeColumnLayoutFitsWithinChunk(t *testing.T) {
	ResetGlobalRegistry()
	fa := Register[chunkTestA]().Flag()
	fb := Register[chunkTestB]().Flag()
	arch := ArchetypeOf(fa, fb)

	lay, err := computeColumnLayout(arch, 4096)
	require.NoError(t, err)
	assert.Greater(t, lay.capacity, int32(0))
	assert.GreaterOrEqual(t, lay.compOffset[fb], int32(0))
	assert.GreaterOrEqual(t, lay.compOffset[fa], int32(0))

	rowSpan := int32(8)*lay.capacity + int32(16)*lay.capacity + entityIndexSize*lay.capacity
	assert.LessOrEqual(t, rowSpan, int32(4096)+3*16) // generous bound accounting for alignment padding
}

func TestComputeColumnLayoutOverflowsWhenRowTooBig(t *testing.T) {
	type huge struct{ V [8192]byte }
	ResetGlobalRegistry()
	f := Register[huge]().Flag()
	_, err := computeColumnLayout(ArchetypeOf(f), 4096)
	assert.ErrorIs(t, err, ErrChunkOverflow)
}

func TestChunkPoolAcquireRelease(t *testing.T) {
	ResetGlobalRegistry()
	f := Register[chunkTestA]().Flag()
	arch := ArchetypeOf(f)
	pool := newChunkPool(2, 4096, nil)

	lay, err := computeColumnLayout(arch, 4096)
	require.NoError(t, err)

	h1, err := pool.acquire(nil, &lay)
	require.NoError(t, err)
	h2, err := pool.acquire(nil, &lay)
	require.NoError(t, err)
	_, err = pool.acquire(nil, &lay)
	assert.ErrorIs(t, err, ErrChunkPoolOverflow)

	pool.release(h1)
	h3, err := pool.acquire(nil, &lay)
	require.NoError(t, err)
	assert.Equal(t, h1.index, h3.index)
	_ = h2
}

func TestChunkPoolIndexOfRoundTrips(t *testing.T) {
	ResetGlobalRegistry()
	f := Register[chunkTestA]().Flag()
	arch := ArchetypeOf(f)
	pool := newChunkPool(4, 4096, nil)
	lay, err := computeColumnLayout(arch, 4096)
	require.NoError(t, err)

	h, err := pool.acquire(nil, &lay)
	require.NoError(t, err)
	ptr := h.rowPointer(f, 0, 8)
	assert.Equal(t, h.index, pool.indexOf(ptr))
}
