package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type codecA struct{ V uint64 }
type codecB struct{ V uint64 }

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ResetGlobalRegistry()
	fa := Register[codecA]().Flag()
	fb := Register[codecB]().Flag()

	opts := DefaultOptions()
	opts.BufferCmds = 16
	opts.ReservedEntities = 4
	store := newTestStore(t, Options{MaxEntities: 64, MaxArchetypes: 8, MaxChunks: 8, ChunkSize: 4096})
	cb, err := newCommandBuffer(store, opts, nil)
	require.NoError(t, err)

	e, err := cb.Reserve()
	require.NoError(t, err)
	require.NoError(t, AddVal(cb, e, codecA{V: 7}))
	require.NoError(t, Remove[codecB](cb, e))

	var batches []Batch
	cb.Batches(func(b Batch) bool {
		batches = append(batches, b)
		return true
	})
	require.Len(t, batches, 1)
	b := batches[0]
	assert.Equal(t, e, b.Entity)
	require.Len(t, b.Ops, 2)
	assert.Equal(t, OpAdd, b.Ops[0].Kind)
	assert.Equal(t, fa, b.Ops[0].Flag)
	assert.Equal(t, OpRemove, b.Ops[1].Kind)
	assert.Equal(t, fb, b.Ops[1].Flag)

	add, remove, destroy := b.Delta()
	assert.False(t, destroy)
	assert.True(t, add.Has(fa))
	assert.True(t, remove.Has(fb))
}

func TestDestroyElidesFollowingOps(t *testing.T) {
	ResetGlobalRegistry()
	Register[codecA]()
	store := newTestStore(t, Options{MaxEntities: 64, MaxArchetypes: 8, MaxChunks: 8, ChunkSize: 4096})
	opts := DefaultOptions()
	opts.BufferCmds = 16
	opts.ReservedEntities = 4
	cb, err := newCommandBuffer(store, opts, nil)
	require.NoError(t, err)

	e, _ := cb.Reserve()
	require.NoError(t, cb.Destroy(e))
	require.NoError(t, AddVal(cb, e, codecA{V: 1}))

	var batches []Batch
	cb.Batches(func(b Batch) bool { batches = append(batches, b); return true })
	require.Len(t, batches, 1)
	assert.True(t, batches[0].Destroyed)
	assert.Empty(t, batches[0].Ops)
}

func TestBindEntityCaching(t *testing.T) {
	ResetGlobalRegistry()
	Register[codecA]()
	Register[codecB]()
	store := newTestStore(t, Options{MaxEntities: 64, MaxArchetypes: 8, MaxChunks: 8, ChunkSize: 4096})
	opts := DefaultOptions()
	opts.BufferCmds = 16
	opts.ReservedEntities = 4
	cb, err := newCommandBuffer(store, opts, nil)
	require.NoError(t, err)

	e, _ := cb.Reserve()
	require.NoError(t, AddVal(cb, e, codecA{V: 1}))
	require.NoError(t, AddVal(cb, e, codecB{V: 2}))

	bindCount := 0
	for _, tag := range cb.tags {
		if tag == tagBindEntity {
			bindCount++
		}
	}
	assert.Equal(t, 1, bindCount)
}

func TestExtensionClearsBinding(t *testing.T) {
	ResetGlobalRegistry()
	Register[codecA]()
	store := newTestStore(t, Options{MaxEntities: 64, MaxArchetypes: 8, MaxChunks: 8, ChunkSize: 4096})
	opts := DefaultOptions()
	opts.BufferCmds = 16
	opts.ReservedEntities = 4
	cb, err := newCommandBuffer(store, opts, nil)
	require.NoError(t, err)

	e, _ := cb.Reserve()
	require.NoError(t, AddVal(cb, e, codecA{V: 1}))
	require.NoError(t, ExtVal(cb, codecA{V: 9}))
	require.NoError(t, AddVal(cb, e, codecA{V: 2}))

	bindCount := 0
	for _, tag := range cb.tags {
		if tag == tagBindEntity {
			bindCount++
		}
	}
	assert.Equal(t, 2, bindCount)
}
