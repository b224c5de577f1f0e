package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bufA struct{ V uint64 }

func TestExecuteImmediateAppliesAdd(t *testing.T) {
	ResetGlobalRegistry()
	Register[bufA]()
	store := newTestStore(t, Options{MaxEntities: 64, MaxArchetypes: 8, MaxChunks: 8, ChunkSize: 4096})
	opts := DefaultOptions()
	opts.BufferCmds = 16
	opts.ReservedEntities = 4
	cb, err := newCommandBuffer(store, opts, nil)
	require.NoError(t, err)

	e, err := cb.Reserve()
	require.NoError(t, err)
	require.NoError(t, AddVal(cb, e, bufA{V: 99}))
	require.NoError(t, ExecuteImmediate(store, cb, nil))

	v := GetComponentT[bufA](store, e)
	require.NotNil(t, v)
	assert.EqualValues(t, 99, v.V)
}

func TestWorstCaseUsageTracksReservedConsumption(t *testing.T) {
	ResetGlobalRegistry()
	store := newTestStore(t, Options{MaxEntities: 64, MaxArchetypes: 8, MaxChunks: 8, ChunkSize: 4096})
	opts := DefaultOptions()
	opts.BufferCmds = 16
	opts.ReservedEntities = 4
	cb, err := newCommandBuffer(store, opts, nil)
	require.NoError(t, err)

	assert.Zero(t, cb.WorstCaseUsage())
	for i := 0; i < 4; i++ {
		_, err := cb.Reserve()
		require.NoError(t, err)
	}
	assert.Equal(t, 1.0, cb.WorstCaseUsage())

	_, err = cb.Reserve()
	assert.ErrorIs(t, err, ErrCmdBufOverflow)
}

func TestBufferOverflowPoisonsBuffer(t *testing.T) {
	ResetGlobalRegistry()
	Register[bufA]()
	store := newTestStore(t, Options{MaxEntities: 256, MaxArchetypes: 8, MaxChunks: 8, ChunkSize: 4096})
	opts := DefaultOptions()
	opts.BufferCmds = 2
	opts.ReservedEntities = 16
	cb, err := newCommandBuffer(store, opts, nil)
	require.NoError(t, err)

	var lastErr error
	for i := 0; i < 8; i++ {
		e, err := cb.Reserve()
		require.NoError(t, err)
		lastErr = AddVal(cb, e, bufA{V: uint64(i)})
		if lastErr != nil {
			break
		}
	}
	require.Error(t, lastErr)
	assert.ErrorIs(t, lastErr, ErrCmdBufOverflow)
	assert.True(t, cb.poisoned)

	err = ExecuteImmediate(store, cb, nil)
	assert.ErrorIs(t, err, errBufferPoisoned)
}

func TestClearRefillsReservedAndResetsState(t *testing.T) {
	ResetGlobalRegistry()
	Register[bufA]()
	store := newTestStore(t, Options{MaxEntities: 64, MaxArchetypes: 8, MaxChunks: 8, ChunkSize: 4096})
	opts := DefaultOptions()
	opts.BufferCmds = 16
	opts.ReservedEntities = 4
	cb, err := newCommandBuffer(store, opts, nil)
	require.NoError(t, err)

	e, _ := cb.Reserve()
	require.NoError(t, AddVal(cb, e, bufA{V: 1}))
	require.NoError(t, cb.Clear())

	assert.Empty(t, cb.tags)
	assert.Empty(t, cb.args)
	assert.Empty(t, cb.data)
	assert.Len(t, cb.reserved, 4)
	assert.False(t, cb.poisoned)
}
