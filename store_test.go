package ecs

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sA struct{ V uint64 }
type sB struct{ V uint64 }
type sC struct{ V uint64 }

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	ResetGlobalRegistry()
	if opts.MaxChunks == 0 {
		opts = DefaultOptions()
		opts.MaxEntities = 4096
		opts.MaxArchetypes = 16
		opts.MaxChunks = 64
		opts.ChunkSize = 4096
	}
	s, err := NewStore(opts, nil)
	require.NoError(t, err)
	return s
}

func TestFillAndIterate(t *testing.T) {
	s := newTestStore(t, Options{})
	const n = 2000

	for i := 0; i < n; i++ {
		e, err := s.ReserveImmediate()
		require.NoError(t, err)
		ok, err := AddComponentImmediate(s, e, sA{V: uint64(i)})
		require.NoError(t, err)
		require.True(t, ok)
		AddComponentImmediate(s, e, sB{V: uint64(i)})
		AddComponentImmediate(s, e, sC{V: uint64(i)})
	}

	var sum uint64
	var count int
	ForEach3(s, func(_ Entity, a *sA, b *sB, c *sC) {
		sum += a.V + b.V + c.V
		count++
	})
	assert.Equal(t, n, count)

	var want uint64
	for i := 0; i < n; i++ {
		want += 3 * uint64(i)
	}
	assert.Equal(t, want, sum)
}

func TestDestroyDuringIterationViaBuffer(t *testing.T) {
	s := newTestStore(t, Options{})
	const n = 400

	entities := make([]Entity, n)
	for i := range entities {
		e, err := s.ReserveImmediate()
		require.NoError(t, err)
		AddComponentImmediate(s, e, sA{V: uint64(i)})
		entities[i] = e
	}

	opts := DefaultOptions()
	opts.BufferCmds = n
	opts.ReservedEntities = 1
	cb, err := newCommandBuffer(s, opts, nil)
	require.NoError(t, err)

	destroyed := 0
	s.ForEach(EmptyArchetype, func(e Entity) bool {
		if destroyed == n/2 {
			return false
		}
		require.NoError(t, cb.Destroy(e))
		destroyed++
		return true
	})
	require.NoError(t, ExecuteImmediate(s, cb, nil))

	assert.Equal(t, n/2, s.Count())
	for i := 0; i < n/2; i++ {
		assert.False(t, s.Exists(entities[i]))
	}
	for i := n / 2; i < n; i++ {
		assert.True(t, s.Exists(entities[i]))
	}
}

func TestArchetypeChurn(t *testing.T) {
	s := newTestStore(t, Options{})
	fa := Register[sA]().Flag()
	fb := Register[sB]().Flag()

	entities := make([]Entity, 1000)
	for i := range entities {
		e, _ := s.ReserveImmediate()
		s.ChangeArchImmediate(e, ArchetypeOf(fa), EmptyArchetype)
		entities[i] = e
	}

	countRequiring := func(req Archetype) int {
		n := 0
		s.ForEach(req, func(Entity) bool { n++; return true })
		return n
	}
	assert.Equal(t, 1000, countRequiring(ArchetypeOf(fa)))
	assert.Equal(t, 0, countRequiring(ArchetypeOf(fb)))

	for i := 0; i < 500; i++ {
		s.ChangeArchImmediate(entities[i], ArchetypeOf(fb), EmptyArchetype)
	}
	assert.Equal(t, 1000, countRequiring(ArchetypeOf(fa)))
	assert.Equal(t, 500, countRequiring(ArchetypeOf(fb)))

	for i := 0; i < 166; i++ {
		s.ChangeArchImmediate(entities[i], EmptyArchetype, ArchetypeOf(fa))
	}
	assert.Equal(t, 834, countRequiring(ArchetypeOf(fa)))
	assert.Equal(t, 500, countRequiring(ArchetypeOf(fb)))
}

func TestArchetypeOverflow(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxEntities = 16
	opts.MaxArchetypes = 1
	opts.MaxChunks = 4
	opts.ChunkSize = 4096
	s := newTestStore(t, opts)

	fa := Register[sA]().Flag()
	fb := Register[sB]().Flag()

	e1, _ := s.ReserveImmediate()
	ok, err := s.ChangeArchImmediate(e1, ArchetypeOf(fa), EmptyArchetype)
	require.NoError(t, err)
	require.True(t, ok)

	e2, _ := s.ReserveImmediate()
	_, err = s.ChangeArchImmediate(e2, ArchetypeOf(fb), EmptyArchetype)
	assert.ErrorIs(t, err, ErrArchOverflow)

	arch, ok := s.Archetype(e1)
	require.True(t, ok)
	assert.True(t, arch.Has(fa))
}

func TestDestroyNoneOrStaleReturnsFalse(t *testing.T) {
	s := newTestStore(t, Options{})
	assert.False(t, s.DestroyImmediate(None))

	e, _ := s.ReserveImmediate()
	s.DestroyImmediate(e)
	assert.False(t, s.DestroyImmediate(e))
}

func TestEmptyArchetypeIterationVisitsReserved(t *testing.T) {
	s := newTestStore(t, Options{})
	e, _ := s.ReserveImmediate()
	ok, err := s.ChangeArchImmediate(e, EmptyArchetype, EmptyArchetype)
	require.NoError(t, err)
	require.True(t, ok)

	arch, ok := s.Archetype(e)
	require.True(t, ok)
	assert.True(t, arch.Empty())

	count := 0
	s.ForEach(EmptyArchetype, func(Entity) bool { count++; return true })
	assert.Equal(t, 1, count)
}

func TestEntityFromComponentPointer(t *testing.T) {
	s := newTestStore(t, Options{})
	e, _ := s.ReserveImmediate()
	AddComponentImmediate(s, e, sA{V: 42})

	p := GetComponentT[sA](s, e)
	require.NotNil(t, p)

	got := s.EntityFromComponentPointer(unsafe.Pointer(p))
	assert.Equal(t, e, got)
}

func TestRecycleArchImmediate(t *testing.T) {
	s := newTestStore(t, Options{})
	fa := Register[sA]().Flag()
	for i := 0; i < 10; i++ {
		e, _ := s.ReserveImmediate()
		s.ChangeArchImmediate(e, ArchetypeOf(fa), EmptyArchetype)
	}
	assert.Equal(t, 10, s.Count())
	n := s.RecycleArchImmediate(ArchetypeOf(fa))
	assert.Equal(t, 10, n)
	assert.Equal(t, 0, s.Count())
}
