package ecs

import "unsafe"

// Chunk is a read handle to one chunk, yielded by ForEachChunk. It is
// only valid for the duration of the callback that received it; using
// it afterward is undefined. A structural mutation made during the walk
// makes ForEachChunk panic when it moves on to another chunk; the
// Chunk's own accessors do not check for one.
type Chunk struct {
	h     *chunkHeader
	store *Store
}

// Len returns the number of occupied rows in the chunk.
func (c Chunk) Len() int32 { return c.h.len }

// Archetype returns the archetype every row in this chunk shares.
func (c Chunk) Archetype() Archetype { return c.h.list.arch }

// Entity reconstructs the full handle (index and current generation)
// stored at row.
func (c Chunk) Entity(row int32) Entity {
	idx := c.h.entityIndexRow(row)
	return Entity{Index: idx, Generation: c.store.handles.genera[idx]}
}

// ComponentAt returns a pointer to row's T value in the column for
// flag f, or nil if this chunk's archetype does not carry f. Callers
// typically obtain f once via FlagID[T]() outside the iteration loop.
func ComponentAt[T any](c Chunk, f Flag, row int32) *T {
	var zero T
	size := int32(unsafe.Sizeof(zero))
	p := c.h.rowPointer(f, row, size)
	if p == nil {
		return nil
	}
	return (*T)(p)
}

// ForEachChunk walks every chunk whose archetype is a superset of
// required, in archetype-creation order, calling fn once per chunk.
// Returning false from fn stops the walk early. This is the
// chunk-granularity iterator batch-processing code should prefer over
// row-by-row iteration.
func (s *Store) ForEachChunk(required Archetype, fn func(Chunk) bool) {
	gen := s.pointerGeneration
	s.arches.forEachList(func(l *chunkList) bool {
		if !l.arch.Contains(required) {
			return true
		}
		for h := l.head; h != nil; h = h.nextInList {
			if s.pointerGeneration != gen {
				panic("ecs: chunk iterator used after a structural mutation invalidated it")
			}
			if !fn(Chunk{h: h, store: s}) {
				return false
			}
		}
		return true
	})
}

// ForEach walks every committed row whose archetype is a superset of
// required, calling fn once per entity. It is built directly on
// ForEachChunk and exists purely for callers that don't need
// chunk-granularity batching.
func (s *Store) ForEach(required Archetype, fn func(Entity) bool) {
	s.ForEachChunk(required, func(c Chunk) bool {
		for row := int32(0); row < c.Len(); row++ {
			if !fn(c.Entity(row)) {
				return false
			}
		}
		return true
	})
}

// ForEach1 iterates every entity carrying component A, yielding a
// pointer to each row's A value. If A is unregistered the iteration
// visits nothing, per the view-construction rule that an unregistered
// required type makes the iterator empty.
func ForEach1[A any](s *Store, fn func(Entity, *A)) {
	fa, ok := TryFlagID[A]()
	if !ok {
		return
	}
	required := ArchetypeOf(fa)
	s.ForEachChunk(required, func(c Chunk) bool {
		for row := int32(0); row < c.Len(); row++ {
			fn(c.Entity(row), ComponentAt[A](c, fa, row))
		}
		return true
	})
}

// ForEach2 iterates every entity carrying both A and B.
func ForEach2[A, B any](s *Store, fn func(Entity, *A, *B)) {
	fa, ok := TryFlagID[A]()
	if !ok {
		return
	}
	fb, ok := TryFlagID[B]()
	if !ok {
		return
	}
	required := ArchetypeOf(fa, fb)
	s.ForEachChunk(required, func(c Chunk) bool {
		for row := int32(0); row < c.Len(); row++ {
			fn(c.Entity(row), ComponentAt[A](c, fa, row), ComponentAt[B](c, fb, row))
		}
		return true
	})
}

// ForEach3 iterates every entity carrying A, B, and C.
func ForEach3[A, B, C any](s *Store, fn func(Entity, *A, *B, *C)) {
	fa, ok := TryFlagID[A]()
	if !ok {
		return
	}
	fb, ok := TryFlagID[B]()
	if !ok {
		return
	}
	fc, ok := TryFlagID[C]()
	if !ok {
		return
	}
	required := ArchetypeOf(fa, fb, fc)
	s.ForEachChunk(required, func(c Chunk) bool {
		for row := int32(0); row < c.Len(); row++ {
			fn(c.Entity(row), ComponentAt[A](c, fa, row), ComponentAt[B](c, fb, row), ComponentAt[C](c, fc, row))
		}
		return true
	})
}

// ForEach4 iterates every entity carrying A, B, C, and D.
func ForEach4[A, B, C, D any](s *Store, fn func(Entity, *A, *B, *C, *D)) {
	fa, ok := TryFlagID[A]()
	if !ok {
		return
	}
	fb, ok := TryFlagID[B]()
	if !ok {
		return
	}
	fc, ok := TryFlagID[C]()
	if !ok {
		return
	}
	fd, ok := TryFlagID[D]()
	if !ok {
		return
	}
	required := ArchetypeOf(fa, fb, fc, fd)
	s.ForEachChunk(required, func(c Chunk) bool {
		for row := int32(0); row < c.Len(); row++ {
			fn(c.Entity(row), ComponentAt[A](c, fa, row), ComponentAt[B](c, fb, row), ComponentAt[C](c, fc, row), ComponentAt[D](c, fd, row))
		}
		return true
	})
}

// GetComponentT is a typed convenience wrapper over Store.GetComponent
// for callers who already know T at the call site.
func GetComponentT[T any](s *Store, e Entity) *T {
	f, ok := TryFlagID[T]()
	if !ok {
		return nil
	}
	var zero T
	p := s.GetComponent(e, f, int32(unsafe.Sizeof(zero)))
	if p == nil {
		return nil
	}
	return (*T)(p)
}

// AddComponentImmediate sets e's T value, changing its archetype to
// include T's flag if it doesn't already. Returns false if e is not
// live.
func AddComponentImmediate[T any](s *Store, e Entity, value T) (bool, error) {
	d := Register[T]()
	ok, err := s.ChangeArchImmediate(e, ArchetypeOf(d.Flag()), EmptyArchetype)
	if err != nil || !ok {
		return ok, err
	}
	p := GetComponentT[T](s, e)
	if p != nil {
		*p = value
	}
	return true, nil
}

// RemoveComponentImmediate clears T from e's archetype. Returns false
// if e is not live.
func RemoveComponentImmediate[T any](s *Store, e Entity) (bool, error) {
	f, ok := TryFlagID[T]()
	if !ok {
		return s.Exists(e), nil
	}
	return s.ChangeArchImmediate(e, EmptyArchetype, ArchetypeOf(f))
}
