package ecs

import (
	"unsafe"

	"github.com/rs/zerolog"
)

// Store is the entities façade: it orchestrates the handle table, the
// archetype map, and the chunk pool behind it to provide reservation,
// structural mutation, lookup, and iteration over entities.
//
// A Store's mutating methods (ReserveImmediate, ChangeArchImmediate,
// DestroyImmediate, ExecuteImmediate, RecycleArchImmediate) assume
// single-writer access: they are not safe to call concurrently with
// each other or with iteration. Read-only access (GetComponent,
// iteration) is safe to run concurrently with other read-only access,
// provided no mutator is running.
type Store struct {
	opts    Options
	handles *handleTable
	arches  *archetypeMap
	pool    *chunkPool

	// pointerGeneration is bumped by every operation that can move or
	// free component memory. Iterators capture it at construction and
	// assert it hasn't moved before trusting a pointer they hand out.
	pointerGeneration uint64

	log zerolog.Logger
}

// NewStore allocates and initializes a Store's fixed-size structures.
// There is no implicit global store; callers own the returned value
// and must call Close when done with it.
func NewStore(opts Options, log *zerolog.Logger) (*Store, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	l := logger(log)

	pool := newChunkPool(opts.MaxChunks, opts.ChunkSize, log)
	arches := newArchetypeMap(opts.MaxArchetypes, pool, log)
	handles := newHandleTable(opts.MaxEntities, log)

	s := &Store{
		opts:    opts,
		handles: handles,
		arches:  arches,
		pool:    pool,
		log:     l,
	}
	// Every store has a chunk list for the empty archetype from the
	// start, since a reserved entity commits into it on a no-op
	// change-archetype call.
	if _, err := arches.getOrCreate(EmptyArchetype); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases every entity held by the store. There is nothing else
// to release: the handle table, archetype map, and chunk pool are all
// plain Go-managed slices that the garbage collector reclaims once the
// Store itself becomes unreachable.
func (s *Store) Close() {
	s.handles.recycleAll()
}

func (s *Store) bumpPointerGeneration() {
	s.pointerGeneration++
}

// PointerGeneration returns the store's current pointer-invalidation
// counter, for iterators (and tests) that want to assert no structural
// mutation occurred during a read pass.
func (s *Store) PointerGeneration() uint64 {
	return s.pointerGeneration
}

// Count returns the number of committed entities: the sum of the row
// counts of every chunk. Reserved handles without a storage row are not
// counted.
func (s *Store) Count() int {
	n := 0
	s.arches.forEachList(func(l *chunkList) bool {
		for h := l.head; h != nil; h = h.nextInList {
			n += int(h.len)
		}
		return true
	})
	return n
}

// ReserveImmediate allocates a handle with no storage row yet. It
// commits into the empty-archetype chunk list on its first
// ChangeArchImmediate call with an empty delta (see DESIGN.md, Open
// Question #1).
func (s *Store) ReserveImmediate() (Entity, error) {
	return s.handles.reserve()
}

// Exists reports whether e is a currently live handle.
func (s *Store) Exists(e Entity) bool {
	return s.handles.get(e) != nil
}

// Archetype returns e's current archetype, or EmptyArchetype with ok
// false if e is not live.
func (s *Store) Archetype(e Entity) (arch Archetype, ok bool) {
	loc := s.handles.get(e)
	if loc == nil {
		return EmptyArchetype, false
	}
	if !loc.committed() {
		return EmptyArchetype, true
	}
	return loc.chunk.list.arch, true
}

// ChangeArchImmediate moves e to archetype (current ∪ add) \ remove.
// Returns false if e is not live. May fail with ErrArchOverflow if the
// target archetype needs a chunk list the archetype map has no room
// for, ErrChunkOverflow if the target archetype's row does not fit in a
// chunk, or ErrChunkPoolOverflow if no free chunk is left.
func (s *Store) ChangeArchImmediate(e Entity, add, remove Archetype) (bool, error) {
	loc := s.handles.get(e)
	if loc == nil {
		return false, nil
	}

	var current Archetype
	if loc.committed() {
		current = loc.chunk.list.arch
	} else {
		current = EmptyArchetype
	}
	target := current.Union(add).Without(remove)

	if target == current {
		if loc.committed() {
			return true, nil
		}
		// Reserved entity with a no-op delta commits into its current
		// (empty) archetype so it becomes visible to iteration.
	}

	targetList, err := s.arches.getOrCreate(target)
	if err != nil {
		return false, err
	}

	newChunk, newRow, err := targetList.append(e.Index)
	if err != nil {
		return false, err
	}

	if loc.committed() {
		oldChunk, oldRow := loc.chunk, loc.row
		shared := current.Intersects(target)
		if shared {
			s.copyShared(oldChunk, oldRow, newChunk, newRow, current, target)
		}
		s.removeRow(oldChunk, oldRow)
	}

	*loc = location{chunk: newChunk, row: newRow}
	s.bumpPointerGeneration()
	return true, nil
}

// copyShared copies every component both archetypes carry from
// (oldChunk, oldRow) to (newChunk, newRow).
func (s *Store) copyShared(oldChunk *chunkHeader, oldRow int32, newChunk *chunkHeader, newRow int32, from, to Archetype) {
	for _, f := range from.Flags() {
		if !to.Has(f) {
			continue
		}
		d := descriptorForFlag(f)
		size := int32(d.Size())
		if size == 0 {
			continue
		}
		sp := oldChunk.rowPointer(f, oldRow, size)
		dp := newChunk.rowPointer(f, newRow, size)
		copy(unsafe.Slice((*byte)(dp), size), unsafe.Slice((*byte)(sp), size))
	}
}

// removeRow swap-removes (chunk, row) from its owning chunk list and
// fixes up the handle-table entry of whichever row got moved into the
// hole, if any.
func (s *Store) removeRow(chunk *chunkHeader, row int32) {
	list := chunk.list
	movedIdx, moved := list.swapRemove(chunk, row)
	if moved {
		if loc := &s.handles.locations[movedIdx]; loc.committed() {
			loc.row = row
		}
	}
}

// DestroyImmediate destroys e: swap-removes its row (if committed) and
// recycles its handle-table slot. Returns false if e was not live.
func (s *Store) DestroyImmediate(e Entity) bool {
	loc := s.handles.get(e)
	if loc == nil {
		return false
	}
	if loc.committed() {
		s.removeRow(loc.chunk, loc.row)
	}
	s.handles.recycle(e)
	s.bumpPointerGeneration()
	return true
}

// RecycleArchImmediate recycles every entity slot in every chunk list
// whose archetype is a superset of arch, without copying or destroying
// component memory — it simply drops the chunks back to the pool and
// bumps the owning handles' generations. Intended for event-like
// transient entities that never need per-component teardown.
func (s *Store) RecycleArchImmediate(arch Archetype) int {
	recycled := 0
	var lists []*chunkList
	s.arches.forEachList(func(l *chunkList) bool {
		if l.arch.Contains(arch) {
			lists = append(lists, l)
		}
		return true
	})
	for _, l := range lists {
		for h := l.head; h != nil; {
			next := h.nextInList
			for row := int32(0); row < h.len; row++ {
				idx := h.entityIndexRow(row)
				e := Entity{Index: idx, Generation: s.handles.genera[idx]}
				s.handles.recycle(e)
				recycled++
			}
			l.unlinkAvailable(h)
			h.len = 0
			l.unlink(h)
			s.pool.release(h)
			h = next
		}
	}
	if recycled > 0 {
		s.bumpPointerGeneration()
	}
	return recycled
}

// GetComponent returns a pointer to e's value for the component flag f,
// or nil if e is not live, not committed, or lacks that component.
// size must be the component's declared size; it is the caller's
// (generated wrapper's) responsibility to pass the right one. The
// pointer is invalidated by any subsequent structural mutation.
func (s *Store) GetComponent(e Entity, f Flag, size int32) unsafe.Pointer {
	loc := s.handles.get(e)
	if loc == nil || !loc.committed() {
		return nil
	}
	return loc.chunk.rowPointer(f, loc.row, size)
}

// EntityFromComponentPointer recovers the owning entity handle from a
// pointer previously returned by GetComponent or a view, by rounding
// the address down to chunk-size alignment to find the owning chunk,
// then scanning that chunk's column table to find which column (and
// therefore which row) the pointer falls in.
func (s *Store) EntityFromComponentPointer(ptr unsafe.Pointer) Entity {
	idx := s.pool.indexOf(ptr)
	if idx == NoChunk {
		return None
	}
	h := s.pool.header(idx)
	if h.list == nil {
		return None
	}

	relOff := int32(uintptr(ptr) - uintptr(unsafe.Pointer(&h.raw[0])))
	for _, f := range h.list.arch.Flags() {
		off := h.lay.compOffset[f]
		if off < 0 {
			continue
		}
		size := int32(descriptorForFlag(f).Size())
		if size == 0 {
			continue
		}
		span := size * h.lay.capacity
		if relOff >= off && relOff < off+span {
			row := (relOff - off) / size
			entIdx := h.entityIndexRow(row)
			return Entity{Index: entIdx, Generation: s.handles.genera[entIdx]}
		}
	}
	return None
}
