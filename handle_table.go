package ecs

import (
	"math"

	"github.com/rs/zerolog"
)

const noFreeSlot = math.MaxUint32

// maxGeneration is the terminal generation value. A slot that reaches
// it is retired forever rather than recycled, since incrementing past
// it would wrap back to a value a stale handle could still match.
const maxGeneration uint32 = math.MaxUint32

// handleTable is a generation-checked slot map: stable handles to
// mutable (chunk, row) storage locations. A handle is live iff
// generations[handle.Index] == handle.Generation. A live entity is
// reserved (location.chunk == nil) or committed (location.chunk != nil).
type handleTable struct {
	locations []location
	genera    []uint32 // 0 means "slot never used"
	freeNext  []uint32 // threaded FIFO free list
	freeHead  uint32
	freeTail  uint32
	nextFresh uint32 // slots [nextFresh, capacity) have never been touched
	capacity  uint32

	live      uint32 // reserved + committed handles
	saturated uint32 // slots permanently retired

	warnedHalfSaturated bool
	log                 zerolog.Logger
}

func newHandleTable(capacity int, log *zerolog.Logger) *handleTable {
	return &handleTable{
		locations: make([]location, capacity),
		genera:    make([]uint32, capacity),
		freeNext:  make([]uint32, capacity),
		freeHead:  noFreeSlot,
		freeTail:  noFreeSlot,
		capacity:  uint32(capacity),
		log:       logger(log),
	}
}

// reserve allocates a handle-table slot with a null location and
// returns its handle. Returns ErrEntityOverflow iff every slot is
// currently live or permanently saturated.
func (t *handleTable) reserve() (Entity, error) {
	if t.freeHead != noFreeSlot {
		idx := t.freeHead
		t.freeHead = t.freeNext[idx]
		if t.freeHead == noFreeSlot {
			t.freeTail = noFreeSlot
		}
		t.locations[idx] = location{}
		t.live++
		return Entity{Index: idx, Generation: t.genera[idx]}, nil
	}

	if t.nextFresh < t.capacity {
		idx := t.nextFresh
		t.nextFresh++
		t.genera[idx] = 1 // generation 0 is reserved for "never used" / None
		t.locations[idx] = location{}
		t.live++
		return Entity{Index: idx, Generation: 1}, nil
	}

	return None, ErrEntityOverflow
}

// get returns a mutable pointer to e's storage location, or nil if e
// is not live.
func (t *handleTable) get(e Entity) *location {
	if e.Index >= t.capacity || t.genera[e.Index] != e.Generation || e.Generation == 0 {
		return nil
	}
	return &t.locations[e.Index]
}

// recycle destroys a live handle: bumps its generation and either
// threads the slot back onto the free list, or — if the generation
// counter is now exhausted — retires it forever. Returns false if e
// was not live (already destroyed, stale, or None).
func (t *handleTable) recycle(e Entity) bool {
	loc := t.get(e)
	if loc == nil {
		return false
	}
	idx := e.Index
	t.live--
	t.locations[idx] = location{}

	if t.genera[idx] == maxGeneration {
		// Already at the terminal value: treat as retired and unreachable.
		// (No handle the table hands out carries maxGeneration, since a
		// slot reaching it never returns to the free list; get() alone
		// does not reject such a handle, so it is guarded here.)
		t.saturated++
		return true
	}

	t.genera[idx]++
	if t.genera[idx] == maxGeneration {
		t.saturated++
		t.maybeWarnSaturation()
		return true
	}

	t.pushFree(idx)
	return true
}

// recycleAll destroys every currently live handle.
func (t *handleTable) recycleAll() {
	onFree := make([]bool, t.nextFresh)
	for idx := t.freeHead; idx != noFreeSlot; idx = t.freeNext[idx] {
		onFree[idx] = true
	}
	for idx := uint32(0); idx < t.nextFresh; idx++ {
		// A generation of 0 means the slot was never touched; maxGeneration
		// means it's already permanently retired and was removed from live
		// accounting when that happened; a slot on the free list already
		// carries its next generation. None is a live handle to recycle.
		if t.genera[idx] == 0 || t.genera[idx] == maxGeneration || onFree[idx] {
			continue
		}
		e := Entity{Index: idx, Generation: t.genera[idx]}
		t.recycle(e)
	}
}

// count returns the number of currently live (reserved or committed) handles.
func (t *handleTable) count() int {
	return int(t.live)
}

func (t *handleTable) pushFree(idx uint32) {
	t.freeNext[idx] = noFreeSlot
	if t.freeTail == noFreeSlot {
		t.freeHead = idx
	} else {
		t.freeNext[t.freeTail] = idx
	}
	t.freeTail = idx
}

func (t *handleTable) maybeWarnSaturation() {
	if t.warnedHalfSaturated || t.capacity == 0 {
		return
	}
	if uint64(t.saturated)*2 >= uint64(t.capacity) {
		t.warnedHalfSaturated = true
		t.log.Warn().
			Uint32("saturated", t.saturated).
			Uint32("capacity", t.capacity).
			Msg("handle table: at least half of all slots have permanently exhausted their generation counter")
	}
}
