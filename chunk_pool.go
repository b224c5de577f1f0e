package ecs

import (
	"unsafe"

	"github.com/rs/zerolog"
)

// ChunkIndex identifies a chunk within a pool's arena. NoChunk marks an
// absent chunk (e.g. a location that hasn't been committed yet).
//
// chunkPool owns one contiguous byte arena, chunk-size aligned, sliced
// into chunkCount fixed chunks. Chunks are never grown or shrunk: a
// chunk list that outgrows its current chunk simply reserves another
// one from the pool. Handing out a chunk-size-aligned region is what
// lets entityFromComponentPointer round a component address down to
// find the owning chunk's index in O(1), grounded on the bump-allocator
// alignment trick of rounding a cursor up to a power-of-two boundary.
type chunkPool struct {
	arena     []byte
	chunkSize int
	headers   []chunkHeader

	free []ChunkIndex // stack of unused chunk indices

	warnedExhausted bool
	log             zerolog.Logger
}

// newChunkPool allocates count chunks of chunkSize bytes each, over an
// arena padded and sliced so every chunk's base address is a multiple
// of chunkSize. chunkSize must be a power of two.
func newChunkPool(count int, chunkSize int, log *zerolog.Logger) *chunkPool {
	raw := make([]byte, count*chunkSize+chunkSize)
	base := uintptr(unsafe.Pointer(&raw[0]))
	pad := alignUpPtr(base, uintptr(chunkSize)) - base
	arena := raw[pad : pad+uintptr(count*chunkSize)]

	p := &chunkPool{
		arena:     arena,
		chunkSize: chunkSize,
		headers:   make([]chunkHeader, count),
		free:      make([]ChunkIndex, count),
		log:       logger(log),
	}
	for i := 0; i < count; i++ {
		p.headers[i].index = ChunkIndex(i)
		p.headers[i].raw = arena[i*chunkSize : (i+1)*chunkSize]
		p.free[i] = ChunkIndex(count - 1 - i) // pop from the tail, index 0 handed out first
	}
	return p
}

func alignUpPtr(p, align uintptr) uintptr {
	return (p + align - 1) &^ (align - 1)
}

// capacity returns the total number of chunks this pool can hand out.
func (p *chunkPool) capacity() int {
	return len(p.headers)
}

// acquire hands out an unused chunk configured for list's layout.
// Returns ErrChunkPoolOverflow if every chunk is currently owned.
func (p *chunkPool) acquire(list *chunkList, lay *columnLayout) (*chunkHeader, error) {
	if len(p.free) == 0 {
		if !p.warnedExhausted {
			p.warnedExhausted = true
			p.log.Warn().
				Int("capacity", p.capacity()).
				Msg("chunk pool: every chunk is currently owned, new archetype rows cannot be stored")
		}
		return nil, ErrChunkPoolOverflow
	}
	n := len(p.free) - 1
	idx := p.free[n]
	p.free = p.free[:n]

	h := &p.headers[idx]
	h.list = list
	h.lay = lay
	h.prevInList, h.nextInList = nil, nil
	h.prevAvail, h.nextAvail = nil, nil
	h.inAvailability = false
	h.len = 0
	return h, nil
}

// release returns a chunk to the pool's free stack. The caller must
// have already unlinked it from its chunk list and availability list.
func (p *chunkPool) release(h *chunkHeader) {
	h.list = nil
	h.lay = nil
	p.free = append(p.free, h.index)
}

// indexOf recovers the ChunkIndex owning a raw pointer previously
// handed out by rowPointer or columnBytes, by rounding its address
// down to the pool's chunk-size alignment. Returns NoChunk if ptr does
// not fall within this pool's arena.
func (p *chunkPool) indexOf(ptr unsafe.Pointer) ChunkIndex {
	base := uintptr(unsafe.Pointer(&p.arena[0]))
	addr := uintptr(ptr)
	span := uintptr(len(p.arena))
	if addr < base || addr >= base+span {
		return NoChunk
	}
	return ChunkIndex((addr - base) / uintptr(p.chunkSize))
}

func (p *chunkPool) header(idx ChunkIndex) *chunkHeader {
	return &p.headers[idx]
}
