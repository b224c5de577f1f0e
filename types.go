package ecs

// ChunkIndex identifies a chunk within a ChunkPool by its byte offset,
// shifted right by log2(chunk size). It is stable for the lifetime of
// the chunk (chunks are never moved, only reused from the free list).
type ChunkIndex uint32

// NoChunk is the sentinel ChunkIndex meaning "no chunk". Pool capacity
// is always kept below NoChunk so it never collides with a real index.
const NoChunk ChunkIndex = ^ChunkIndex(0)

// location records where a committed entity's row lives: which chunk
// and which row within it. The handle table is the single owner of
// this pair; chunks never store a pointer back to the handle table.
type location struct {
	chunk *chunkHeader
	row   int32
}

func (l location) committed() bool {
	return l.chunk != nil
}
