package ecs

import "errors"

// Sentinel errors form the closed error taxonomy described by the
// storage engine's design: every failure mode a caller can observe is
// one of these, optionally wrapped with fmt.Errorf("...: %w", ...) for
// context. Callers should compare with errors.Is, never string matching.
var (
	// ErrEntityOverflow is returned when the handle table is full or
	// every slot has been live or has saturated its generation counter.
	// Recoverable: the caller may destroy entities and retry.
	ErrEntityOverflow = errors.New("ecs: entity overflow")

	// ErrArchOverflow is returned when a new archetype is requested but
	// the archetype map is already at its configured capacity. Fatal:
	// the store must be rebuilt with a higher max_archetypes.
	ErrArchOverflow = errors.New("ecs: archetype map overflow")

	// ErrChunkPoolOverflow is returned when the chunk pool has no free
	// chunks left to hand out. Fatal: rebuild with a higher max_chunks.
	ErrChunkPoolOverflow = errors.New("ecs: chunk pool overflow")

	// ErrChunkOverflow is returned when an archetype's computed
	// per-chunk capacity would be zero (the archetype's row is larger
	// than a chunk can hold). Fatal: raise chunk_size.
	ErrChunkOverflow = errors.New("ecs: chunk overflow: archetype row exceeds chunk size")

	// ErrCmdBufOverflow is returned when a command buffer's encoder is
	// at tag, arg, data, or reserved-entity capacity. The buffer is
	// poisoned (safety builds) on return; callers should release and
	// reacquire a fresh buffer from the pool.
	ErrCmdBufOverflow = errors.New("ecs: command buffer overflow")

	// ErrCmdPoolUnderflow is returned by Acquire when every buffer in
	// the pool has been retired (returned below headroom) and none is
	// available. Indicates the pool is under-provisioned for the
	// workload.
	ErrCmdPoolUnderflow = errors.New("ecs: command pool underflow")

	// ErrOutOfMemory names an allocation failure during initialization.
	// No function in this package returns it: the fixed-size structures
	// are allocated with make, which does not report failure as an error.
	ErrOutOfMemory = errors.New("ecs: out of memory")

	// errBufferPoisoned marks a command buffer that hit an encoding
	// failure under safety checks; any further encode or execute on it
	// is a programmer error.
	errBufferPoisoned = errors.New("ecs: command buffer is poisoned")
)
