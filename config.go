package ecs

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/pbnjay/memory"
)

// Options configures a Store and the command-buffer infrastructure
// built around it. Every field is fixed for the lifetime of the Store
// it initializes; there is no runtime resizing.
type Options struct {
	MaxEntities   int // handle-table capacity
	MaxArchetypes int // archetype-map capacity
	MaxChunks     int // chunk-pool size, in chunks
	ChunkSize     int // power-of-two bytes per chunk, >= 256 and <= 65536

	// WarnRatio is the fraction above which the command pool logs a
	// warning instead of silently continuing.
	WarnRatio float64

	BufferCmds         int // expected commands per command buffer
	BufferBytesPerCmd  int // expected payload bytes per command
	ReservedEntities   int // pre-reserved handles per buffer; 0 means BufferCmds

	PoolBufferCount int     // number of buffers the command pool holds
	PoolHeadroom    float64 // usage fraction below which a released buffer is reused
}

// DefaultOptions returns an Options sized against the host's available
// memory: a handle table and chunk pool scaled to comfortably fit
// within a conservative fraction of free RAM, rather than a single
// hardcoded constant suitable only for a particular workload size.
func DefaultOptions() Options {
	free := memory.FreeMemory()
	budget := free / 8
	if budget == 0 {
		budget = 64 << 20
	}

	const chunkSize = 65536
	maxChunks := int(budget / chunkSize)
	if maxChunks < 16 {
		maxChunks = 16
	}
	if maxChunks > 1<<20 {
		maxChunks = 1 << 20
	}

	return Options{
		MaxEntities:       maxChunks * 128,
		MaxArchetypes:     256,
		MaxChunks:         maxChunks,
		ChunkSize:         chunkSize,
		WarnRatio:         0.8,
		BufferCmds:        4096,
		BufferBytesPerCmd: 32,
		PoolBufferCount:   8,
		PoolHeadroom:      0.2,
	}
}

// Validate reports a descriptive error for any option combination the
// storage engine cannot honor.
func (o Options) Validate() error {
	if o.MaxEntities <= 0 {
		return fmt.Errorf("ecs: MaxEntities must be positive, got %d", o.MaxEntities)
	}
	if o.MaxArchetypes <= 0 {
		return fmt.Errorf("ecs: MaxArchetypes must be positive, got %d", o.MaxArchetypes)
	}
	if o.MaxChunks <= 0 {
		return fmt.Errorf("ecs: MaxChunks must be positive, got %d", o.MaxChunks)
	}
	if o.ChunkSize < 256 || o.ChunkSize > 65536 || o.ChunkSize&(o.ChunkSize-1) != 0 {
		return fmt.Errorf("ecs: ChunkSize must be a power of two between 256 and 65536, got %d", o.ChunkSize)
	}
	if o.WarnRatio < 0 || o.WarnRatio > 1 {
		return fmt.Errorf("ecs: WarnRatio must be within [0,1], got %f", o.WarnRatio)
	}
	if o.BufferCmds <= 0 {
		return fmt.Errorf("ecs: BufferCmds must be positive, got %d", o.BufferCmds)
	}
	if o.BufferBytesPerCmd < 0 {
		return fmt.Errorf("ecs: BufferBytesPerCmd must not be negative, got %d", o.BufferBytesPerCmd)
	}
	if o.PoolBufferCount <= 0 {
		return fmt.Errorf("ecs: PoolBufferCount must be positive, got %d", o.PoolBufferCount)
	}
	if o.PoolHeadroom < 0 || o.PoolHeadroom > 1 {
		return fmt.Errorf("ecs: PoolHeadroom must be within [0,1], got %f", o.PoolHeadroom)
	}
	return nil
}

// reservedEntities returns ReservedEntities, defaulting to BufferCmds
// when unset.
func (o Options) reservedEntities() int {
	if o.ReservedEntities > 0 {
		return o.ReservedEntities
	}
	return o.BufferCmds
}

// LoadOptionsTOML reads Options from a TOML file, layered on top of
// DefaultOptions so a config file only needs to override what differs
// from the defaults.
func LoadOptionsTOML(path string) (Options, error) {
	opts := DefaultOptions()
	if _, err := toml.DecodeFile(path, &opts); err != nil {
		return Options{}, fmt.Errorf("ecs: loading options from %s: %w", path, err)
	}
	return opts, nil
}
