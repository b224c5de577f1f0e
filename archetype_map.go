package ecs

import "github.com/rs/zerolog"

// archetypeMap owns every chunk list in a store, keyed by archetype
// bitset. Entries are stored behind stable pointers (a map of
// *chunkList, never reallocated once inserted) so a location's chunk
// pointer and a chunk's owning list pointer stay valid across
// archetype-map growth and across concurrent readers iterating chunks
// while a writer adds a brand-new archetype elsewhere.
type archetypeMap struct {
	lists    map[Archetype]*chunkList
	order    []*chunkList // insertion order, for deterministic iteration
	pool     *chunkPool
	capacity int
	log      zerolog.Logger
}

func newArchetypeMap(capacity int, pool *chunkPool, log *zerolog.Logger) *archetypeMap {
	return &archetypeMap{
		lists:    make(map[Archetype]*chunkList, capacity),
		order:    make([]*chunkList, 0, capacity),
		pool:     pool,
		capacity: capacity,
		log:      logger(log),
	}
}

// get returns the existing chunk list for arch, or nil.
func (m *archetypeMap) get(arch Archetype) *chunkList {
	return m.lists[arch]
}

// getOrCreate returns arch's chunk list, creating it if this is the
// first entity ever to need that exact archetype. The empty archetype,
// which every store creates up front, does not count against capacity.
// Returns ErrArchOverflow if arch is new and capacity non-empty
// archetypes already exist.
func (m *archetypeMap) getOrCreate(arch Archetype) (*chunkList, error) {
	if l, ok := m.lists[arch]; ok {
		return l, nil
	}
	used := len(m.lists)
	if _, ok := m.lists[EmptyArchetype]; ok {
		used--
	}
	if used >= m.capacity {
		return nil, ErrArchOverflow
	}
	l, err := newChunkList(arch, m.pool)
	if err != nil {
		return nil, err
	}
	m.lists[arch] = l
	m.order = append(m.order, l)
	m.log.Debug().Int("archetypes", len(m.lists)).Msg("new archetype chunk list created")
	return l, nil
}

// count returns the number of distinct archetypes currently in use.
func (m *archetypeMap) count() int {
	return len(m.lists)
}

// forEachList calls fn for every chunk list currently registered, in
// the order they were first created.
func (m *archetypeMap) forEachList(fn func(*chunkList) bool) {
	for _, l := range m.order {
		if !fn(l) {
			return
		}
	}
}
