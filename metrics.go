package ecs

import "github.com/prometheus/client_golang/prometheus"

// Metrics adapts a Store and its CommandPool to prometheus.Collector,
// for hosts that want to scrape storage-engine occupancy alongside
// their own application metrics. It reads the same unexported
// bookkeeping fields the engine itself uses internally; the entity
// gauge comes from Store.Count, which sums the row counts of all chunks.
type Metrics struct {
	store *Store
	pool  *CommandPool

	entitiesLive    *prometheus.Desc
	archetypeCount  *prometheus.Desc
	chunksInUse     *prometheus.Desc
	handleSaturated *prometheus.Desc
	poolReserved    *prometheus.Desc
	poolReleased    *prometheus.Desc
	poolRetired     *prometheus.Desc
}

// NewMetrics builds a Collector over store and pool. pool may be nil if
// the host doesn't use a command pool against this store.
func NewMetrics(store *Store, pool *CommandPool) *Metrics {
	return &Metrics{
		store: store,
		pool:  pool,
		entitiesLive: prometheus.NewDesc(
			"ecs_entities_live", "Number of committed entities (entities with a storage row).", nil, nil),
		archetypeCount: prometheus.NewDesc(
			"ecs_archetypes", "Number of distinct archetypes currently in use.", nil, nil),
		chunksInUse: prometheus.NewDesc(
			"ecs_chunks_in_use", "Number of chunks currently owned by a chunk list.", nil, nil),
		handleSaturated: prometheus.NewDesc(
			"ecs_handle_slots_saturated", "Number of handle-table slots permanently retired for generation exhaustion.", nil, nil),
		poolReserved: prometheus.NewDesc(
			"ecs_command_pool_reserved", "Command buffers never yet acquired.", nil, nil),
		poolReleased: prometheus.NewDesc(
			"ecs_command_pool_released", "Command buffers available for reuse.", nil, nil),
		poolRetired: prometheus.NewDesc(
			"ecs_command_pool_retired", "Command buffers retired until the next pool reset.", nil, nil),
	}
}

func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.entitiesLive
	ch <- m.archetypeCount
	ch <- m.chunksInUse
	if m.pool != nil {
		ch <- m.poolReserved
		ch <- m.poolReleased
		ch <- m.poolRetired
	}
	ch <- m.handleSaturated
}

func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(m.entitiesLive, prometheus.GaugeValue, float64(m.store.Count()))
	ch <- prometheus.MustNewConstMetric(m.archetypeCount, prometheus.GaugeValue, float64(m.store.arches.count()))
	chunksInUse := m.store.pool.capacity() - len(m.store.pool.free)
	ch <- prometheus.MustNewConstMetric(m.chunksInUse, prometheus.GaugeValue, float64(chunksInUse))
	ch <- prometheus.MustNewConstMetric(m.handleSaturated, prometheus.GaugeValue, float64(m.store.handles.saturated))

	if m.pool == nil {
		return
	}
	m.pool.mu.Lock()
	reserved, released, retired := len(m.pool.reserved), len(m.pool.released), len(m.pool.retired)
	m.pool.mu.Unlock()
	ch <- prometheus.MustNewConstMetric(m.poolReserved, prometheus.GaugeValue, float64(reserved))
	ch <- prometheus.MustNewConstMetric(m.poolReleased, prometheus.GaugeValue, float64(released))
	ch <- prometheus.MustNewConstMetric(m.poolRetired, prometheus.GaugeValue, float64(retired))
}
