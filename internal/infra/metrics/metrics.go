// Package metrics exposes cache and enrichment metrics to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/osa030/crate/internal/app/cache"
	"github.com/osa030/crate/internal/app/notification"
)

// StatsSource supplies cache statistics.
type StatsSource interface {
	Stats() cache.Stats
}

// Metrics records enrichment outcomes and collects cache statistics.
type Metrics struct {
	enrichments *prometheus.CounterVec
	cache       *cacheCollector
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer, stats StatsSource) *Metrics {
	m := &Metrics{
		enrichments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crate_enrichment_runs_total",
				Help: "Enrichment runs by outcome",
			},
			[]string{"reason"},
		),
		cache: newCacheCollector(stats),
	}
	reg.MustRegister(m.enrichments, m.cache)
	return m
}

// RecordEnrichment counts one enrichment run.
func (m *Metrics) RecordEnrichment(reason notification.Reason) {
	m.enrichments.WithLabelValues(string(reason)).Inc()
}

// cacheCollector reads cache statistics at scrape time.
type cacheCollector struct {
	stats StatsSource

	globalMemory *prometheus.Desc
	globalLimit  *prometheus.Desc
	entries      *prometheus.Desc
	memory       *prometheus.Desc
	hits         *prometheus.Desc
	misses       *prometheus.Desc
	evictions    *prometheus.Desc
	rejections   *prometheus.Desc
}

func newCacheCollector(stats StatsSource) *cacheCollector {
	ns := []string{"namespace"}
	return &cacheCollector{
		stats:        stats,
		globalMemory: prometheus.NewDesc("crate_cache_memory_bytes_total", "Estimated bytes held by all namespaces", nil, nil),
		globalLimit:  prometheus.NewDesc("crate_cache_memory_limit_bytes", "Global memory ceiling, 0 when unlimited", nil, nil),
		entries:      prometheus.NewDesc("crate_cache_entries", "Entries per namespace", ns, nil),
		memory:       prometheus.NewDesc("crate_cache_memory_bytes", "Estimated bytes per namespace", ns, nil),
		hits:         prometheus.NewDesc("crate_cache_hits_total", "Cache hits", ns, nil),
		misses:       prometheus.NewDesc("crate_cache_misses_total", "Cache misses, expired entries included", ns, nil),
		evictions:    prometheus.NewDesc("crate_cache_evictions_total", "Entries evicted by size limits", ns, nil),
		rejections:   prometheus.NewDesc("crate_cache_rejections_total", "Oversized values refused", ns, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *cacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.globalMemory
	ch <- c.globalLimit
	ch <- c.entries
	ch <- c.memory
	ch <- c.hits
	ch <- c.misses
	ch <- c.evictions
	ch <- c.rejections
}

// Collect implements prometheus.Collector.
func (c *cacheCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats.Stats()
	ch <- prometheus.MustNewConstMetric(c.globalMemory, prometheus.GaugeValue, float64(s.Memory))
	ch <- prometheus.MustNewConstMetric(c.globalLimit, prometheus.GaugeValue, float64(s.GlobalMaxMemory))

	for _, ns := range s.Namespaces {
		ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(ns.Entries), ns.Name)
		ch <- prometheus.MustNewConstMetric(c.memory, prometheus.GaugeValue, float64(ns.Memory), ns.Name)
		ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(ns.Hits), ns.Name)
		ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(ns.Misses), ns.Name)
		ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(ns.Evictions), ns.Name)
		ch <- prometheus.MustNewConstMetric(c.rejections, prometheus.CounterValue, float64(ns.Rejections), ns.Name)
	}
}
