// Package metrics exposes process-local Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SearchesTotal counts orchestrated searches by outcome.
	SearchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinephage_searches_total",
		Help: "Orchestrated searches by outcome.",
	}, []string{"outcome"})

	// SearchDuration observes end-to-end search latency.
	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cinephage_search_duration_seconds",
		Help:    "End-to-end search latency.",
		Buckets: prometheus.DefBuckets,
	})

	// IndexerSearchesTotal counts per-indexer searches by result tag.
	IndexerSearchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinephage_indexer_searches_total",
		Help: "Per-indexer search dispatches by result.",
	}, []string{"result"})

	// ReleaseCacheEvents counts release cache hits and misses.
	ReleaseCacheEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinephage_release_cache_events_total",
		Help: "Release cache lookups by result.",
	}, []string{"result"})

	// DedupRemovedTotal counts releases removed by deduplication.
	DedupRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cinephage_dedup_removed_total",
		Help: "Duplicate releases collapsed by the deduplicator.",
	})

	// LiveTVReconnectsTotal counts upstream reconnects of live streams.
	LiveTVReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinephage_livetv_reconnects_total",
		Help: "Live TV upstream reconnects by cause.",
	}, []string{"cause"})

	// NNTPFetchesTotal counts article fetches by result.
	NNTPFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinephage_nntp_fetches_total",
		Help: "NNTP article fetches by result.",
	}, []string{"result"})

	// ArticleCacheEvents counts decoded-article cache lookups.
	ArticleCacheEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinephage_article_cache_events_total",
		Help: "Decoded article cache lookups by result.",
	}, []string{"result"})

	// ActiveStreams tracks open streaming sessions by kind.
	ActiveStreams = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cinephage_active_streams",
		Help: "Open streaming sessions by kind.",
	}, []string{"kind"})
)
