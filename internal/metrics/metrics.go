// Package metrics exposes the prometheus instruments for the matching
// pipeline. Collectors register themselves on the default registry at init
// so callers only need to serve promhttp.Handler().
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MatchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subsidy",
		Subsystem: "matching",
		Name:      "requests_total",
		Help:      "Match computations by outcome: refined, fallback or error",
	}, []string{"outcome"})

	MatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "subsidy",
		Subsystem: "matching",
		Name:      "duration_seconds",
		Help:      "End-to-end match computation latency",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 20},
	})

	PreScoredCandidates = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "subsidy",
		Subsystem: "matching",
		Name:      "pre_scored_candidates",
		Help:      "Catalog size scored per request",
		Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 10000},
	})

	RefinementBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "subsidy",
		Subsystem: "matching",
		Name:      "refinement_batch_size",
		Help:      "Candidates sent to the provider after compaction",
		Buckets:   []float64{1, 2, 3, 5, 8, 10, 15, 20},
	})

	FallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subsidy",
		Subsystem: "matching",
		Name:      "fallback_total",
		Help:      "Degraded (heuristic-only) responses by failure reason",
	}, []string{"reason"})

	ProviderTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subsidy",
		Subsystem: "matching",
		Name:      "provider_tokens_total",
		Help:      "Provider-reported token usage by direction (input, output)",
	}, []string{"direction"})

	CatalogFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subsidy",
		Subsystem: "catalog",
		Name:      "fetch_total",
		Help:      "Catalog reads by result: hit, miss, bypass or error",
	}, []string{"result"})

	ComplianceWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "subsidy",
		Subsystem: "compliance",
		Name:      "write_failures_total",
		Help:      "Best-effort audit log writes that did not land",
	})
)
