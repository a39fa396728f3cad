package knowledge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	retrievalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "knowledge_retrieval_duration_seconds",
			Help:    "Duration of context-expansion retrieval",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"policy", "status"},
	)

	retrievalChunks = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "knowledge_retrieval_chunks",
			Help:    "Number of chunks per retrieval stage",
			Buckets: []float64{0, 1, 3, 5, 10, 20, 50},
		},
		[]string{"stage"}, // stage: hits, expanded, returned
	)

	ingestedChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "knowledge_ingested_chunks_total",
			Help: "Total number of chunks written to the similarity index",
		},
		[]string{"status"},
	)

	embeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "knowledge_embedding_requests_total",
			Help: "Embedding upstream calls",
		},
		[]string{"model", "status"},
	)

	embeddingCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "knowledge_embedding_cache_lookups_total",
			Help: "Query embedding cache lookups",
		},
		[]string{"result"}, // result: hit, miss, error
	)
)
