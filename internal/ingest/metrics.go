package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	documentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "newsragd",
		Subsystem: "ingest",
		Name:      "documents_total",
		Help:      "Documents processed by the ingestion pipeline, by outcome.",
	}, []string{"outcome"})

	chunksUpserted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "newsragd",
		Subsystem: "ingest",
		Name:      "chunks_upserted_total",
		Help:      "Chunk entries committed to the vector index.",
	})

	ingestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "newsragd",
		Subsystem: "ingest",
		Name:      "document_duration_seconds",
		Help:      "Time spent ingesting a single document.",
		Buckets:   prometheus.DefBuckets,
	})
)

// Outcome labels for documentsTotal.
const (
	outcomeSucceeded = "succeeded"
	outcomeSkipped   = "skipped"
	outcomeFailed    = "failed"
	outcomeDuplicate = "duplicate"
)
