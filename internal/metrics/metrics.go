// Package metrics holds the Prometheus collectors of the RFID pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReadsTotal counts processed reads by outcome (ok, error).
	ReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfid_reads_total",
			Help: "Reads processed by the ingestion pipeline",
		},
		[]string{"outcome"},
	)

	// TagsCreatedTotal counts tags created on first sight.
	TagsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rfid_tags_created_total",
			Help: "Tags created by the ingestion pipeline on first sight",
		},
	)

	// InventoryTransitionsTotal counts automated item status changes by target status.
	InventoryTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfid_inventory_transitions_total",
			Help: "Inventory status changes made from directional reads",
		},
		[]string{"status"},
	)

	// BatchesTotal counts batches by transport (http, mqtt) and result (ok, partial, rejected).
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfid_batches_total",
			Help: "Read batches received",
		},
		[]string{"transport", "result"},
	)

	// BatchDuration observes how long a batch takes to process.
	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rfid_batch_duration_seconds",
			Help:    "Time spent processing one read batch",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Batch results.
const (
	ResultOK       = "ok"
	ResultPartial  = "partial"
	ResultRejected = "rejected"
)
