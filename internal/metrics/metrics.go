// Package metrics collects and exposes Prometheus counters for the
// ingestion surface.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records upload admission and ingestion volume.
type Collector struct {
	registry *prometheus.Registry

	uploadsAccepted prometheus.Counter
	uploadsRejected *prometheus.CounterVec
	ingestFailures  prometheus.Counter
	datasetsStored  prometheus.Counter
	rowsIngested    prometheus.Counter
}

// NewCollector creates a Collector backed by a private registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		uploadsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sheetdrop_uploads_accepted_total",
			Help: "Uploads that passed admission checks.",
		}),
		uploadsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sheetdrop_uploads_rejected_total",
			Help: "Uploads rejected at the boundary, by reason.",
		}, []string{"reason"}),
		ingestFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sheetdrop_ingest_failures_total",
			Help: "Accepted uploads that failed during parse or store.",
		}),
		datasetsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sheetdrop_datasets_stored_total",
			Help: "Datasets successfully persisted.",
		}),
		rowsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sheetdrop_rows_ingested_total",
			Help: "Total data rows across stored datasets.",
		}),
	}

	registry.MustRegister(
		c.uploadsAccepted,
		c.uploadsRejected,
		c.ingestFailures,
		c.datasetsStored,
		c.rowsIngested,
	)
	return c
}

func (c *Collector) RecordUploadAccepted() {
	c.uploadsAccepted.Inc()
}

func (c *Collector) RecordUploadRejected(reason string) {
	c.uploadsRejected.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordIngestFailure() {
	c.ingestFailures.Inc()
}

func (c *Collector) RecordDatasetStored(rowCount int) {
	c.datasetsStored.Inc()
	c.rowsIngested.Add(float64(rowCount))
}

// Handler serves the collector's registry in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
