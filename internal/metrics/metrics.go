// Package metrics exposes Prometheus metrics for supplier traffic, webhooks
// and order state transitions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the interface the sync components report through
type Recorder interface {
	RecordSupplierRequest(endpoint, outcome string, duration time.Duration)
	RecordTokenRefresh(outcome string)
	RecordWebhook(webhookType, outcome string)
	RecordOrderTransition(from, to string)
	RecordProductSync(outcome string)
}

// Collector records metrics into a Prometheus registry
type Collector struct {
	supplierRequests *prometheus.CounterVec
	supplierLatency  *prometheus.HistogramVec
	tokenRefreshes   *prometheus.CounterVec
	webhooks         *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	productSyncs     *prometheus.CounterVec
}

// NewCollector creates a Collector and registers it with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		supplierRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dropsync_supplier_requests_total",
			Help: "Supplier API requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		supplierLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dropsync_supplier_request_seconds",
			Help:    "Supplier API request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dropsync_token_refresh_total",
			Help: "Supplier access token refreshes by outcome",
		}, []string{"outcome"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dropsync_webhooks_total",
			Help: "Inbound supplier webhooks by type and outcome",
		}, []string{"type", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dropsync_order_transitions_total",
			Help: "Supplier order state transitions",
		}, []string{"from", "to"}),
		productSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dropsync_product_syncs_total",
			Help: "Supplier product syncs by outcome",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.supplierRequests,
		c.supplierLatency,
		c.tokenRefreshes,
		c.webhooks,
		c.transitions,
		c.productSyncs,
	)

	return c
}

func (c *Collector) RecordSupplierRequest(endpoint, outcome string, duration time.Duration) {
	c.supplierRequests.WithLabelValues(endpoint, outcome).Inc()
	c.supplierLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (c *Collector) RecordTokenRefresh(outcome string) {
	c.tokenRefreshes.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordWebhook(webhookType, outcome string) {
	c.webhooks.WithLabelValues(webhookType, outcome).Inc()
}

func (c *Collector) RecordOrderTransition(from, to string) {
	c.transitions.WithLabelValues(from, to).Inc()
}

func (c *Collector) RecordProductSync(outcome string) {
	c.productSyncs.WithLabelValues(outcome).Inc()
}

// Nop discards all metrics
type Nop struct{}

func (Nop) RecordSupplierRequest(string, string, time.Duration) {}
func (Nop) RecordTokenRefresh(string)                           {}
func (Nop) RecordWebhook(string, string)                        {}
func (Nop) RecordOrderTransition(string, string)                {}
func (Nop) RecordProductSync(string)                            {}

// Handler returns the scrape handler for gatherer
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
