package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/upb/ak-van-sync/services/report"
)

const namespace = "eventsync"

// Metrics records pipeline outcomes on a private registry
type Metrics struct {
	registry    *prometheus.Registry
	items       *prometheus.CounterVec
	regions     *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
}

// NewMetrics creates and registers the pipeline metrics
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.items = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "items_total",
		Help:      "Events processed by pipeline, region and outcome",
	}, []string{"pipeline", "region", "outcome"})
	m.regions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "regions_total",
		Help:      "Regions processed by pipeline and status",
	}, []string{"pipeline", "status"})
	m.runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of pipeline runs",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"pipeline"})
	m.lastSuccess = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last run with no failed region",
	}, []string{"pipeline"})

	m.registry.MustRegister(
		m.items, m.regions, m.runDuration, m.lastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveReport records a finished run
func (m *Metrics) ObserveReport(r *report.JobReport) {
	for _, region := range r.Regions() {
		m.regions.WithLabelValues(r.Pipeline, region.Status).Inc()
		for outcome, n := range region.Counts() {
			if n > 0 {
				m.items.WithLabelValues(r.Pipeline, region.Region, outcome).Add(float64(n))
			}
		}
	}
	m.runDuration.WithLabelValues(r.Pipeline).Observe(r.Duration().Seconds())
	if !r.HasFailures() {
		m.lastSuccess.WithLabelValues(r.Pipeline).Set(float64(time.Now().Unix()))
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Push sends the registry to a Prometheus pushgateway under the given job name
func (m *Metrics) Push(ctx context.Context, gatewayURL, job string) error {
	if err := push.New(gatewayURL, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
