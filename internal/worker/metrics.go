package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry        *prometheus.Registry
	recordsTotal    *prometheus.CounterVec
	recordDuration  *prometheus.HistogramVec
	pixelsTotal     *prometheus.CounterVec
	bytesSavedTotal *prometheus.CounterVec
	webhookFailures prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		recordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelkit_worker_records_total",
			Help: "Conversion record tasks handled by outcome.",
		}, []string{"outcome"}),
		recordDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelkit_worker_record_duration_seconds",
			Help:    "Time spent handling each conversion record task.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		pixelsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelkit_usage_pixels_converted_total",
			Help: "Pixels converted across recorded conversions.",
		}, []string{"format"}),
		bytesSavedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelkit_usage_bytes_saved_total",
			Help: "Bytes saved across recorded conversions.",
		}, []string{"format"}),
		webhookFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelkit_worker_webhook_failures_total",
			Help: "Webhook deliveries that exhausted their attempts.",
		}),
	}

	registry.MustRegister(
		m.recordsTotal,
		m.recordDuration,
		m.pixelsTotal,
		m.bytesSavedTotal,
		m.webhookFailures,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
