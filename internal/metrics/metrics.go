// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "esigned",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method and status code.",
	}, []string{"method", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "esigned",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	UploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "esigned",
		Name:      "uploads_total",
		Help:      "Document uploads by outcome.",
	}, []string{"result"})

	SignaturesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "esigned",
		Name:      "signatures_total",
		Help:      "Signing attempts by outcome.",
	}, []string{"result"})

	ActivationEmailsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "esigned",
		Name:      "activation_emails_total",
		Help:      "Activation emails by outcome.",
	}, []string{"result"})
)

var registry = prometheus.NewRegistry()

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestsTotal,
		HTTPRequestDuration,
		UploadsTotal,
		SignaturesTotal,
		ActivationEmailsTotal,
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func ObserveRequest(method string, status int, elapsed time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// Result maps an error to the outcome label used by the counters.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
