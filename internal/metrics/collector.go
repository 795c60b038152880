// Package metrics holds the Prometheus collectors for relaybot. They are
// registered on a package-level registry and served by the liveness server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registry every relaybot collector is registered on.
var Registry = prometheus.NewRegistry()

var startTime = time.Now()

var (
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relaybot_events_total",
		Help: "Inbound events routed, by handler kind",
	}, []string{"kind"})

	UpstreamRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relaybot_upstream_requests_total",
		Help: "Calls to generation and image APIs, by api and outcome",
	}, []string{"api", "outcome"})

	UpstreamLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relaybot_upstream_latency_seconds",
		Help:    "Latency of generation and image API calls in seconds",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"api"})

	RepliesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relaybot_replies_total",
		Help: "Replies delivered to users, by type",
	}, []string{"type"})

	MarkupFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relaybot_markup_fallbacks_total",
		Help: "Replies resent as plain text after the platform rejected markup",
	})

	Uptime = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "relaybot_uptime_seconds",
		Help: "Time since process start in seconds",
	}, func() float64 { return time.Since(startTime).Seconds() })
)

func init() {
	Registry.MustRegister(
		EventsTotal,
		UpstreamRequests,
		UpstreamLatency,
		RepliesTotal,
		MarkupFallbacks,
		Uptime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// ObserveUpstream records one upstream call that started at start. outcome is
// "ok" or a short failure class such as "status" or "transport".
func ObserveUpstream(api string, start time.Time, outcome string) {
	UpstreamRequests.WithLabelValues(api, outcome).Inc()
	UpstreamLatency.WithLabelValues(api).Observe(time.Since(start).Seconds())
}

// StartTime returns when the process started.
func StartTime() time.Time { return startTime }

// Handler serves the registry in Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
