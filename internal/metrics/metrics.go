// Package metrics registers the prometheus instruments exported on
// /metrics in HTTP serve mode.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "research_master"

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_requests_total",
		Help:      "Outbound provider requests by final status code.",
	}, []string{"provider", "operation", "code"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provider_request_duration_seconds",
		Help:      "Wall-clock time of provider operations including retries.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider", "operation"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_retries_total",
		Help:      "Retries scheduled against providers.",
	}, []string{"provider"})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "breaker_state",
		Help:      "Circuit state per provider: 0 closed, 1 half-open, 2 open.",
	}, []string{"provider"})

	cacheEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_events_total",
		Help:      "Cache lookups and writes by outcome.",
	}, []string{"kind", "outcome"})
)

func ObserveRequest(provider, operation string, status int, elapsed time.Duration) {
	requestsTotal.WithLabelValues(provider, operation, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(provider, operation).Observe(elapsed.Seconds())
}

func ObserveRetry(provider string) {
	retriesTotal.WithLabelValues(provider).Inc()
}

func SetBreakerState(provider, state string) {
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	breakerState.WithLabelValues(provider).Set(v)
}

func ObserveCache(kind, outcome string) {
	cacheEvents.WithLabelValues(kind, outcome).Inc()
}
