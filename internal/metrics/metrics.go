package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpstreamCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showcase_upstream_calls_total",
			Help: "Total upstream service calls by outcome",
		},
		[]string{"service", "status"},
	)

	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "showcase_upstream_latency_seconds",
			Help:    "Upstream service call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	// ResolverOutcomes counts resolutions by winning source ("GPS", "IP" or "none").
	ResolverOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showcase_resolver_outcomes_total",
			Help: "Total environment resolutions by coordinate source",
		},
		[]string{"source"},
	)

	ChatExchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showcase_chat_exchanges_total",
			Help: "Total assistant exchanges by outcome",
		},
		[]string{"outcome"},
	)
)
