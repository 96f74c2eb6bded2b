package hxcommunity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hxcommunity",
			Name:      "worker_requests_total",
			Help:      "Requests seen by the offline cache worker, by strategy and outcome.",
		},
		[]string{"strategy", "outcome"},
	)

	revalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hxcommunity",
			Name:      "worker_revalidations_total",
			Help:      "Background cache revalidations, by outcome.",
		},
		[]string{"outcome"},
	)

	listQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hxcommunity",
			Name:      "list_queries_total",
			Help:      "Sheet list queries, by sheet and outcome.",
		},
		[]string{"sheet", "outcome"},
	)

	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hxcommunity",
			Name:      "dispatch_total",
			Help:      "Action dispatches, by action and result status.",
		},
		[]string{"action", "status"},
	)

	rollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hxcommunity",
			Name:      "optimistic_rollbacks_total",
			Help:      "Optimistic mutations restored after a failed dispatch.",
		},
		[]string{"mutation"},
	)
)
