package swr

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Revalidations - settled revalidations per store, by result.
	Revalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swr_revalidations_total",
			Help: "Total number of settled revalidations per store",
		},
		[]string{"store", "result"},
	)

	// Deduped - revalidate calls answered by a fetch started by another caller.
	Deduped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swr_deduped_total",
			Help: "Revalidate calls that shared a fetch already in flight",
		},
		[]string{"store"},
	)

	// Evictions - entries removed by size or expiry.
	Evictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swr_evictions_total",
			Help: "Entries evicted for size or expiry",
		},
		[]string{"store"},
	)
)
