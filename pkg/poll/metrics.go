package poll

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchTotal - completed fetches per poller, by result.
	FetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poll_fetch_total",
			Help: "Total number of completed fetches per poller",
		},
		[]string{"poller", "result"},
	)

	// FetchDuration - time spent inside the fetch function.
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poll_fetch_duration_seconds",
			Help:    "Duration of fetch calls per poller",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"poller"},
	)

	// ActiveSessions - sessions currently polling.
	ActiveSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "poll_sessions_active",
			Help: "Number of sessions currently polling",
		},
		[]string{"poller"},
	)

	// CoalescedTotal - execute calls that joined a fetch already in flight.
	CoalescedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poll_coalesced_total",
			Help: "Execute calls served by a fetch that was already in flight",
		},
		[]string{"poller"},
	)
)

const (
	resultSuccess   = "success"
	resultError     = "error"
	resultDiscarded = "discarded"
)
