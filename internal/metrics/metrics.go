// Package metrics declares the Prometheus collectors exported on /metrics.
//
// The collectors are registered with the default registry at init. Anything
// that needs to report to an operator (stale vote counts, modlog sink
// failures, auth denials) increments one of these.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quoteboard_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quoteboard_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quoteboard_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)

	// Authorization
	AuthDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quoteboard_auth_denials_total",
			Help: "Requests denied by the authorization gate",
		},
		[]string{"reason", "client"},
	)

	// Votes
	VotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quoteboard_votes_total",
			Help: "Vote ledger operations by outcome",
		},
		[]string{"op", "outcome"},
	)

	VoteCountStaleTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quoteboard_vote_count_stale_total",
			Help: "Votes recorded whose quote upvote count could not be recomputed",
		},
	)

	VoteCountRepairedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quoteboard_vote_count_repaired_total",
			Help: "Quote upvote counts corrected by a repair pass",
		},
	)

	// Moderation log
	ModLogFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quoteboard_modlog_failures_total",
			Help: "Moderation actions that could not be written to the log",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
