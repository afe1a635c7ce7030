package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks Graph API requests per operation
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notefetch_requests_total",
			Help: "Total number of Graph API requests",
		},
		[]string{"operation"},
	)

	// RequestErrorsTotal tracks failed requests per operation and error kind
	RequestErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notefetch_request_errors_total",
			Help: "Total number of failed Graph API requests",
		},
		[]string{"operation", "kind"},
	)

	// RequestLatency tracks request latency
	RequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notefetch_request_latency_seconds",
			Help:    "Graph API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// RetriesTotal tracks retry attempts per error kind
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notefetch_retries_total",
			Help: "Total number of retry attempts",
		},
		[]string{"kind"},
	)

	// EscalationsTotal tracks diagnostic advisor consultations
	EscalationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notefetch_escalations_total",
			Help: "Total number of errors escalated to the diagnostic advisor",
		},
	)

	// TokenRefreshesTotal tracks token refresh attempts
	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notefetch_token_refreshes_total",
			Help: "Total number of token refresh attempts",
		},
		[]string{"result"},
	)

	// DownloadsTotal tracks completed download tasks by terminal status
	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notefetch_downloads_total",
			Help: "Total number of finished image download tasks",
		},
		[]string{"status"},
	)

	// PagesFetched tracks paginated result pages fetched
	PagesFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notefetch_pages_fetched_total",
			Help: "Total number of result pages fetched",
		},
	)
)
