package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PoolsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ridepool", Name: "pools_created_total", Help: "Pools opened for new ride requests"})
	PoolsFilled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ridepool", Name: "pools_filled_total", Help: "Pools that reached rider capacity"})
	PoolsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ridepool", Name: "pools_expired_total", Help: "Pools expired by the sweep"})
	PoolsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ridepool", Name: "pools_cancelled_total", Help: "Pools cancelled after losing their last member"})

	JoinsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ridepool", Name: "joins_total", Help: "Join attempts by outcome"},
		[]string{"outcome"}, // joined | lost_race | new_pool
	)

	MatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ridepool", Name: "match_latency_seconds",
		Help:    "Time spent matching a ride request to a pool",
		Buckets: prometheus.DefBuckets,
	})

	DispatchAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ridepool", Name: "dispatch_attempts_total", Help: "Dispatch rounds started for filled pools"})
	OffersSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ridepool", Name: "offers_sent_total", Help: "Pool offers broadcast to candidate drivers"})
	AcceptsLost = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ridepool", Name: "accepts_lost_total", Help: "Driver accepts rejected because the pool was already taken"})
	TripsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ridepool", Name: "trips_created_total", Help: "Trips created from confirmed assignments"})
	NoDriverFound = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ridepool", Name: "no_driver_found_total", Help: "Pools whose dispatch attempts were exhausted"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ridepool", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ridepool",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
