package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fleet_rides"

var (
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "dispatch_messages_total", Help: "Messages handed to the fleet actuator transport"},
		[]string{"channel", "result"},
	)
	DispatchConnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "dispatch_connect_attempts_total", Help: "Transport connection attempts"},
		[]string{"transport", "result"},
	)
	JobsInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "jobs_inserted_total", Help: "Jobs written in pending state"},
		[]string{"type"},
	)
	JobsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "jobs_deleted_total", Help: "Jobs deleted after their terminal state was consumed"},
		[]string{"type", "state"},
	)
	ActiveRideStatus = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "active_ride_status_total", Help: "Reconciled active-ride status codes"},
		[]string{"status"},
	)
	RatingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ratings_total", Help: "Rating attempts by outcome"},
		[]string{"result"},
	)
	ActuatorMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "actuator_messages_total", Help: "Messages handled by the actuator simulator"},
		[]string{"channel", "result"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
