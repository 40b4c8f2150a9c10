package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "agenda"

// Booking outcomes.
const (
	ResultCreated     = "created"
	ResultInvalid     = "invalid"
	ResultBlocked     = "blocked"
	ResultTaken       = "taken"
	ResultRateLimited = "rate_limited"
	ResultError       = "error"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking attempts by result.",
		},
		[]string{"result"},
	)

	availabilityFailOpen = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_fail_open_total",
			Help:      "Availability queries answered with the full grid after a storage error.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, bookings, availabilityFailOpen)
	})
}

func ObserveHTTP(route, code string, elapsed time.Duration) {
	httpRequests.WithLabelValues(route, code).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func IncBooking(result string) {
	bookings.WithLabelValues(result).Inc()
}

func IncAvailabilityFailOpen() {
	availabilityFailOpen.Inc()
}
