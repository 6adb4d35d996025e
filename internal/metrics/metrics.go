package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotreserve_submissions_total",
			Help: "Reservation submissions by outcome (confirmed, replayed, validation, capacity, internal).",
		},
		[]string{"outcome"},
	)

	SubmitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "slotreserve_submit_duration_seconds",
			Help:    "Time spent in Engine.Submit.",
			Buckets: prometheus.DefBuckets,
		},
	)

	IDCollisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slotreserve_booking_id_collisions_total",
			Help: "Generated booking IDs rejected because they were already issued.",
		},
	)

	IdempotentReplays = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slotreserve_idempotent_replays_total",
			Help: "Submissions answered from the idempotency cache.",
		},
	)

	Sweeps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotreserve_sweeps_total",
			Help: "Expiry sweeps by status.",
		},
		[]string{"status"},
	)

	SweptReservations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slotreserve_swept_reservations_total",
			Help: "Reservations removed because their date has passed.",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotreserve_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slotreserve_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func RecordSubmission(outcome string, elapsed time.Duration) {
	Submissions.WithLabelValues(outcome).Inc()
	SubmitDuration.Observe(elapsed.Seconds())
}

func RecordIDCollision() {
	IDCollisions.Inc()
}

func RecordIdempotentReplay() {
	IdempotentReplays.Inc()
}

func RecordSweep(removed int, err error) {
	if err != nil {
		Sweeps.WithLabelValues("error").Inc()

		return
	}

	Sweeps.WithLabelValues("ok").Inc()
	SweptReservations.Add(float64(removed))
}

func RecordHTTPRequest(method, route, status string, elapsed time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
