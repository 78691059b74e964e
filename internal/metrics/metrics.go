package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotbooking",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)

	bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotbooking",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome (confirmed, held, rejected, error).",
		},
		[]string{"outcome"},
	)

	seatsReclaimed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slotbooking",
			Name:      "seats_reclaimed_total",
			Help:      "Seats returned to slots by the reclamation sweep.",
		},
	)
)

// Register registers the collectors. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, bookings, seatsReclaimed)
	})
}

func IncHTTP(method, route, status string) {
	httpRequests.WithLabelValues(method, route, status).Inc()
}

func IncBooking(outcome string) {
	bookings.WithLabelValues(outcome).Inc()
}

func AddSeatsReclaimed(n int) {
	seatsReclaimed.Add(float64(n))
}
