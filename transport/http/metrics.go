package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registrationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keygate_registrations_total",
			Help: "Total registration ceremony completions, by outcome.",
		},
		[]string{"outcome"}, // success, rejected, error
	)

	authenticationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keygate_authentications_total",
			Help: "Total authentication ceremony completions, by outcome.",
		},
		[]string{"outcome"}, // success, rejected, error
	)
)

// outcomeFor buckets an HTTP status into a counter label.
func outcomeFor(status int) string {
	switch {
	case status < 300:
		return "success"
	case status < 500:
		return "rejected"
	default:
		return "error"
	}
}
