package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var mirrorAttemptCount = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "keygate_mirror_attempts_total",
		Help: "Total mirror job attempts, by result.",
	},
	[]string{"result"}, // submitted, duplicate, skipped, failed, malformed
)
