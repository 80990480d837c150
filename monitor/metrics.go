package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	relayerBalanceEth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "keygate_relayer_balance_eth",
			Help: "Current balance of the mirror relayer account, in ETH.",
		},
	)

	rpcLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "keygate_rpc_latency_seconds",
			Help:    "Latency of ledger RPC probes.",
			Buckets: prometheus.DefBuckets,
		},
	)

	probeCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keygate_rpc_probes_total",
			Help: "Total ledger probes, by result.",
		},
		[]string{"result"}, // ok, error
	)

	alertCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keygate_alerts_total",
			Help: "Total alerts raised, by kind.",
		},
		[]string{"kind"}, // low_balance, rpc_down
	)
)
