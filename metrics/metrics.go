package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections",
			Help: "Current number of live websocket connections on this instance.",
		},
	)

	MessagesDeliveredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messages_delivered_total",
			Help: "Total number of messages fanned out.",
		},
	)

	RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Total number of rate limited actions.",
		},
		[]string{"action"},
	)

	CallsInitiatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calls_initiated_total",
			Help: "Total number of call sessions created.",
		},
		[]string{"type"},
	)

	CallsAnsweredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "calls_answered_total",
			Help: "Total number of calls answered.",
		},
	)

	CallsSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "calls_swept_total",
			Help: "Total number of ringing calls swept to missed.",
		},
	)
)

func MustRegister() {
	prometheus.MustRegister(
		WSConnections,
		MessagesDeliveredTotal,
		RateLimitedTotal,
		CallsInitiatedTotal,
		CallsAnsweredTotal,
		CallsSweptTotal,
	)
}
