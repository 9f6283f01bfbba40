package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_requests_latency_seconds",
			Help:    "Latency of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// 入住申请
	BookingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_transitions_total",
			Help: "Booking request transitions by target status",
		},
		[]string{"status"},
	)
	CapacityExhausted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "capacity_exhausted_total",
			Help: "Approvals rejected because the hostel was full",
		},
	)

	// 支付
	PaymentVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_verifications_total",
			Help: "Payment verification outcomes",
		},
		[]string{"result"}, // success|duplicate|signature_mismatch|gateway_unavailable|error
	)
	GatewayCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_calls_total",
			Help: "Calls to the payment gateway",
		},
		[]string{"op", "result"},
	)

	// 后台任务
	OutboxPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_published_total",
			Help: "Outbox messages delivered to Kafka",
		},
		[]string{"result"},
	)

	initOnce sync.Once
)

// /metrics endpoint 使用
var Handler = promhttp.Handler

// Init 注册到默认 registry，可重复调用
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			HTTPLatency,
			BookingTransitions,
			CapacityExhausted,
			PaymentVerifications,
			GatewayCalls,
			OutboxPublished,
		)
	})
}
