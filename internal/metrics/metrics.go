package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// 核心链路指标：webhook 对账、结算创建、失败扣款
var (
	WebhookReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_received_total",
			Help: "Total number of webhook deliveries received",
		},
	)

	WebhookRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_rejected_total",
			Help: "Total number of webhook deliveries rejected before mutation",
		},
		[]string{"reason"},
	)

	WebhookAppliedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_applied_total",
			Help: "Total number of webhook events that changed order state",
		},
	)

	WebhookReplayedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_replayed_total",
			Help: "Total number of duplicate webhook events applied as no-op",
		},
	)

	CheckoutSessionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_sessions_total",
			Help: "Total number of processor checkout sessions created",
		},
	)

	DirectChargesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "direct_charges_total",
			Help: "Total number of legacy token charges created",
		},
	)

	FailedPaymentsRecordedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "failed_payments_recorded_total",
			Help: "Total number of failed payment events recorded",
		},
	)

	WebhookProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webhook_processing_duration_seconds",
			Help:    "Duration of webhook processing",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Register 把全部指标注册到给定 registry
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		WebhookReceivedTotal,
		WebhookRejectedTotal,
		WebhookAppliedTotal,
		WebhookReplayedTotal,
		CheckoutSessionsTotal,
		DirectChargesTotal,
		FailedPaymentsRecordedTotal,
		WebhookProcessingDuration,
	)
}
