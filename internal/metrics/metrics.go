package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "caz"

var (
	gatewayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Total external gateway calls by method, operation and result",
		},
		[]string{"payment_method", "operation", "result"},
	)

	gatewayLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Duration of external gateway calls",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"payment_method", "operation"},
	)

	paymentsInitiated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_initiated_total",
			Help:      "Total payment initiations by method and result",
		},
		[]string{"payment_method", "result"},
	)

	reconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Total reconciliation attempts by outcome",
		},
		[]string{"payment_method", "outcome"},
	)

	statusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_status_transitions_total",
			Help:      "Total internal status transitions applied to payments",
		},
		[]string{"from", "to"},
	)

	outboxDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_deliveries_total",
			Help:      "Total outbox delivery attempts by result",
		},
		[]string{"result"},
	)

	outboxBacklog = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_pending_batch",
			Help:      "Pending outbox messages picked up by the last relay pass",
		},
	)
)

// ObserveGatewayCall 记录一次网关调用
func ObserveGatewayCall(paymentMethod, operation string, started time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	gatewayRequests.WithLabelValues(paymentMethod, operation, result).Inc()
	gatewayLatency.WithLabelValues(paymentMethod, operation).Observe(time.Since(started).Seconds())
}

// IncPaymentInitiated 记录支付创建结果
func IncPaymentInitiated(paymentMethod, result string) {
	paymentsInitiated.WithLabelValues(paymentMethod, result).Inc()
}

// IncReconciliation 记录对账结果
func IncReconciliation(paymentMethod, outcome string) {
	reconciliations.WithLabelValues(paymentMethod, outcome).Inc()
}

// IncStatusTransition 记录状态迁移
func IncStatusTransition(from, to string) {
	statusTransitions.WithLabelValues(from, to).Inc()
}

// IncOutboxDelivery 记录发件箱投递结果
func IncOutboxDelivery(result string) {
	outboxDeliveries.WithLabelValues(result).Inc()
}

// SetOutboxBacklog 记录本轮待投递数量
func SetOutboxBacklog(count int) {
	outboxBacklog.Set(float64(count))
}

// Handler Prometheus 抓取端点
func Handler() http.Handler {
	return promhttp.Handler()
}
