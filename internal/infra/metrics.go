package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько занял исходящий вызов Slack Web API
	SlackCallDuration *prometheus.HistogramVec

	// Traffic: входящие события по эндпоинтам
	RequestsTotal *prometheus.CounterVec

	// Решения по заявкам (approved/rejected)
	DecisionsTotal *prometheus.CounterVec

	// Saturation: сколько заявок висит в ожидании решения
	PendingApprovals prometheus.Gauge

	// Состояние Circuit Breaker на Slack-клиенте (0 - ок, 1 - выбило)
	CircuitBreakerState prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		SlackCallDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "approvalflow_slack_call_duration_seconds",
			Help:    "Histogram of Slack Web API call latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "status"}),

		RequestsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "approvalflow_requests_total",
			Help: "Total number of inbound events by kind and outcome.",
		}, []string{"kind", "outcome"}), // kind: command, submission, click

		DecisionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "approvalflow_decisions_total",
			Help: "Total number of recorded approval decisions.",
		}, []string{"result"}), // approved, rejected

		PendingApprovals: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "approvalflow_pending_approvals",
			Help: "Current number of approval requests awaiting decision.",
		}),

		CircuitBreakerState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "approvalflow_slack_circuit_breaker_state",
			Help: "Current state of the Slack client circuit breaker (0=closed, 1=open).",
		}),
	}
}
