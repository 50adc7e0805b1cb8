package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics exposes counters/histograms for the messaging pipeline
// and the reminder sweeper. All methods are nil-safe so metrics stay
// optional in tests and tooling.
type PipelineMetrics struct {
	webhookTotal   *prometheus.CounterVec
	turnDuration   prometheus.Histogram
	remindersTotal *prometheus.CounterVec
	sendTotal      *prometheus.CounterVec
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "messaging",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound WhatsApp webhooks by verdict",
		}, []string{"verdict"}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "conversation",
			Name:      "turn_duration_seconds",
			Help:      "Duration of one conversational turn",
			Buckets:   prometheus.DefBuckets,
		}),
		remindersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "reminder",
			Name:      "notifications_total",
			Help:      "Total reminder deliveries by kind and outcome",
		}, []string{"kind", "outcome"}),
		sendTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Total outbound WhatsApp sends",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.webhookTotal, m.turnDuration, m.remindersTotal, m.sendTotal)
	return m
}

func (m *PipelineMetrics) ObserveWebhook(verdict string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(verdict).Inc()
}

func (m *PipelineMetrics) ObserveTurnDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.turnDuration.Observe(d.Seconds())
}

func (m *PipelineMetrics) ObserveReminder(kind, outcome string) {
	if m == nil {
		return
	}
	m.remindersTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *PipelineMetrics) ObserveSend(success bool) {
	if m == nil {
		return
	}
	status := "sent"
	if !success {
		status = "failed"
	}
	m.sendTotal.WithLabelValues(status).Inc()
}
