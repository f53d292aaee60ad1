package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Webhook outcomes.
const (
	WebhookOutcomeSuccess  = "success"
	WebhookOutcomeFailed   = "failed"
	WebhookOutcomeReplay   = "replay"
	WebhookOutcomeRejected = "rejected"
)

// Processor call results.
const (
	ProcessorResultOK             = "ok"
	ProcessorResultHTTPError      = "http_error"
	ProcessorResultTransportError = "transport_error"
	ProcessorResultNotConfigured  = "not_configured"
)

// Delivery code verification results.
const (
	CodeResultVerified = "verified"
	CodeResultInvalid  = "invalid"
	CodeResultExpired  = "expired"
	CodeResultNotSet   = "not_set"
)

// PaymentMetrics records the payment and hand-off signals of the order flow.
type PaymentMetrics struct {
	webhookOutcomes   *prometheus.CounterVec
	processorCalls    *prometheus.CounterVec
	processorDuration prometheus.Histogram
	codeVerifications *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	webhookOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_outcomes_total",
		Help: "Processor webhook deliveries by reconciliation outcome.",
	}, []string{"outcome"})
	processorCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_processor_calls_total",
		Help: "Receive-money calls by result.",
	}, []string{"result"})
	processorDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_processor_call_duration_seconds",
		Help:    "Latency of receive-money calls that reached the network.",
		Buckets: prometheus.DefBuckets,
	})
	codeVerifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_code_verifications_total",
		Help: "Delivery code checks by result.",
	}, []string{"result"})
	reg.MustRegister(webhookOutcomes, processorCalls, processorDuration, codeVerifications)
	return &PaymentMetrics{
		webhookOutcomes:   webhookOutcomes,
		processorCalls:    processorCalls,
		processorDuration: processorDuration,
		codeVerifications: codeVerifications,
	}
}

func (m *PaymentMetrics) IncWebhookOutcome(outcome string) {
	if m == nil || m.webhookOutcomes == nil {
		return
	}
	m.webhookOutcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveProcessorCall counts the call and, when it reached the network,
// records its latency.
func (m *PaymentMetrics) ObserveProcessorCall(result string, duration time.Duration) {
	if m == nil || m.processorCalls == nil {
		return
	}
	m.processorCalls.WithLabelValues(normalizeLabel(result)).Inc()
	if result != ProcessorResultNotConfigured && m.processorDuration != nil {
		m.processorDuration.Observe(duration.Seconds())
	}
}

func (m *PaymentMetrics) IncCodeVerification(result string) {
	if m == nil || m.codeVerifications == nil {
		return
	}
	m.codeVerifications.WithLabelValues(normalizeLabel(result)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
