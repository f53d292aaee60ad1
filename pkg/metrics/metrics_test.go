package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
)

func TestPaymentMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewPaymentMetrics(reg)

	metrics.IncWebhookOutcome(WebhookOutcomeSuccess)
	metrics.IncWebhookOutcome(WebhookOutcomeReplay)
	metrics.IncWebhookOutcome(WebhookOutcomeReplay)
	metrics.ObserveProcessorCall(ProcessorResultOK, 250*time.Millisecond)
	metrics.ObserveProcessorCall(ProcessorResultNotConfigured, 0)
	metrics.IncCodeVerification(CodeResultExpired)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "payment_webhook_outcomes_total", "outcome", WebhookOutcomeReplay); err != nil {
		t.Fatalf("fetch replay: %v", err)
	} else if got != 2 {
		t.Fatalf("expected replay=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "payment_processor_calls_total", "result", ProcessorResultNotConfigured); err != nil {
		t.Fatalf("fetch not configured: %v", err)
	} else if got != 1 {
		t.Fatalf("expected not_configured=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "delivery_code_verifications_total", "result", CodeResultExpired); err != nil {
		t.Fatalf("fetch expired: %v", err)
	} else if got != 1 {
		t.Fatalf("expected expired=1, got %f", got)
	}

	mf := findMetricFamily(mfs, "payment_processor_call_duration_seconds")
	if mf == nil {
		t.Fatalf("duration histogram not exported")
	}
	hist := mf.GetMetric()[0].GetHistogram()
	if hist.GetSampleCount() != 1 {
		t.Fatalf("expected one observed call, got %d", hist.GetSampleCount())
	}
	if hist.GetSampleSum() <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", hist.GetSampleSum())
	}
}

func TestOutboxMetricsLabelsTerminalFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewOutboxMetrics(reg)

	metrics.IncPublished("order.settled")
	metrics.IncFailed("order.settled", true)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "outbox_events_published_total", "event_type", "order.settled"); err != nil {
		t.Fatalf("fetch published: %v", err)
	} else if got != 1 {
		t.Fatalf("expected published=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "outbox_events_failed_total", "terminal", "true"); err != nil {
		t.Fatalf("fetch failed: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failed=1, got %f", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var payments *PaymentMetrics
	payments.IncWebhookOutcome(WebhookOutcomeFailed)
	payments.ObserveProcessorCall(ProcessorResultOK, time.Second)
	payments.IncCodeVerification(CodeResultVerified)

	NewPaymentMetrics(nil).IncWebhookOutcome(WebhookOutcomeFailed)

	var outbox *OutboxMetrics
	outbox.IncPublished("order.confirmed")

	var cron *CronJobMetrics
	cron.ObserveRun("outbox-retention", time.Second, nil)
	cron.IncLockSkipped()
	NewCronJobMetrics(nil).ObserveRun("outbox-retention", time.Second, errors.New("boom"))
}

func TestCronJobMetricsCountRunsPerJob(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.ObserveRun("outbox-retention", 120*time.Millisecond, nil)
	m.ObserveRun("outbox-retention", time.Second, nil)
	m.ObserveRun("other", time.Second, errors.New("boom"))
	m.IncLockSkipped()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.runs.WithLabelValues("outbox-retention", cronResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("other", cronResultFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lockSkips))
	assert.Positive(t, testutil.ToFloat64(m.lastSuccess.WithLabelValues("outbox-retention")))
	assert.Zero(t, testutil.ToFloat64(m.lastSuccess.WithLabelValues("other")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.duration))
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
