package metrics

import (
	"context"
	"errors"
	"strings"

	"wabot/internal/domain"
)

// Latency buckets in milliseconds for generated replies.
var responseTimeBuckets = []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

// Generic buckets for metric names without a dedicated series.
var valueBuckets = []float64{1, 5, 10, 50, 100, 500, 1000}

// Sink feeds exchange metrics into a MetricsCollector.
type Sink struct {
	c *MetricsCollector
}

// NewSink returns a domain.MetricsSink backed by c.
func NewSink(c *MetricsCollector) *Sink {
	return &Sink{c: c}
}

// RecordMetric maps a named measurement onto a Prometheus series.
// It never fails.
func (s *Sink) RecordMetric(_ context.Context, name string, value float64, tags map[string]string) error {
	p := s.c.prefix
	labels := Labels(tags)
	switch name {
	case domain.MetricResponseTime:
		s.c.Histogram(p+"_response_time_ms", "Reply generation latency in milliseconds", labels, responseTimeBuckets).Observe(value)
	case domain.MetricKnowledgeBaseHits:
		s.c.Counter(p+"_knowledge_base_hits_total", "Knowledge entries supplied to replies", labels).Add(int64(value))
	case domain.MetricIntentDetected:
		s.c.Counter(p+"_intents_detected_total", "Messages classified per intent", labels).Add(int64(value))
	default:
		s.c.Histogram(p+"_"+sanitizeName(name), "Recorded metric "+name, labels, valueBuckets).Observe(value)
	}
	return nil
}

func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, name)
}

// Multi fans a metric out to every sink. All sinks are attempted; the
// returned error joins the individual failures.
type Multi []domain.MetricsSink

func (m Multi) RecordMetric(ctx context.Context, name string, value float64, tags map[string]string) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.RecordMetric(ctx, name, value, tags); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
