package domain

import (
	"context"
	"time"
)

// Metric names recorded for every exchange.
const (
	MetricResponseTime      = "response_time"
	MetricKnowledgeBaseHits = "knowledge_base_hits"
	MetricIntentDetected    = "intent_detected"
)

// MetricsSink records a named numeric sample with string tags.
type MetricsSink interface {
	RecordMetric(ctx context.Context, name string, value float64, tags map[string]string) error
}

// MetricSummary aggregates one metric over a time window.
type MetricSummary struct {
	Name    string  `json:"metric_name"`
	Average float64 `json:"avg_value"`
	Min     float64 `json:"min_value"`
	Max     float64 `json:"max_value"`
	Count   int64   `json:"count"`
}

// AnalyticsStore answers aggregate queries over recorded metrics.
type AnalyticsStore interface {
	SummarizeMetric(ctx context.Context, name string, from, to time.Time) (MetricSummary, error)
}
