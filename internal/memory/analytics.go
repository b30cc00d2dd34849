package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"wabot/internal/domain"
)

// RecordMetric appends one sample to bot_analytics.
func (s *Store) RecordMetric(ctx context.Context, name string, value float64, tags map[string]string) error {
	var dims any
	if len(tags) > 0 {
		data, err := json.Marshal(tags)
		if err != nil {
			return fmt.Errorf("marshal dimensions: %w", err)
		}
		dims = string(data)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO bot_analytics (metric_name, metric_value, dimensions, recorded_at) VALUES (?, ?, ?, ?)`,
		name, value, dims, now(),
	); err != nil {
		return fmt.Errorf("record metric %s: %w", name, err)
	}
	return nil
}

// SummarizeMetric aggregates samples of one metric recorded within [from, to].
func (s *Store) SummarizeMetric(ctx context.Context, name string, from, to time.Time) (domain.MetricSummary, error) {
	sum := domain.MetricSummary{Name: name}
	var avg, lo, hi sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT AVG(metric_value), MIN(metric_value), MAX(metric_value), COUNT(*)
		 FROM bot_analytics
		 WHERE metric_name = ? AND recorded_at >= ? AND recorded_at <= ?`,
		name, from.UTC(), to.UTC(),
	).Scan(&avg, &lo, &hi, &sum.Count)
	if err != nil {
		return sum, fmt.Errorf("summarize %s: %w", name, err)
	}
	sum.Average, sum.Min, sum.Max = avg.Float64, lo.Float64, hi.Float64
	return sum, nil
}
