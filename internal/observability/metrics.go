package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "photomigrate"

// RunMetrics records per-row counters for a batch run.
// A nil *RunMetrics is valid and records nothing.
type RunMetrics struct {
	rows     metric.Int64Counter
	bytes    metric.Int64Counter
	duration metric.Float64Histogram
}

// NewRunMetrics registers instruments on the global meter provider.
func NewRunMetrics() (*RunMetrics, error) {
	meter := otel.Meter(meterName)

	rows, err := meter.Int64Counter("photomigrate.rows",
		metric.WithDescription("Rows processed, by outcome and failure kind"),
	)
	if err != nil {
		return nil, err
	}
	bytes, err := meter.Int64Counter("photomigrate.bytes_uploaded",
		metric.WithDescription("Bytes written to object storage"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("photomigrate.row.duration",
		metric.WithDescription("Wall time to process one row"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &RunMetrics{rows: rows, bytes: bytes, duration: duration}, nil
}

// ObserveRow records one processed row. kind is empty for successes.
func (m *RunMetrics) ObserveRow(ctx context.Context, succeeded bool, kind string, byteSize int64, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "failure"
	if succeeded {
		outcome = "success"
	}
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("kind", kind),
	)
	m.rows.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
	if succeeded && byteSize > 0 {
		m.bytes.Add(ctx, byteSize)
	}
}
