package db

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fr0stylo/photomigrate/internal/db/queries"
	"github.com/fr0stylo/photomigrate/internal/observability"
)

const samplesPerQuery = 256

// QueryLatency summarizes recent executions of one named query.
type QueryLatency struct {
	Name  string
	Count int
	P50   time.Duration
	P95   time.Duration
	Max   time.Duration
}

type latencyTracker struct {
	mu      sync.Mutex
	samples map[string][]time.Duration
}

func newLatencyTracker() *latencyTracker {
	return &latencyTracker{samples: make(map[string][]time.Duration)}
}

func (t *latencyTracker) observe(name string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	window := append(t.samples[name], d)
	if len(window) > samplesPerQuery {
		window = window[len(window)-samplesPerQuery:]
	}
	t.samples[name] = window
}

func (t *latencyTracker) snapshot() []QueryLatency {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]QueryLatency, 0, len(t.samples))
	for name, window := range t.samples {
		sorted := append([]time.Duration(nil), window...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		n := len(sorted)
		out = append(out, QueryLatency{
			Name:  name,
			Count: n,
			P50:   sorted[(n-1)/2],
			P95:   sorted[int(float64(n-1)*0.95)],
			Max:   sorted[n-1],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// QueryLatency reports per-query latency over the retained samples, sorted by name.
func (d *Database) QueryLatency() []QueryLatency {
	if d == nil || d.latency == nil {
		return nil
	}
	return d.latency.snapshot()
}

// tracedDB opens a db.<query> span around each statement and records its latency.
type tracedDB struct {
	inner   queries.DBTX
	latency *latencyTracker
}

func instrument(inner queries.DBTX, latency *latencyTracker) queries.DBTX {
	return &tracedDB{inner: inner, latency: latency}
}

func (d *tracedDB) begin(ctx context.Context, query, op string) (context.Context, func(error)) {
	name := queryName(query)
	ctx, span := observability.StartDBSpan(ctx, name, op)
	start := time.Now()
	return ctx, func(err error) {
		d.latency.observe(name, time.Since(start))
		span.RecordError(err)
		span.End()
	}
}

func (d *tracedDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	ctx, done := d.begin(ctx, query, "exec")
	result, err := d.inner.ExecContext(ctx, query, args...)
	done(err)
	return result, err
}

func (d *tracedDB) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	ctx, done := d.begin(ctx, query, "prepare")
	stmt, err := d.inner.PrepareContext(ctx, query)
	done(err)
	return stmt, err
}

func (d *tracedDB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	ctx, done := d.begin(ctx, query, "query")
	rows, err := d.inner.QueryContext(ctx, query, args...)
	done(err)
	return rows, err
}

func (d *tracedDB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	ctx, done := d.begin(ctx, query, "query_row")
	row := d.inner.QueryRowContext(ctx, query, args...)
	done(row.Err())
	return row
}

// queryName extracts X from a leading "-- name: X :kind" comment.
func queryName(query string) string {
	first, _, _ := strings.Cut(strings.TrimSpace(query), "\n")
	rest, ok := strings.CutPrefix(strings.TrimSpace(first), "-- name:")
	if !ok {
		return "unknown"
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "unknown"
	}
	return fields[0]
}
