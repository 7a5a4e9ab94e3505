package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fr0stylo/photomigrate/internal/app/domain"
	"github.com/fr0stylo/photomigrate/internal/app/ports"
	"github.com/fr0stylo/photomigrate/internal/observability"
)

const (
	progressEvery = 100
	maxWorkers    = 64
)

// BatchDriver runs one migration batch: open ledgers, build the index, process every row, close.
type BatchDriver struct {
	querier   ports.RecordQuerier
	query     IndexQuery
	processor *RowProcessor
	ledgers   ports.LedgerFactory
	workers   int
	metrics   *observability.RunMetrics
	log       *slog.Logger
	now       func() time.Time
}

// DriverOption customizes a BatchDriver.
type DriverOption func(*BatchDriver)

// WithWorkers enables bounded fan-out over rows. Values below 2 keep the run sequential.
func WithWorkers(n int) DriverOption {
	return func(d *BatchDriver) {
		if n < 1 {
			n = 1
		}
		if n > maxWorkers {
			n = maxWorkers
		}
		d.workers = n
	}
}

// WithMetrics attaches per-row metric instruments.
func WithMetrics(m *observability.RunMetrics) DriverOption {
	return func(d *BatchDriver) { d.metrics = m }
}

// WithLogger overrides the driver logger.
func WithLogger(log *slog.Logger) DriverOption {
	return func(d *BatchDriver) {
		if log != nil {
			d.log = log
		}
	}
}

// WithClock overrides the time source used for the run summary.
func WithClock(now func() time.Time) DriverOption {
	return func(d *BatchDriver) {
		if now != nil {
			d.now = now
		}
	}
}

// NewBatchDriver constructs a driver over its collaborators.
func NewBatchDriver(querier ports.RecordQuerier, query IndexQuery, processor *RowProcessor, ledgers ports.LedgerFactory, opts ...DriverOption) *BatchDriver {
	d := &BatchDriver{
		querier:   querier,
		query:     query,
		processor: processor,
		ledgers:   ledgers,
		workers:   1,
		log:       slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes the batch. Row failures are recorded, never returned. The returned error is
// non-nil only for fatal conditions: ledger open/write/close, index build, input stream,
// or context cancellation. Ledgers are closed on every path once opened.
func (d *BatchDriver) Run(ctx context.Context, runID string, source ports.RowSource) (summary domain.Summary, err error) {
	ctx, span := observability.StartRunSpan(ctx, runID)
	defer span.End()

	summary = domain.Summary{RunID: runID, StartedAt: d.now().UTC()}
	defer func() {
		summary.FinishedAt = d.now().UTC()
		span.RecordError(err)
	}()

	ledgers, err := d.ledgers.Open()
	if err != nil {
		return summary, fmt.Errorf("open ledgers: %w", err)
	}
	defer func() {
		if closeErr := ledgers.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close ledgers: %w", closeErr))
		}
	}()

	index, err := BuildIndex(ctx, d.querier, d.query)
	if err != nil {
		d.log.ErrorContext(ctx, "Index build failed, aborting run", "error", err)
		return summary, err
	}
	summary.IndexSize = len(index)
	d.log.InfoContext(ctx, "Loaded CRM identifiers", "records", len(index))

	rec := &recorder{ledgers: ledgers, summary: &summary, metrics: d.metrics, log: d.log}
	if d.workers > 1 {
		err = d.runConcurrent(ctx, source, index, rec)
	} else {
		err = d.runSequential(ctx, source, index, rec)
	}
	if err != nil {
		d.log.ErrorContext(ctx, "Run stopped", "processed", summary.Total, "error", err)
		return summary, err
	}

	d.log.InfoContext(ctx, "Run complete",
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"bytes", summary.BytesUploaded,
	)
	return summary, nil
}

func (d *BatchDriver) runSequential(ctx context.Context, source ports.RowSource, index Index, rec *recorder) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := source.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		if err := rec.record(ctx, d.processRow(ctx, row, index)); err != nil {
			return err
		}
	}
}

func (d *BatchDriver) runConcurrent(ctx context.Context, source ports.RowSource, index Index, rec *recorder) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	var readErr error
	for {
		if err := gctx.Err(); err != nil {
			break
		}
		row, err := source.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			readErr = fmt.Errorf("read input: %w", err)
			break
		}
		g.Go(func() error {
			return rec.record(gctx, d.processRow(gctx, row, index))
		})
	}

	if err := g.Wait(); err != nil {
		return errors.Join(readErr, err)
	}
	if readErr != nil {
		return readErr
	}
	return ctx.Err()
}

func (d *BatchDriver) processRow(ctx context.Context, row domain.Row, index Index) timedOutcome {
	ctx, span := observability.StartRowSpan(ctx, row.Line, row.Identifier)
	defer span.End()

	start := time.Now()
	outcome := d.processor.Process(ctx, row, index)
	return timedOutcome{ctx: ctx, outcome: outcome, elapsed: time.Since(start)}
}

type timedOutcome struct {
	ctx     context.Context
	outcome domain.Outcome
	elapsed time.Duration
}

// recorder serializes ledger writes and summary updates across workers.
type recorder struct {
	mu      sync.Mutex
	ledgers ports.LedgerSet
	summary *domain.Summary
	metrics *observability.RunMetrics
	log     *slog.Logger
}

func (r *recorder) record(ctx context.Context, t timedOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// In-flight rows are still persisted after cancellation.
	if err := r.ledgers.Record(context.WithoutCancel(ctx), t.outcome); err != nil {
		return fmt.Errorf("record row %d: %w", t.outcome.Line, err)
	}
	r.summary.Add(t.outcome)

	var kind string
	var size int64
	if t.outcome.Succeeded() {
		size = t.outcome.Upload.ByteSize
	} else if t.outcome.Failure != nil {
		kind = string(t.outcome.Failure.Kind)
	}
	r.metrics.ObserveRow(t.ctx, t.outcome.Succeeded(), kind, size, t.elapsed)

	if r.summary.Total%progressEvery == 0 {
		r.log.InfoContext(ctx, "Progress",
			"processed", r.summary.Total,
			"succeeded", r.summary.Succeeded,
			"failed", r.summary.Failed,
		)
	}
	return nil
}
