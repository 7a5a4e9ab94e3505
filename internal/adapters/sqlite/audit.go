package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fr0stylo/photomigrate/internal/app/domain"
	"github.com/fr0stylo/photomigrate/internal/app/ports"
	"github.com/fr0stylo/photomigrate/internal/db"
	"github.com/fr0stylo/photomigrate/internal/db/queries"
)

type auditDatabase interface {
	StartRun(ctx context.Context, runID, inputPath, bucket string, startedAt time.Time) error
	InsertOutcome(ctx context.Context, params queries.InsertRowOutcomeParams, recordedAt time.Time) error
	FinishRun(ctx context.Context, runID string, finishedAt time.Time, totals db.RunTotals) error
	QueryLatency() []db.QueryLatency
}

// RunInfo identifies the run an audit ledger records.
type RunInfo struct {
	RunID     string
	InputPath string
	Bucket    string
}

// AuditLedgerFactory opens SQLite-backed audit ledgers for one run.
type AuditLedgerFactory struct {
	dbPath string
	shared *db.Database
	run    RunInfo
	now    func() time.Time
	log    *slog.Logger
}

// AuditOption customizes an AuditLedgerFactory.
type AuditOption func(*AuditLedgerFactory)

// WithLogger sets the logger that receives query latency when an owned handle is released.
func WithLogger(log *slog.Logger) AuditOption {
	return func(f *AuditLedgerFactory) {
		if log != nil {
			f.log = log
		}
	}
}

// NewAuditLedgerFactory creates a factory backed by the database at dbPath.
// Opened ledgers own and close their DB handle.
func NewAuditLedgerFactory(dbPath string, run RunInfo, opts ...AuditOption) *AuditLedgerFactory {
	return newFactory(&AuditLedgerFactory{dbPath: dbPath, run: run}, opts)
}

// NewSharedAuditLedgerFactory creates a factory over an existing handle, which it never closes.
func NewSharedAuditLedgerFactory(shared *db.Database, run RunInfo, opts ...AuditOption) *AuditLedgerFactory {
	return newFactory(&AuditLedgerFactory{shared: shared, run: run}, opts)
}

func newFactory(f *AuditLedgerFactory, opts []AuditOption) *AuditLedgerFactory {
	f.now = time.Now
	f.log = slog.Default()
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Open inserts the run header and returns a ledger that appends row outcomes.
func (f *AuditLedgerFactory) Open() (ports.LedgerSet, error) {
	database, closeFn, err := f.database()
	if err != nil {
		return nil, err
	}
	if err := database.StartRun(context.Background(), f.run.RunID, f.run.InputPath, f.run.Bucket, f.now()); err != nil {
		if closeFn != nil {
			err = errors.Join(err, closeFn())
		}
		return nil, fmt.Errorf("start audit run: %w", err)
	}
	return &auditLedger{db: database, closeFn: closeFn, runID: f.run.RunID, now: f.now, log: f.log}, nil
}

// Finalize overwrites the run row with the driver's summary and marks it completed, or aborted
// when runErr is non-nil.
func (f *AuditLedgerFactory) Finalize(ctx context.Context, summary domain.Summary, runErr error) error {
	database, closeFn, err := f.database()
	if err != nil {
		return err
	}
	totals := totalsFrom(summary)
	totals.Status = db.RunStatusCompleted
	if runErr != nil {
		totals.Status = db.RunStatusAborted
		totals.Error = runErr.Error()
	}
	finished := summary.FinishedAt
	if finished.IsZero() {
		finished = f.now()
	}
	err = database.FinishRun(ctx, f.run.RunID, finished, totals)
	if closeFn != nil {
		logQueryLatency(f.log, f.run.RunID, database.QueryLatency())
		err = errors.Join(err, closeFn())
	}
	return err
}

func (f *AuditLedgerFactory) database() (*db.Database, func() error, error) {
	if f.shared != nil {
		return f.shared, nil, nil
	}
	database, err := db.Open(f.dbPath)
	if err != nil {
		return nil, nil, err
	}
	return database, database.Close, nil
}

var _ ports.LedgerFactory = (*AuditLedgerFactory)(nil)

type auditLedger struct {
	mu      sync.Mutex
	db      auditDatabase
	closeFn func() error
	runID   string
	now     func() time.Time
	log     *slog.Logger
	seq     int64
	tally   domain.Summary
	closed  bool
}

func (l *auditLedger) Record(ctx context.Context, outcome domain.Outcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errors.New("audit ledger: record on closed ledger")
	}

	params := queries.InsertRowOutcomeParams{
		RunID:      l.runID,
		Seq:        l.seq + 1,
		Line:       int64(outcome.Line),
		Identifier: outcome.Identifier,
		ImageUrl:   outcome.ImageURL,
		Status:     db.OutcomeFailed,
	}
	if up := outcome.Upload; outcome.Succeeded() {
		params.Status = db.OutcomeSucceeded
		params.RecordID = up.RecordID
		params.FileName = up.FileName
		params.StorageKey = up.StorageKey
		params.MimeType = up.MIMEType
		params.ByteSize = up.ByteSize
	} else if outcome.Failure != nil {
		params.FailureKind = string(outcome.Failure.Kind)
		params.Error = outcome.Failure.Message
	}

	if err := l.db.InsertOutcome(ctx, params, l.now()); err != nil {
		return fmt.Errorf("audit row %d: %w", outcome.Line, err)
	}
	l.seq++
	l.tally.Add(outcome)
	return nil
}

// Close stores the counters tallied so far so an interrupted run still has totals.
func (l *auditLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true

	totals := totalsFrom(l.tally)
	totals.Status = db.RunStatusClosed
	err := l.db.FinishRun(context.Background(), l.runID, l.now(), totals)
	if l.closeFn != nil {
		logQueryLatency(l.log, l.runID, l.db.QueryLatency())
		err = errors.Join(err, l.closeFn())
	}
	return err
}

func logQueryLatency(log *slog.Logger, runID string, stats []db.QueryLatency) {
	if log == nil {
		return
	}
	for _, entry := range stats {
		log.Debug("db_query_latency",
			"run_id", runID,
			"query", entry.Name,
			"count", entry.Count,
			"p50_ms", entry.P50.Milliseconds(),
			"p95_ms", entry.P95.Milliseconds(),
			"max_ms", entry.Max.Milliseconds(),
		)
	}
}

func totalsFrom(s domain.Summary) db.RunTotals {
	return db.RunTotals{
		IndexSize: int64(s.IndexSize),
		Total:     int64(s.Total),
		Succeeded: int64(s.Succeeded),
		Failed:    int64(s.Failed),
		Bytes:     s.BytesUploaded,
	}
}
