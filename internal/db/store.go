package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/fr0stylo/photomigrate/internal/db/queries"
)

// Run status values stored in runs.status.
const (
	RunStatusRunning   = "running"
	RunStatusClosed    = "closed"
	RunStatusCompleted = "completed"
	RunStatusAborted   = "aborted"
)

// Row status values stored in row_outcomes.status.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// StartRun inserts the run header row.
func (d *Database) StartRun(ctx context.Context, runID, inputPath, bucket string, startedAt time.Time) error {
	return d.Queries.CreateRun(ctx, queries.CreateRunParams{
		RunID:     runID,
		StartedAt: formatTime(startedAt),
		InputPath: inputPath,
		Bucket:    bucket,
	})
}

// RunTotals are the counters written when a run finishes.
type RunTotals struct {
	IndexSize int64
	Total     int64
	Succeeded int64
	Failed    int64
	Bytes     int64
	Status    string
	Error     string
}

// FinishRun stamps the finish time and final counters.
func (d *Database) FinishRun(ctx context.Context, runID string, finishedAt time.Time, totals RunTotals) error {
	return d.Queries.FinishRun(ctx, queries.FinishRunParams{
		FinishedAt: sql.NullString{String: formatTime(finishedAt), Valid: true},
		IndexSize:  totals.IndexSize,
		Total:      totals.Total,
		Succeeded:  totals.Succeeded,
		Failed:     totals.Failed,
		Bytes:      totals.Bytes,
		Status:     totals.Status,
		Error:      totals.Error,
		RunID:      runID,
	})
}

// InsertOutcome appends one row outcome, stamped with recordedAt.
func (d *Database) InsertOutcome(ctx context.Context, params queries.InsertRowOutcomeParams, recordedAt time.Time) error {
	params.RecordedAt = formatTime(recordedAt)
	return d.Queries.InsertRowOutcome(ctx, params)
}
