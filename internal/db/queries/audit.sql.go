package queries

import (
	"context"
	"database/sql"
)

const createRun = `-- name: CreateRun :exec
INSERT INTO runs (run_id, started_at, input_path, bucket, status)
VALUES (?, ?, ?, ?, 'running')
`

type CreateRunParams struct {
	RunID     string
	StartedAt string
	InputPath string
	Bucket    string
}

func (q *Queries) CreateRun(ctx context.Context, arg CreateRunParams) error {
	_, err := q.db.ExecContext(ctx, createRun,
		arg.RunID,
		arg.StartedAt,
		arg.InputPath,
		arg.Bucket,
	)
	return err
}

const finishRun = `-- name: FinishRun :exec
UPDATE runs
SET finished_at = ?,
    index_size = ?,
    total = ?,
    succeeded = ?,
    failed = ?,
    bytes = ?,
    status = ?,
    error = ?
WHERE run_id = ?
`

type FinishRunParams struct {
	FinishedAt sql.NullString
	IndexSize  int64
	Total      int64
	Succeeded  int64
	Failed     int64
	Bytes      int64
	Status     string
	Error      string
	RunID      string
}

func (q *Queries) FinishRun(ctx context.Context, arg FinishRunParams) error {
	_, err := q.db.ExecContext(ctx, finishRun,
		arg.FinishedAt,
		arg.IndexSize,
		arg.Total,
		arg.Succeeded,
		arg.Failed,
		arg.Bytes,
		arg.Status,
		arg.Error,
		arg.RunID,
	)
	return err
}

const getRun = `-- name: GetRun :one
SELECT run_id, started_at, finished_at, input_path, bucket, index_size, total, succeeded, failed, bytes, status, error
FROM runs
WHERE run_id = ?
`

func (q *Queries) GetRun(ctx context.Context, runID string) (Run, error) {
	row := q.db.QueryRowContext(ctx, getRun, runID)
	var i Run
	err := row.Scan(
		&i.RunID,
		&i.StartedAt,
		&i.FinishedAt,
		&i.InputPath,
		&i.Bucket,
		&i.IndexSize,
		&i.Total,
		&i.Succeeded,
		&i.Failed,
		&i.Bytes,
		&i.Status,
		&i.Error,
	)
	return i, err
}

const insertRowOutcome = `-- name: InsertRowOutcome :exec
INSERT INTO row_outcomes (
    run_id, seq, line, identifier, image_url, status,
    record_id, file_name, storage_key, mime_type, byte_size,
    failure_kind, error, recorded_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type InsertRowOutcomeParams struct {
	RunID       string
	Seq         int64
	Line        int64
	Identifier  string
	ImageUrl    string
	Status      string
	RecordID    string
	FileName    string
	StorageKey  string
	MimeType    string
	ByteSize    int64
	FailureKind string
	Error       string
	RecordedAt  string
}

func (q *Queries) InsertRowOutcome(ctx context.Context, arg InsertRowOutcomeParams) error {
	_, err := q.db.ExecContext(ctx, insertRowOutcome,
		arg.RunID,
		arg.Seq,
		arg.Line,
		arg.Identifier,
		arg.ImageUrl,
		arg.Status,
		arg.RecordID,
		arg.FileName,
		arg.StorageKey,
		arg.MimeType,
		arg.ByteSize,
		arg.FailureKind,
		arg.Error,
		arg.RecordedAt,
	)
	return err
}

const listRowOutcomes = `-- name: ListRowOutcomes :many
SELECT run_id, seq, line, identifier, image_url, status, record_id, file_name, storage_key, mime_type, byte_size, failure_kind, error, recorded_at
FROM row_outcomes
WHERE run_id = ?
ORDER BY seq
`

func (q *Queries) ListRowOutcomes(ctx context.Context, runID string) ([]RowOutcome, error) {
	rows, err := q.db.QueryContext(ctx, listRowOutcomes, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RowOutcome
	for rows.Next() {
		var i RowOutcome
		if err := rows.Scan(
			&i.RunID,
			&i.Seq,
			&i.Line,
			&i.Identifier,
			&i.ImageUrl,
			&i.Status,
			&i.RecordID,
			&i.FileName,
			&i.StorageKey,
			&i.MimeType,
			&i.ByteSize,
			&i.FailureKind,
			&i.Error,
			&i.RecordedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countRowOutcomesByStatus = `-- name: CountRowOutcomesByStatus :one
SELECT COUNT(*) FROM row_outcomes WHERE run_id = ? AND status = ?
`

type CountRowOutcomesByStatusParams struct {
	RunID  string
	Status string
}

func (q *Queries) CountRowOutcomesByStatus(ctx context.Context, arg CountRowOutcomesByStatusParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, countRowOutcomesByStatus, arg.RunID, arg.Status)
	var count int64
	err := row.Scan(&count)
	return count, err
}
