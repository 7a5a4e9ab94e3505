package queries

import (
	"database/sql"
)

type Run struct {
	RunID      string
	StartedAt  string
	FinishedAt sql.NullString
	InputPath  string
	Bucket     string
	IndexSize  int64
	Total      int64
	Succeeded  int64
	Failed     int64
	Bytes      int64
	Status     string
	Error      string
}

type RowOutcome struct {
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
