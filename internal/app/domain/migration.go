package domain

import "time"

// FailureKind classifies why a row did not produce an upload.
type FailureKind string

const (
	// FailureIdentifierNotFound indicates the identifier is absent from the CRM index.
	FailureIdentifierNotFound FailureKind = "identifier_not_found"
	// FailureFilenameExtraction indicates the image URL has no usable file name.
	FailureFilenameExtraction FailureKind = "filename_extraction_failed"
	// FailureFetch indicates the download failed or returned a non-2xx status.
	FailureFetch FailureKind = "fetch_failed"
	// FailureUpload indicates the object store rejected the upload.
	FailureUpload FailureKind = "upload_failed"
	// FailureUnexpected is used for recovered panics and unclassified errors.
	FailureUnexpected FailureKind = "unexpected"
)

// Row is one input pair read from the row source.
type Row struct {
	// Line is the 1-based data row ordinal, header excluded.
	Line       int
	Identifier string
	ImageURL   string
}

// Upload describes one object written to storage for a row.
type Upload struct {
	RecordID   string
	FileName   string
	StorageKey string
	MIMEType   string
	ByteSize   int64
}

// Failure is the recorded cause of a failed row.
type Failure struct {
	Kind    FailureKind
	Message string
}

// Outcome is the classified result of one row. Exactly one of Upload or Failure is set.
type Outcome struct {
	Line       int
	Identifier string
	ImageURL   string
	Upload     *Upload
	Failure    *Failure
}

// Succeeded reports whether the row was uploaded.
func (o Outcome) Succeeded() bool {
	return o.Upload != nil && o.Failure == nil
}

// Summary aggregates one run.
type Summary struct {
	RunID          string
	StartedAt      time.Time
	FinishedAt     time.Time
	IndexSize      int
	Total          int
	Succeeded      int
	Failed         int
	BytesUploaded  int64
	FailuresByKind map[FailureKind]int
}

// Add folds one outcome into the summary counters.
func (s *Summary) Add(outcome Outcome) {
	s.Total++
	if outcome.Succeeded() {
		s.Succeeded++
		s.BytesUploaded += outcome.Upload.ByteSize
		return
	}
	s.Failed++
	if s.FailuresByKind == nil {
		s.FailuresByKind = make(map[FailureKind]int)
	}
	kind := FailureUnexpected
	if outcome.Failure != nil && outcome.Failure.Kind != "" {
		kind = outcome.Failure.Kind
	}
	s.FailuresByKind[kind]++
}

// Duration returns the wall time of the run.
func (s Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() || s.StartedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
