package ports

import (
	"context"
	"net/http"

	"github.com/fr0stylo/photomigrate/internal/app/domain"
)

// Record is one CRM record returned by a bulk query, keyed by field name.
type Record map[string]any

// RecordQuerier is the CRM bulk-query capability.
type RecordQuerier interface {
	QueryAll(ctx context.Context, soql string) ([]Record, error)
}

// ObjectStore is the object-storage put capability.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// FetchResult is a completed HTTP download, regardless of status.
type FetchResult struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// Fetcher downloads one URL with a bounded timeout.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// RowSource yields input rows in order and returns io.EOF when exhausted.
type RowSource interface {
	Next() (domain.Row, error)
}

// LedgerSet receives every outcome of one run.
type LedgerSet interface {
	Record(ctx context.Context, outcome domain.Outcome) error
	Close() error
}

// LedgerFactory opens run-scoped ledger sets.
type LedgerFactory interface {
	Open() (LedgerSet, error)
}

// RunNotifier announces a finished run to an external system.
type RunNotifier interface {
	NotifyRunCompleted(ctx context.Context, summary domain.Summary) error
}
