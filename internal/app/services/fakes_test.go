package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/fr0stylo/photomigrate/internal/app/domain"
	"github.com/fr0stylo/photomigrate/internal/app/ports"
)

type mockObjectStore struct {
	mock.Mock
}

func (m *mockObjectStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	args := m.Called(ctx, key, body, contentType)
	return args.Error(0)
}

type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]ports.FetchResult
	errs      map[string]error
	panicOn   string
	calls     []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (ports.FetchResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()

	if f.panicOn != "" && url == f.panicOn {
		panic("boom")
	}
	if err, ok := f.errs[url]; ok {
		return ports.FetchResult{}, err
	}
	if res, ok := f.responses[url]; ok {
		return res, nil
	}
	return ports.FetchResult{StatusCode: http.StatusNotFound, Status: "404 Not Found"}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func okImage(size int, contentType string) ports.FetchResult {
	header := http.Header{}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return ports.FetchResult{StatusCode: http.StatusOK, Status: "200 OK", Header: header, Body: make([]byte, size)}
}

type fakeQuerier struct {
	records []ports.Record
	err     error
	queries []string
}

func (f *fakeQuerier) QueryAll(_ context.Context, soql string) ([]ports.Record, error) {
	f.queries = append(f.queries, soql)
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func indexRecords(pairs ...string) []ports.Record {
	records := make([]ports.Record, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		records = append(records, ports.Record{"Identifier__c": pairs[i], "Id": pairs[i+1]})
	}
	return records
}

type memLedgerFactory struct {
	openErr error
	set     *memLedgerSet
	opened  int
}

func (f *memLedgerFactory) Open() (ports.LedgerSet, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened++
	if f.set == nil {
		f.set = &memLedgerSet{}
	}
	return f.set, nil
}

type memLedgerSet struct {
	mu        sync.Mutex
	outcomes  []domain.Outcome
	recordErr error
	closeErr  error
	closed    bool
}

func (s *memLedgerSet) Record(_ context.Context, outcome domain.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return s.recordErr
	}
	s.outcomes = append(s.outcomes, outcome)
	return nil
}

func (s *memLedgerSet) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.closeErr
}

func (s *memLedgerSet) successes() []domain.Outcome {
	var out []domain.Outcome
	for _, o := range s.outcomes {
		if o.Succeeded() {
			out = append(out, o)
		}
	}
	return out
}

func (s *memLedgerSet) failures() []domain.Outcome {
	var out []domain.Outcome
	for _, o := range s.outcomes {
		if !o.Succeeded() {
			out = append(out, o)
		}
	}
	return out
}

type sliceSource struct {
	rows []domain.Row
	pos  int
	err  error
	// errAt returns err once pos reaches it; zero means never.
	errAt int
}

func newSliceSource(pairs ...string) *sliceSource {
	src := &sliceSource{}
	for i := 0; i+1 < len(pairs); i += 2 {
		src.rows = append(src.rows, domain.Row{Line: len(src.rows) + 1, Identifier: pairs[i], ImageURL: pairs[i+1]})
	}
	return src
}

func (s *sliceSource) Next() (domain.Row, error) {
	if s.err != nil && s.pos == s.errAt {
		return domain.Row{}, s.err
	}
	if s.pos >= len(s.rows) {
		return domain.Row{}, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

var errBoom = errors.New("boom")
