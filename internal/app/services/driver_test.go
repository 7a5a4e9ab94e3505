package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fr0stylo/photomigrate/internal/app/domain"
	"github.com/fr0stylo/photomigrate/internal/app/ports"
)

func newTestDriver(querier ports.RecordQuerier, fetcher ports.Fetcher, store ports.ObjectStore, ledgers ports.LedgerFactory, opts ...DriverOption) *BatchDriver {
	return NewBatchDriver(querier, IndexQuery{}, NewRowProcessor(fetcher, store, nil), ledgers, opts...)
}

func TestBatchDriver_SuccessScenario(t *testing.T) {
	querier := &fakeQuerier{records: indexRecords("A1", "001")}
	fetcher := &fakeFetcher{responses: map[string]ports.FetchResult{"http://x/img.png": okImage(200, "")}}
	store := &mockObjectStore{}
	store.On("Put", mock.Anything, "001/img.png", mock.Anything, "image/png").Return(nil).Once()
	ledgers := &memLedgerFactory{}

	summary, err := newTestDriver(querier, fetcher, store, ledgers).Run(context.Background(), "run-1", newSliceSource("A1", "http://x/img.png"))
	require.NoError(t, err)

	require.Len(t, ledgers.set.outcomes, 1)
	outcome := ledgers.set.outcomes[0]
	require.True(t, outcome.Succeeded())
	assert.Equal(t, "img.png", outcome.Upload.FileName)
	assert.Equal(t, "001/img.png", outcome.Upload.StorageKey)
	assert.Equal(t, "image/png", outcome.Upload.MIMEType)
	assert.EqualValues(t, 200, outcome.Upload.ByteSize)

	assert.True(t, ledgers.set.closed)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.IndexSize)
	assert.EqualValues(t, 200, summary.BytesUploaded)
	assert.Equal(t, "run-1", summary.RunID)
	store.AssertExpectations(t)
}

func TestBatchDriver_UnknownIdentifierScenario(t *testing.T) {
	querier := &fakeQuerier{}
	fetcher := &fakeFetcher{}
	store := &mockObjectStore{}
	ledgers := &memLedgerFactory{}

	summary, err := newTestDriver(querier, fetcher, store, ledgers).Run(context.Background(), "run-2", newSliceSource("B9", "http://x/img.png"))
	require.NoError(t, err)

	require.Len(t, ledgers.set.outcomes, 1)
	assert.Empty(t, ledgers.set.successes())
	failure := ledgers.set.failures()[0]
	assert.Contains(t, failure.Failure.Message, "not found")
	assert.Zero(t, fetcher.callCount())
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.FailuresByKind[domain.FailureIdentifierNotFound])
}

func TestBatchDriver_OneOutcomePerRowAndFailuresDoNotHalt(t *testing.T) {
	querier := &fakeQuerier{records: indexRecords("A1", "001", "A2", "002", "A3", "003")}
	fetcher := &fakeFetcher{
		responses: map[string]ports.FetchResult{
			"http://x/1.png": okImage(5, ""),
			"http://x/3.jpg": okImage(7, "image/jpeg"),
		},
		errs: map[string]error{"http://x/timeout.png": errors.New("timeout")},
	}
	store := &mockObjectStore{}
	store.On("Put", mock.Anything, "003/3.jpg", mock.Anything, mock.Anything).Return(errors.New("quota exceeded"))
	store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ledgers := &memLedgerFactory{}

	src := newSliceSource(
		"A1", "http://x/1.png",
		"A2", "http://x/missing.png",
		"ZZ", "http://x/1.png",
		"A2", "http://x/",
		"A1", "http://x/timeout.png",
		"A3", "http://x/3.jpg",
	)
	summary, err := newTestDriver(querier, fetcher, store, ledgers).Run(context.Background(), "run-3", src)
	require.NoError(t, err)

	require.Len(t, ledgers.set.outcomes, 6)
	for i, outcome := range ledgers.set.outcomes {
		assert.Equal(t, i+1, outcome.Line, "outcomes are recorded in input order")
		assert.True(t, (outcome.Upload == nil) != (outcome.Failure == nil), "exactly one side set for row %d", outcome.Line)
	}
	assert.Len(t, ledgers.set.successes(), 1)
	assert.Equal(t, 6, summary.Total)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 5, summary.Failed)
	assert.Equal(t, map[domain.FailureKind]int{
		domain.FailureFetch:              2,
		domain.FailureIdentifierNotFound: 1,
		domain.FailureFilenameExtraction: 1,
		domain.FailureUpload:             1,
	}, summary.FailuresByKind)
}

func TestBatchDriver_IndexFailureAbortsAndClosesLedgers(t *testing.T) {
	querier := &fakeQuerier{err: errors.New("INVALID_SESSION_ID")}
	fetcher := &fakeFetcher{}
	ledgers := &memLedgerFactory{}

	_, err := newTestDriver(querier, fetcher, &mockObjectStore{}, ledgers).Run(context.Background(), "run-4", newSliceSource("A1", "http://x/img.png"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIndexBuildFailed)

	assert.Equal(t, 1, ledgers.opened)
	assert.True(t, ledgers.set.closed)
	assert.Empty(t, ledgers.set.outcomes)
	assert.Zero(t, fetcher.callCount())
}

func TestBatchDriver_LedgerOpenFailure(t *testing.T) {
	querier := &fakeQuerier{}
	ledgers := &memLedgerFactory{openErr: errBoom}

	_, err := newTestDriver(querier, &fakeFetcher{}, &mockObjectStore{}, ledgers).Run(context.Background(), "run-5", newSliceSource())
	require.ErrorIs(t, err, errBoom)
	assert.Empty(t, querier.queries)
}

func TestBatchDriver_LedgerWriteFailureIsFatal(t *testing.T) {
	querier := &fakeQuerier{}
	ledgers := &memLedgerFactory{set: &memLedgerSet{recordErr: errors.New("disk full")}}

	_, err := newTestDriver(querier, &fakeFetcher{}, &mockObjectStore{}, ledgers).Run(context.Background(), "run-6", newSliceSource("A1", "u", "A2", "v"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.True(t, ledgers.set.closed)
}

func TestBatchDriver_CloseErrorIsReported(t *testing.T) {
	ledgers := &memLedgerFactory{set: &memLedgerSet{closeErr: errors.New("flush failed")}}

	_, err := newTestDriver(&fakeQuerier{}, &fakeFetcher{}, &mockObjectStore{}, ledgers).Run(context.Background(), "run-7", newSliceSource())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush failed")
}

func TestBatchDriver_InputErrorIsFatal(t *testing.T) {
	src := newSliceSource("A1", "http://x/a.png", "A2", "http://x/b.png")
	src.err = errors.New("bare \" in non-quoted field")
	src.errAt = 1
	ledgers := &memLedgerFactory{}

	summary, err := newTestDriver(&fakeQuerier{}, &fakeFetcher{}, &mockObjectStore{}, ledgers).Run(context.Background(), "run-8", src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read input")
	assert.Equal(t, 1, summary.Total)
	assert.True(t, ledgers.set.closed)
}

func TestBatchDriver_CancelledContextStopsIntake(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ledgers := &memLedgerFactory{}

	_, err := newTestDriver(&fakeQuerier{}, &fakeFetcher{}, &mockObjectStore{}, ledgers).Run(ctx, "run-9", newSliceSource("A1", "http://x/a.png"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ledgers.set.outcomes)
	assert.True(t, ledgers.set.closed)
}

func TestBatchDriver_ConcurrentWorkersKeepOneOutcomePerRow(t *testing.T) {
	const rows = 250
	pairs := make([]string, 0, rows*2)
	records := make([]string, 0, rows*2)
	responses := make(map[string]ports.FetchResult, rows)
	for i := 0; i < rows; i++ {
		identifier := fmt.Sprintf("ID-%03d", i)
		url := fmt.Sprintf("http://x/%d.png", i)
		pairs = append(pairs, identifier, url)
		if i%5 != 0 {
			records = append(records, identifier, fmt.Sprintf("REC%03d", i))
		}
		responses[url] = okImage(i%7+1, "")
	}
	store := &mockObjectStore{}
	store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ledgers := &memLedgerFactory{}

	driver := newTestDriver(&fakeQuerier{records: indexRecords(records...)}, &fakeFetcher{responses: responses}, store, ledgers, WithWorkers(8))
	summary, err := driver.Run(context.Background(), "run-10", newSliceSource(pairs...))
	require.NoError(t, err)

	require.Len(t, ledgers.set.outcomes, rows)
	seen := make(map[int]bool, rows)
	for _, outcome := range ledgers.set.outcomes {
		assert.False(t, seen[outcome.Line], "row %d recorded twice", outcome.Line)
		seen[outcome.Line] = true
	}
	assert.Equal(t, rows, summary.Total)
	assert.Equal(t, rows/5, summary.Failed)
	assert.Equal(t, rows-rows/5, summary.Succeeded)
}

func TestBatchDriver_SummaryUsesClock(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ticks := []time.Time{start, start.Add(3 * time.Second)}
	clock := func() time.Time {
		now := ticks[0]
		if len(ticks) > 1 {
			ticks = ticks[1:]
		}
		return now
	}

	summary, err := newTestDriver(&fakeQuerier{}, &fakeFetcher{}, &mockObjectStore{}, &memLedgerFactory{}, WithClock(clock)).
		Run(context.Background(), "run-11", newSliceSource())
	require.NoError(t, err)
	assert.Equal(t, start, summary.StartedAt)
	assert.Equal(t, 3*time.Second, summary.Duration())
}

func TestWithWorkersClamps(t *testing.T) {
	d := &BatchDriver{}
	WithWorkers(0)(d)
	assert.Equal(t, 1, d.workers)
	WithWorkers(1000)(d)
	assert.Equal(t, maxWorkers, d.workers)
}

func TestCombineLedgers_RecordsToAllAndClosesOnOpenFailure(t *testing.T) {
	first := &memLedgerFactory{}
	second := &memLedgerFactory{}

	set, err := CombineLedgers(first, nil, second).Open()
	require.NoError(t, err)
	require.NoError(t, set.Record(context.Background(), domain.Outcome{Line: 1, Failure: &domain.Failure{Kind: domain.FailureFetch}}))
	require.NoError(t, set.Close())

	assert.Len(t, first.set.outcomes, 1)
	assert.Len(t, second.set.outcomes, 1)
	assert.True(t, first.set.closed)
	assert.True(t, second.set.closed)

	ok := &memLedgerFactory{}
	_, err = CombineLedgers(ok, &memLedgerFactory{openErr: errBoom}).Open()
	require.ErrorIs(t, err, errBoom)
	assert.True(t, ok.set.closed, "already opened sets are closed when a later one fails")
}
