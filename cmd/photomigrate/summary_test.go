package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/fr0stylo/photomigrate/internal/app/domain"
)

func TestPrintSummary(t *testing.T) {
	color.NoColor = true

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := domain.Summary{
		RunID:         "run-7",
		StartedAt:     start,
		FinishedAt:    start.Add(1500 * time.Millisecond),
		IndexSize:     12,
		Total:         5,
		Succeeded:     3,
		Failed:        2,
		BytesUploaded: 900,
		FailuresByKind: map[domain.FailureKind]int{
			domain.FailureUpload: 1,
			domain.FailureFetch:  1,
		},
	}

	var buf bytes.Buffer
	printSummary(&buf, s, []string{"out/account_updates.csv", "out/failed.csv"}, nil)
	out := buf.String()

	assert.Contains(t, out, "DONE run run-7 in 1.5s")
	assert.Contains(t, out, "rows:      5")
	assert.Contains(t, out, "failed:    2")
	assert.Contains(t, out, "uploaded:  900 bytes")
	assert.Less(t, strings.Index(out, "fetch_failed"), strings.Index(out, "upload_failed"))
	assert.Contains(t, out, "  out/account_updates.csv\n")
	assert.Contains(t, out, "  out/failed.csv\n")
}

func TestPrintSummaryAborted(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	printSummary(&buf, domain.Summary{RunID: "run-8"}, nil, errors.New("index build failed"))
	out := buf.String()

	assert.Contains(t, out, "ABORTED run run-8")
	assert.Contains(t, out, "reason: index build failed")
	assert.NotContains(t, out, "Generated files:")
}

func TestRootCommandRejectsArgsAndRegistersFlags(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"input", "output-dir", "fetch-timeout", "workers", "audit-db"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}

	cmd.SetArgs([]string{"extra"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}
