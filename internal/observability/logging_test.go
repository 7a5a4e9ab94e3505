package observability

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapSlogHandlerAddsRunAndRowFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "debug", "text")

	ctx := WithRunID(context.Background(), "run-42")
	ctx = WithRow(ctx, 7, "  A1 ")
	log.InfoContext(ctx, "row processed")

	out := buf.String()
	assert.Contains(t, out, "run_id=run-42")
	assert.Contains(t, out, "row=7")
	assert.Contains(t, out, "identifier=A1")
}

func TestWrapSlogHandlerWithoutContextFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "info", "json")

	log.Info("plain")

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "{"), "expected json output, got %q", out)
	assert.NotContains(t, out, "run_id")
	assert.NotContains(t, out, "trace_id")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for input, want := range cases {
		assert.Equal(t, want, ParseLevel(input), "level %q", input)
	}
}

func TestNilRunMetricsIsNoop(t *testing.T) {
	var m *RunMetrics
	m.ObserveRow(context.Background(), true, "", 10, 0)
}

func TestRowFromContextRequiresLine(t *testing.T) {
	_, ok := RowFromContext(context.Background())
	assert.False(t, ok)

	ref, ok := RowFromContext(WithRow(context.Background(), 3, "B9"))
	assert.True(t, ok)
	assert.Equal(t, RowRef{Line: 3, Identifier: "B9"}, ref)
}
