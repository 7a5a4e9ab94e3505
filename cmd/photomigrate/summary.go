package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"

	"github.com/fr0stylo/photomigrate/internal/app/domain"
)

func printSummary(w io.Writer, s domain.Summary, files []string, runErr error) {
	bold := color.New(color.Bold)
	if runErr != nil {
		fmt.Fprintf(w, "%s run %s after %s\n", color.New(color.FgRed, color.Bold).Sprint("ABORTED"), s.RunID, s.Duration().Round(time.Millisecond))
		fmt.Fprintf(w, "  reason: %v\n", runErr)
	} else {
		fmt.Fprintf(w, "%s run %s in %s\n", color.New(color.FgGreen, color.Bold).Sprint("DONE"), s.RunID, s.Duration().Round(time.Millisecond))
	}

	fmt.Fprintf(w, "  index:     %d records\n", s.IndexSize)
	fmt.Fprintf(w, "  rows:      %d\n", s.Total)
	fmt.Fprintf(w, "  succeeded: %s\n", color.New(color.FgGreen).Sprint(s.Succeeded))
	failed := color.New(color.FgGreen).Sprint(s.Failed)
	if s.Failed > 0 {
		failed = color.New(color.FgYellow).Sprint(s.Failed)
	}
	fmt.Fprintf(w, "  failed:    %s\n", failed)
	fmt.Fprintf(w, "  uploaded:  %d bytes\n", s.BytesUploaded)

	if len(s.FailuresByKind) > 0 {
		kinds := make([]string, 0, len(s.FailuresByKind))
		for kind := range s.FailuresByKind {
			kinds = append(kinds, string(kind))
		}
		sort.Strings(kinds)
		fmt.Fprintln(w, bold.Sprint("Failures by kind:"))
		for _, kind := range kinds {
			fmt.Fprintf(w, "  %-28s %d\n", kind, s.FailuresByKind[domain.FailureKind(kind)])
		}
	}

	if len(files) > 0 {
		fmt.Fprintln(w, bold.Sprint("Generated files:"))
		for _, f := range files {
			fmt.Fprintf(w, "  %s\n", color.New(color.FgCyan).Sprint(f))
		}
	}
}
