package formatter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gnolang/laic/internal"
	"github.com/gnolang/laic/internal/types"
)

// FormatScan lists the fragments found in one document followed by its
// diagnostics.
func FormatScan(s *internal.Scanned, source *internal.SourceCode) string {
	var builder strings.Builder
	for _, f := range s.Fragments {
		kind := f.Kind.String()
		if f.Env != "" {
			kind += " " + f.Env
		}
		builder.WriteString(fileStyle.Sprintf("%s:%d:%d", f.Span.Filename, f.Span.Start.Line, f.Span.Start.Column))
		builder.WriteString(" " + ruleStyle.Sprint(kind))
		if c := f.Color.Fragment; c != "" {
			builder.WriteString(" " + suggestionStyle.Sprintf("[%s]", c))
		}
		builder.WriteString("\n")
		for _, line := range strings.Split(f.Body, "\n") {
			builder.WriteString(lineStyle.Sprint("    | ") + line + "\n")
		}
	}

	results := make([]types.Result, 0, len(s.Diagnostics))
	for _, d := range s.Diagnostics {
		res := types.Result{Err: d}
		var se types.SpanError
		if errors.As(d, &se) {
			res.Span = se.Location()
		}
		results = append(results, res)
	}
	builder.WriteString(GenerateFormattedResults(results, source, false))
	return builder.String()
}

// Summary is a one-line count of rendered and failed results.
func Summary(reports []internal.Report) string {
	var ok, failed int
	for _, r := range reports {
		for _, res := range r.Results {
			if res.OK() {
				ok++
			} else {
				failed++
			}
		}
	}
	s := suggestionStyle.Sprintf("%d rendered", ok)
	if failed > 0 {
		s += ", " + errorStyle.Sprintf("%d failed", failed)
	}
	return fmt.Sprintf("%s in %d files", s, len(reports))
}
