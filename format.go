package laic

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gnolang/laic/internal/types"
)

// expandTabs replaces tab characters with spaces, considering a tab width of 8
func expandTabs(line string) string {
	var expanded strings.Builder
	column := 0
	for _, ch := range line {
		if ch == '\t' {
			spaceCount := 8 - (column % 8)
			for i := 0; i < spaceCount; i++ {
				expanded.WriteByte(' ')
				column++
			}
		} else {
			expanded.WriteRune(ch)
			column++
		}
	}
	return expanded.String()
}

// FormatDiagnostics prints errs against the lines of src without colors,
// one arrow per diagnostic:
//
//	error: nested \( inside inline math
//	 --> solver.c:3:4
//	  |
//	3 | // \( a \( b \)
//	  |    ^^^^^^^^^^^^
//
// Errors that carry no source location are printed as a single line.
func FormatDiagnostics(errs []error, src string) string {
	lines := strings.Split(src, "\n")
	var builder strings.Builder
	for _, err := range errs {
		var located types.SpanError
		if !errors.As(err, &located) {
			fmt.Fprintf(&builder, "error: %s\n\n", err)
			continue
		}
		span := located.Location()
		fmt.Fprintf(&builder, "error: %s\n", message(err))
		fmt.Fprintf(&builder, " --> %s:%s\n", span.Filename, span.Start)

		if span.Start.Line < 1 || span.Start.Line > len(lines) {
			builder.WriteString("\n")
			continue
		}
		gutter := len(fmt.Sprint(span.Start.Line))
		pad := strings.Repeat(" ", gutter)
		line := lines[span.Start.Line-1]

		fmt.Fprintf(&builder, "%s |\n", pad)
		fmt.Fprintf(&builder, "%d | %s\n", span.Start.Line, expandTabs(line))

		start := calculateVisualColumn(line, span.Start.Column)
		end := calculateVisualColumn(line, len(line)+1)
		if span.End.Line == span.Start.Line {
			end = calculateVisualColumn(line, span.End.Column)
		}
		fmt.Fprintf(&builder, "%s | %s%s\n\n", pad, strings.Repeat(" ", start), strings.Repeat("^", max(end-start, 1)))
	}
	return builder.String()
}

// message drops the location prefix of the errors in types.
func message(err error) string {
	msg := err.Error()
	if _, rest, ok := strings.Cut(msg, ": "); ok {
		return rest
	}
	return msg
}

func calculateVisualColumn(line string, column int) int {
	visualColumn := 0
	for i, ch := range line {
		if i+1 >= column {
			break
		}
		if ch == '\t' {
			visualColumn += 8 - (visualColumn % 8)
		} else {
			visualColumn++
		}
	}
	return visualColumn
}
