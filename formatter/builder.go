package formatter

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"unicode"

	"github.com/fatih/color"

	"github.com/gnolang/laic/internal"
	"github.com/gnolang/laic/internal/types"
)

const tabWidth = 8

// result categories
const (
	MalformedComment = "malformed-comment"
	NestedMath       = "nested-math"
	UnbalancedMath   = "unbalanced-math"
	RenderFailed     = "render-error"
	Unreadable       = "unreadable"
)

var (
	errorStyle      = color.New(color.FgRed, color.Bold)
	warningStyle    = color.New(color.FgHiYellow, color.Bold)
	ruleStyle       = color.New(color.FgYellow, color.Bold)
	fileStyle       = color.New(color.FgCyan, color.Bold)
	lineStyle       = color.New(color.FgHiBlue, color.Bold)
	messageStyle    = color.New(color.FgRed, color.Bold)
	suggestionStyle = color.New(color.FgGreen, color.Bold)
)

// entryFormatter supplies the template of one kind of result.
type entryFormatter interface {
	EntryTemplate() string
}

func getEntryFormatter(category string) entryFormatter {
	switch category {
	case MalformedComment:
		return &MalformedCommentFormatter{}
	case RenderFailed:
		return &RenderErrorFormatter{}
	default:
		return &GeneralFormatter{}
	}
}

// Category classifies a result error.
func Category(err error) string {
	var (
		malformed  *types.MalformedCommentError
		nested     *types.NestedMathError
		unbalanced *types.UnbalancedMathError
		rendered   *types.RenderError
	)
	switch {
	case errors.As(err, &malformed):
		return MalformedComment
	case errors.As(err, &nested):
		return NestedMath
	case errors.As(err, &unbalanced):
		return UnbalancedMath
	case errors.As(err, &rendered):
		return RenderFailed
	default:
		return Unreadable
	}
}

// Message is the error text without the position prefix the header shows.
func Message(err error) string {
	var (
		malformed  *types.MalformedCommentError
		nested     *types.NestedMathError
		unbalanced *types.UnbalancedMathError
		rendered   *types.RenderError
	)
	switch {
	case errors.As(err, &malformed):
		return fmt.Sprintf("unterminated block comment %q", malformed.Start)
	case errors.As(err, &nested):
		return fmt.Sprintf("nested %s inside %s math", nested.Inner, nested.Outer)
	case errors.As(err, &unbalanced):
		return fmt.Sprintf("%s has no matching close delimiter", unbalanced.Open)
	case errors.As(err, &rendered):
		return rendered.Message
	default:
		return err.Error()
	}
}

// GenerateFormattedResults formats the results of one document. Failures
// are shown with their source; rendered fragments get a summary line each
// when verbose is set.
func GenerateFormattedResults(results []types.Result, source *internal.SourceCode, verbose bool) string {
	var builder strings.Builder
	for _, res := range results {
		if res.Err == nil {
			if verbose {
				builder.WriteString(renderedLine(res))
			}
			continue
		}
		category := Category(res.Err)
		builder.WriteString(buildEntry(res, category, source, getEntryFormatter(category)))
	}
	return builder.String()
}

func renderedLine(res types.Result) string {
	s := suggestionStyle.Sprint("rendered: ")
	s += fileStyle.Sprintf("%s:%d:%d", res.Span.Filename, res.Span.Start.Line, res.Span.Start.Column)
	if res.Artifact != nil {
		s += fmt.Sprintf(" %s %dx%d %s\n", res.Kind, res.Artifact.Width, res.Artifact.Height, res.Key)
	} else {
		s += fmt.Sprintf(" %s %s\n", res.Kind, res.Key)
	}
	return s
}

/***** Entry Formatter Builder *****/

type EntryData struct {
	Category        string
	Severity        string
	Filename        string
	Padding         string
	StartLine       int
	StartColumn     int
	EndLine         int
	EndColumn       int
	MaxLineNumWidth int
	Message         string
	SnippetLines    []string
	CommonIndent    string
}

func buildEntry(res types.Result, category string, source *internal.SourceCode, formatter entryFormatter) string {
	span := res.Span
	startLine := span.Start.Line
	endLine, endColumn := span.End.Line, span.End.Column-1
	if endColumn < 1 && endLine > startLine {
		// the span ends right after a newline
		endLine--
		endColumn = len(lineAt(source, endLine))
	}
	if category == MalformedComment {
		// the span runs to the end of the file; show the opener only
		var m *types.MalformedCommentError
		errors.As(res.Err, &m)
		endLine = startLine
		endColumn = span.Start.Column + len(m.Start) - 1
	}

	maxLineNumWidth := calculateMaxLineNumWidth(endLine)
	padding := strings.Repeat(" ", maxLineNumWidth+1)

	var commonIndent string
	if isValidLineRange(startLine, endLine, source.Lines) {
		commonIndent = findCommonIndent(source.Lines[startLine-1 : endLine])
	}

	severity := "error"
	if category == NestedMath || category == UnbalancedMath {
		severity = "warning"
	}

	data := EntryData{
		Category:        category,
		Severity:        severity,
		Filename:        span.Filename,
		StartLine:       startLine,
		StartColumn:     span.Start.Column,
		EndLine:         endLine,
		EndColumn:       endColumn,
		MaxLineNumWidth: maxLineNumWidth,
		Padding:         padding,
		Message:         Message(res.Err),
		SnippetLines:    source.Lines,
		CommonIndent:    commonIndent,
	}

	funcMap := template.FuncMap{
		"header":              header,
		"snippet":             codeSnippet,
		"underlineAndMessage": underlineAndMessage,
		"note":                note,
	}

	tmpl := template.Must(template.New("entry").Funcs(funcMap).Parse(formatter.EntryTemplate()))

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Sprintf("Error formatting result: %v", err)
	}
	return buf.String()
}

func lineAt(source *internal.SourceCode, line int) string {
	if line < 1 || line > len(source.Lines) {
		return ""
	}
	return source.Lines[line-1]
}

// utils functions used in the text templates

func header(category string, severity string, maxLineNumWidth int, filename string, startLine int, startColumn int) string {
	var endString string
	switch severity {
	case "error":
		endString = errorStyle.Sprint("error: ")
	case "warning":
		endString = warningStyle.Sprint("warning: ")
	}
	endString += ruleStyle.Sprintf("%s\n", category)

	padding := strings.Repeat(" ", maxLineNumWidth)
	endString += lineStyle.Sprintf("%s--> ", padding)
	endString += fileStyle.Sprintf("%s:%d:%d", filename, startLine, startColumn)
	return endString + "\n"
}

func codeSnippet(snippetLines []string, startLine int, endLine int, maxLineNumWidth int, commonIndent string, padding string) string {
	endString := lineStyle.Sprintf("%s|", padding) + "\n"

	for i := startLine; i <= endLine; i++ {
		if i-1 < 0 || i-1 >= len(snippetLines) {
			continue
		}
		line := strings.TrimSuffix(snippetLines[i-1], "\r")
		line = strings.TrimPrefix(line, commonIndent)
		lineNum := fmt.Sprintf("%*d", maxLineNumWidth, i)
		endString += lineStyle.Sprintf("%s | ", lineNum) + line + "\n"
	}
	return endString
}

func underlineAndMessage(message string, padding string, startLine int, endLine int, startColumn int, endColumn int, snippetLines []string, commonIndent string) string {
	endString := lineStyle.Sprintf("%s| ", padding)

	if !isValidLineRange(startLine, endLine, snippetLines) {
		endString += messageStyle.Sprintf("%s", message) + "\n"
		return endString
	}

	commonIndentWidth := calculateVisualColumn(commonIndent, len(commonIndent)+1)

	underlineStart := max(calculateVisualColumn(snippetLines[startLine-1], startColumn)-commonIndentWidth, 0)
	underlineEnd := calculateVisualColumn(snippetLines[endLine-1], endColumn) - commonIndentWidth
	if endLine != startLine {
		// multi-line fragments are underlined from the opener to the
		// longest line
		for i := startLine; i <= endLine; i++ {
			w := calculateVisualColumn(snippetLines[i-1], len(snippetLines[i-1])) - commonIndentWidth
			underlineEnd = max(underlineEnd, w)
		}
	}
	underlineLength := max(underlineEnd-underlineStart+1, 1)

	endString += strings.Repeat(" ", underlineStart)
	endString += messageStyle.Sprint(strings.Repeat("~", underlineLength)) + "\n"

	endString += lineStyle.Sprintf("%s= ", padding)
	endString += messageStyle.Sprint(message) + "\n"
	return endString
}

func note(padding string, note string) string {
	if note == "" {
		return ""
	}
	return lineStyle.Sprintf("%s= ", padding) + suggestionStyle.Sprint("note: ") + note + "\n"
}

func isValidLineRange(startLine int, endLine int, snippetLines []string) bool {
	return startLine > 0 &&
		endLine > 0 &&
		startLine <= endLine &&
		startLine <= len(snippetLines) &&
		endLine <= len(snippetLines)
}

func calculateMaxLineNumWidth(endLine int) int {
	return len(fmt.Sprintf("%d", endLine))
}

// calculateVisualColumn calculates the visual column position
// in a string. taking into account tab characters.
func calculateVisualColumn(line string, column int) int {
	if column < 0 {
		return 0
	}
	visualColumn := 0
	for i, ch := range line {
		if i+1 == column {
			break
		}
		if ch == '\t' {
			visualColumn += tabWidth - (visualColumn % tabWidth)
		} else {
			visualColumn++
		}
	}
	return visualColumn
}

// findCommonIndent finds the common indent in the code snippet.
func findCommonIndent(lines []string) string {
	if len(lines) == 0 {
		return ""
	}

	var firstIndent []rune
	for _, line := range lines {
		trimmed := strings.TrimLeftFunc(line, unicode.IsSpace)
		if trimmed != "" {
			firstIndent = []rune(line[:len(line)-len(trimmed)])
			break
		}
	}
	if len(firstIndent) == 0 {
		return ""
	}

	for _, line := range lines {
		trimmed := strings.TrimLeftFunc(line, unicode.IsSpace)
		if trimmed == "" {
			continue
		}
		firstIndent = commonPrefix(firstIndent, []rune(line[:len(line)-len(trimmed)]))
		if len(firstIndent) == 0 {
			break
		}
	}
	return string(firstIndent)
}

func commonPrefix(a, b []rune) []rune {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[:i]
		}
	}
	return a[:n]
}
