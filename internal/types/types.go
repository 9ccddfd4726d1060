package types

import (
	"fmt"
	"sort"
	"strings"
)

// Position is a location in a source document.
type Position struct {
	Offset int // byte offset, 0-based
	Line   int // line number, 1-based
	Column int // byte column, 1-based
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// SourceSpan identifies a contiguous region of a document.
// End.Offset is exclusive.
type SourceSpan struct {
	Filename string
	Start    Position
	End      Position
}

func (s SourceSpan) String() string {
	if s.Filename == "" {
		return fmt.Sprintf("%s-%s", s.Start, s.End)
	}
	return fmt.Sprintf("%s:%s-%s", s.Filename, s.Start, s.End)
}

// Len returns the length of the span in bytes.
func (s SourceSpan) Len() int { return s.End.Offset - s.Start.Offset }

// Document is a source text together with an index of its line starts.
type Document struct {
	Filename string
	Text     string

	lines []int // offsets of line starts
}

// NewDocument indexes text for offset to line/column conversion.
// CRLF line endings are kept as-is; the '\r' belongs to the line.
func NewDocument(filename, text string) *Document {
	lines := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, i+1)
		}
	}
	return &Document{Filename: filename, Text: text, lines: lines}
}

// Position converts a byte offset into a Position.
func (d *Document) Position(offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(d.Text) {
		offset = len(d.Text)
	}
	// index of the last line start <= offset
	i := sort.Search(len(d.lines), func(i int) bool { return d.lines[i] > offset }) - 1
	return Position{Offset: offset, Line: i + 1, Column: offset - d.lines[i] + 1}
}

// Span builds a SourceSpan from a half-open byte range.
func (d *Document) Span(start, end int) SourceSpan {
	return SourceSpan{Filename: d.Filename, Start: d.Position(start), End: d.Position(end)}
}

// Lines returns the document split into lines, without terminators.
func (d *Document) Lines() []string {
	return strings.Split(d.Text, "\n")
}

// CommentKind distinguishes line comments from block comments.
type CommentKind int

const (
	LineComment CommentKind = iota
	BlockComment
)

func (k CommentKind) String() string {
	switch k {
	case LineComment:
		return "line"
	case BlockComment:
		return "block"
	default:
		return "unknown"
	}
}

// CommentBlock is a comment, or a run of merged line comments.
type CommentBlock struct {
	Span     SourceSpan
	Kind     CommentKind
	Raw      string // comment text as it appears in the source
	Stripped string // comment text with markers removed

	// Origin maps every byte of Stripped to its offset in the document.
	// It has len(Stripped)+1 entries; the last one is the offset just past
	// the final stripped byte.
	Origin []int
}

// SourceOffset maps an offset within Stripped back to the document.
func (b *CommentBlock) SourceOffset(i int) int {
	if len(b.Origin) == 0 {
		return b.Span.Start.Offset + i
	}
	if i < 0 {
		i = 0
	}
	if i >= len(b.Origin) {
		i = len(b.Origin) - 1
	}
	return b.Origin[i]
}

// DelimKind is the kind of math delimiter a fragment was written with.
type DelimKind int

const (
	Inline   DelimKind = iota // \( ... \)
	Display                   // \[ ... \]
	Equation                  // \begin{equation*} ... \end{equation*}
	Align                     // \begin{align*} ... \end{align*}
)

func (k DelimKind) String() string {
	switch k {
	case Inline:
		return "inline"
	case Display:
		return "display"
	case Equation:
		return "equation"
	case Align:
		return "align"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name in JSON and YAML output.
func (k DelimKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ColorOverride colors a sub-span of a fragment body.
type ColorOverride struct {
	Start int // offset within Body
	End   int // exclusive
	Color string
}

// ColorAnnotation is the resolved color information of a fragment.
type ColorAnnotation struct {
	// Fragment is the per-fragment color, empty when the document default applies.
	Fragment string
	Tokens   []ColorOverride
}

// Effective returns the fragment color, falling back to def.
func (a ColorAnnotation) Effective(def string) string {
	if a.Fragment != "" {
		return a.Fragment
	}
	return def
}

// MathFragment is one located LaTeX math snippet extracted from a comment.
type MathFragment struct {
	ID    string
	Span  SourceSpan
	Kind  DelimKind
	Env   string // environment name for Equation and Align
	Raw   string // body exactly as written
	Body  string // Raw without surrounding whitespace
	Color ColorAnnotation
}

// RenderConfig is the preamble, package and color setting a fragment is rendered with.
type RenderConfig struct {
	Preamble     string   `yaml:"preamble" json:"preamble"`
	Packages     []string `yaml:"packages" json:"packages"`
	DefaultColor string   `yaml:"default_color" json:"default_color"`
	DPI          int      `yaml:"dpi" json:"dpi"`
}

// CacheKey identifies a rendered artifact.
type CacheKey string

// Artifact is a rendered fragment image.
type Artifact struct {
	PNG    []byte
	Width  int
	Height int
	Depth  int // pixels below the baseline, 0 when unknown
}

// Result associates a source location with its rendered artifact or an error.
type Result struct {
	FragmentID string
	Span       SourceSpan
	Kind       DelimKind
	Artifact   *Artifact
	Key        CacheKey
	Err        error
}

// OK reports whether the result carries an artifact.
func (r Result) OK() bool { return r.Err == nil && r.Artifact != nil }
