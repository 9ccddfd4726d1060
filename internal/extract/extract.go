// Package extract locates LaTeX math fragments inside comments.
package extract

import (
	"fmt"
	"strings"

	"github.com/gnolang/laic/internal/types"
)

// mathEnvs are the environments recognized as math fragments.
var mathEnvs = map[string]types.DelimKind{
	"equation*": types.Equation,
	"equation":  types.Equation,
	"align*":    types.Align,
	"align":     types.Align,
}

type tokKind int

const (
	tokText tokKind = iota
	tokOpenInline
	tokCloseInline
	tokOpenDisplay
	tokCloseDisplay
	tokBegin
	tokEnd
)

type token struct {
	kind tokKind
	env  string // for tokBegin and tokEnd
	size int
}

// lex reads the token at s[i].
func lex(s string, i int) token {
	if s[i] != '\\' || i+1 >= len(s) {
		return token{kind: tokText, size: 1}
	}
	switch s[i+1] {
	case '\\':
		// a LaTeX line break, never a delimiter
		return token{kind: tokText, size: 2}
	case '(':
		return token{kind: tokOpenInline, size: 2}
	case ')':
		return token{kind: tokCloseInline, size: 2}
	case '[':
		return token{kind: tokOpenDisplay, size: 2}
	case ']':
		return token{kind: tokCloseDisplay, size: 2}
	}
	for _, cmd := range [...]struct {
		name string
		kind tokKind
	}{{`\begin{`, tokBegin}, {`\end{`, tokEnd}} {
		if !strings.HasPrefix(s[i:], cmd.name) {
			continue
		}
		rest := s[i+len(cmd.name):]
		j := strings.IndexByte(rest, '}')
		if j < 0 || strings.ContainsAny(rest[:j], "\n{\\") {
			break
		}
		return token{kind: cmd.kind, env: rest[:j], size: len(cmd.name) + j + 1}
	}
	return token{kind: tokText, size: 1}
}

// isOpener reports whether t starts a math fragment.
func isOpener(t token) bool {
	switch t.kind {
	case tokOpenInline, tokOpenDisplay:
		return true
	case tokBegin:
		_, ok := mathEnvs[t.env]
		return ok
	}
	return false
}

func openerText(t token) string {
	switch t.kind {
	case tokOpenInline:
		return `\(`
	case tokOpenDisplay:
		return `\[`
	case tokBegin:
		return `\begin{` + t.env + `}`
	}
	return ""
}

// Extractor turns the comments of one document into math fragments.
// Fragment ids are numbered in document order.
type Extractor struct {
	doc  *types.Document
	next int
}

// New returns an Extractor for doc.
func New(doc *types.Document) *Extractor {
	return &Extractor{doc: doc}
}

// Document extracts the fragments of every block of doc, in order.
func Document(doc *types.Document, blocks []types.CommentBlock) ([]types.MathFragment, []error) {
	x := New(doc)
	var (
		frags []types.MathFragment
		errs  []error
	)
	for i := range blocks {
		f, e := x.Block(&blocks[i])
		frags = append(frags, f...)
		errs = append(errs, e...)
	}
	return frags, errs
}

type open struct {
	tok       token
	kind      types.DelimKind
	start     int // offset of the opener in the stripped text
	bodyStart int
}

// Block extracts the fragments of one comment block. Nested and unbalanced
// fragments are reported as errors and skipped; scanning continues after
// them.
func (x *Extractor) Block(b *types.CommentBlock) ([]types.MathFragment, []error) {
	var (
		frags []types.MathFragment
		errs  []error
		cur   *open
	)
	s := b.Stripped

	for i := 0; i < len(s); {
		t := lex(s, i)
		if cur == nil {
			if isOpener(t) {
				cur = &open{tok: t, kind: kindOf(t), start: i, bodyStart: i + t.size}
			}
			i += t.size
			continue
		}

		switch {
		case closes(cur, t):
			if f, ok := x.fragment(b, cur, i, i+t.size); ok {
				frags = append(frags, f)
			}
			cur = nil
		case nests(cur, t):
			end := skipFragment(s, cur, i+t.size)
			errs = append(errs, &types.NestedMathError{
				Span:  x.span(b, cur.start, end),
				Outer: cur.kind,
				Inner: openerText(t),
			})
			cur = nil
			i = end
			continue
		}
		i += t.size
	}

	if cur != nil {
		errs = append(errs, &types.UnbalancedMathError{
			Span: x.span(b, cur.start, len(s)),
			Kind: cur.kind,
			Open: openerText(cur.tok),
		})
	}
	return frags, errs
}

func kindOf(t token) types.DelimKind {
	switch t.kind {
	case tokOpenInline:
		return types.Inline
	case tokOpenDisplay:
		return types.Display
	}
	return mathEnvs[t.env]
}

func closes(o *open, t token) bool {
	switch o.tok.kind {
	case tokOpenInline:
		return t.kind == tokCloseInline
	case tokOpenDisplay:
		return t.kind == tokCloseDisplay
	}
	return t.kind == tokEnd && t.env == o.tok.env
}

// nests reports whether t is a math opener that may not appear inside o.
// Environment bodies are literal except for a begin of the same name.
func nests(o *open, t token) bool {
	if o.tok.kind == tokBegin {
		return t.kind == tokBegin && t.env == o.tok.env
	}
	return isOpener(t)
}

// skipFragment finds the end of the fragment o after a nested opener at
// from. It returns len(s) when the fragment never closes.
func skipFragment(s string, o *open, from int) int {
	depth := 1
	if o.tok.kind == tokBegin {
		// the nested begin is still open
		depth = 2
	}
	for i := from; i < len(s); {
		t := lex(s, i)
		i += t.size
		if o.tok.kind == tokBegin && t.kind == tokBegin && t.env == o.tok.env {
			depth++
			continue
		}
		if closes(o, t) {
			if o.tok.kind == tokBegin {
				depth--
				if depth > 0 {
					continue
				}
			}
			return i
		}
	}
	return len(s)
}

func (x *Extractor) fragment(b *types.CommentBlock, o *open, bodyEnd, end int) (types.MathFragment, bool) {
	raw := b.Stripped[o.bodyStart:bodyEnd]
	body := strings.TrimSpace(raw)
	if body == "" {
		return types.MathFragment{}, false
	}
	x.next++
	f := types.MathFragment{
		ID:    fmt.Sprintf("%s#%d", x.doc.Filename, x.next),
		Span:  x.span(b, o.start, end),
		Kind:  o.kind,
		Raw:   raw,
		Body:  body,
		Color: ResolveColors(body),
	}
	if o.tok.kind == tokBegin {
		f.Env = o.tok.env
	}
	return f, true
}

// span converts a half-open range of the stripped text to source coordinates.
func (x *Extractor) span(b *types.CommentBlock, start, end int) types.SourceSpan {
	from := b.SourceOffset(start)
	to := from
	if end > start {
		to = b.SourceOffset(end-1) + 1
	}
	return x.doc.Span(from, to)
}
