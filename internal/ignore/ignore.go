// Package ignore reads laic:ignore directives from comments.
//
// A directive is a comment line starting with laic:ignore. It may name the
// fragment kinds it applies to after a colon:
//
//	// laic:ignore
//	// laic:ignore:inline,align
//	/* laic:ignore-file */
//
// Text after a blank is an explanation and is not read.
package ignore

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/gnolang/laic/internal/types"
)

const directivePrefix = "laic:ignore"

var errNotDirective = errors.New("not a laic directive")

var kindNames = map[string]types.DelimKind{
	"inline":   types.Inline,
	"display":  types.Display,
	"equation": types.Equation,
	"align":    types.Align,
}

// Manager holds the ignored ranges of one document.
type Manager struct {
	scopes []scope
}

// scope is a range of the document where a directive applies.
type scope struct {
	kinds map[types.DelimKind]struct{} // empty applies to every kind
	start int                          // document offsets, end exclusive
	end   int
}

type directive struct {
	kinds map[types.DelimKind]struct{}
	file  bool
}

// Parse reads the directives of blocks, which must be in document order.
//
// A directive applies to the comment it is written in. A comment holding
// nothing but directives also covers the comment on the next line.
// laic:ignore-file covers the whole document. Malformed directives are
// skipped.
func Parse(blocks []types.CommentBlock) *Manager {
	m := &Manager{}
	for i := range blocks {
		b := &blocks[i]
		for _, line := range strings.Split(b.Stripped, "\n") {
			d, err := parseDirective(line)
			if err != nil {
				continue
			}
			sc := scope{kinds: d.kinds, start: b.Span.Start.Offset, end: b.Span.End.Offset}
			switch {
			case d.file:
				sc.start, sc.end = 0, math.MaxInt
			case i+1 < len(blocks) && standalone(b) && blocks[i+1].Span.Start.Line <= b.Span.End.Line+1:
				sc.end = blocks[i+1].Span.End.Offset
			}
			m.scopes = append(m.scopes, sc)
		}
	}
	return m
}

// Len returns the number of directives found.
func (m *Manager) Len() int { return len(m.scopes) }

// Ignored reports whether a fragment of kind starting in span is covered by
// a directive.
func (m *Manager) Ignored(span types.SourceSpan, kind types.DelimKind) bool {
	for _, sc := range m.scopes {
		if span.Start.Offset < sc.start || span.Start.Offset >= sc.end {
			continue
		}
		if len(sc.kinds) == 0 {
			return true
		}
		if _, ok := sc.kinds[kind]; ok {
			return true
		}
	}
	return false
}

// Filter drops the fragments and the nested or unbalanced math diagnostics
// covered by a directive.
func (m *Manager) Filter(frags []types.MathFragment, diags []error) ([]types.MathFragment, []error) {
	if len(m.scopes) == 0 {
		return frags, diags
	}
	var kept []types.MathFragment
	for _, f := range frags {
		if !m.Ignored(f.Span, f.Kind) {
			kept = append(kept, f)
		}
	}
	var keptDiags []error
	for _, d := range diags {
		if span, kind, ok := located(d); ok && m.Ignored(span, kind) {
			continue
		}
		keptDiags = append(keptDiags, d)
	}
	return kept, keptDiags
}

func located(err error) (types.SourceSpan, types.DelimKind, bool) {
	var (
		nested     *types.NestedMathError
		unbalanced *types.UnbalancedMathError
	)
	switch {
	case errors.As(err, &nested):
		return nested.Span, nested.Outer, true
	case errors.As(err, &unbalanced):
		return unbalanced.Span, unbalanced.Kind, true
	}
	return types.SourceSpan{}, 0, false
}

// commentText trims blanks and a leading block comment star from line.
func commentText(line string) string {
	text := strings.TrimSpace(line)
	return strings.TrimSpace(strings.TrimPrefix(text, "*"))
}

func parseDirective(line string) (directive, error) {
	var d directive
	text := commentText(line)
	if !strings.HasPrefix(text, directivePrefix) {
		return d, errNotDirective
	}

	rest := text[len(directivePrefix):]
	if r, ok := strings.CutPrefix(rest, "-file"); ok {
		d.file = true
		rest = r
	}
	if rest == "" || rest[0] == ' ' || rest[0] == '\t' {
		return d, nil
	}
	if rest[0] != ':' {
		return d, fmt.Errorf("invalid directive %q", text)
	}

	names, _, _ := strings.Cut(rest[1:], " ")
	kinds, err := parseKinds(names)
	if err != nil {
		return d, err
	}
	d.kinds = kinds
	return d, nil
}

// parseKinds parses a comma separated list of fragment kinds.
func parseKinds(text string) (map[types.DelimKind]struct{}, error) {
	kinds := make(map[types.DelimKind]struct{})
	for _, name := range strings.Split(text, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		k, ok := kindNames[name]
		if !ok {
			return nil, fmt.Errorf("unknown fragment kind %q", name)
		}
		kinds[k] = struct{}{}
	}
	if len(kinds) == 0 {
		return nil, errors.New("no fragment kinds after colon")
	}
	return kinds, nil
}

// standalone reports whether b holds nothing but directives.
func standalone(b *types.CommentBlock) bool {
	for _, line := range strings.Split(b.Stripped, "\n") {
		if commentText(line) == "" {
			continue
		}
		if _, err := parseDirective(line); err != nil {
			return false
		}
	}
	return true
}
