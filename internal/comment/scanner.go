// Package comment finds the comments of a source document.
package comment

import (
	"strings"
	"unicode/utf8"

	"github.com/gnolang/laic/internal/lang"
	"github.com/gnolang/laic/internal/types"
)

// Scan returns the comment blocks of doc in source order.
//
// Consecutive line comments that each stand alone on their line are merged
// into a single block; blank lines between them are kept. A line comment
// that follows code on the same line is a block of its own.
//
// An unterminated block comment stops the scan with a
// *types.MalformedCommentError. The blocks found before it are returned
// alongside the error.
func Scan(doc *types.Document, p *lang.Profile) ([]types.CommentBlock, error) {
	s := &scanner{doc: doc, text: doc.Text, p: p}
	return s.run()
}

type scanner struct {
	doc  *types.Document
	text string
	p    *lang.Profile

	blocks  []types.CommentBlock
	pending *lineGroup
}

// lineGroup accumulates merged line comments.
type lineGroup struct {
	start, end int
	out        stripped
}

// stripped builds comment text together with its origin map.
type stripped struct {
	sb     strings.Builder
	origin []int
}

func (b *stripped) add(s string, off int) {
	b.sb.WriteString(s)
	for i := 0; i < len(s); i++ {
		b.origin = append(b.origin, off+i)
	}
}

func (b *stripped) newline(off int) {
	b.sb.WriteByte('\n')
	b.origin = append(b.origin, off)
}

func (b *stripped) finish(end int) (string, []int) {
	return b.sb.String(), append(b.origin, end)
}

func (s *scanner) run() ([]types.CommentBlock, error) {
	n := len(s.text)
	for i := 0; i < n; {
		switch {
		case s.p.HasBlock() && strings.HasPrefix(s.text[i:], s.p.BlockStart):
			end, err := s.block(i)
			if err != nil {
				s.flush()
				return s.blocks, err
			}
			i = end
		case s.linePrefix(i) != "":
			i = s.line(i, s.linePrefix(i))
		case strings.IndexByte(s.p.Quotes, s.text[i]) >= 0:
			i = s.skipString(i)
		case strings.IndexByte(s.p.RawQuotes, s.text[i]) >= 0:
			i = s.skipRaw(i)
		case strings.IndexByte(s.p.Chars, s.text[i]) >= 0:
			i = s.skipChar(i)
		default:
			i++
		}
	}
	s.flush()
	return s.blocks, nil
}

func (s *scanner) linePrefix(i int) string {
	for _, prefix := range s.p.LinePrefixes {
		if strings.HasPrefix(s.text[i:], prefix) {
			return prefix
		}
	}
	return ""
}

// skipString skips a quoted literal starting at i. Literals end at the
// closing quote or at end of line.
func (s *scanner) skipString(i int) int {
	q := s.text[i]
	j := i + 1
	for j < len(s.text) {
		switch s.text[j] {
		case '\\':
			j += 2
			continue
		case q:
			return j + 1
		case '\n':
			return j
		}
		j++
	}
	return len(s.text)
}

// skipRaw skips a raw literal starting at i. Raw literals have no escapes
// and may span lines; an unterminated one runs to end of input.
func (s *scanner) skipRaw(i int) int {
	k := strings.IndexByte(s.text[i+1:], s.text[i])
	if k < 0 {
		return len(s.text)
	}
	return i + 1 + k + 1
}

// maxCharEscape bounds the length of an escaped character literal such as
// '\u{1F600}'.
const maxCharEscape = 12

// skipChar skips a character literal starting at i. A quote that does not
// close a single character or a short escape, like a digit separator or a
// lifetime, is skipped on its own.
func (s *scanner) skipChar(i int) int {
	q := s.text[i]
	rest := s.text[i+1:]
	if rest == "" || rest[0] == '\n' {
		return i + 1
	}
	if rest[0] == '\\' {
		limit := min(len(rest), maxCharEscape)
		for j := 2; j < limit; j++ {
			switch rest[j] {
			case q:
				return i + 1 + j + 1
			case '\n':
				return i + 1
			}
		}
		return i + 1
	}
	_, size := utf8.DecodeRuneInString(rest)
	if size < len(rest) && rest[size] == q {
		return i + 1 + size + 1
	}
	return i + 1
}

func (s *scanner) block(i int) (int, error) {
	s.flush()

	bodyStart := i + len(s.p.BlockStart)
	k := strings.Index(s.text[bodyStart:], s.p.BlockEnd)
	if k < 0 {
		return 0, &types.MalformedCommentError{
			Span:  s.doc.Span(i, len(s.text)),
			Start: s.p.BlockStart,
		}
	}
	bodyEnd := bodyStart + k
	end := bodyEnd + len(s.p.BlockEnd)

	var out stripped
	lines := strings.Split(s.text[bodyStart:bodyEnd], "\n")
	star := starred(lines)
	off := bodyStart
	for n, line := range lines {
		start := 0
		switch {
		case n > 0:
			out.newline(off - 1)
			if star {
				start = starPrefix(line)
			}
		case star && strings.HasPrefix(line, "*"):
			// "/**" doc comment opener.
			start = 1
		}
		out.add(line[start:], off+start)
		off += len(line) + 1
	}
	text, origin := out.finish(bodyEnd)

	s.blocks = append(s.blocks, types.CommentBlock{
		Span:     s.doc.Span(i, end),
		Kind:     types.BlockComment,
		Raw:      s.text[i:end],
		Stripped: text,
		Origin:   origin,
	})
	return end, nil
}

func (s *scanner) line(i int, prefix string) int {
	standalone := s.startsLine(i)

	if !standalone || s.pending == nil || !isBlank(s.text[s.pending.end:i]) {
		s.flush()
	}
	g := s.pending
	if g == nil {
		g = &lineGroup{start: i}
	} else {
		for off := s.pending.end; off < i; off++ {
			if s.text[off] == '\n' {
				g.out.newline(off)
			}
		}
	}

	end := s.lineBody(i+len(prefix), &g.out)
	g.end = end

	if standalone {
		s.pending = g
	} else {
		s.pending = g
		s.flush()
	}
	return end
}

// lineBody appends the text of a line comment starting at body and returns
// the offset of its end (the newline, or end of input).
func (s *scanner) lineBody(body int, out *stripped) int {
	for {
		nl := strings.IndexByte(s.text[body:], '\n')
		if nl < 0 {
			out.add(strings.TrimSuffix(s.text[body:], "\r"), body)
			return len(s.text)
		}
		nl += body
		content := strings.TrimSuffix(s.text[body:nl], "\r")
		if !s.p.LineSplice || !strings.HasSuffix(content, `\`) {
			out.add(content, body)
			return nl
		}

		// The comment continues on the next physical line. An odd run of
		// backslashes ends in the splice, which is dropped; an even run is
		// a LaTeX row break and is kept. Lines are joined with a real
		// newline.
		if trailingBackslashes(content)%2 == 1 {
			content = content[:len(content)-1]
		}
		out.add(content, body)
		out.newline(nl)
		body = nl + 1
		indent := body
		for indent < len(s.text) && (s.text[indent] == ' ' || s.text[indent] == '\t') {
			indent++
		}
		if prefix := s.linePrefix(indent); prefix != "" && indent < len(s.text) {
			body = indent + len(prefix)
		}
	}
}

// startsLine reports whether only blanks precede offset i on its line.
func (s *scanner) startsLine(i int) bool {
	lineStart := strings.LastIndexByte(s.text[:i], '\n') + 1
	return isBlank(s.text[lineStart:i])
}

func (s *scanner) flush() {
	g := s.pending
	if g == nil {
		return
	}
	s.pending = nil
	text, origin := g.out.finish(g.end)
	s.blocks = append(s.blocks, types.CommentBlock{
		Span:     s.doc.Span(g.start, g.end),
		Kind:     types.LineComment,
		Raw:      s.text[g.start:g.end],
		Stripped: text,
		Origin:   origin,
	})
}

// starred reports whether every non-blank continuation line of a block
// comment starts with a "*" gutter, and at least one does.
func starred(lines []string) bool {
	seen := false
	for _, line := range lines[1:] {
		if isBlank(line) {
			continue
		}
		if starPrefix(line) == 0 {
			return false
		}
		seen = true
	}
	return seen
}

// starPrefix returns the length of the blanks and "*" that open line, or 0
// when the line has no star gutter.
func starPrefix(line string) int {
	i := 0
	for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	if i < len(line) && line[i] == '*' {
		return i + 1
	}
	return 0
}

func trailingBackslashes(s string) int {
	n := 0
	for n < len(s) && s[len(s)-1-n] == '\\' {
		n++
	}
	return n
}

func isBlank(s string) bool {
	return strings.TrimLeft(s, " \t\r\n") == ""
}
