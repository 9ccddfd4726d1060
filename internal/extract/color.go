package extract

import (
	"sort"
	"strings"

	"github.com/gnolang/laic/internal/types"
)

// ResolveColors finds the color commands of a fragment body.
//
// A \color{c} at brace depth zero sets the fragment color; only the first
// one counts. \textcolor{c}{...} and a \color{c} inside a group color the
// enclosed text and become token overrides. The document default is not
// applied here; see ColorAnnotation.Effective.
func ResolveColors(body string) types.ColorAnnotation {
	var a types.ColorAnnotation
	depth := 0
	for i := 0; i < len(body); {
		switch {
		case strings.HasPrefix(body[i:], `\\`), strings.HasPrefix(body[i:], `\{`), strings.HasPrefix(body[i:], `\}`):
			i += 2
		case strings.HasPrefix(body[i:], `\textcolor`) && !isLetterAt(body, i+len(`\textcolor`)):
			i = textcolor(body, i+len(`\textcolor`), &a)
		case strings.HasPrefix(body[i:], `\color`) && !isLetterAt(body, i+len(`\color`)):
			i = color(body, i+len(`\color`), depth, &a)
		case body[i] == '{':
			depth++
			i++
		case body[i] == '}':
			if depth > 0 {
				depth--
			}
			i++
		default:
			i++
		}
	}
	sort.SliceStable(a.Tokens, func(i, j int) bool { return a.Tokens[i].Start < a.Tokens[j].Start })
	return a
}

func textcolor(body string, i int, a *types.ColorAnnotation) int {
	i = skipOptional(body, i)
	name, i, ok := group(body, i)
	if !ok {
		return i
	}
	argStart := skipSpace(body, i)
	if argStart >= len(body) || body[argStart] != '{' {
		return i
	}
	_, end, ok := group(body, argStart)
	if !ok {
		return i
	}
	a.Tokens = append(a.Tokens, types.ColorOverride{
		Start: argStart + 1,
		End:   end - 1,
		Color: strings.TrimSpace(name),
	})
	// the argument may hold further overrides
	return argStart
}

func color(body string, i, depth int, a *types.ColorAnnotation) int {
	i = skipOptional(body, i)
	name, next, ok := group(body, i)
	if !ok {
		return i
	}
	name = strings.TrimSpace(name)
	if depth == 0 && a.Fragment == "" {
		a.Fragment = name
		return next
	}
	a.Tokens = append(a.Tokens, types.ColorOverride{
		Start: next,
		End:   groupEnd(body, next),
		Color: name,
	})
	return next
}

// group reads a braced group at s[i], after optional blanks. It returns the
// content and the offset just past the closing brace.
func group(s string, i int) (string, int, bool) {
	i = skipSpace(s, i)
	if i >= len(s) || s[i] != '{' {
		return "", i, false
	}
	depth := 0
	for j := i; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[i+1 : j], j + 1, true
			}
		}
	}
	return "", i, false
}

// groupEnd returns the offset of the brace closing the group that
// contains i, or len(s).
func groupEnd(s string, i int) int {
	depth := 0
	for j := i; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return j
			}
			depth--
		}
	}
	return len(s)
}

func skipOptional(s string, i int) int {
	j := skipSpace(s, i)
	if j < len(s) && s[j] == '[' {
		if k := strings.IndexByte(s[j:], ']'); k >= 0 {
			return j + k + 1
		}
	}
	return i
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

func isLetterAt(s string, i int) bool {
	if i >= len(s) {
		return false
	}
	c := s[i]
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
