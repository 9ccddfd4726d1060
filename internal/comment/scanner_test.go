package comment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/laic/internal/lang"
	"github.com/gnolang/laic/internal/types"
)

func profile(t *testing.T, name string) *lang.Profile {
	t.Helper()
	p, ok := lang.Default().Lookup(name)
	require.True(t, ok, "missing profile %s", name)
	return p
}

func TestScan(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		lang     string
		src      string
		stripped []string
		kinds    []types.CommentKind
	}{
		{
			name:     "merged line comments",
			lang:     "c",
			src:      "// \\[ a \\\\\n// b \\]\nint x;\n",
			stripped: []string{" \\[ a \\\\\n b \\]"},
			kinds:    []types.CommentKind{types.LineComment},
		},
		{
			name:     "blank line between line comments",
			lang:     "go",
			src:      "// a\n\n  // b\n",
			stripped: []string{" a\n\n b"},
			kinds:    []types.CommentKind{types.LineComment},
		},
		{
			name:     "code ends a run",
			lang:     "go",
			src:      "// a\nx := 1\n// b\n",
			stripped: []string{" a", " b"},
			kinds:    []types.CommentKind{types.LineComment, types.LineComment},
		},
		{
			name:     "trailing comment is never merged",
			lang:     "c",
			src:      "int x; // a\n// b\n// c\n",
			stripped: []string{" a", " b\n c"},
			kinds:    []types.CommentKind{types.LineComment, types.LineComment},
		},
		{
			name:     "block comment",
			lang:     "c",
			src:      "/* \\( x \\) */ int y;",
			stripped: []string{" \\( x \\) "},
			kinds:    []types.CommentKind{types.BlockComment},
		},
		{
			name:     "block splits line runs",
			lang:     "java",
			src:      "// a\n/* b */\n// c\n",
			stripped: []string{" a", " b ", " c"},
			kinds:    []types.CommentKind{types.LineComment, types.BlockComment, types.LineComment},
		},
		{
			name:     "comment markers in strings",
			lang:     "c",
			src:      "char *s = \"// no /* no\"; // yes\n",
			stripped: []string{" yes"},
			kinds:    []types.CommentKind{types.LineComment},
		},
		{
			name:     "escaped quote in string",
			lang:     "javascript",
			src:      "let s = 'it\\'s // no'; // yes",
			stripped: []string{" yes"},
			kinds:    []types.CommentKind{types.LineComment},
		},
		{
			name:     "hash comments",
			lang:     "python",
			src:      "x = 1  # \\(x\\)\n# \\[\n#   y\n# \\]\n",
			stripped: []string{" \\(x\\)", " \\[\n   y\n \\]"},
			kinds:    []types.CommentKind{types.LineComment, types.LineComment},
		},
		{
			name:     "line splice joins the next line",
			lang:     "c",
			src:      "// a \\\n   b\nint x;\n",
			stripped: []string{" a \n   b"},
			kinds:    []types.CommentKind{types.LineComment},
		},
		{
			name:     "line splice onto another comment",
			lang:     "c",
			src:      "// a \\\n// b\n",
			stripped: []string{" a \n b"},
			kinds:    []types.CommentKind{types.LineComment},
		},
		{
			name:     "no splice outside C",
			lang:     "python",
			src:      "# a \\\nb = 2\n",
			stripped: []string{" a \\"},
			kinds:    []types.CommentKind{types.LineComment},
		},
		{
			name:     "crlf line endings",
			lang:     "go",
			src:      "// a\r\n// b\r\n",
			stripped: []string{" a\n b"},
			kinds:    []types.CommentKind{types.LineComment},
		},
		{
			name:     "lua block before line prefix",
			lang:     "lua",
			src:      "--[[ x ]] -- y\n",
			stripped: []string{" x ", " y"},
			kinds:    []types.CommentKind{types.BlockComment, types.LineComment},
		},
		{
			name:     "star gutter is stripped",
			lang:     "c",
			src:      "/*\n * \\begin{align*}\n *   a &= b \\\\\n *\n * \\end{align*}\n */",
			stripped: []string{"\n \\begin{align*}\n   a &= b \\\\\n\n \\end{align*}\n "},
			kinds:    []types.CommentKind{types.BlockComment},
		},
		{
			name:     "doc comment opener",
			lang:     "java",
			src:      "/** \\( x \\)\n * y */",
			stripped: []string{" \\( x \\)\n y "},
			kinds:    []types.CommentKind{types.BlockComment},
		},
		{
			name:     "gutter kept when a line lacks it",
			lang:     "c",
			src:      "/* a\n * b\n c */",
			stripped: []string{" a\n * b\n c "},
			kinds:    []types.CommentKind{types.BlockComment},
		},
		{
			name:     "rust doc comments",
			lang:     "rust",
			src:      "/// \\[ a \\]\n//! b\nfn f() {}\n",
			stripped: []string{" \\[ a \\]\n b"},
			kinds:    []types.CommentKind{types.LineComment},
		},
		{
			name:     "digit separator is not a quote",
			lang:     "c",
			src:      "int n = 1'000;  // \\(a\\)\n",
			stripped: []string{" \\(a\\)"},
			kinds:    []types.CommentKind{types.LineComment},
		},
		{
			name:     "lifetimes are not quotes",
			lang:     "rust",
			src:      "fn f<'a>(x: &'a str) {} // y\n",
			stripped: []string{" y"},
			kinds:    []types.CommentKind{types.LineComment},
		},
		{
			name:     "character literals",
			lang:     "go",
			src:      "c := '\"' // a\nd := '\\'' // b\ne := '/' // c\n",
			stripped: []string{" a", " b", " c"},
			kinds:    []types.CommentKind{types.LineComment, types.LineComment, types.LineComment},
		},
		{
			name:     "raw strings span lines",
			lang:     "go",
			src:      "s := `// no\n/* no` // yes\n",
			stripped: []string{" yes"},
			kinds:    []types.CommentKind{types.LineComment},
		},
		{
			name: "no comments",
			lang: "go",
			src:  "package main\n",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			doc := types.NewDocument("test", tt.src)
			blocks, err := Scan(doc, profile(t, tt.lang))
			require.NoError(t, err)

			var stripped []string
			var kinds []types.CommentKind
			for _, b := range blocks {
				stripped = append(stripped, b.Stripped)
				kinds = append(kinds, b.Kind)
				assert.Equal(t, b.Raw, tt.src[b.Span.Start.Offset:b.Span.End.Offset])
			}
			assert.Equal(t, tt.stripped, stripped)
			assert.Equal(t, tt.kinds, kinds)
		})
	}
}

func TestScanOriginMap(t *testing.T) {
	t.Parallel()
	sources := []struct{ lang, src string }{
		{"c", "int a; // \\( x \\)\n  // \\[\n  //   y \\\\\n  // \\]\n/* z\n * w */\n"},
		{"c", "// a \\\n   b\n"},
		{"python", "#  p\r\n#q\n"},
		{"haskell", "{- \\(h\\) -} -- k\n"},
	}
	for _, s := range sources {
		doc := types.NewDocument("test", s.src)
		blocks, err := Scan(doc, profile(t, s.lang))
		require.NoError(t, err)
		require.NotEmpty(t, blocks)

		for _, b := range blocks {
			require.Len(t, b.Origin, len(b.Stripped)+1)
			for i := 0; i < len(b.Stripped); i++ {
				assert.Equal(t, b.Stripped[i], s.src[b.SourceOffset(i)],
					"byte %d of %q maps to the wrong source offset", i, b.Stripped)
			}
		}
	}
}

func TestScanMalformed(t *testing.T) {
	t.Parallel()
	src := "int x; // \\( a \\)\n/* \\[ \\alpha \\]\nint y;\n"
	doc := types.NewDocument("bad.c", src)

	blocks, err := Scan(doc, profile(t, "c"))
	require.Error(t, err)

	var malformed *types.MalformedCommentError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, "/*", malformed.Start)
	assert.Equal(t, 2, malformed.Span.Start.Line)
	assert.Equal(t, 1, malformed.Span.Start.Column)
	assert.Equal(t, len(src), malformed.Span.End.Offset)

	require.Len(t, blocks, 1, "blocks before the malformed comment are kept")
	assert.Equal(t, " \\( a \\)", blocks[0].Stripped)
}

func TestScanDeterministic(t *testing.T) {
	t.Parallel()
	src := "// \\( a \\)\n/* \\[ b \\] */\n# not a comment in C\n"
	doc := types.NewDocument("x.c", src)
	first, err := Scan(doc, profile(t, "c"))
	require.NoError(t, err)
	second, err := Scan(types.NewDocument("x.c", src), profile(t, "c"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestScanSpliceKeepsRowBreaks(t *testing.T) {
	t.Parallel()
	src := "// \\begin{align*}\n// \\alpha &= \\beta \\\\\n// \\end{align*}\n"
	blocks, err := Scan(types.NewDocument("a.cpp", src), profile(t, "c"))
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, " \\begin{align*}\n \\alpha &= \\beta \\\\\n \\end{align*}", blocks[0].Stripped)
}
