package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/laic/internal/render"
	"github.com/gnolang/laic/internal/types"
)

func frag(id, body string, kind types.DelimKind) *types.MathFragment {
	return &types.MathFragment{ID: id, Kind: kind, Raw: body, Body: body}
}

func fragments(bodies ...string) []*types.MathFragment {
	out := make([]*types.MathFragment, len(bodies))
	for i, b := range bodies {
		out[i] = frag(fmt.Sprintf("f%d", i), b, types.Inline)
	}
	return out
}

// rowsOf splits a batch document into its rows.
func rowsOf(doc string) []string {
	parts := strings.Split(doc, `\begin{preview}`)[1:]
	for i, p := range parts {
		p, _, _ = strings.Cut(p, `\end{preview}`)
		parts[i] = p
	}
	return parts
}

// fakeLatex fails on any row containing \bad. The artifact of a row holds
// the row text so tests can tell artifacts apart.
func fakeLatex(calls *atomic.Int64, reportRow bool) render.Renderer {
	return render.RendererFunc(func(ctx context.Context, job render.Job) ([]types.Artifact, error) {
		calls.Add(1)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows := rowsOf(job.Document)
		for i, r := range rows {
			if strings.Contains(r, `\bad`) {
				row := -1
				if reportRow {
					row = i
				}
				return nil, &render.Failure{Message: "Undefined control sequence.", Row: row}
			}
		}
		arts := make([]types.Artifact, len(rows))
		for i, r := range rows {
			arts[i] = types.Artifact{PNG: []byte(r), Width: len(r), Height: 1}
		}
		return arts, nil
	})
}

func TestBuild(t *testing.T) {
	t.Parallel()
	cfg := types.RenderConfig{Packages: []string{"bm"}, Preamble: `\newcommand{\R}{\mathbb{R}}`}
	frags := []*types.MathFragment{
		frag("a", `x^2`, types.Inline),
		frag("b", `\sum_i i`, types.Display),
		{ID: "c", Kind: types.Align, Env: "align*", Body: "a &= b \\\\\nc &= d"},
		{ID: "d", Kind: types.Inline, Body: `y`, Color: types.ColorAnnotation{Fragment: "#ff8800"}},
	}

	b := Build(1, cfg, frags)
	doc := b.Document

	for _, want := range []string{
		`\usepackage{amsmath}`,
		`\usepackage{xcolor}`,
		`\usepackage{bm}`,
		`\usepackage[active,tightpage]{preview}`,
		`\newcommand{\R}{\mathbb{R}}`,
		"\\begin{align*}\na &= b \\\\\nc &= d\n\\end{align*}",
		`\(\displaystyle \sum_i i`,
		`\color[HTML]{FF8800}`,
		`\color{black}`,
	} {
		assert.Contains(t, doc, want)
	}
	assert.True(t, strings.HasSuffix(doc, "\\end{document}\n"))

	job := b.Job()
	assert.Equal(t, 4, job.Rows)
	assert.Equal(t, types.DefaultDPI, job.DPI)
	require.Len(t, job.RowLines, 4)

	lines := strings.Split(doc, "\n")
	for i, r := range job.RowLines {
		assert.True(t, strings.HasPrefix(lines[r[0]-1], `\begin{preview}`), "row %d starts at line %d", i, r[0])
		assert.Equal(t, `\end{preview}`, lines[r[1]-1], "row %d ends at line %d", i, r[1])
		if i > 0 {
			assert.Equal(t, job.RowLines[i-1][1]+1, r[0])
		}
	}
}

func TestBuildDefaultColor(t *testing.T) {
	t.Parallel()
	b := Build(1, types.RenderConfig{DefaultColor: "blue"}, fragments(`x`))
	assert.Contains(t, b.Document, `\begin{preview}\color{blue}\setcounter{equation}{0}%`)
}

func TestBuildResetsEquationNumbers(t *testing.T) {
	t.Parallel()
	frags := []*types.MathFragment{
		{ID: "a", Kind: types.Equation, Env: "equation", Body: "x = 1"},
		{ID: "b", Kind: types.Equation, Env: "equation", Body: "y = 2"},
		{ID: "c", Kind: types.Align, Env: "align", Body: "a &= b \\\\\nc &= d"},
	}
	b := Build(1, types.RenderConfig{}, frags)

	lines := strings.Split(b.Document, "\n")
	for i, r := range b.RowLines {
		assert.Contains(t, lines[r[0]-1], `\setcounter{equation}{0}`, "row %d", i)
	}
	assert.Equal(t, len(frags), strings.Count(b.Document, `\setcounter{equation}{0}`))
	assert.Contains(t, b.Document, "\\begin{equation}\ny = 2\n\\end{equation}")
}

func TestBuildCommentInBody(t *testing.T) {
	t.Parallel()
	b := Build(1, types.RenderConfig{}, fragments(`x % note`))
	assert.Contains(t, b.Document, "\\(x % note\n\\)%\n", "the closer is not commented out")
}

func TestCompile(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		bodies      []string
		maxRows     int
		reportRow   bool
		failed      []string
		invocations int64
	}{
		{
			name:        "single batch",
			bodies:      []string{`a`, `b`, `c`},
			invocations: 1,
		},
		{
			name:        "split by max rows",
			bodies:      []string{`a`, `b`, `c`, `d`, `e`},
			maxRows:     2,
			invocations: 3,
		},
		{
			name:        "bisect unknown row",
			bodies:      []string{`a`, `\bad`, `c`, `d`},
			failed:      []string{"f1"},
			invocations: 5,
		},
		{
			name:        "isolate reported row",
			bodies:      []string{`a`, `\bad`, `c`, `d`},
			reportRow:   true,
			failed:      []string{"f1"},
			invocations: 3,
		},
		{
			name:        "several failures",
			bodies:      []string{`\bad 1`, `b`, `c`, `\bad 2`},
			failed:      []string{"f0", "f3"},
			invocations: 7,
		},
		{
			name:        "every fragment fails",
			bodies:      []string{`\bad 1`, `\bad 2`},
			reportRow:   true,
			failed:      []string{"f0", "f1"},
			invocations: 3,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var calls atomic.Int64
			c := NewCompiler(fakeLatex(&calls, tt.reportRow), tt.maxRows, nil)
			frags := fragments(tt.bodies...)

			out, err := c.Compile(context.Background(), types.RenderConfig{}, frags)
			require.NoError(t, err)

			var failed []string
			for _, f := range frags {
				if e, ok := out.Errors[f.ID]; ok {
					failed = append(failed, f.ID)
					var re *types.RenderError
					require.True(t, errors.As(e, &re))
					assert.Equal(t, "Undefined control sequence.", re.Message)
					assert.NotContains(t, out.Artifacts, f.ID)
					continue
				}
				art, ok := out.Artifacts[f.ID]
				require.True(t, ok, "%s has neither artifact nor error", f.ID)
				assert.Contains(t, string(art.PNG), f.Body)
			}
			assert.Equal(t, tt.failed, failed)
			assert.Equal(t, tt.invocations, calls.Load())
			assert.Equal(t, tt.invocations, c.Invocations())
		})
	}
}

func TestCompileMatchesIndividualRendering(t *testing.T) {
	t.Parallel()
	bodies := []string{`\alpha`, `\frac{1}{2}`, `\bad`, `e^{i\pi}`}

	var calls atomic.Int64
	batched, err := NewCompiler(fakeLatex(&calls, false), 0, nil).
		Compile(context.Background(), types.RenderConfig{}, fragments(bodies...))
	require.NoError(t, err)

	single, err := NewCompiler(fakeLatex(&calls, false), 1, nil).
		Compile(context.Background(), types.RenderConfig{}, fragments(bodies...))
	require.NoError(t, err)

	assert.Equal(t, single.Artifacts, batched.Artifacts)
	assert.Equal(t, len(single.Errors), len(batched.Errors))
	for id := range single.Errors {
		assert.Contains(t, batched.Errors, id)
	}
}

func TestCompileRendererUnavailable(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	r := render.RendererFunc(func(context.Context, render.Job) ([]types.Artifact, error) {
		calls.Add(1)
		return nil, errors.New(`exec: "latex": executable file not found in $PATH`)
	})
	frags := fragments(`a`, `b`, `c`)
	out, err := NewCompiler(r, 0, nil).Compile(context.Background(), types.RenderConfig{}, frags)
	require.NoError(t, err)

	assert.Equal(t, int64(1), calls.Load(), "environment failures are not bisected")
	assert.Len(t, out.Errors, 3)
	assert.Empty(t, out.Artifacts)
}

func TestCompileShortOutput(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	r := render.RendererFunc(func(context.Context, render.Job) ([]types.Artifact, error) {
		calls.Add(1)
		return nil, nil
	})
	out, err := NewCompiler(r, 0, nil).Compile(context.Background(), types.RenderConfig{}, fragments(`a`, `b`))
	require.NoError(t, err)
	assert.Len(t, out.Errors, 2)
	assert.Equal(t, int64(3), calls.Load())
}

func TestCompileCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	r := render.RendererFunc(func(ctx context.Context, job render.Job) ([]types.Artifact, error) {
		cancel()
		return nil, ctx.Err()
	})
	out, err := NewCompiler(r, 1, nil).Compile(ctx, types.RenderConfig{}, fragments(`a`, `b`))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, out.Artifacts)
	assert.Empty(t, out.Errors, "cancellation is not a render error")
}

type mockRenderer struct {
	mock.Mock
}

func (m *mockRenderer) Render(ctx context.Context, job render.Job) ([]types.Artifact, error) {
	args := m.Called(ctx, job)
	return args.Get(0).([]types.Artifact), args.Error(1)
}

func TestCompileOneInvocationPerBatch(t *testing.T) {
	t.Parallel()
	r := new(mockRenderer)
	arts := []types.Artifact{{PNG: []byte{1}}, {PNG: []byte{2}}, {PNG: []byte{3}}}
	r.On("Render", mock.Anything, mock.MatchedBy(func(job render.Job) bool {
		return job.Rows == 3 && len(job.RowLines) == 3 && job.DPI == 300
	})).Return(arts, nil).Once()

	out, err := NewCompiler(r, 0, nil).Compile(context.Background(), types.RenderConfig{DPI: 300}, fragments(`a`, `b`, `c`))
	require.NoError(t, err)

	r.AssertExpectations(t)
	assert.Equal(t, []byte{1}, out.Artifacts["f0"].PNG)
	assert.Equal(t, []byte{3}, out.Artifacts["f2"].PNG)
}
