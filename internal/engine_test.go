package internal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/laic/internal/cache"
	"github.com/gnolang/laic/internal/render"
	"github.com/gnolang/laic/internal/types"
)

// createTempDir creates a temporary directory and returns its path.
// It also registers a cleanup function to remove the directory after the test.
func createTempDir(t testing.TB, prefix string) string {
	tempDir, err := os.MkdirTemp("", prefix)
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tempDir) })
	return tempDir
}

// fakeRenderer renders every preview row to a one byte artifact. Rows
// containing \bad fail; rows containing \slow block until released or
// cancelled.
type fakeRenderer struct {
	calls   atomic.Int64
	rows    atomic.Int64
	started chan struct{}
	release chan struct{}
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{started: make(chan struct{}, 16), release: make(chan struct{})}
}

func (r *fakeRenderer) Render(ctx context.Context, job render.Job) ([]types.Artifact, error) {
	r.calls.Add(1)
	rows := strings.Split(job.Document, `\begin{preview}`)[1:]
	for i, row := range rows {
		if strings.Contains(row, `\slow`) {
			r.started <- struct{}{}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-r.release:
			}
		}
		if strings.Contains(row, `\bad`) {
			return nil, &render.Failure{Message: "Undefined control sequence.", Row: i}
		}
	}
	r.rows.Add(int64(len(rows)))
	arts := make([]types.Artifact, len(rows))
	for i := range rows {
		arts[i] = types.Artifact{PNG: []byte{byte(i)}, Width: 8, Height: 4}
	}
	return arts, nil
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *fakeRenderer) {
	t.Helper()
	r := newFakeRenderer()
	e, err := NewEngine(cfg, r, nil, nil)
	require.NoError(t, err)
	return e, r
}

func doc(name, text string) *types.Document {
	return types.NewDocument(name, text)
}

func TestNewEngine(t *testing.T) {
	t.Parallel()

	_, err := NewEngine(Config{}, nil, nil, nil)
	assert.Error(t, err, "a renderer is required")

	e, r := newTestEngine(t, Config{})
	assert.NotNil(t, e.Cache())
	assert.NotNil(t, e.Profiles())
	assert.Equal(t, int64(0), e.Invocations())
	assert.Equal(t, int64(0), r.calls.Load())
}

func TestEngineRenderUsesCache(t *testing.T) {
	t.Parallel()
	e, r := newTestEngine(t, Config{})
	src := "// \\( x^2 \\)\n// \\[ \\sum_i i \\]\nfunc f() {}\n"

	reports, err := e.Render(context.Background(), []*types.Document{doc("a.go", src)})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Len(t, reports[0].Results, 2)
	for _, res := range reports[0].Results {
		assert.True(t, res.OK(), "%s: %v", res.FragmentID, res.Err)
	}
	assert.Equal(t, int64(1), r.calls.Load(), "all misses share one invocation")

	again, err := e.Render(context.Background(), []*types.Document{doc("a.go", src)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.calls.Load(), "a second pass is served from the cache")
	assert.Equal(t, reports, again)
}

func TestEngineDeduplicatesAcrossDocuments(t *testing.T) {
	t.Parallel()
	e, r := newTestEngine(t, Config{})
	docs := []*types.Document{
		doc("a.go", "// \\( \\alpha \\)\n"),
		doc("b.c", "/* \\(\\alpha\\) */\n"),
		doc("c.py", "# \\( \\alpha  \\)\n"),
	}

	reports, err := e.Render(context.Background(), docs)
	require.NoError(t, err)
	require.Len(t, reports, 3)

	key := reports[0].Results[0].Key
	for _, rep := range reports {
		require.Len(t, rep.Results, 1)
		assert.True(t, rep.Results[0].OK())
		assert.Equal(t, key, rep.Results[0].Key)
	}
	assert.Equal(t, int64(1), r.calls.Load())
	assert.Equal(t, int64(1), r.rows.Load())
}

func TestEngineInlineAndDisplayDiffer(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t, Config{})
	reports, err := e.Render(context.Background(), []*types.Document{
		doc("a.c", "/* \\( \\alpha = \\beta \\) */\n/* \\[ \\alpha = \\beta \\] */\n"),
	})
	require.NoError(t, err)
	res := reports[0].Results
	require.Len(t, res, 2)
	assert.Equal(t, types.Inline, res[0].Kind)
	assert.Equal(t, types.Display, res[1].Kind)
	assert.NotEqual(t, res[0].Key, res[1].Key)
}

func TestEngineConfigChangeInvalidates(t *testing.T) {
	t.Parallel()
	e, r := newTestEngine(t, Config{})
	d := doc("a.go", "// \\( x \\)\n")

	first, err := e.Render(context.Background(), []*types.Document{d})
	require.NoError(t, err)

	e.SetConfig(Config{Render: types.RenderConfig{DefaultColor: "blue"}})
	_, ok := e.Cache().Lookup(first[0].Results[0].Key)
	assert.False(t, ok, "artifacts of the old config are evicted")

	second, err := e.Render(context.Background(), []*types.Document{d})
	require.NoError(t, err)
	assert.Equal(t, int64(2), r.calls.Load())
	assert.NotEqual(t, first[0].Results[0].Key, second[0].Results[0].Key)
}

func TestEngineLanguageConfigs(t *testing.T) {
	t.Parallel()
	e, r := newTestEngine(t, Config{
		Languages: map[string]LanguageConfig{
			"python": {DefaultColor: "red", Packages: []string{"bm"}},
			"shell":  {Extensions: []string{".envrc"}},
			"cobol":  {DefaultColor: "green"},
		},
	})

	py, ok := e.Profiles().Lookup("python")
	require.True(t, ok)
	assert.Equal(t, "red", e.ConfigFor(py).DefaultColor)
	assert.Equal(t, []string{"bm"}, e.ConfigFor(py).Packages)

	goProfile, ok := e.Profiles().Lookup("go")
	require.True(t, ok)
	assert.Equal(t, types.DefaultColor, e.ConfigFor(goProfile).DefaultColor)

	sh, ok := e.Profiles().ForFile("project/.envrc")
	require.True(t, ok, "extra extensions are registered")
	assert.Equal(t, "shell", sh.Name)

	reports, err := e.Render(context.Background(), []*types.Document{
		doc("a.go", "// \\( x \\)\n"),
		doc("b.py", "# \\( x \\)\n"),
	})
	require.NoError(t, err)
	assert.NotEqual(t, reports[0].Results[0].Key, reports[1].Results[0].Key)
	assert.Equal(t, int64(2), r.calls.Load(), "one batch per configuration")
}

func TestEngineRenderErrors(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t, Config{})
	reports, err := e.Render(context.Background(), []*types.Document{
		doc("a.go", "// \\( \\bad \\) and \\( y \\)\n"),
		doc("b.go", "// \\( \\bad \\)\n"),
	})
	require.NoError(t, err)

	a := reports[0].Results
	require.Len(t, a, 2)
	assert.False(t, a[0].OK())
	assert.True(t, a[1].OK(), "other fragments still render")

	for _, rep := range reports {
		res := rep.Results[0]
		var re *types.RenderError
		require.True(t, errors.As(res.Err, &re))
		assert.Equal(t, res.FragmentID, re.FragmentID)
		assert.Equal(t, res.Span, re.Span)
		assert.Equal(t, "Undefined control sequence.", re.Message)
	}
}

func TestEngineMalformedComment(t *testing.T) {
	t.Parallel()
	e, r := newTestEngine(t, Config{})

	s, err := e.Scan(doc("bad.c", "// \\( a \\)\n/* \\[ b \\]\nint x;\n"))
	require.NoError(t, err)
	assert.True(t, s.Aborted)
	assert.Empty(t, s.Fragments)
	require.Len(t, s.Diagnostics, 1)

	reports, err := e.Render(context.Background(), []*types.Document{s.Doc})
	require.NoError(t, err)
	require.Len(t, reports[0].Results, 1)
	var malformed *types.MalformedCommentError
	assert.True(t, errors.As(reports[0].Results[0].Err, &malformed))
	assert.Equal(t, int64(0), r.calls.Load())
}

func TestEngineDiagnosticsAreKept(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t, Config{})
	reports, err := e.Render(context.Background(), []*types.Document{
		doc("n.go", "// \\( a \\( b \\) \\)\n// \\( c \\)\n// \\[ d\n"),
	})
	require.NoError(t, err)

	res := reports[0].Results
	require.Len(t, res, 3)
	var nested *types.NestedMathError
	assert.True(t, errors.As(res[0].Err, &nested))
	assert.True(t, res[1].OK())
	var unbalanced *types.UnbalancedMathError
	assert.True(t, errors.As(res[2].Err, &unbalanced))
}

func TestEngineIgnoreDirectives(t *testing.T) {
	t.Parallel()
	e, r := newTestEngine(t, Config{})
	src := "# laic:ignore\n# \\( a \\( b \\)\nx = 1\n# \\( c \\)  \\[ d \\]\n# laic:ignore:display\n"

	s, err := e.Scan(doc("m.py", src))
	require.NoError(t, err)
	assert.Empty(t, s.Diagnostics)
	require.Len(t, s.Fragments, 1)
	assert.Equal(t, "c", s.Fragments[0].Body)
	assert.Equal(t, "m.py#1", s.Fragments[0].ID)

	reports, err := e.Render(context.Background(), []*types.Document{s.Doc})
	require.NoError(t, err)
	require.Len(t, reports[0].Results, 1)
	assert.True(t, reports[0].Results[0].OK())
	assert.Equal(t, int64(1), r.rows.Load())
}

func TestEngineUnsupportedFile(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t, Config{})

	_, err := e.Scan(doc("notes.xyz", "\\( x \\)"))
	assert.ErrorIs(t, err, ErrUnsupported)

	reports, err := e.Render(context.Background(), []*types.Document{doc("notes.xyz", "\\( x \\)")})
	require.NoError(t, err)
	require.Len(t, reports[0].Results, 1)
	assert.ErrorIs(t, reports[0].Results[0].Err, ErrUnsupported)
}

func TestEngineRenderCancelled(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Render(ctx, []*types.Document{doc("a.go", "// \\( x \\)\n")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, e.Cache().Stats().Entries)

	// abandoned keys can be rendered by the next pass
	reports, err := e.Render(context.Background(), []*types.Document{doc("a.go", "// \\( x \\)\n")})
	require.NoError(t, err)
	assert.True(t, reports[0].Results[0].OK())
}

func TestEngineSubmitSupersedes(t *testing.T) {
	t.Parallel()
	e, r := newTestEngine(t, Config{})

	var (
		wg       sync.WaitGroup
		firstErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = e.Submit(context.Background(), doc("a.go", "// \\( \\slow \\)\n"))
	}()

	select {
	case <-r.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first render never started")
	}

	report, err := e.Submit(context.Background(), doc("a.go", "// \\( x \\)\n"))
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.True(t, report.Results[0].OK())

	wg.Wait()
	assert.ErrorIs(t, firstErr, ErrSuperseded)
}

func TestEngineConcurrentRendersShareWork(t *testing.T) {
	t.Parallel()
	e, r := newTestEngine(t, Config{})
	src := "// \\( \\slow \\)\n"

	var wg sync.WaitGroup
	results := make([][]Report, 2)
	for i := range results {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			reports, err := e.Render(context.Background(), []*types.Document{doc("a.go", src)})
			assert.NoError(t, err)
			results[i] = reports
		}()
	}

	select {
	case <-r.started:
	case <-time.After(5 * time.Second):
		t.Fatal("render never started")
	}
	close(r.release)
	wg.Wait()

	assert.Equal(t, int64(1), r.calls.Load(), "the second render waits for the first")
	assert.Equal(t, results[0], results[1])
}

func TestEngineRenderFiles(t *testing.T) {
	t.Parallel()
	dir := createTempDir(t, "engine_test")
	a := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(a, []byte("package a\n\n// \\( e^{i\\pi} \\)\nfunc f() {}\n"), 0o644))

	e, _ := newTestEngine(t, Config{})
	reports, err := e.RenderFiles(context.Background(), []string{a})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, a, reports[0].Filename)
	require.Len(t, reports[0].Results, 1)
	assert.Equal(t, 3, reports[0].Results[0].Span.Start.Line)

	_, err = e.RenderFiles(context.Background(), []string{filepath.Join(dir, "missing.go")})
	assert.Error(t, err)

	sc, err := ReadSourceCode(a)
	require.NoError(t, err)
	assert.Equal(t, "// \\( e^{i\\pi} \\)", sc.Lines[2])
}

func TestEnginePersistentCache(t *testing.T) {
	t.Parallel()
	dir := createTempDir(t, "engine_cache")
	d := doc("a.go", "// \\( x \\)\n")

	c, err := cache.New(dir)
	require.NoError(t, err)
	r := newFakeRenderer()
	e, err := NewEngine(Config{}, r, c, nil)
	require.NoError(t, err)
	_, err = e.Render(context.Background(), []*types.Document{d})
	require.NoError(t, err)
	require.NoError(t, e.Flush())

	reloaded, err := cache.New(dir)
	require.NoError(t, err)
	r2 := newFakeRenderer()
	e2, err := NewEngine(Config{}, r2, reloaded, nil)
	require.NoError(t, err)
	reports, err := e2.Render(context.Background(), []*types.Document{d})
	require.NoError(t, err)
	assert.True(t, reports[0].Results[0].OK())
	assert.Equal(t, int64(0), r2.calls.Load(), "a fresh engine reuses the saved cache")
}

func TestWatcher(t *testing.T) {
	t.Parallel()
	dir := createTempDir(t, "watch_test")
	e, _ := newTestEngine(t, Config{})

	reports := make(chan Report, 8)
	w, err := e.NewWatcher([]string{dir}, func(r Report) { reports <- r })
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	assert.Error(t, w.Start(context.Background()), "a watcher starts once")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("\\( x \\)"), 0o644))
	path := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("// \\( y \\)\n"), 0o644))

	select {
	case r := <-reports:
		assert.Equal(t, path, r.Filename)
		require.Len(t, r.Results, 1)
		assert.True(t, r.Results[0].OK())
	case <-time.After(5 * time.Second):
		t.Fatal("no report after the file changed")
	}

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop(), "stopping twice is harmless")
}

func TestWatcherSettlesBursts(t *testing.T) {
	t.Parallel()
	dir := createTempDir(t, "watch_burst_test")
	e, fake := newTestEngine(t, Config{})

	reports := make(chan Report, 8)
	w, err := e.NewWatcher([]string{dir}, func(r Report) { reports <- r })
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	path := filepath.Join(dir, "a.go")
	contents := []string{
		"// \\( a \\)\n",
		"// \\( a \\) \\( b \\)\n",
		"// \\( a \\) \\( b \\) \\( c \\)\n",
	}
	for _, c := range contents {
		require.NoError(t, os.WriteFile(path, []byte(c), 0o644))
	}

	select {
	case r := <-reports:
		assert.Equal(t, path, r.Filename)
		assert.Len(t, r.Results, 3, "the last write is rendered")
	case <-time.After(5 * time.Second):
		t.Fatal("no report after the file changed")
	}

	select {
	case r := <-reports:
		t.Fatalf("unexpected second report with %d results", len(r.Results))
	case <-time.After(4 * settleDelay):
	}
	assert.Equal(t, int64(1), fake.calls.Load())
	require.NoError(t, w.Stop())
}
