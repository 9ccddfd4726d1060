package internal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gnolang/laic/internal/batch"
	"github.com/gnolang/laic/internal/bind"
	"github.com/gnolang/laic/internal/cache"
	"github.com/gnolang/laic/internal/comment"
	"github.com/gnolang/laic/internal/extract"
	"github.com/gnolang/laic/internal/ignore"
	"github.com/gnolang/laic/internal/lang"
	"github.com/gnolang/laic/internal/render"
	"github.com/gnolang/laic/internal/types"
)

var (
	// ErrUnsupported is returned for files no language profile matches.
	ErrUnsupported = errors.New("no language profile for file")
	// ErrSuperseded is returned by Submit when a newer submission of the
	// same document replaced a pending one.
	ErrSuperseded = errors.New("render superseded by a newer version of the document")
)

// maxClaimAttempts bounds how often a key abandoned by another render is
// claimed again.
const maxClaimAttempts = 3

// LanguageConfig overrides rendering settings for one language.
type LanguageConfig struct {
	DefaultColor string   `yaml:"default_color,omitempty"`
	Packages     []string `yaml:"packages,omitempty"`
	Extensions   []string `yaml:"extensions,omitempty"`
}

// Config holds the engine settings.
type Config struct {
	Render    types.RenderConfig
	Languages map[string]LanguageConfig
	MaxRows   int
	Display   bind.Options
}

// Engine scans documents for comment math and renders it.
type Engine struct {
	logger   *zap.Logger
	profiles *lang.Registry
	cache    *cache.Cache
	compiler *batch.Compiler
	binder   *bind.Binder

	mu      sync.Mutex
	base    types.RenderConfig
	configs map[string]types.RenderConfig // by profile name
	pending map[string]*pendingRender
}

type pendingRender struct {
	cancel context.CancelFunc
}

// Scanned is the scan and extraction output of one document.
type Scanned struct {
	Doc         *types.Document
	Profile     *lang.Profile
	Config      types.RenderConfig
	Fragments   []types.MathFragment
	Diagnostics []error

	// Aborted is set when the document had a malformed comment; it then
	// has no fragments.
	Aborted bool
}

// Report is the bound output of one document.
type Report struct {
	Filename string
	Results  []types.Result
}

// NewEngine creates an engine rendering with r and caching into c.
func NewEngine(cfg Config, r render.Renderer, c *cache.Cache, logger *zap.Logger) (*Engine, error) {
	if r == nil {
		return nil, errors.New("engine: renderer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if c == nil {
		var err error
		if c, err = cache.New(""); err != nil {
			return nil, err
		}
	}
	e := &Engine{
		logger:   logger,
		profiles: lang.Default(),
		cache:    c,
		compiler: batch.NewCompiler(r, cfg.MaxRows, logger.Named("batch")),
		binder:   bind.New(cfg.Display),
		pending:  make(map[string]*pendingRender),
	}
	e.SetConfig(cfg)
	return e, nil
}

// SetConfig replaces the render configuration. Cached artifacts rendered
// under any other configuration are evicted.
func (e *Engine) SetConfig(cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.base = cfg.Render.Normalized()
	e.configs = make(map[string]types.RenderConfig, len(cfg.Languages))
	active := []types.RenderConfig{e.base}
	for name, lc := range cfg.Languages {
		p, ok := e.profiles.Lookup(name)
		if !ok {
			e.logger.Warn("unknown language in config", zap.String("language", name))
			continue
		}
		if len(lc.Extensions) > 0 {
			q := *p
			q.Extensions = append(append([]string(nil), p.Extensions...), lc.Extensions...)
			e.profiles.Register(&q)
		}
		if lc.DefaultColor == "" && len(lc.Packages) == 0 {
			continue
		}
		rc := e.base
		rc.Packages = append(append([]string(nil), e.base.Packages...), lc.Packages...)
		if lc.DefaultColor != "" {
			rc.DefaultColor = lc.DefaultColor
		}
		rc = rc.Normalized()
		e.configs[name] = rc
		active = append(active, rc)
	}
	e.cache.SetConfigs(active...)
}

// ConfigFor returns the render configuration of documents in language p.
func (e *Engine) ConfigFor(p *lang.Profile) types.RenderConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rc, ok := e.configs[p.Name]; ok {
		return rc
	}
	return e.base
}

// Profiles returns the language registry of the engine.
func (e *Engine) Profiles() *lang.Registry { return e.profiles }

// Cache returns the render cache of the engine.
func (e *Engine) Cache() *cache.Cache { return e.cache }

// Invocations returns the number of renderer calls made so far.
func (e *Engine) Invocations() int64 { return e.compiler.Invocations() }

// Scan finds the comment math of doc. Scanning is sequential and
// deterministic: scanning the same text twice yields the same fragments.
func (e *Engine) Scan(doc *types.Document) (*Scanned, error) {
	p, ok := e.profiles.ForFile(doc.Filename)
	if !ok {
		return nil, fmt.Errorf("%s: %w", doc.Filename, ErrUnsupported)
	}
	return e.ScanWith(doc, p), nil
}

// ScanWith is Scan with an explicit language profile.
func (e *Engine) ScanWith(doc *types.Document, p *lang.Profile) *Scanned {
	s := ScanDocument(doc, p)
	s.Config = e.ConfigFor(p)
	if s.Aborted {
		e.logger.Warn("scan aborted", zap.String("file", doc.Filename), zap.Error(s.Diagnostics[0]))
	}
	return s
}

// ScanDocument scans doc as language p and extracts its fragments. Fragments
// and diagnostics covered by a laic:ignore directive are dropped. The
// returned Config is left empty.
func ScanDocument(doc *types.Document, p *lang.Profile) *Scanned {
	s := &Scanned{Doc: doc, Profile: p}

	blocks, err := comment.Scan(doc, p)
	if err != nil {
		s.Diagnostics = []error{err}
		s.Aborted = true
		return s
	}
	frags, diags := extract.Document(doc, blocks)
	s.Fragments, s.Diagnostics = ignore.Parse(blocks).Filter(frags, diags)
	return s
}

type resolved struct {
	art *types.Artifact
	err error
}

// Render scans docs and renders all their fragments in one pass. Fragments
// missing from the cache are batched per render configuration, and the
// configurations are rendered in parallel. The error is non-nil only when
// ctx ends first.
func (e *Engine) Render(ctx context.Context, docs []*types.Document) ([]Report, error) {
	start := time.Now()

	reports := make([]Report, len(docs))
	scans := make([]*Scanned, len(docs))
	for i, doc := range docs {
		reports[i].Filename = doc.Filename
		s, err := e.Scan(doc)
		if err != nil {
			reports[i].Results = []types.Result{{Span: types.SourceSpan{Filename: doc.Filename}, Err: err}}
			continue
		}
		scans[i] = s
	}

	keys := make(map[string]types.CacheKey)
	frags := make(map[types.CacheKey]*types.MathFragment)
	configs := make(map[types.CacheKey]types.RenderConfig)
	var order []types.CacheKey
	for _, s := range scans {
		if s == nil {
			continue
		}
		for i := range s.Fragments {
			f := &s.Fragments[i]
			k := cache.Key(f, s.Config)
			keys[f.ID] = k
			if _, seen := frags[k]; !seen {
				frags[k] = f
				configs[k] = s.Config
				order = append(order, k)
			}
		}
	}

	done, err := e.resolve(ctx, order, frags, configs)
	if err != nil {
		return nil, err
	}

	var total, failed int
	for i, s := range scans {
		if s == nil {
			continue
		}
		results := make([]types.Result, 0, len(s.Fragments)+len(s.Diagnostics))
		for _, d := range s.Diagnostics {
			results = append(results, e.binder.BindError(d))
		}
		for j := range s.Fragments {
			f := &s.Fragments[j]
			k := keys[f.ID]
			r := done[k]
			if r.err != nil {
				var re *types.RenderError
				if errors.As(r.err, &re) && re.FragmentID != f.ID {
					// the key was rendered for an identical fragment elsewhere
					r.err = &types.RenderError{FragmentID: f.ID, Span: f.Span, Message: re.Message}
				}
			}
			res := e.binder.Bind(f, k, r.art, r.err)
			if !res.OK() {
				failed++
			}
			results = append(results, res)
		}
		total += len(s.Fragments)
		bind.Sort(results)
		reports[i].Results = results
	}

	stats := e.cache.Stats()
	e.logger.Info("render pass finished",
		zap.Int("documents", len(docs)),
		zap.Int("fragments", total),
		zap.Int("failed", failed),
		zap.Int("cache_hits", stats.Hits),
		zap.Int("cache_misses", stats.Misses),
		zap.Int64("renderer_calls", e.compiler.Invocations()),
		zap.Duration("elapsed", time.Since(start)))
	return reports, nil
}

// resolve obtains an artifact or error for every key, rendering the keys it
// owns and waiting for keys other renders own.
func (e *Engine) resolve(
	ctx context.Context,
	pending []types.CacheKey,
	frags map[types.CacheKey]*types.MathFragment,
	configs map[types.CacheKey]types.RenderConfig,
) (map[types.CacheKey]resolved, error) {
	done := make(map[types.CacheKey]resolved, len(pending))

	for attempt := 1; len(pending) > 0; attempt++ {
		claim := e.cache.Claim(pending)
		for k, art := range claim.Hits {
			done[k] = resolved{art: art}
		}

		rendered, err := e.renderOwned(ctx, claim.Owned, frags, configs)
		for k, r := range rendered {
			done[k] = r
		}
		if err != nil {
			return nil, err
		}

		var retry []types.CacheKey
		for k, call := range claim.Waiting {
			art, err := call.Wait(ctx)
			switch {
			case errors.Is(err, cache.ErrAbandoned) && attempt < maxClaimAttempts:
				retry = append(retry, k)
			case ctx.Err() != nil:
				return nil, ctx.Err()
			default:
				done[k] = resolved{art: art, err: err}
			}
		}
		pending = retry
	}
	return done, nil
}

// renderOwned renders claimed keys grouped by configuration. Every owned
// key is completed or abandoned before it returns.
func (e *Engine) renderOwned(
	ctx context.Context,
	owned []types.CacheKey,
	frags map[types.CacheKey]*types.MathFragment,
	configs map[types.CacheKey]types.RenderConfig,
) (map[types.CacheKey]resolved, error) {
	if len(owned) == 0 {
		return nil, nil
	}

	type group struct {
		cfg   types.RenderConfig
		keys  []types.CacheKey
		frags []*types.MathFragment
	}
	groups := make(map[string]*group)
	var fps []string
	for _, k := range owned {
		cfg := configs[k]
		fp := cfg.Fingerprint()
		g, ok := groups[fp]
		if !ok {
			g = &group{cfg: cfg}
			groups[fp] = g
			fps = append(fps, fp)
		}
		g.keys = append(g.keys, k)
		g.frags = append(g.frags, frags[k])
	}

	var (
		mu  sync.Mutex
		out = make(map[types.CacheKey]resolved, len(owned))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, fp := range fps {
		grp := groups[fp]
		g.Go(func() error {
			outcome, err := e.compiler.Compile(gctx, grp.cfg, grp.frags)

			mu.Lock()
			defer mu.Unlock()
			for i, k := range grp.keys {
				id := grp.frags[i].ID
				if art, ok := outcome.Artifacts[id]; ok {
					out[k] = resolved{art: e.cache.Complete(k, art, nil)}
				} else if rerr, ok := outcome.Errors[id]; ok {
					e.cache.Complete(k, nil, rerr)
					out[k] = resolved{err: rerr}
				} else {
					e.cache.Abandon(k)
				}
			}
			return err
		})
	}
	err := g.Wait()
	return out, err
}

// Submit renders a single document, cancelling any pending render of the
// same file. A superseded call returns ErrSuperseded; artifacts it already
// rendered stay in the cache.
func (e *Engine) Submit(ctx context.Context, doc *types.Document) (*Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mine := &pendingRender{cancel: cancel}
	e.mu.Lock()
	if prev, ok := e.pending[doc.Filename]; ok {
		prev.cancel()
	}
	e.pending[doc.Filename] = mine
	e.mu.Unlock()

	reports, err := e.Render(ctx, []*types.Document{doc})

	e.mu.Lock()
	superseded := e.pending[doc.Filename] != mine
	if !superseded {
		delete(e.pending, doc.Filename)
	}
	e.mu.Unlock()

	if superseded {
		return nil, ErrSuperseded
	}
	if err != nil {
		return nil, err
	}
	return &reports[0], nil
}

// RenderFiles reads and renders the named files in one pass.
func (e *Engine) RenderFiles(ctx context.Context, filenames []string) ([]Report, error) {
	docs := make([]*types.Document, 0, len(filenames))
	for _, name := range filenames {
		doc, err := ReadDocument(name)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return e.Render(ctx, docs)
}

// Flush persists the cache, when it has a directory.
func (e *Engine) Flush() error {
	return e.cache.Save()
}

// ReadDocument reads a source file.
func ReadDocument(filename string) (*types.Document, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", filename, err)
	}
	return types.NewDocument(filename, string(content)), nil
}

// SourceCode stores the content of a source code file.
type SourceCode struct {
	Lines []string
}

// ReadSourceCode reads the content of a file and returns it as a `SourceCode` struct.
func ReadSourceCode(filename string) (*SourceCode, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(content), "\n")
	return &SourceCode{Lines: lines}, nil
}
