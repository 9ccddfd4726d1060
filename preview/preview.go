// Package preview wires configuration, file discovery and the engine
// together for the command line.
package preview

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/creachadair/mds/mapset"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/gnolang/laic/internal"
	"github.com/gnolang/laic/internal/cache"
	"github.com/gnolang/laic/internal/lang"
	"github.com/gnolang/laic/internal/render"
	"github.com/gnolang/laic/internal/types"
	"github.com/gnolang/laic/scanner"
)

type PreviewEngine interface {
	Scan(doc *types.Document) (*internal.Scanned, error)
	Render(ctx context.Context, docs []*types.Document) ([]internal.Report, error)
	Profiles() *lang.Registry
}

// New loads the configuration at configurationPath and builds an engine
// rendering with latex and dvipng.
func New(configurationPath string, logger *zap.Logger) (*internal.Engine, Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config, err := LoadConfig(configurationPath)
	if err != nil {
		return nil, config, err
	}
	r := render.NewLaTeX(config.Renderer, logger.Named("render"))
	engine, err := NewWithRenderer(config, r, logger)
	return engine, config, err
}

// NewWithRenderer builds an engine for config that renders with r.
func NewWithRenderer(config Config, r render.Renderer, logger *zap.Logger) (*internal.Engine, error) {
	dir := ""
	if config.Cache.Persist {
		dir = config.Cache.Dir
	}
	c, err := cache.New(dir)
	if err != nil {
		return nil, err
	}
	if config.Cache.MaxAge > 0 {
		c.SetMaxAge(config.Cache.MaxAge)
	}
	return internal.NewEngine(config.EngineConfig(), r, c, logger)
}

// Options controls file processing.
type Options struct {
	// Progress, when set, receives a progress bar for directory walks.
	Progress io.Writer
	// Exclude holds path patterns skipped in directory walks.
	Exclude []string
}

// ProcessFiles renders every supported file under paths. All files share
// one engine render pass, so fragments are batched across files and paths.
func ProcessFiles(
	ctx context.Context,
	logger *zap.Logger,
	engine PreviewEngine,
	paths []string,
	opts Options,
) ([]internal.Report, error) {
	files, err := discoverAll(engine.Profiles(), paths, opts.Exclude)
	if err != nil {
		logger.Error("Error discovering files", zap.Strings("paths", paths), zap.Error(err))
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}

	var bar *progressbar.ProgressBar
	if opts.Progress != nil && len(files) > 1 {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetWriter(opts.Progress),
			progressbar.OptionSetDescription("reading"),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}))
		defer fmt.Fprintln(opts.Progress)
	}

	var reports []internal.Report
	docs := make([]*types.Document, 0, len(files))
	for _, f := range files {
		doc, err := internal.ReadDocument(f)
		if bar != nil {
			_ = bar.Add(1)
		}
		if err != nil {
			logger.Error("Error reading file", zap.String("file", f), zap.Error(err))
			reports = append(reports, internal.Report{
				Filename: f,
				Results:  []types.Result{{Span: types.SourceSpan{Filename: f}, Err: err}},
			})
			continue
		}
		docs = append(docs, doc)
	}

	rendered, err := engine.Render(ctx, docs)
	if err != nil {
		return nil, err
	}
	return append(reports, rendered...), nil
}

// discoverAll runs Discover over paths in order. A file reached through
// more than one path is listed once.
func discoverAll(reg *lang.Registry, paths, exclude []string) ([]string, error) {
	seen := mapset.New[string]()
	var files []string
	for _, path := range paths {
		found, err := Discover(reg, path, exclude...)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			key := filepath.Clean(f)
			if seen.Has(key) {
				continue
			}
			seen.Add(key)
			files = append(files, f)
		}
	}
	return files, nil
}

// ExtractFiles scans every supported file under paths without rendering.
func ExtractFiles(logger *zap.Logger, engine PreviewEngine, paths []string, exclude ...string) ([]*internal.Scanned, error) {
	files, err := discoverAll(engine.Profiles(), paths, exclude)
	if err != nil {
		return nil, err
	}
	var all []*internal.Scanned
	for _, f := range files {
		doc, err := internal.ReadDocument(f)
		if err != nil {
			return nil, err
		}
		s, err := engine.Scan(doc)
		if err != nil {
			logger.Warn("Skipping file", zap.String("file", f), zap.Error(err))
			continue
		}
		all = append(all, s)
	}
	return all, nil
}

// Discover lists the files at path a profile of reg can scan, skipping
// the exclude patterns. A file named directly is returned even when its
// extension is unknown, so the engine reports it.
func Discover(reg *lang.Registry, path string, exclude ...string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error accessing %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	found, err := scanner.New(path, reg.Extensions()...).Exclude(exclude...).Scan()
	if err != nil {
		return nil, fmt.Errorf("error walking %s: %w", path, err)
	}
	files := make([]string, len(found))
	for i, f := range found {
		files[i] = f.Path
	}
	return files, nil
}
