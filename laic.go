// Package laic renders the LaTeX math written in source code comments.
//
// Extract lists the math fragments of one source file without rendering
// anything. New builds an Engine that renders fragments to PNG images
// through a Renderer, caching every image by content:
//
//	frags, diags, err := laic.Extract("solver.c", src)
//
//	engine, err := laic.New(laic.Config{}, laic.LaTeX(laic.LaTeXOptions{}), logger)
//	reports, err := engine.Render(ctx, docs)
package laic

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/gnolang/laic/internal"
	"github.com/gnolang/laic/internal/lang"
	"github.com/gnolang/laic/internal/render"
	"github.com/gnolang/laic/internal/types"
)

type (
	Document     = types.Document
	Fragment     = types.MathFragment
	Artifact     = types.Artifact
	Result       = types.Result
	RenderConfig = types.RenderConfig

	Engine  = internal.Engine
	Config  = internal.Config
	Report  = internal.Report
	Scanned = internal.Scanned

	Renderer     = render.Renderer
	RendererFunc = render.RendererFunc
	Job          = render.Job
	LaTeXOptions = render.Options
)

// ErrUnsupported is returned for files whose comment syntax is unknown.
var ErrUnsupported = internal.ErrUnsupported

// NewDocument returns a document holding text.
func NewDocument(filename, text string) *Document {
	return types.NewDocument(filename, text)
}

// Extract returns the math fragments of src and the diagnostics of the
// math that could not be extracted. The comment syntax is chosen by the
// extension of filename.
func Extract(filename, src string) ([]Fragment, []error, error) {
	p, ok := lang.Default().ForFile(filename)
	if !ok {
		return nil, nil, fmt.Errorf("%s: %w", filename, ErrUnsupported)
	}
	s := internal.ScanDocument(types.NewDocument(filename, src), p)
	return s.Fragments, s.Diagnostics, nil
}

// LaTeX returns a renderer running latex and dvipng.
func LaTeX(opts LaTeXOptions) Renderer {
	return render.NewLaTeX(opts, nil)
}

// New returns an engine rendering with r and caching in memory.
func New(cfg Config, r Renderer, logger *zap.Logger) (*Engine, error) {
	return internal.NewEngine(cfg, r, nil, logger)
}
