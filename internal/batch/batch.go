// Package batch renders many fragments per external renderer invocation.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/gnolang/laic/internal/render"
	"github.com/gnolang/laic/internal/types"
)

// DefaultMaxRows limits the fragments of a single batch.
const DefaultMaxRows = 64

// Outcome holds compile results keyed by fragment id.
type Outcome struct {
	Artifacts map[string]*types.Artifact
	Errors    map[string]error
}

func newOutcome() *Outcome {
	return &Outcome{
		Artifacts: make(map[string]*types.Artifact),
		Errors:    make(map[string]error),
	}
}

// Compiler groups fragments into batches and renders them.
type Compiler struct {
	renderer render.Renderer
	maxRows  int
	logger   *zap.Logger

	batches     atomic.Int64
	invocations atomic.Int64
}

// NewCompiler returns a compiler that renders with r. maxRows <= 0 selects
// DefaultMaxRows.
func NewCompiler(r render.Renderer, maxRows int, logger *zap.Logger) *Compiler {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compiler{renderer: r, maxRows: maxRows, logger: logger}
}

// Invocations returns how many times the renderer has been called.
func (c *Compiler) Invocations() int64 { return c.invocations.Load() }

// Compile renders frags, which must share cfg. Fragments are split into
// batches of at most maxRows. When a batch fails, it is bisected until the
// fragments that fail on their own are found; those get a
// *types.RenderError and every other fragment still renders.
//
// The returned error is non-nil only when ctx ends; the outcome then holds
// whatever completed before.
func (c *Compiler) Compile(ctx context.Context, cfg types.RenderConfig, frags []*types.MathFragment) (*Outcome, error) {
	out := newOutcome()
	for start := 0; start < len(frags); start += c.maxRows {
		end := min(start+c.maxRows, len(frags))
		if err := c.compile(ctx, cfg, frags[start:end], out); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (c *Compiler) compile(ctx context.Context, cfg types.RenderConfig, frags []*types.MathFragment, out *Outcome) error {
	if len(frags) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b := Build(int(c.batches.Add(1)), cfg, frags)
	c.invocations.Add(1)
	arts, err := c.renderer.Render(ctx, b.Job())
	if err == nil && len(arts) == len(frags) {
		for i, f := range frags {
			art := arts[i]
			out.Artifacts[f.ID] = &art
		}
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var fail *render.Failure
	switch {
	case err == nil:
		fail = &render.Failure{
			Message: fmt.Sprintf("renderer returned %d artifacts for %d rows", len(arts), len(frags)),
			Row:     -1,
		}
	case !errors.As(err, &fail):
		// not a document problem; retrying smaller batches cannot help
		c.logger.Error("renderer failed", zap.Int("batch", b.Index), zap.Error(err))
		for _, f := range frags {
			out.Errors[f.ID] = &types.RenderError{FragmentID: f.ID, Span: f.Span, Message: err.Error()}
		}
		return nil
	}

	if len(frags) == 1 {
		f := frags[0]
		c.logger.Debug("fragment failed in isolation", zap.String("fragment", f.ID), zap.String("message", fail.Message))
		out.Errors[f.ID] = &types.RenderError{FragmentID: f.ID, Span: f.Span, Message: fail.Message}
		return nil
	}

	c.logger.Warn("batch failed, bisecting",
		zap.Int("batch", b.Index),
		zap.Int("rows", len(frags)),
		zap.Int("row", fail.Row),
		zap.String("message", fail.Message))

	if row := fail.Row; row >= 0 && row < len(frags) {
		rest := make([]*types.MathFragment, 0, len(frags)-1)
		rest = append(rest, frags[:row]...)
		rest = append(rest, frags[row+1:]...)
		if err := c.compile(ctx, cfg, frags[row:row+1], out); err != nil {
			return err
		}
		return c.compile(ctx, cfg, rest, out)
	}

	mid := len(frags) / 2
	if err := c.compile(ctx, cfg, frags[:mid], out); err != nil {
		return err
	}
	return c.compile(ctx, cfg, frags[mid:], out)
}
