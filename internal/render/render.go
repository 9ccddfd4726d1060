// Package render defines the external renderer collaborator and its
// default latex + dvipng implementation.
package render

import (
	"context"
	"fmt"

	"github.com/gnolang/laic/internal/types"
)

// Job is a complete LaTeX document with one output page per row.
type Job struct {
	Document string
	Rows     int
	DPI      int

	// RowLines holds the first and last document line (1-based) of every row.
	RowLines [][2]int
}

// RowAt returns the row that contains document line, or -1.
func (j Job) RowAt(line int) int {
	for i, r := range j.RowLines {
		if line >= r[0] && line <= r[1] {
			return i
		}
	}
	return -1
}

// Renderer typesets a job and returns one artifact per row, in row order.
// A document the engine rejects yields a *Failure.
type Renderer interface {
	Render(ctx context.Context, job Job) ([]types.Artifact, error)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(ctx context.Context, job Job) ([]types.Artifact, error)

func (f RendererFunc) Render(ctx context.Context, job Job) ([]types.Artifact, error) {
	return f(ctx, job)
}

// Failure is a diagnostic from the typesetting engine.
type Failure struct {
	Message string
	Row     int // -1 when the failing row is unknown
	Line    int // document line, 0 when unknown
}

func (f *Failure) Error() string {
	switch {
	case f.Row >= 0:
		return fmt.Sprintf("row %d: %s", f.Row, f.Message)
	case f.Line > 0:
		return fmt.Sprintf("line %d: %s", f.Line, f.Message)
	default:
		return f.Message
	}
}
