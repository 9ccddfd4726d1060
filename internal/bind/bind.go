// Package bind associates rendered artifacts with their source locations.
package bind

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sort"

	"golang.org/x/image/draw"

	"github.com/gnolang/laic/internal/types"
)

// Options controls how artifacts are prepared for display.
type Options struct {
	// MaxWidth downscales wider artifacts, in pixels. Zero disables it.
	MaxWidth int `yaml:"max_width"`
}

// Binder produces display results.
type Binder struct {
	opts Options
}

func New(opts Options) *Binder {
	return &Binder{opts: opts}
}

// Bind pairs f with its artifact or error. The artifact is never modified;
// when it has to be fitted, the result holds a scaled copy.
func (b *Binder) Bind(f *types.MathFragment, key types.CacheKey, art *types.Artifact, err error) types.Result {
	res := types.Result{
		FragmentID: f.ID,
		Span:       f.Span,
		Kind:       f.Kind,
		Key:        key,
	}
	if err != nil {
		res.Err = err
		return res
	}
	if art == nil {
		res.Err = &types.RenderError{FragmentID: f.ID, Span: f.Span, Message: "no artifact"}
		return res
	}
	if b.opts.MaxWidth > 0 && art.Width > b.opts.MaxWidth {
		fitted, ferr := Fit(art, b.opts.MaxWidth)
		if ferr != nil {
			res.Err = &types.RenderError{FragmentID: f.ID, Span: f.Span, Message: ferr.Error()}
			return res
		}
		art = fitted
	}
	res.Artifact = art
	return res
}

// BindError turns a scan or extraction error into a result at its location.
func (b *Binder) BindError(err error) types.Result {
	res := types.Result{Err: err}
	var se types.SpanError
	if errors.As(err, &se) {
		res.Span = se.Location()
	}
	return res
}

// Sort orders results by source position.
func Sort(results []types.Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i].Span, results[j].Span
		if a.Filename != b.Filename {
			return a.Filename < b.Filename
		}
		return a.Start.Offset < b.Start.Offset
	})
}

// Fit scales art down to maxWidth pixels, keeping its aspect ratio.
func Fit(art *types.Artifact, maxWidth int) (*types.Artifact, error) {
	if art.Width <= maxWidth {
		return art, nil
	}
	src, err := png.Decode(bytes.NewReader(art.PNG))
	if err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}

	height := max(1, art.Height*maxWidth/art.Width)
	dst := image.NewNRGBA(image.Rect(0, 0, maxWidth, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("failed to encode artifact: %w", err)
	}
	return &types.Artifact{
		PNG:    buf.Bytes(),
		Width:  maxWidth,
		Height: height,
		Depth:  art.Depth * maxWidth / art.Width,
	}, nil
}
