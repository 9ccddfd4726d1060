// Package internal provides the render engine behind laic.
//
// The engine turns source documents into rendered comment math in four
// steps:
//
// Scan: the comment package finds the comments of a document using the
// language profile matched by its extension. Consecutive line comments
// merge into one block.
//
// Extract: the extract package finds the math fragments of every block,
// reports nested and unbalanced math, and resolves \color annotations.
// Fragments covered by a laic:ignore directive are dropped.
//
// Render: fragments are keyed by their content and render configuration.
// Keys missing from the cache are claimed, grouped by configuration and
// compiled in batches by the batch package, one renderer invocation per
// batch. A failing batch is bisected until the broken fragments are found.
//
// Bind: every fragment gets back the artifact or error of its key,
// optionally scaled to fit the display width.
//
// Usage:
//
//	engine, err := internal.NewEngine(cfg, renderer, nil, logger)
//	if err != nil {
//	    // handle error
//	}
//
//	reports, err := engine.Render(ctx, docs)
//	if err != nil {
//	    // ctx ended
//	}
//
//	for _, r := range reports {
//	    for _, res := range r.Results {
//	        fmt.Println(res.FragmentID, res.OK())
//	    }
//	}
//
// This package is intended for internal use within laic and should not be
// imported by external packages.
package internal
