package types

import "fmt"

// SpanError is implemented by every error that originates at a source location.
type SpanError interface {
	error
	Location() SourceSpan
}

// MalformedCommentError reports a block comment with no closing delimiter.
type MalformedCommentError struct {
	Span  SourceSpan
	Start string // the block opener, e.g. "/*"
}

func (e *MalformedCommentError) Error() string {
	return fmt.Sprintf("%s: unterminated block comment %q", e.Span.Start, e.Start)
}

func (e *MalformedCommentError) Location() SourceSpan { return e.Span }

// NestedMathError reports a math delimiter opened inside another fragment.
type NestedMathError struct {
	Span  SourceSpan // the enclosing fragment
	Outer DelimKind
	Inner string // the offending opener
}

func (e *NestedMathError) Error() string {
	return fmt.Sprintf("%s: nested %s inside %s math", e.Span.Start, e.Inner, e.Outer)
}

func (e *NestedMathError) Location() SourceSpan { return e.Span }

// UnbalancedMathError reports a math opener with no matching closer in its comment.
type UnbalancedMathError struct {
	Span SourceSpan
	Kind DelimKind
	Open string
}

func (e *UnbalancedMathError) Error() string {
	return fmt.Sprintf("%s: %s has no matching close delimiter", e.Span.Start, e.Open)
}

func (e *UnbalancedMathError) Location() SourceSpan { return e.Span }

// RenderError reports a fragment the external renderer rejected in isolation.
type RenderError struct {
	FragmentID string
	Span       SourceSpan
	Message    string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("%s: render failed for %s: %s", e.Span.Start, e.FragmentID, e.Message)
}

func (e *RenderError) Location() SourceSpan { return e.Span }
