package diag

import (
	"stencil/internal/source"
)

type Note struct {
	Span source.Span
	Msg  string
}

// FixEdit is one concrete text edit inside a fix suggestion.
type FixEdit struct {
	Span    source.Span
	NewText string
}

// Fix describes a possible automated correction.
type Fix struct {
	Title string
	Edits []FixEdit
}

// Diagnostic is the central record every phase produces.
type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Primary  source.Span
	Notes    []Note
	Fixes    []Fix
}
