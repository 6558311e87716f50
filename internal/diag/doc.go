// Package diag defines the diagnostic model shared by all build phases.
//
// # Purpose
//
//   - Provide deterministic, serialisable data structures that capture findings
//     produced by manifest loading, axis parsing, template expansion and the
//     build graph.
//   - Offer light-weight utilities (Reporter, Bag) that let producers emit
//     diagnostics without coupling to concrete storage or formatting layers.
//
// # Scope
//
// Package diag does not perform any formatting, IO, CLI integration, or
// interactive behaviour. Rendering responsibilities live in internal/diagfmt,
// orchestration lives in internal/buildpipeline and the CLI layer.
//
// # Data model
//
// Diagnostic is the central record. It contains:
//
//   - Severity – tri-level enum (Info, Warning, Error) defined in severity.go.
//   - Code – compact numeric identifier (see codes.go) with stable string form.
//     Codes are banded per producer: CFG for the manifest, AXS for axis
//     declarations, TPL for templates, GEN for file generation, GRF for the
//     build graph, TLC for the external toolchain.
//   - Message – human oriented text; keep it short and actionable.
//   - Primary span – the canonical source.Span pointing to the issue.
//   - Notes – optional secondary spans/messages for additional context.
//   - Fixes – optional Fix records describing how to address the problem.
//
// Notes should be used sparingly: each note must add new context (e.g. "first
// declared here") rather than repeating the diagnostic message.
//
// # Emitting diagnostics
//
// Phases should use a diag.Reporter to decouple emission from storage. A phase
// constructs a ReportBuilder via NewReportBuilder (or the helper functions
// ReportError/ReportWarning/ReportInfo) and chains WithNote / WithFix before
// calling Emit. When no additional metadata is needed, phases may call
// Reporter.Report(...) directly. diag.BagReporter aggregates diagnostics into
// a Bag, which supports sorting, deduplication and merging.
//
// Every generator error is fatal for the enclosing build step: producers
// report it and return, callers never retry past an error-bearing Bag.
package diag
