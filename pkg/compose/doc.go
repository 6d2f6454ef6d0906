// Package compose maps raw docker compose CLI output onto the domain model.
//
// Everything in this package is a pure function: JSON in, structs out, no
// I/O. CLI output is first decoded into narrow Raw* intermediates so that
// format drift between compose versions stays isolated from the rest of the
// engine, then mapped onto the closed state enum and per-verb action gating.
package compose
