// Package parser turns raw model output into typed stage results.
//
// Every function here is deterministic and side-effect free apart from
// logging extraction failures. Structured parsers return Parsed[T] so
// callers must handle the absent case explicitly.
package parser

// Parsed is either Ok(value) or None. The zero value is None.
type Parsed[T any] struct {
	value T
	ok    bool
}

// Ok wraps an extracted value
func Ok[T any](v T) Parsed[T] {
	return Parsed[T]{value: v, ok: true}
}

// None signals that no structured result could be extracted
func None[T any]() Parsed[T] {
	return Parsed[T]{}
}

// Value returns the wrapped value and whether one was present
func (p Parsed[T]) Value() (T, bool) {
	return p.value, p.ok
}

// IsNone reports whether extraction failed
func (p Parsed[T]) IsNone() bool {
	return !p.ok
}
