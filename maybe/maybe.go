// Package maybe provides a small success-or-failure carrier for reporting
// the outcome of a fallible operation as a value, without propagating the
// error to the caller.
package maybe

import "fmt"

// Maybe holds either the result of an operation or the error that
// prevented it.
type Maybe[T any] struct {
	value T
	err   error
}

// Ok returns a successful Maybe carrying v.
func Ok[T any](v T) Maybe[T] {
	return Maybe[T]{value: v}
}

// Fault returns a failed Maybe carrying err.
func Fault[T any](err error) Maybe[T] {
	return Maybe[T]{err: err}
}

// Wrap converts a conventional (value, error) pair into a Maybe.
func Wrap[T any](v T, err error) Maybe[T] {
	if err != nil {
		return Fault[T](err)
	}
	return Ok(v)
}

// IsOK reports whether the operation succeeded.
func (m Maybe[T]) IsOK() bool {
	return m.err == nil
}

// Value returns the carried value, or the zero value on failure.
func (m Maybe[T]) Value() T {
	return m.value
}

// Err returns the carried error, or nil on success.
func (m Maybe[T]) Err() error {
	return m.err
}

// WithDefault returns the carried value, or d on failure.
func (m Maybe[T]) WithDefault(d T) T {
	if !m.IsOK() {
		return d
	}
	return m.value
}

// Get converts the Maybe back into a conventional (value, error) pair.
func (m Maybe[T]) Get() (T, error) {
	return m.value, m.err
}

// String describes the outcome, for logs and debugging.
func (m Maybe[T]) String() string {
	if !m.IsOK() {
		return fmt.Sprintf("Fault(%v)", m.err)
	}
	return fmt.Sprintf("Ok(%v)", m.value)
}
