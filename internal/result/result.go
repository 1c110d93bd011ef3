// Package result provides the value/error accumulation pattern used across
// every pipeline stage: a stage never panics or returns a bare error, it
// returns a value plus an ordered list of warnings and an ordered list of
// accumulated errors, and the caller decides whether to continue.
package result

import "strings"

// Error is a single taxonomy-coded failure, e.g. "model.load.failed".
// Code follows the "<area>.<subject>.<cause>" convention from spec §7.
type Error struct {
	Code    string
	Message string
	Context map[string]string
}

func (e Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// New creates an Error with no context.
func New(code, message string) Error {
	return Error{Code: code, Message: message}
}

// Withf creates an Error with a single context key.
func Withf(code, message, ctxKey, ctxVal string) Error {
	return Error{Code: code, Message: message, Context: map[string]string{ctxKey: ctxVal}}
}

// Errors is an ordered, accumulated list of Error values.
type Errors []Error

func (es Errors) Error() string {
	parts := make([]string, 0, len(es))
	for _, e := range es {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "; ")
}

// HasAny reports whether any error has been accumulated.
func (es Errors) HasAny() bool { return len(es) > 0 }

// Codes returns the ordered list of error codes, for tests asserting shape.
func (es Errors) Codes() []string {
	codes := make([]string, 0, len(es))
	for _, e := range es {
		codes = append(codes, e.Code)
	}
	return codes
}

// Of is the generic success/failure envelope every stage returns.
type Of[T any] struct {
	Value    T
	Warnings []string
	Errors   Errors
}

// Ok wraps a successful value with no warnings.
func Ok[T any](v T) Of[T] {
	return Of[T]{Value: v}
}

// OkWithWarnings wraps a successful value with accumulated warnings.
func OkWithWarnings[T any](v T, warnings []string) Of[T] {
	return Of[T]{Value: v, Warnings: warnings}
}

// Fail wraps a zero value with one or more accumulated errors.
func Fail[T any](errs ...Error) Of[T] {
	var zero T
	return Of[T]{Value: zero, Errors: errs}
}

// FailWith wraps the given partial value with accumulated errors — useful
// when a stage wants to report both the best-effort value and the failures.
func FailWith[T any](v T, errs ...Error) Of[T] {
	return Of[T]{Value: v, Errors: errs}
}

// Failed reports whether this result carries at least one error.
func (o Of[T]) Failed() bool { return o.Errors.HasAny() }

// AddWarning appends a warning and returns the updated value (Of is a plain
// struct, so callers that want to keep mutating should reassign).
func (o Of[T]) AddWarning(w string) Of[T] {
	o.Warnings = append(o.Warnings, w)
	return o
}

// AddError appends an error and returns the updated value.
func (o Of[T]) AddError(e Error) Of[T] {
	o.Errors = append(o.Errors, e)
	return o
}
