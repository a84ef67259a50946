// Package kaitkerr implements the daemon's closed error taxonomy: every
// failure path in the pipeline classifies into exactly one of Transient,
// BadInput, Invariant, or Fatal, replacing exception-as-control-flow with
// an explicit, inspectable result.
package kaitkerr

import (
	"errors"
	"fmt"
)

// Class is one of the four closed error categories.
type Class int

const (
	// ClassTransient errors should be retried locally with backoff, then degrade.
	ClassTransient Class = iota
	// ClassBadInput errors should be rejected, never retried.
	ClassBadInput
	// ClassInvariant errors should be logged, the offending item quarantined,
	// and the process kept running.
	ClassInvariant
	// ClassFatal errors terminate the process with a non-zero exit code.
	ClassFatal
)

// String renders the class name used in structured log fields.
func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassBadInput:
		return "bad_input"
	case ClassInvariant:
		return "invariant"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a classified error. It wraps an underlying cause and carries a
// Component name for log correlation.
type Error struct {
	Class     Class
	Component string
	Op        string
	Err       error
}

func (e *Error) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("%s: %s: [%s] %v", e.Component, e.Op, e.Class, e.Err)
	}
	return fmt.Sprintf("%s: [%s] %v", e.Op, e.Class, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a classified Error.
func New(class Class, component, op string, err error) *Error {
	return &Error{Class: class, Component: component, Op: op, Err: err}
}

// Transient wraps err as a retryable, then-degrade error.
func Transient(component, op string, err error) *Error {
	return New(ClassTransient, component, op, err)
}

// BadInput wraps err as a rejected, non-retried error.
func BadInput(component, op string, err error) *Error {
	return New(ClassBadInput, component, op, err)
}

// Invariant wraps err as a quarantine-and-continue error.
func Invariant(component, op string, err error) *Error {
	return New(ClassInvariant, component, op, err)
}

// Fatal wraps err as a process-terminating error.
func Fatal(component, op string, err error) *Error {
	return New(ClassFatal, component, op, err)
}

// ClassOf extracts the Class from err, if it (or something it wraps) is a
// *Error. Unclassified errors are reported as ClassInvariant, the
// conservative choice: log and quarantine rather than silently retry or
// silently terminate.
func ClassOf(err error) Class {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Class
	}
	return ClassInvariant
}

// IsTransient reports whether err classifies as Transient.
func IsTransient(err error) bool { return ClassOf(err) == ClassTransient }

// IsBadInput reports whether err classifies as BadInput.
func IsBadInput(err error) bool { return ClassOf(err) == ClassBadInput }

// IsInvariant reports whether err classifies as Invariant.
func IsInvariant(err error) bool { return ClassOf(err) == ClassInvariant }

// IsFatal reports whether err classifies as Fatal.
func IsFatal(err error) bool { return ClassOf(err) == ClassFatal }
