// Package errors defines the error taxonomy shared by all credhub
// subsystems. Store operations, resolution and the CLI agree on these
// kinds so callers can branch on failure class without string matching.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a credhub failure.
type Kind int

const (
	// Unauthorised means the principal lacks a required permission.
	Unauthorised Kind = iota
	// UnsupportedOp means the store implementation does not support the operation.
	UnsupportedOp
	// Conflict means a name/id collision on insert, or a lost update.
	Conflict
	// NotFound means the target domain or credential does not exist.
	NotFound
	// InvalidArgument means a malformed id, domain name or specification.
	InvalidArgument
	// Cancelled means the caller cancelled the operation.
	Cancelled
	// IO means a persistence failure.
	IO
	// OptionalDependencyMissing means a provider could not be loaded;
	// multi-provider iteration logs and skips these.
	OptionalDependencyMissing
)

var kindNames = map[Kind]string{
	Unauthorised:              "unauthorised",
	UnsupportedOp:             "unsupported operation",
	Conflict:                  "conflict",
	NotFound:                  "not found",
	InvalidArgument:           "invalid argument",
	Cancelled:                 "cancelled",
	IO:                        "io",
	OptionalDependencyMissing: "optional dependency missing",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified credhub error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, e.Kind.String())
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match any error of the same kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// New creates a classified error.
func New(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error. Returns nil when err is nil.
func Wrap(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// IsKind reports whether err (or anything it wraps) carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or ok=false for unclassified errors.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Unauthorisedf builds an Unauthorised error.
func Unauthorisedf(format string, args ...interface{}) error {
	return New(Unauthorised, format, args...)
}

// Unsupportedf builds an UnsupportedOp error.
func Unsupportedf(format string, args ...interface{}) error {
	return New(UnsupportedOp, format, args...)
}

// Conflictf builds a Conflict error.
func Conflictf(format string, args ...interface{}) error {
	return New(Conflict, format, args...)
}

// NotFoundf builds a NotFound error.
func NotFoundf(format string, args ...interface{}) error {
	return New(NotFound, format, args...)
}

// Invalidf builds an InvalidArgument error.
func Invalidf(format string, args ...interface{}) error {
	return New(InvalidArgument, format, args...)
}

// UserError represents an error that should be shown to the user with
// helpful context. The CLI prints Message and Suggestion; Err is kept for
// errors.Is / errors.As chains.
type UserError struct {
	Message    string
	Suggestion string
	Err        error
}

func (e UserError) Error() string {
	var parts []string
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	if e.Suggestion != "" {
		parts = append(parts, "\n  Try: "+e.Suggestion)
	}
	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}
