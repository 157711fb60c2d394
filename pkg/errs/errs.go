// Package errs defines the closed set of error kinds the replication
// core can surface, per the task's error handling design: Config,
// Connection, Schema, Decode, Query, Consistency, and Shutdown.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an Error so callers (the orchestrator, tests) can
// branch on propagation policy without string matching.
type Kind int

const (
	// Unknown is the zero value and names no error kind of its own.
	Unknown Kind = iota
	Config
	Connection
	Schema
	Decode
	Query
	Consistency
	Shutdown
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "config"
	case Connection:
		return "connection"
	case Schema:
		return "schema"
	case Decode:
		return "decode"
	case Query:
		return "query"
	case Consistency:
		return "consistency"
	case Shutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a Kind so it can be inspected
// with errors.As without losing the original cause.
type Error struct {
	Kind Kind
	Op   string // component/operation that raised it, e.g. "cdc_mysql.decodeRow"
	err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.err)
}

func (e *Error) Unwrap() error { return e.err }

// New wraps err with kind and an operation label. Returns nil if err is nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, err: err}
}

// Newf is New with fmt.Errorf-style formatting for the underlying cause.
func Newf(kind Kind, op string, format string, args ...any) error {
	return New(kind, op, fmt.Errorf(format, args...))
}

// Is reports whether err (or something it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// ErrShutdown is returned by blocking operations when the shutdown flag
// is observed instead of the operation completing normally.
var ErrShutdown = New(Shutdown, "", errors.New("task shutting down"))
