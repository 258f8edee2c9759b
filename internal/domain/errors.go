package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the relay service. Adapters and usecases wrap these
// with DomainError so callers can match with errors.Is while handlers map
// them to HTTP status codes.
var (
	ErrUpstream     = errors.New("upstream service error")
	ErrAuthInvalid  = errors.New("authentication invalid")
	ErrNotFound     = errors.New("not found")
	ErrTimeout      = errors.New("operation timed out")
	ErrInvalidInput = errors.New("invalid input")
	ErrConfigLoad   = errors.New("configuration load failed")
	ErrRateLimit    = errors.New("rate limited")
)

// DomainError carries the operation name and optional detail alongside the
// sentinel. Detail is for logs only and must never reach response bodies.
type DomainError struct {
	Op     string
	Err    error
	Detail string
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError builds a DomainError with a formatted detail string.
func NewDomainError(op string, err error, format string, args ...any) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: fmt.Sprintf(format, args...)}
}

// WrapOp annotates err with an operation name, preserving the error chain.
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DomainError{Op: op, Err: err}
}
