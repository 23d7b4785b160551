// Package apierrors carries HTTP-status-aware errors across component
// boundaries so the gateway frontend can map them to a surface-correct
// envelope without parsing error strings.
package apierrors

import (
	"fmt"
	"time"
)

// StatusError is an error that carries the HTTP status it should be
// reported with, along with optional upstream context.
type StatusError struct {
	Code       int
	Message    string
	RawBody    []byte
	IsUpstream bool
	RetryAfter *time.Duration
}

func (e *StatusError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Message)
}

// New builds a StatusError with no upstream context.
func New(code int, message string) *StatusError {
	return &StatusError{Code: code, Message: message}
}

// Upstream builds a StatusError that originated from the antigravity
// backend, preserving its raw body for message extraction.
func Upstream(code int, rawBody []byte) *StatusError {
	return &StatusError{Code: code, Message: string(rawBody), RawBody: rawBody, IsUpstream: true}
}

// StatusOf extracts the HTTP status from err, defaulting to 500.
func StatusOf(err error) int {
	if se, ok := err.(*StatusError); ok && se != nil {
		if se.Code != 0 {
			return se.Code
		}
	}
	return 500
}

// IsRateLimited reports whether err represents an upstream 429.
func IsRateLimited(err error) bool {
	se, ok := err.(*StatusError)
	return ok && se != nil && se.Code == 429
}

// ErrNoAvailableToken is returned by the rotator when every credential in
// the pool was skipped.
var ErrNoAvailableToken = New(500, "no available token")
