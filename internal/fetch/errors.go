package fetch

import (
	"errors"
	"fmt"
)

// Protocol violation kinds.
// These are wrapped by ProtocolError so callers can use errors.Is to tell
// the failure modes apart while still getting the locator and response
// context from errors.As.
var (
	// ErrUnexpectedStatus is returned when the server answers with a
	// non-2xx status code.
	ErrUnexpectedStatus = errors.New("unexpected status code")

	// ErrMissingContentDisposition is returned when the final Drive response
	// carries no Content-Disposition header. The server contract requires it.
	ErrMissingContentDisposition = errors.New("internal error: headers don't contain content-disposition")

	// ErrFilenameUndetectable is returned when Content-Disposition is present
	// but no quoted filename can be extracted from it.
	ErrFilenameUndetectable = errors.New("filename could not be autodetected")

	// ErrQuotaExceeded is returned when the Drive warning page reports that
	// the download quota of the file was exceeded.
	ErrQuotaExceeded = errors.New("download quota exceeded")
)

// ErrTimeout is wrapped by TransportError when no response headers arrived
// within the configured timeout.
var ErrTimeout = errors.New("request timed out")

// TransportError reports a network level failure (dial, TLS, timeout, reset)
// while fetching a locator. It is never retried.
type TransportError struct {
	// Locator is the resource that was being fetched.
	Locator string

	// Err is the underlying cause.
	Err error
}

// Error implements error.
func (e *TransportError) Error() string {
	return fmt.Sprintf("could not get the file at %s: %v", e.Locator, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a well-formed response that violates what the
// fetcher expects from the server.
type ProtocolError struct {
	// Locator is the resource that was being fetched.
	Locator string

	// StatusCode is the HTTP status code of the offending response.
	StatusCode int

	// Status is the status line text (e.g. "404 Not Found").
	Status string

	// Detail holds a short prefix of the response body, when one was read.
	Detail string

	// Kind is one of the Err* protocol sentinels of this package.
	Kind error
}

// Error implements error.
func (e *ProtocolError) Error() string {
	switch {
	case errors.Is(e.Kind, ErrQuotaExceeded):
		return fmt.Sprintf("google drive link %s is currently unavailable, because the quota was exceeded", e.Locator)
	case errors.Is(e.Kind, ErrUnexpectedStatus) && e.Detail != "":
		return fmt.Sprintf("could not get the file at %s: %v: %s: %s", e.Locator, e.Kind, e.Status, e.Detail)
	case errors.Is(e.Kind, ErrUnexpectedStatus):
		return fmt.Sprintf("could not get the file at %s: %v: %s", e.Locator, e.Kind, e.Status)
	default:
		return fmt.Sprintf("could not get the file at %s: %v", e.Locator, e.Kind)
	}
}

// Unwrap returns the protocol sentinel so errors.Is matches on the kind.
func (e *ProtocolError) Unwrap() error {
	return e.Kind
}
