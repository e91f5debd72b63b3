package paragraph

import (
	"errors"
	"fmt"
)

var (
	// ErrNilJoiner is returned by New when the configured joiner is nil.
	ErrNilJoiner = errors.New("joiner must be a non-nil function")

	// ErrUnknownJoiner is returned by JoinerByName for an unregistered name.
	ErrUnknownJoiner = errors.New("unknown joiner")
)

// ConfigurationError reports an invalid aggregator setting. It is returned
// at construction time, before any line is consumed.
type ConfigurationError struct {
	// Setting names the offending option.
	Setting string

	// Value is the rejected value, when it has a printable form.
	Value string

	// Err is ErrNilJoiner or ErrUnknownJoiner.
	Err error
}

// Error implements error.
func (e *ConfigurationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid %s %q: %v", e.Setting, e.Value, e.Err)
	}
	return fmt.Sprintf("invalid %s: %v", e.Setting, e.Err)
}

// Unwrap returns the underlying sentinel.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
