package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoLocator is returned when neither a URL argument nor --list is given.
	ErrNoLocator = errors.New("no locator specified: provide a URL or use --list")

	// ErrInvalidTimeout is returned for a negative timeout.
	ErrInvalidTimeout = errors.New("invalid timeout: must be zero (unbounded) or positive")

	// ErrUnknownFormat is returned for a report format other than text, json
	// or markdown.
	ErrUnknownFormat = errors.New("unknown report format")

	// ErrConflictingProxy is returned when --proxy and --tor are both set.
	ErrConflictingProxy = errors.New("conflicting proxy settings: --proxy and --tor cannot be used together")

	// ErrInvalidTorTimeout is returned when the Tor startup timeout is not
	// positive.
	ErrInvalidTorTimeout = errors.New("invalid tor startup timeout: must be positive")
)
