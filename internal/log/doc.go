// Package log builds the slog loggers used across onlinereader.
//
// Loggers returned by NewSecureLogger and NewSecureJSONLogger wrap their
// handler in a SecureHandler, which masks values that would let a log
// reader replay a download:
//   - cookie, authorization and session attributes
//   - the Drive confirm token, logged under the "confirm" key
//   - confirm, token, key and signature query parameters of logged URLs
//   - URL userinfo passwords, bearer and basic credentials, JWTs
//
// Usage:
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Debug("confirming download", "locator", u, "confirm", token)
//	// locator=https://drive.google.com/uc?confirm=***REDACTED***&id=... confirm=***REDACTED***
package log
