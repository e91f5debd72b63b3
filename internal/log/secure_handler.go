package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

// MaskValue replaces redacted values.
const MaskValue = "***REDACTED***"

// sensitiveKeys are attribute keys whose values are always redacted.
var sensitiveKeys = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,

	// Google Drive download confirmation token.
	"confirm": true,

	"session":    true,
	"session_id": true,
	"sid":        true,
}

// sensitiveKeywords redact any key that contains them.
var sensitiveKeywords = []string{
	"password", "passwd", "secret", "token", "auth", "credential",
}

// sensitiveParams are URL query parameters whose values are redacted inside
// string attributes that parse as URLs.
var sensitiveParams = map[string]bool{
	"confirm":      true,
	"token":        true,
	"access_token": true,
	"key":          true,
	"api_key":      true,
	"sig":          true,
	"signature":    true,
}

// sensitivePatterns redact string values regardless of their key.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`),
	regexp.MustCompile(`(?i)^bearer\s+.+`),
	regexp.MustCompile(`(?i)^basic\s+[A-Za-z0-9+/=]+$`),
}

// SecureHandler is an slog.Handler that redacts credentials before records
// reach the wrapped handler: cookie and authorization values, Drive confirm
// tokens, and token-like query parameters of logged URLs.
type SecureHandler struct {
	handler slog.Handler
}

// NewSecureHandler wraps handler. A nil handler wraps slog.Default().Handler().
func NewSecureHandler(handler slog.Handler) *SecureHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &SecureHandler{handler: handler}
}

// Enabled implements slog.Handler.
func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	sanitized := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		sanitized.AddAttrs(sanitizeAttr(a))
		return true
	})
	return h.handler.Handle(ctx, sanitized)
}

// WithAttrs implements slog.Handler.
func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	sanitized := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		sanitized[i] = sanitizeAttr(a)
	}
	return &SecureHandler{handler: h.handler.WithAttrs(sanitized)}
}

// WithGroup implements slog.Handler.
func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{handler: h.handler.WithGroup(name)}
}

func sanitizeAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		sanitized := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			sanitized[i] = sanitizeAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(sanitized...)}
	}

	if isSensitiveKey(strings.ToLower(a.Key)) {
		return slog.String(a.Key, MaskValue)
	}

	var s string
	switch a.Value.Kind() {
	case slog.KindString:
		s = a.Value.String()
		if isSensitiveValue(s) {
			return slog.String(a.Key, MaskValue)
		}
	case slog.KindAny:
		// Errors and URLs print the request URL, confirm token included.
		switch v := a.Value.Any().(type) {
		case error:
			s = v.Error()
		case fmt.Stringer:
			s = v.String()
		default:
			return a
		}
	default:
		return a
	}

	if redacted, ok := redactURL(s); ok {
		return slog.String(a.Key, redacted)
	}
	if redacted, ok := redactEmbeddedURLs(s); ok {
		return slog.String(a.Key, redacted)
	}
	return a
}

func isSensitiveKey(key string) bool {
	if sensitiveKeys[key] {
		return true
	}
	for _, kw := range sensitiveKeywords {
		if strings.Contains(key, kw) {
			return true
		}
	}
	return false
}

func isSensitiveValue(value string) bool {
	for _, p := range sensitivePatterns {
		if p.MatchString(value) {
			return true
		}
	}
	return false
}

// redactURL masks sensitive query parameters and userinfo passwords of an
// absolute URL. It reports false when s is not such a URL or holds nothing
// to mask.
func redactURL(s string) (string, bool) {
	if !strings.Contains(s, "://") {
		return "", false
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return "", false
	}

	changed := false
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), MaskValue)
		changed = true
	}

	if u.RawQuery != "" {
		parts := strings.Split(u.RawQuery, "&")
		for i, part := range parts {
			name, _, _ := strings.Cut(part, "=")
			if decoded, err := url.QueryUnescape(name); err == nil {
				name = decoded
			}
			if sensitiveParams[strings.ToLower(name)] {
				parts[i] = name + "=" + MaskValue
				changed = true
			}
		}
		u.RawQuery = strings.Join(parts, "&")
	}

	if !changed {
		return "", false
	}
	return u.String(), true
}

// embeddedURLPattern finds absolute URLs inside free text such as error
// messages. Quotes and whitespace end a URL.
var embeddedURLPattern = regexp.MustCompile(`[A-Za-z][A-Za-z0-9+.-]*://[^\s"'<>]+`)

// redactEmbeddedURLs applies redactURL to every URL found in s. Trailing
// punctuation of a match is kept out of the URL. It reports false when
// nothing was masked.
func redactEmbeddedURLs(s string) (string, bool) {
	changed := false
	out := embeddedURLPattern.ReplaceAllStringFunc(s, func(match string) string {
		trimmed := strings.TrimRight(match, ".,:;)]}")
		redacted, ok := redactURL(trimmed)
		if !ok {
			return match
		}
		changed = true
		return redacted + match[len(trimmed):]
	})
	return out, changed
}

// NewSecureLogger returns a text logger on w that redacts credentials.
// The level is Debug when verbose is set and Warn otherwise.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewTextHandler(w, handlerOptions(verbose))))
}

// NewSecureJSONLogger is NewSecureLogger with JSON output.
func NewSecureJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewJSONHandler(w, handlerOptions(verbose))))
}

func handlerOptions(verbose bool) *slog.HandlerOptions {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return &slog.HandlerOptions{Level: level}
}
