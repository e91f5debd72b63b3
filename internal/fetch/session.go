package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/net/publicsuffix"
)

// maxErrorDetail bounds how much of a failed response body is kept in a
// ProtocolError.
const maxErrorDetail = 512

// AnyHost is the WithHostHeaders key whose entry applies to hosts without an
// entry of their own.
const AnyHost = "*"

// HostHeaders are extra request headers for one host.
type HostHeaders struct {
	// Cookie is a raw Cookie header value ("name=value; name2=value2").
	Cookie string

	// Headers are set on every request to the host.
	Headers map[string]string
}

// options is shared by HTTPFetcher, DriveFetcher and Dispatcher.
type options struct {
	// timeout bounds the wait for response headers. Zero means unbounded.
	timeout time.Duration

	// userAgent is sent on every request when non-empty.
	userAgent string

	// transport replaces the per-session transport. Used by tests and by
	// callers that manage their own connection pool.
	transport http.RoundTripper

	// dialer routes connections of the per-session transport, e.g. through
	// a SOCKS5 proxy.
	dialer proxy.Dialer

	// hosts maps a lower-case hostname to its extra headers.
	hosts map[string]HostHeaders

	logger *slog.Logger
}

// Option configures a fetcher.
type Option func(*options)

// WithTimeout bounds the wait for each response. Zero (the default) means
// requests may block indefinitely. Reading the body is never bounded.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *options) {
		o.userAgent = ua
	}
}

// WithTransport makes every session use rt instead of building its own
// transport. A caller supplied transport is never closed by a session.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

// WithDialer routes session connections through d.
func WithDialer(d proxy.Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithHostHeaders sets extra headers and cookies per host.
func WithHostHeaders(hosts map[string]HostHeaders) Option {
	return func(o *options) {
		o.hosts = make(map[string]HostHeaders, len(hosts))
		for host, h := range hosts {
			o.hosts[strings.ToLower(host)] = h
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// session is the client scope of one Fetch call.
type session struct {
	client  *http.Client
	timeout time.Duration

	// owned is the transport built for this session, closed on release.
	// It is nil when the caller supplied the transport.
	owned *http.Transport
}

func newSession(o *options) (*session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	s := &session{timeout: o.timeout}
	base := o.transport
	if base == nil {
		s.owned = newTransport(o.dialer)
		base = s.owned
	}

	s.client = &http.Client{
		Transport: &headerInjectingTransport{
			base:      base,
			userAgent: o.userAgent,
			hosts:     o.hosts,
		},
		Jar: jar,
	}
	return s, nil
}

// newTransport builds a transport for one session. Compression stays
// disabled so the consumer receives the raw bytes the server sent.
func newTransport(dialer proxy.Dialer) *http.Transport {
	t := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  true,
	}
	if dialer != nil {
		t.Proxy = nil
		t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		}
	}
	return t
}

// release drops idle connections of an owned transport. Connections still
// carrying a yielded body stay open until that body is closed.
func (s *session) release() {
	if s.owned != nil {
		s.owned.CloseIdleConnections()
	}
}

// get issues a streaming GET. On success the returned func must run once the
// body is no longer needed; it releases the request context.
//
// The timeout only covers the wait for headers: a timer cancels the request
// context if it fires first and is stopped as soon as headers arrive.
func (s *session) get(ctx context.Context, locator string) (*http.Response, func(), error) {
	reqCtx, cancel := context.WithCancelCause(ctx)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, locator, nil)
	if err != nil {
		cancel(nil)
		return nil, nil, err
	}

	var timer *time.Timer
	if s.timeout > 0 {
		timer = time.AfterFunc(s.timeout, func() { cancel(ErrTimeout) })
	}

	resp, err := s.client.Do(req)
	fired := timer != nil && !timer.Stop()
	if err != nil {
		cause := context.Cause(reqCtx)
		cancel(nil)
		return nil, nil, classifyTransport(ctx, locator, err, cause)
	}
	if fired {
		_ = resp.Body.Close()
		cancel(nil)
		return nil, nil, &TransportError{Locator: locator, Err: ErrTimeout}
	}

	return resp, func() { cancel(nil) }, nil
}

// classifyTransport maps a client.Do failure onto the error taxonomy.
// Cancellation by the caller is not a transport failure and passes through
// unchanged.
func classifyTransport(ctx context.Context, locator string, err, cause error) error {
	if ctx.Err() != nil {
		return err
	}
	if errors.Is(cause, ErrTimeout) {
		return &TransportError{Locator: locator, Err: ErrTimeout}
	}
	return &TransportError{Locator: locator, Err: err}
}

// isSuccess reports whether code is 2xx.
func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

// statusError builds the ProtocolError for a non-2xx response, keeping a
// short prefix of body as detail.
func statusError(locator string, resp *http.Response, body io.Reader) *ProtocolError {
	detail, _ := io.ReadAll(io.LimitReader(body, maxErrorDetail)) //nolint:errcheck // detail is best effort
	return &ProtocolError{
		Locator:    locator,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Detail:     strings.TrimSpace(string(detail)),
		Kind:       ErrUnexpectedStatus,
	}
}

// discard closes a response this package still owns.
func discard(resp *http.Response, release func()) {
	_ = resp.Body.Close()
	release()
}

// headerInjectingTransport sets the User-Agent and the configured per-host
// headers and cookies on every request, including redirects.
type headerInjectingTransport struct {
	base      http.RoundTripper
	userAgent string
	hosts     map[string]HostHeaders
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	h, ok := t.hosts[strings.ToLower(req.URL.Hostname())]
	if !ok {
		h, ok = t.hosts[AnyHost]
	}
	if t.userAgent == "" && !ok {
		return t.base.RoundTrip(req)
	}

	clone := req.Clone(req.Context())
	if t.userAgent != "" {
		clone.Header.Set("User-Agent", t.userAgent)
	}
	if ok {
		if h.Cookie != "" {
			if existing := clone.Header.Get("Cookie"); existing != "" {
				clone.Header.Set("Cookie", existing+"; "+h.Cookie)
			} else {
				clone.Header.Set("Cookie", h.Cookie)
			}
		}
		for key, value := range h.Headers {
			clone.Header.Set(key, value)
		}
	}
	return t.base.RoundTrip(clone)
}
