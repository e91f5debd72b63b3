package fetch

import (
	"context"
	"io"
	"iter"
	"sync"
)

// Route identifies which fetch strategy served a locator.
type Route int

const (
	// RouteHTTP is the plain request/response strategy.
	RouteHTTP Route = iota

	// RouteDrive is the Google Drive confirmation handshake strategy.
	RouteDrive
)

// String returns the route name used in logs and reports.
func (r Route) String() string {
	switch r {
	case RouteHTTP:
		return "http"
	case RouteDrive:
		return "gdrive"
	default:
		return "unknown"
	}
}

// Result is what a fetch produces for one locator.
type Result struct {
	// Name is the display name of the resource: the locator itself for
	// plain HTTP, the server-provided filename for Drive.
	Name string

	// Locator is the locator that was requested.
	Locator string

	// Route is the strategy that served the locator.
	Route Route

	// Stream is the open response body. The consumer owns it and must Close it.
	Stream *StreamHandle
}

// Fetcher resolves a single locator into a Result.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) (*Result, error)
}

// StreamHandle is an io.ReadCloser over exactly one response body.
// Close is safe to call more than once; only the first call has effect.
type StreamHandle struct {
	r       io.Reader
	body    io.Closer
	release func()

	once     sync.Once
	closeErr error
}

// NewStreamHandle wraps an already open body, for fetchers implemented
// outside this package.
func NewStreamHandle(body io.ReadCloser) *StreamHandle {
	return newStreamHandle(body, nil, nil)
}

// newStreamHandle wraps body. Reads go through r, which must drain body
// (r may replay bytes already peeked from it). release runs after body is
// closed.
func newStreamHandle(body io.ReadCloser, r io.Reader, release func()) *StreamHandle {
	if r == nil {
		r = body
	}
	return &StreamHandle{r: r, body: body, release: release}
}

// Read implements io.Reader.
func (h *StreamHandle) Read(p []byte) (int, error) {
	return h.r.Read(p)
}

// Close closes the underlying body and releases the request context.
func (h *StreamHandle) Close() error {
	h.once.Do(func() {
		h.closeErr = h.body.Close()
		if h.release != nil {
			h.release()
		}
	})
	return h.closeErr
}

// sequence turns a per-locator fetch into a lazy sequence. Each locator is
// fetched only when the consumer asks for the next element. The first error
// is yielded once and ends the sequence.
func sequence(ctx context.Context, locators iter.Seq[string], fetch func(context.Context, string) (*Result, error)) iter.Seq2[*Result, error] {
	return func(yield func(*Result, error) bool) {
		for locator := range locators {
			res, err := fetch(ctx, locator)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(res, nil) {
				return
			}
		}
	}
}
