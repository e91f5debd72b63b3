package fetch

import (
	"context"
	"iter"
)

// HTTPFetcher fetches a resource with a single streaming GET.
type HTTPFetcher struct {
	opts options
}

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	return &HTTPFetcher{opts: newOptions(opts)}
}

// Fetch issues one GET for locator and returns the locator together with
// the unbuffered response body. Nothing is retried.
func (f *HTTPFetcher) Fetch(ctx context.Context, locator string) (*Result, error) {
	s, err := newSession(&f.opts)
	if err != nil {
		return nil, err
	}
	defer s.release()

	resp, release, err := s.get(ctx, locator)
	if err != nil {
		f.opts.logger.Debug("http fetch failed", "locator", locator, "error", err)
		return nil, err
	}

	if !isSuccess(resp.StatusCode) {
		perr := statusError(locator, resp, resp.Body)
		discard(resp, release)
		f.opts.logger.Debug("http fetch rejected", "locator", locator, "status", resp.StatusCode)
		return nil, perr
	}

	f.opts.logger.Debug("http fetch opened",
		"locator", locator,
		"status", resp.StatusCode,
		"content_length", resp.ContentLength,
	)

	return &Result{
		Name:    locator,
		Locator: locator,
		Route:   RouteHTTP,
		Stream:  newStreamHandle(resp.Body, resp.Body, release),
	}, nil
}

// All fetches each locator as it is pulled from the returned sequence.
func (f *HTTPFetcher) All(ctx context.Context, locators iter.Seq[string]) iter.Seq2[*Result, error] {
	return sequence(ctx, locators, f.Fetch)
}

var _ Fetcher = (*HTTPFetcher)(nil)
