package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"sync"
	"testing"
)

// rewriteTransport sends every request to target while remembering the
// host the client originally asked for.
type rewriteTransport struct {
	target *url.URL

	mu    sync.Mutex
	hosts []string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	t.hosts = append(t.hosts, req.URL.Host)
	t.mu.Unlock()

	clone := req.Clone(req.Context())
	clone.URL.Scheme = t.target.Scheme
	clone.URL.Host = t.target.Host
	clone.Host = ""
	return http.DefaultTransport.RoundTrip(clone)
}

func (t *rewriteTransport) requestedHosts() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.hosts)
}

// newRoutingServer serves Drive-style responses for /uc and plain bodies
// for anything else.
func newRoutingServer(t *testing.T) (*httptest.Server, *rewriteTransport) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/uc":
			w.Header().Set("Content-Disposition", `attachment; filename="`+r.URL.Query().Get("id")+`.txt"`)
			_, _ = w.Write([]byte("drive body")) //nolint:errcheck
		case "/broken":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			_, _ = w.Write([]byte("plain body")) //nolint:errcheck
		}
	}))

	target, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("failed to parse server URL: %v", err)
	}
	return server, &rewriteTransport{target: target}
}

// TestDispatcher tests routing and sequencing across strategies.
func TestDispatcher(t *testing.T) {
	t.Parallel()

	t.Run("routes docs host to drive and other hosts to http", func(t *testing.T) {
		t.Parallel()

		server, rt := newRoutingServer(t)
		defer server.Close()

		d := NewDispatcher(WithTransport(rt))

		drive, err := d.Fetch(context.Background(), "https://docs.google.com/uc?export=download&id=train")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer drive.Stream.Close()
		if drive.Route != RouteDrive || drive.Name != "train.txt" {
			t.Errorf("expected drive route with filename, got %v %q", drive.Route, drive.Name)
		}

		plain, err := d.Fetch(context.Background(), "https://example.com/file.txt")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer plain.Stream.Close()
		if plain.Route != RouteHTTP || plain.Name != "https://example.com/file.txt" {
			t.Errorf("expected http route with locator name, got %v %q", plain.Route, plain.Name)
		}

		body, err := io.ReadAll(plain.Stream)
		if err != nil {
			t.Fatalf("failed to read stream: %v", err)
		}
		if string(body) != "plain body" {
			t.Errorf("unexpected body %q", body)
		}
	})

	t.Run("mixed sequence preserves input order", func(t *testing.T) {
		t.Parallel()

		server, rt := newRoutingServer(t)
		defer server.Close()

		locators := []string{
			"https://example.com/a.txt",
			"https://drive.google.com/uc?id=b",
			"https://example.org/c.txt",
			"https://docs.google.com/uc?id=d",
		}

		var names []string
		var routes []Route
		for res, err := range NewDispatcher(WithTransport(rt)).All(context.Background(), slices.Values(locators)) {
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			names = append(names, res.Name)
			routes = append(routes, res.Route)
			_ = res.Stream.Close()
		}

		wantNames := []string{"https://example.com/a.txt", "b.txt", "https://example.org/c.txt", "d.txt"}
		if !slices.Equal(names, wantNames) {
			t.Errorf("expected names %v, got %v", wantNames, names)
		}
		wantRoutes := []Route{RouteHTTP, RouteDrive, RouteHTTP, RouteDrive}
		if !slices.Equal(routes, wantRoutes) {
			t.Errorf("expected routes %v, got %v", wantRoutes, routes)
		}
		wantHosts := []string{"example.com", "drive.google.com", "example.org", "docs.google.com"}
		if got := rt.requestedHosts(); !slices.Equal(got, wantHosts) {
			t.Errorf("expected requests to %v, got %v", wantHosts, got)
		}
	})

	t.Run("sequence is lazy", func(t *testing.T) {
		t.Parallel()

		server, rt := newRoutingServer(t)
		defer server.Close()

		locators := []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"}
		for res, err := range NewDispatcher(WithTransport(rt)).All(context.Background(), slices.Values(locators)) {
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			_ = res.Stream.Close()
			break
		}

		if got := len(rt.requestedHosts()); got != 1 {
			t.Errorf("expected a single request after pulling one element, got %d", got)
		}
	})

	t.Run("first failure ends the sequence", func(t *testing.T) {
		t.Parallel()

		server, rt := newRoutingServer(t)
		defer server.Close()

		locators := []string{"https://example.com/a", "https://example.com/broken", "https://example.com/c"}

		var got int
		var gotErr error
		for res, err := range NewDispatcher(WithTransport(rt)).All(context.Background(), slices.Values(locators)) {
			if err != nil {
				gotErr = err
				continue
			}
			got++
			_ = res.Stream.Close()
		}

		if got != 1 {
			t.Errorf("expected 1 result before the failure, got %d", got)
		}
		if !errors.Is(gotErr, ErrUnexpectedStatus) {
			t.Errorf("expected ErrUnexpectedStatus, got %v", gotErr)
		}
		if n := len(rt.requestedHosts()); n != 2 {
			t.Errorf("expected 2 requests, got %d", n)
		}
	})
}

// stubFetcher records the locators it was asked for.
type stubFetcher struct {
	name string
	seen []string
}

func (s *stubFetcher) Fetch(_ context.Context, locator string) (*Result, error) {
	s.seen = append(s.seen, locator)
	return &Result{Name: s.name, Locator: locator}, nil
}

// TestDispatcherWithFetchers tests routing onto injected strategies.
func TestDispatcherWithFetchers(t *testing.T) {
	t.Parallel()

	plain := &stubFetcher{name: "plain"}
	drive := &stubFetcher{name: "drive"}
	d := NewDispatcherWithFetchers(plain, drive, nil)

	for _, locator := range []string{"https://docs.google.com/x", "https://example.com/file.txt", "http://drive.google.com/y"} {
		if _, err := d.Fetch(context.Background(), locator); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if !slices.Equal(drive.seen, []string{"https://docs.google.com/x", "http://drive.google.com/y"}) {
		t.Errorf("unexpected drive locators %v", drive.seen)
	}
	if !slices.Equal(plain.seen, []string{"https://example.com/file.txt"}) {
		t.Errorf("unexpected plain locators %v", plain.seen)
	}

	if _, err := d.Fetch(context.Background(), "http://[::1"); err == nil {
		t.Error("expected parse error for malformed locator")
	}
}

// TestDispatcherResults tests the discriminated result sequence.
func TestDispatcherResults(t *testing.T) {
	t.Parallel()

	t.Run("success then fail", func(t *testing.T) {
		t.Parallel()

		server, rt := newRoutingServer(t)
		defer server.Close()

		locators := []string{"https://example.com/a", "https://example.com/broken", "https://example.com/c"}

		var successes, failures int
		for r := range NewDispatcher(WithTransport(rt)).Results(context.Background(), slices.Values(locators)) {
			switch {
			case r.IsSuccess():
				successes++
				_ = r.Result().Stream.Close()
			case r.IsCancel():
				t.Errorf("unexpected cancel: %v", r.Err())
			default:
				failures++
				if !errors.Is(r.Err(), ErrUnexpectedStatus) {
					t.Errorf("expected ErrUnexpectedStatus, got %v", r.Err())
				}
			}
		}

		if successes != 1 || failures != 1 {
			t.Errorf("expected 1 success and 1 failure, got %d and %d", successes, failures)
		}
	})

	t.Run("cancelled context yields a cancel result", func(t *testing.T) {
		t.Parallel()

		server, rt := newRoutingServer(t)
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var cancels int
		for r := range NewDispatcher(WithTransport(rt)).Results(ctx, slices.Values([]string{"https://example.com/a"})) {
			if r.IsCancel() {
				cancels++
			}
		}
		if cancels != 1 {
			t.Errorf("expected 1 cancel result, got %d", cancels)
		}
	})
}
