package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/onlinereader/internal/config"
	"github.com/nao1215/onlinereader/internal/database"
	"github.com/nao1215/onlinereader/internal/fetch"
)

// writeConfigFile writes a YAML config into a temp dir and returns its path.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), config.DefaultConfigFile)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// mapLookup returns an environment lookup backed by m.
func mapLookup(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// TestBuildConfig tests configuration precedence.
func TestBuildConfig(t *testing.T) {
	t.Parallel()

	configFile := `
options:
  timeout: 10s
  joiner: space
  format: json
hosts:
  Example.COM:
    cookie: "a=b"
`

	tests := []struct {
		name        string
		flags       []string
		env         map[string]string
		wantTimeout time.Duration
		wantJoiner  string
		wantFormat  string
	}{
		{
			name:        "file overrides defaults",
			wantTimeout: 10 * time.Second,
			wantJoiner:  "space",
			wantFormat:  config.FormatJSON,
		},
		{
			name:        "environment overrides file",
			env:         map[string]string{config.EnvTimeout: "20s", config.EnvJoiner: "none"},
			wantTimeout: 20 * time.Second,
			wantJoiner:  "none",
			wantFormat:  config.FormatJSON,
		},
		{
			name:        "explicit flags override environment",
			flags:       []string{"--timeout", "30s", "--format", "markdown"},
			env:         map[string]string{config.EnvTimeout: "20s"},
			wantTimeout: 30 * time.Second,
			wantJoiner:  "space",
			wantFormat:  config.FormatMarkdown,
		},
		{
			name:        "flag equal to its default still overrides",
			flags:       []string{"--joiner", "newline"},
			wantTimeout: 10 * time.Second,
			wantJoiner:  "newline",
			wantFormat:  config.FormatJSON,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cmd := NewFetchCmd()
			args := append([]string{"--config", writeConfigFile(t, configFile)}, tt.flags...)
			if err := cmd.Flags().Parse(args); err != nil {
				t.Fatalf("failed to parse flags: %v", err)
			}

			cfg, err := buildConfig(cmd, []string{"https://example.com/a"}, mapLookup(tt.env))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if cfg.Timeout != tt.wantTimeout {
				t.Errorf("expected timeout %v, got %v", tt.wantTimeout, cfg.Timeout)
			}
			if cfg.Joiner != tt.wantJoiner {
				t.Errorf("expected joiner %q, got %q", tt.wantJoiner, cfg.Joiner)
			}
			if cfg.Format != tt.wantFormat {
				t.Errorf("expected format %q, got %q", tt.wantFormat, cfg.Format)
			}
			if !slices.Equal(cfg.Locators, []string{"https://example.com/a"}) {
				t.Errorf("unexpected locators %v", cfg.Locators)
			}
			if got := cfg.HostHeaders()["example.com"].Cookie; got != "a=b" {
				t.Errorf("expected host cookie from file, got %q", got)
			}
		})
	}

	t.Run("named config file must exist", func(t *testing.T) {
		t.Parallel()

		cmd := NewFetchCmd()
		missing := filepath.Join(t.TempDir(), "missing.yaml")
		if err := cmd.Flags().Parse([]string{"--config", missing}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		_, err := buildConfig(cmd, nil, mapLookup(nil))
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("save defaults the database directory", func(t *testing.T) {
		t.Parallel()

		cmd := NewFetchCmd()
		if err := cmd.Flags().Parse([]string{"--config", writeConfigFile(t, ""), "--save"}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		cfg, err := buildConfig(cmd, nil, mapLookup(nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !cfg.SaveToDB || cfg.DBDir != config.XDGDataDir() {
			t.Errorf("expected XDG database dir, got %v %q", cfg.SaveToDB, cfg.DBDir)
		}
	})
}

// TestHostHeaders tests conversion of the configured host table.
func TestHostHeaders(t *testing.T) {
	t.Parallel()

	if got := hostHeaders(nil); got != nil {
		t.Errorf("expected nil for empty table, got %v", got)
	}

	got := hostHeaders(map[string]config.HostConfig{
		config.AnyHost: {Headers: map[string]string{"X-Default": "1"}},
		"example.com":  {Cookie: "a=b"},
	})
	if got[fetch.AnyHost].Headers["X-Default"] != "1" {
		t.Errorf("expected wildcard entry, got %v", got)
	}
	if got["example.com"].Cookie != "a=b" {
		t.Errorf("expected host cookie, got %v", got)
	}
}

// TestLocatorList tests argument and list file sequencing.
func TestLocatorList(t *testing.T) {
	t.Parallel()

	t.Run("arguments then list file without comments", func(t *testing.T) {
		t.Parallel()

		listFile := filepath.Join(t.TempDir(), "urls.txt")
		content := "# comment\nhttps://example.com/b\n\n  https://example.com/c  \r\n"
		if err := os.WriteFile(listFile, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write list: %v", err)
		}

		cfg := config.NewConfig()
		cfg.Locators = []string{"https://example.com/a"}
		cfg.ListFile = listFile

		l, err := openLocatorList(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer l.Close()

		got := slices.Collect(l.All())
		want := []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"}
		if !slices.Equal(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
		if l.Err() != nil {
			t.Errorf("unexpected error: %v", l.Err())
		}
	})

	t.Run("missing list file", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.ListFile = filepath.Join(t.TempDir(), "missing.txt")
		if _, err := openLocatorList(cfg); err == nil {
			t.Error("expected error for missing list file")
		}
	})
}

// newTextServer serves fixed bodies by path and 404 otherwise.
func newTextServer(t *testing.T, bodies map[string]string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := bodies[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body)) //nolint:errcheck
	}))
	t.Cleanup(server.Close)
	return server
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// TestRunFetch tests a full run against a local server.
func TestRunFetch(t *testing.T) {
	t.Parallel()

	t.Run("prints paragraphs and saves the run", func(t *testing.T) {
		t.Parallel()

		server := newTextServer(t, map[string]string{
			"/a.txt": "A1\nA2\n\nA3\n",
			"/b.txt": "B1\n",
		})

		cfg := config.NewConfig()
		cfg.Locators = []string{server.URL + "/a.txt", server.URL + "/b.txt"}
		cfg.SaveToDB = true
		cfg.DBDir = t.TempDir()

		var stdout, stderr bytes.Buffer
		if err := runFetch(context.Background(), cfg, &stdout, &stderr, discardLogger()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := "==> " + server.URL + "/a.txt <==\nA1\nA2\n\nA3\n\n==> " + server.URL + "/b.txt <==\nB1\n"
		if stdout.String() != want {
			t.Errorf("expected %q, got %q", want, stdout.String())
		}
		if !strings.Contains(stderr.String(), "Saved run") {
			t.Errorf("expected saved run notice, got %q", stderr.String())
		}

		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		runs, err := db.ListRuns(context.Background())
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) != 1 {
			t.Fatalf("expected 1 run, got %d", len(runs))
		}
		if runs[0].Status != database.StatusComplete || runs[0].ParagraphCount != 3 || runs[0].ResourceCount != 2 {
			t.Errorf("unexpected run %+v", runs[0])
		}
	})

	t.Run("failure keeps earlier output and records a failed run", func(t *testing.T) {
		t.Parallel()

		server := newTextServer(t, map[string]string{"/a.txt": "A1\n"})

		cfg := config.NewConfig()
		cfg.Locators = []string{server.URL + "/a.txt", server.URL + "/missing.txt"}
		cfg.SaveToDB = true
		cfg.DBDir = t.TempDir()

		var stdout bytes.Buffer
		err := runFetch(context.Background(), cfg, &stdout, &bytes.Buffer{}, discardLogger())
		if !errors.Is(err, fetch.ErrUnexpectedStatus) {
			t.Fatalf("expected ErrUnexpectedStatus, got %v", err)
		}
		if !strings.Contains(stdout.String(), "A1") {
			t.Errorf("expected paragraphs before the failure, got %q", stdout.String())
		}

		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		runs, err := db.ListRuns(context.Background())
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) != 1 || runs[0].Status != database.StatusFailed {
			t.Errorf("expected one failed run, got %+v", runs)
		}
	})

	t.Run("writes a markdown report file", func(t *testing.T) {
		t.Parallel()

		server := newTextServer(t, map[string]string{"/a.txt": "hello\nworld\n"})

		cfg := config.NewConfig()
		cfg.Locators = []string{server.URL + "/a.txt"}
		cfg.Format = config.FormatMarkdown
		cfg.Joiner = "space"
		cfg.ReportFile = filepath.Join(t.TempDir(), "out", "report.md")

		var stdout bytes.Buffer
		if err := runFetch(context.Background(), cfg, &stdout, &bytes.Buffer{}, discardLogger()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if stdout.Len() != 0 {
			t.Errorf("expected nothing on stdout, got %q", stdout.String())
		}

		content, err := os.ReadFile(cfg.ReportFile)
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		for _, want := range []string{"# Paragraph Report", "hello world"} {
			if !strings.Contains(string(content), want) {
				t.Errorf("expected report to contain %q", want)
			}
		}
	})

	t.Run("unreachable proxy fails before fetching", func(t *testing.T) {
		t.Parallel()

		var hits int
		server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits++ }))
		defer server.Close()

		closed := httptest.NewServer(http.NotFoundHandler())
		proxyAddr := closed.Listener.Addr().String()
		closed.Close()

		cfg := config.NewConfig()
		cfg.Locators = []string{server.URL}
		cfg.ProxyAddress = proxyAddr

		err := runFetch(context.Background(), cfg, &bytes.Buffer{}, &bytes.Buffer{}, discardLogger())
		if err == nil || !strings.Contains(err.Error(), "proxy check failed") {
			t.Errorf("expected proxy check error, got %v", err)
		}
		if hits != 0 {
			t.Errorf("expected no request, got %d", hits)
		}
	})
}

// TestRunWithSignals tests that the run result is returned and the watcher
// stops with it.
func TestRunWithSignals(t *testing.T) {
	t.Parallel()

	errRun := errors.New("run failed")
	err := runWithSignals(context.Background(), discardLogger(), func(ctx context.Context) error {
		if ctx.Err() != nil {
			t.Error("expected live context during the run")
		}
		return errRun
	})
	if !errors.Is(err, errRun) {
		t.Errorf("expected run error, got %v", err)
	}

	if err := runWithSignals(context.Background(), discardLogger(), func(context.Context) error { return nil }); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
