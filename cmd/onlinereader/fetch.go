package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/onlinereader/internal/config"
	"github.com/nao1215/onlinereader/internal/database"
	"github.com/nao1215/onlinereader/internal/fetch"
	"github.com/nao1215/onlinereader/internal/lines"
	"github.com/nao1215/onlinereader/internal/paragraph"
	"github.com/nao1215/onlinereader/internal/pipeline"
	"github.com/nao1215/onlinereader/internal/report"
	"github.com/nao1215/onlinereader/internal/tor"
)

// errInterrupted is returned when a signal stops the run.
var errInterrupted = errors.New("interrupted")

// NewFetchCmd creates the fetch command.
func NewFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch [url...]",
		Short: "Fetch text resources and print their paragraphs",
		Long: `Fetch reads each URL in order and prints the paragraphs of its text.

Links to drive.google.com and docs.google.com are downloaded through the
Drive confirmation handshake, so large shared files work too. Other URLs are
fetched with a single GET.

Examples:
  # Read one file
  onlinereader fetch https://raw.githubusercontent.com/golang/go/master/LICENSE

  # Read a Drive file and a plain file, joining lines with spaces
  onlinereader fetch --joiner space "https://drive.google.com/uc?export=download&id=FILE_ID" https://example.com/notes.txt

  # Read URLs from a file (one per line, # starts a comment)
  onlinereader fetch --list urls.txt

  # Write a Markdown report and keep the run in the local database
  onlinereader fetch --format markdown -o report.md --save https://example.com/notes.txt

  # Route requests through Tor
  onlinereader fetch --tor http://example.onion/notes.txt

Configuration file (.onlinereader.yaml) example:
  options:
    timeout: 30s
  hosts:
    intranet.example.com:
      cookie: "session_id=abc123"
      headers:
        Authorization: "Bearer token"`,
		Args: cobra.ArbitraryArgs,
		RunE: runFetchCmd,
	}

	cmd.Flags().StringP("list", "l", "",
		"File with one URL per line, read after the arguments")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Maximum wait for response headers (0 waits forever)")
	cmd.Flags().StringP("joiner", "j", config.DefaultJoiner,
		"Paragraph line joiner: "+strings.Join(paragraph.JoinerNames(), ", "))
	cmd.Flags().StringP("format", "f", config.DefaultFormat,
		"Report format: "+strings.Join(config.Formats, ", "))
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().StringP("user-agent", "A", config.DefaultUserAgent,
		"User-Agent header sent with every request")

	cmd.Flags().BoolP("save", "s", false,
		"Save the run and its paragraphs to the local database")
	cmd.Flags().String("db-dir", "",
		"Database directory (default: XDG data directory)")

	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .onlinereader.yaml in current or home directory)")

	cmd.Flags().StringP("proxy", "x", "",
		"Route requests through a SOCKS5 proxy (e.g., 127.0.0.1:9050)")
	cmd.Flags().Bool("tor", false,
		"Start an embedded Tor daemon and route requests through it")
	cmd.Flags().DurationP("tor-timeout", "T", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	return cmd
}

// runFetchCmd executes the fetch command.
func runFetchCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args, nil)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.Verbose, cfg.LogJSON)

	return runWithSignals(cmd.Context(), logger, func(ctx context.Context) error {
		return runFetch(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr(), logger)
	})
}

// envFiles returns the .env files consulted for ONLINEREADER_* variables.
func envFiles() []string {
	return []string{".env", filepath.Join(config.XDGConfigDir(), ".env")}
}

// buildConfig creates a Config from defaults, the configuration file, the
// environment and the flags the user set, in that order.
func buildConfig(cmd *cobra.Command, args []string, lookup func(string) (string, bool)) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error
	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// A missing file is only an error when the user named one.
	if configPath := config.FindConfigFile(cfg.ConfigFilePath); configPath != "" {
		f, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		if err := cfg.ApplyFile(f); err != nil {
			return nil, err
		}
	} else if cfg.ConfigFilePath != "" {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	if lookup == nil {
		dotenv, err := config.LoadEnvFiles(envFiles()...)
		if err != nil {
			return nil, err
		}
		lookup = config.EnvLookup(dotenv)
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}

	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}

	cfg.Locators = args
	cfg.Verbose = getBoolFlag(cmd, "verbose")
	cfg.LogJSON = getBoolFlag(cmd, "log-json")
	if cfg.SaveToDB && cfg.DBDir == "" {
		cfg.DBDir = config.XDGDataDir()
	}

	return cfg, nil
}

// applyFlags copies the flags the user set over cfg. Flags left at their
// default do not override the file or the environment.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	var err error
	if flags.Changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return err
		}
	}
	if flags.Changed("joiner") {
		if cfg.Joiner, err = flags.GetString("joiner"); err != nil {
			return err
		}
	}
	if flags.Changed("format") {
		if cfg.Format, err = flags.GetString("format"); err != nil {
			return err
		}
	}
	if flags.Changed("user-agent") {
		if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
			return err
		}
	}
	if flags.Changed("proxy") {
		if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
			return err
		}
	}
	if flags.Changed("tor-timeout") {
		if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
			return err
		}
	}

	if cfg.ListFile, err = flags.GetString("list"); err != nil {
		return err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return err
	}
	if cfg.SaveToDB, err = flags.GetBool("save"); err != nil {
		return err
	}
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return err
	}
	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return err
	}
	return nil
}

// runWithSignals runs fn and cancels its context on SIGINT or SIGTERM.
func runWithSignals(parent context.Context, logger *slog.Logger, fn func(context.Context) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal, cancelling...", "signal", sig.String())
			return errInterrupted
		case <-gctx.Done():
			return nil
		}
	})

	g.Go(func() error {
		defer cancel()
		return fn(gctx)
	})

	return g.Wait()
}

// runFetch executes one fetch run.
func runFetch(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer, logger *slog.Logger) (err error) {
	joiner, err := paragraph.JoinerByName(cfg.Joiner)
	if err != nil {
		return err
	}
	aggregator, err := paragraph.New(paragraph.WithJoiner(joiner))
	if err != nil {
		return err
	}

	fetchOpts := []fetch.Option{
		fetch.WithTimeout(cfg.Timeout),
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithHostHeaders(hostHeaders(cfg.HostHeaders())),
		fetch.WithLogger(logger),
	}

	switch {
	case cfg.UseTor:
		p, stop, err := startEmbeddedTor(ctx, cfg, stderr, logger)
		if err != nil {
			return err
		}
		defer stop()
		fetchOpts = append(fetchOpts, fetch.WithDialer(p.Dialer()))
	case cfg.ProxyAddress != "":
		p, err := checkedProxy(ctx, cfg.ProxyAddress)
		if err != nil {
			return err
		}
		logger.Info("SOCKS5 proxy connection verified", "address", cfg.ProxyAddress)
		fetchOpts = append(fetchOpts, fetch.WithDialer(p.Dialer()))
	}

	list, err := openLocatorList(cfg)
	if err != nil {
		return err
	}
	defer list.Close()

	output, closeOutput, err := openOutput(cfg.ReportFile, stdout)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeOutput(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close report file: %w", cerr)
		}
	}()

	writer, err := newReportWriter(cfg, output)
	if err != nil {
		return err
	}

	rec, err := openRecorder(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rec.Close()

	p := pipeline.New(fetch.NewDispatcher(fetchOpts...), aggregator, pipeline.WithLogger(logger))

	startedAt := time.Now()
	var runErr error
	for par, perr := range p.Run(ctx, list.All()) {
		if perr != nil {
			runErr = perr
			break
		}
		if err := writer.WriteParagraph(par); err != nil {
			runErr = fmt.Errorf("failed to write report: %w", err)
			break
		}
		if err := rec.AddParagraph(ctx, par); err != nil {
			runErr = err
			break
		}
	}
	if runErr == nil {
		runErr = list.Err()
	}

	stats := p.Stats()
	summary := summaryFromStats(stats, startedAt, runErr)

	// The run is recorded even when ctx was cancelled.
	if err := rec.Finish(context.WithoutCancel(ctx), stats.Resources, runErr); err != nil {
		logger.Error("failed to save run", "error", err)
	} else if rec.RunID() != "" {
		summary.RunID = rec.RunID()
		fmt.Fprintf(stderr, "Saved run %s to %s\n", rec.RunID(), rec.Path())
	}

	if err := writer.Finish(summary); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return runErr
}

// hostHeaders converts the configured host table for fetch.WithHostHeaders.
func hostHeaders(hosts map[string]config.HostConfig) map[string]fetch.HostHeaders {
	if len(hosts) == 0 {
		return nil
	}
	out := make(map[string]fetch.HostHeaders, len(hosts))
	for host, hc := range hosts {
		if host == config.AnyHost {
			host = fetch.AnyHost
		}
		out[host] = fetch.HostHeaders{Cookie: hc.Cookie, Headers: hc.Headers}
	}
	return out
}

// checkedProxy creates a SOCKS5 proxy and verifies it answers.
func checkedProxy(ctx context.Context, address string) (*tor.Proxy, error) {
	p, err := tor.NewProxy(address)
	if err != nil {
		return nil, err
	}
	if status := p.Probe(ctx); status != tor.ProxyStatusOK {
		return nil, fmt.Errorf("proxy check failed: %w (make sure a SOCKS5 proxy is running at %s)",
			status.Err(), address)
	}
	return p, nil
}

// startEmbeddedTor starts an embedded Tor daemon using tornago and returns
// its verified SOCKS proxy and a stop function.
func startEmbeddedTor(ctx context.Context, cfg *config.Config, stderr io.Writer, logger *slog.Logger) (*tor.Proxy, func(), error) {
	fmt.Fprintln(stderr, "Starting embedded Tor daemon...")
	fmt.Fprintf(stderr, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	embeddedTor := tor.NewEmbeddedTor(
		tor.WithStartupTimeout(cfg.TorStartupTimeout),
	)
	if err := embeddedTor.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}

	stop := func() {
		logger.Info("stopping embedded Tor daemon...")
		if err := embeddedTor.Stop(); err != nil {
			logger.Error("failed to stop embedded Tor", "error", err)
		}
	}

	logger.Info("embedded Tor daemon started",
		"socksAddr", embeddedTor.SocksAddr(),
		"controlAddr", embeddedTor.ControlAddr(),
	)

	p, err := embeddedTor.Proxy()
	if err == nil {
		if status := p.Probe(ctx); status != tor.ProxyStatusOK {
			err = fmt.Errorf("embedded Tor proxy check failed: %w", status.Err())
		}
	}
	if err != nil {
		stop()
		return nil, nil, err
	}

	fmt.Fprintf(stderr, "SOCKS proxy: %s\n\n", embeddedTor.SocksAddr())
	return p, stop, nil
}

// openOutput returns the report destination: the report file when set,
// stdout otherwise.
func openOutput(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" {
		return stdout, func() error { return nil }, nil
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports may contain the text of private documents.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

// newReportWriter selects the report writer. Text reports written to a file
// end with a summary line.
func newReportWriter(cfg *config.Config, output io.Writer) (report.Writer, error) {
	if cfg.Format == config.FormatText && cfg.ReportFile != "" {
		return report.NewTextWriter(output, report.WithSummary(true)), nil
	}
	return report.New(cfg.Format, output)
}

// summaryFromStats converts pipeline statistics for the report writers.
func summaryFromStats(stats pipeline.Stats, startedAt time.Time, runErr error) report.Summary {
	s := report.Summary{
		StartedAt:  startedAt,
		Elapsed:    stats.Elapsed,
		Paragraphs: stats.Paragraphs,
		Resources:  make([]report.Resource, len(stats.Resources)),
	}
	for i, r := range stats.Resources {
		s.Resources[i] = report.Resource{Name: r.Name, Locator: r.Locator, Route: r.Route.String()}
	}
	if runErr != nil {
		s.Err = runErr.Error()
	}
	return s
}

// locatorList yields the command-line locators followed by those of the
// list file, which is read lazily.
type locatorList struct {
	args []string
	file *os.File
	err  error
}

// openLocatorList opens the list file of cfg, if any.
func openLocatorList(cfg *config.Config) (*locatorList, error) {
	l := &locatorList{args: cfg.Locators}
	if cfg.ListFile == "" {
		return l, nil
	}
	f, err := os.Open(cfg.ListFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open URL list: %w", err)
	}
	l.file = f
	return l, nil
}

// All returns the locators. Blank lines and lines starting with '#' in the
// list file are skipped. A read error ends the sequence and is reported by Err.
func (l *locatorList) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, locator := range l.args {
			if !yield(locator) {
				return
			}
		}
		if l.file == nil {
			return
		}
		for line, err := range lines.Read(l.file) {
			if err != nil {
				l.err = fmt.Errorf("failed to read URL list %s: %w", l.file.Name(), err)
				return
			}
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if !yield(line) {
				return
			}
		}
	}
}

// Err returns the error that ended reading the list file.
func (l *locatorList) Err() error {
	return l.err
}

// Close closes the list file.
func (l *locatorList) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// recorder saves a run to the database. A recorder without a database does
// nothing.
type recorder struct {
	db     *database.ParagraphDB
	run    *database.Run
	logger *slog.Logger
}

// openRecorder opens the database and creates the run when cfg.SaveToDB is
// set.
func openRecorder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*recorder, error) {
	rec := &recorder{logger: logger}
	if !cfg.SaveToDB {
		return rec, nil
	}

	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	run, err := db.CreateRun(ctx, cfg.Joiner)
	if err != nil {
		_ = db.Close() //nolint:errcheck // Best effort cleanup
		return nil, err
	}

	logger.Info("database opened", "path", db.Path(), "run", run.ID)
	rec.db, rec.run = db, run
	return rec, nil
}

// AddParagraph stores p in the current run.
func (r *recorder) AddParagraph(ctx context.Context, p paragraph.Paragraph) error {
	if r.db == nil {
		return nil
	}
	if _, err := r.db.AddParagraph(ctx, r.run.ID, p); err != nil {
		return fmt.Errorf("failed to save paragraph: %w", err)
	}
	return nil
}

// Finish stores the fetched resources and closes the run.
func (r *recorder) Finish(ctx context.Context, resources []pipeline.Resource, runErr error) error {
	if r.db == nil {
		return nil
	}
	for _, res := range resources {
		rr := database.ResourceRecord{Name: res.Name, Locator: res.Locator, Route: res.Route.String()}
		if err := r.db.AddResource(ctx, r.run.ID, rr); err != nil {
			return err
		}
	}
	if err := r.db.FinishRun(ctx, r.run.ID, runErr); err != nil {
		return err
	}
	r.logger.Info("run saved", "run", r.run.ID, "failed", runErr != nil)
	return nil
}

// RunID returns the ID of the stored run, or "" without a database.
func (r *recorder) RunID() string {
	if r.run == nil {
		return ""
	}
	return r.run.ID
}

// Path returns the database path.
func (r *recorder) Path() string {
	if r.db == nil {
		return ""
	}
	return r.db.Path()
}

// Close closes the database.
func (r *recorder) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}
