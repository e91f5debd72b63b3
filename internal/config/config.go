package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/onlinereader/internal/paragraph"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "onlinereader"

	// DefaultTimeout bounds the wait for response headers of each request.
	// Large downloads keep streaming after headers arrive.
	DefaultTimeout = 60 * time.Second

	// DefaultJoiner is the name of the joiner used to build paragraphs.
	DefaultJoiner = paragraph.JoinerNewline

	// DefaultFormat is the report format written to stdout.
	DefaultFormat = FormatText

	// DefaultUserAgent is sent with every request unless overridden.
	DefaultUserAgent = "onlinereader/1.0 (+https://github.com/nao1215/onlinereader)"

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute
)

// AnyHost keys the defaults in the table returned by Config.HostHeaders.
const AnyHost = "*"

// Report formats.
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// Formats lists the accepted report formats.
var Formats = []string{FormatText, FormatJSON, FormatMarkdown}

// Config holds all options of a fetch run. It is filled from defaults, the
// YAML file, the environment and CLI flags, in that order of precedence.
type Config struct {
	// Locators are the URLs to read, in order.
	Locators []string

	// ListFile is a file with one locator per line, read after Locators.
	ListFile string

	// Timeout bounds the wait for response headers. Zero means unbounded.
	Timeout time.Duration

	// Joiner names the paragraph joiner, see paragraph.JoinerNames.
	Joiner string

	// Format is one of Formats.
	Format string

	// ReportFile receives the report instead of stdout when set.
	ReportFile string

	// SaveToDB stores the run and its paragraphs in the SQLite database.
	SaveToDB bool

	// DBDir is the directory of the SQLite database.
	// Defaults to the XDG data directory.
	DBDir string

	// ConfigFilePath is the YAML file given with --config.
	ConfigFilePath string

	// Hosts holds per-host headers and cookies loaded from the YAML file.
	Hosts *File

	// ProxyAddress routes requests through a SOCKS5 proxy in host:port form.
	ProxyAddress string

	// UseTor starts an embedded Tor daemon and routes requests through it.
	UseTor bool

	// TorStartupTimeout is the maximum time to wait for the embedded daemon.
	TorStartupTimeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON switches log output to JSON.
	LogJSON bool
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		Timeout:           DefaultTimeout,
		Joiner:            DefaultJoiner,
		Format:            DefaultFormat,
		TorStartupTimeout: DefaultTorStartupTimeout,
		UserAgent:         DefaultUserAgent,
	}
}

// XDGDataDir returns the XDG data directory, e.g. ~/.local/share/onlinereader.
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory, e.g. ~/.config/onlinereader.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate returns the first problem found in the configuration.
func (c *Config) Validate() error {
	if len(c.Locators) == 0 && c.ListFile == "" {
		return ErrNoLocator
	}

	if c.Timeout < 0 {
		return ErrInvalidTimeout
	}

	if !slices.Contains(Formats, c.Format) {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, c.Format)
	}

	if _, err := paragraph.JoinerByName(c.Joiner); err != nil {
		return err
	}

	if c.ProxyAddress != "" && c.UseTor {
		return ErrConflictingProxy
	}

	if c.UseTor && c.TorStartupTimeout <= 0 {
		return ErrInvalidTorTimeout
	}

	return nil
}

// HostHeaders returns the per-host header table from the YAML file, keyed by
// host name, with the defaults under AnyHost. It is nil when no file was
// loaded.
func (c *Config) HostHeaders() map[string]HostConfig {
	if c.Hosts == nil {
		return nil
	}
	out := make(map[string]HostConfig, len(c.Hosts.Hosts)+1)
	if c.Hosts.Defaults.Cookie != "" || len(c.Hosts.Defaults.Headers) > 0 {
		out[AnyHost] = c.Hosts.GetHostConfig(AnyHost)
	}
	for host := range c.Hosts.Hosts {
		out[host] = c.Hosts.GetHostConfig(host)
	}
	return out
}
