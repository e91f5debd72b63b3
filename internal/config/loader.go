package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the configuration file name searched for in the
// current and home directories.
const DefaultConfigFile = ".onlinereader.yaml"

// XDGConfigFile is the configuration file name inside XDGConfigDir.
const XDGConfigFile = "config.yaml"

// Environment variables read by ApplyEnv.
const (
	EnvTimeout   = "ONLINEREADER_TIMEOUT"
	EnvJoiner    = "ONLINEREADER_JOINER"
	EnvProxy     = "ONLINEREADER_PROXY"
	EnvUserAgent = "ONLINEREADER_USER_AGENT"
	EnvFormat    = "ONLINEREADER_FORMAT"
)

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// LoadConfigFile loads a YAML configuration file. Host keys are lower-cased.
// A missing file yields ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	hosts := make(map[string]HostConfig, len(f.Hosts))
	for host, hc := range f.Hosts {
		hosts[strings.ToLower(host)] = hc
	}
	f.Hosts = hosts

	return &f, nil
}

// FindConfigFile returns the configuration file to use, or "" if none exists.
// An explicit configPath is returned only if it exists. Otherwise the current
// directory, the home directory and the XDG config directory are searched in
// that order.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	var candidates []string
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), XDGConfigFile))

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ApplyFile copies the options of f over c and keeps f for host lookups.
func (c *Config) ApplyFile(f *File) error {
	c.Hosts = f

	o := f.Options
	if o.Timeout != "" {
		d, err := time.ParseDuration(o.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout %q in config file: %w", o.Timeout, err)
		}
		c.Timeout = d
	}
	if o.Joiner != "" {
		c.Joiner = o.Joiner
	}
	if o.Format != "" {
		c.Format = o.Format
	}
	if o.Proxy != "" {
		c.ProxyAddress = o.Proxy
	}
	if o.UserAgent != "" {
		c.UserAgent = o.UserAgent
	}
	return nil
}

// LoadEnvFiles reads variables from the given .env files that exist. When a
// variable is set in several files the earlier file wins.
func LoadEnvFiles(paths ...string) (map[string]string, error) {
	env := make(map[string]string)
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		vars, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		for k, v := range vars {
			if _, ok := env[k]; !ok {
				env[k] = v
			}
		}
	}
	return env, nil
}

// EnvLookup looks variables up in the process environment first and in
// dotenv second.
func EnvLookup(dotenv map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
}

// ApplyEnv copies the ONLINEREADER_* variables found by lookup over c.
// Empty values are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	if v := get(EnvTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvTimeout, v, err)
		}
		c.Timeout = d
	}
	if v := get(EnvJoiner); v != "" {
		c.Joiner = v
	}
	if v := get(EnvProxy); v != "" {
		c.ProxyAddress = v
	}
	if v := get(EnvUserAgent); v != "" {
		c.UserAgent = v
	}
	if v := get(EnvFormat); v != "" {
		c.Format = v
	}
	return nil
}
