package config

import "strings"

// HostConfig holds request customizations for one host.
type HostConfig struct {
	// Cookie is sent as the Cookie header, e.g. "name1=value1; name2=value2".
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are added to every request to the host.
	Headers map[string]string `yaml:"headers,omitempty"`
}

// Options are run settings that may be given in the YAML file.
// Empty fields leave the defaults untouched.
type Options struct {
	Timeout   string `yaml:"timeout,omitempty"`
	Joiner    string `yaml:"joiner,omitempty"`
	Format    string `yaml:"format,omitempty"`
	Proxy     string `yaml:"proxy,omitempty"`
	UserAgent string `yaml:"userAgent,omitempty"`
}

// File represents the structure of the YAML configuration file.
type File struct {
	// Options override the built-in defaults.
	Options Options `yaml:"options,omitempty"`

	// Defaults apply to every host unless overridden in Hosts.
	Defaults HostConfig `yaml:"defaults,omitempty"`

	// Hosts maps host names, without scheme or port, to their settings.
	Hosts map[string]HostConfig `yaml:"hosts,omitempty"`
}

// GetHostConfig returns the settings for host, merging the host entry over
// the defaults. Host names match case-insensitively.
func (f *File) GetHostConfig(host string) HostConfig {
	result := HostConfig{Cookie: f.Defaults.Cookie}
	if len(f.Defaults.Headers) > 0 {
		result.Headers = make(map[string]string, len(f.Defaults.Headers))
		for k, v := range f.Defaults.Headers {
			result.Headers[k] = v
		}
	}

	hc, ok := f.Hosts[strings.ToLower(host)]
	if !ok {
		return result
	}

	if hc.Cookie != "" {
		result.Cookie = hc.Cookie
	}
	if len(hc.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(hc.Headers))
		}
		for k, v := range hc.Headers {
			result.Headers[k] = v
		}
	}
	return result
}
