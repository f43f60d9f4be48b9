// Package config loads clickguard settings from defaults, an optional YAML
// file, environment variables and command-line flags.
package config

import (
	"fmt"
	"strings"
)

// Defaults.
const (
	DefaultListen           = ":8080"
	DefaultHistoryPath      = "./clickguard.db"
	DefaultLogFormat        = "console"
	DefaultLogLevel         = "info"
	DefaultMaxExecutionTime = 60
	DefaultMaxConcurrency   = 4
	DefaultHostAddr         = "localhost:9000"
	DefaultUser             = "default"
	DefaultDatabase         = "default"
)

// Protocols understood by HostConfig.Protocol.
const (
	ProtocolNative = "native"
	ProtocolHTTP   = "http"
)

// Config is the complete application configuration.
type Config struct {
	Listen      string `koanf:"listen"`
	HistoryPath string `koanf:"history_path"`
	LogFormat   string `koanf:"log_format"`
	LogLevel    string `koanf:"log_level"`

	// MaxExecutionTime is sent to ClickHouse as max_execution_time and
	// bounds each request context, in seconds.
	MaxExecutionTime int `koanf:"max_execution_time"`

	// MaxConcurrency bounds the sub-queries of a multi-statement chart run
	// at once.
	MaxConcurrency int `koanf:"max_concurrency"`

	// Secure forces TLS for every host.
	Secure bool `koanf:"secure"`

	CORSOrigins []string     `koanf:"cors_origins"`
	Hosts       []HostConfig `koanf:"hosts"`
}

// HostConfig is one ClickHouse server. Its position in Config.Hosts is the
// hostId used by the API.
type HostConfig struct {
	Name     string `koanf:"name"`
	Addr     string `koanf:"addr"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Database string `koanf:"database"`
	Protocol string `koanf:"protocol"`
	Secure   bool   `koanf:"secure"`
}

// Host returns the host with the given id.
func (c *Config) Host(id int) (HostConfig, bool) {
	if id < 0 || id >= len(c.Hosts) {
		return HostConfig{}, false
	}
	return c.Hosts[id], true
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("invalid log_format %q: must be json or console", c.LogFormat)
	}
	if c.MaxExecutionTime <= 0 {
		return fmt.Errorf("max_execution_time must be positive, got %d", c.MaxExecutionTime)
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("max_concurrency must be positive, got %d", c.MaxConcurrency)
	}
	if len(c.Hosts) == 0 {
		return fmt.Errorf("no ClickHouse hosts configured")
	}
	for i, h := range c.Hosts {
		if h.Addr == "" {
			return fmt.Errorf("host %d: addr is required", i)
		}
		if h.Protocol != ProtocolNative && h.Protocol != ProtocolHTTP {
			return fmt.Errorf("host %d: invalid protocol %q", i, h.Protocol)
		}
	}
	return nil
}

// normalize fills per-host defaults. A URL scheme selects the HTTP protocol
// and https or port 9440 turns on TLS.
func (h *HostConfig) normalize(secure bool) {
	addr := strings.TrimSpace(h.Addr)
	switch {
	case strings.HasPrefix(addr, "https://"):
		h.Protocol, h.Secure = ProtocolHTTP, true
		addr = strings.TrimPrefix(addr, "https://")
	case strings.HasPrefix(addr, "http://"):
		h.Protocol = ProtocolHTTP
		addr = strings.TrimPrefix(addr, "http://")
	}
	addr = strings.TrimSuffix(addr, "/")
	if h.Protocol == "" {
		h.Protocol = ProtocolNative
	}
	if !strings.Contains(addr, ":") {
		addr += ":" + defaultPort(h.Protocol, h.Secure || secure)
	}
	if strings.HasSuffix(addr, ":9440") || strings.HasSuffix(addr, ":8443") || secure {
		h.Secure = true
	}
	h.Addr = addr

	if h.User == "" {
		h.User = DefaultUser
	}
	if h.Database == "" {
		h.Database = DefaultDatabase
	}
	if h.Name == "" {
		h.Name = addr
	}
}

func defaultPort(protocol string, secure bool) string {
	switch {
	case protocol == ProtocolHTTP && secure:
		return "8443"
	case protocol == ProtocolHTTP:
		return "8123"
	case secure:
		return "9440"
	default:
		return "9000"
	}
}

// MaskPassword hides all but the first and last character of a password
// for logging.
func MaskPassword(password string) string {
	switch len(password) {
	case 0:
		return "<empty>"
	case 1, 2:
		return strings.Repeat("*", len(password))
	}
	return string(password[0]) + strings.Repeat("*", len(password)-2) + string(password[len(password)-1])
}
