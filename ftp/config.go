package ftp

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/orchestral/support/internal/config"
)

// TransferMode is the representation used for Get and Put.
type TransferMode string

const (
	Binary TransferMode = "binary"
	ASCII  TransferMode = "ascii"
)

// DefaultTimeout bounds connecting and every protocol exchange when
// Config.Timeout is zero.
const DefaultTimeout = 90 * time.Second

// Config describes a server and the credentials to log in with.
type Config struct {
	// Host is a URI such as "ftp://example.com" or "sftp://example.com:990".
	Host string `mapstructure:"host" yaml:"host"`

	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`

	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// Active requests active (PORT) data connections instead of passive ones.
	Active bool `mapstructure:"active" yaml:"active"`

	// Mode defaults to Binary.
	Mode TransferMode `mapstructure:"mode" yaml:"mode"`

	// RateLimit caps transfers in bytes per second; zero means unlimited.
	RateLimit int64 `mapstructure:"rateLimit" yaml:"rateLimit"`
}

// LoadConfig reads a Config from a YAML file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if err := config.Load(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type scheme string

const (
	schemeFTP  scheme = "ftp"
	schemeSFTP scheme = "sftp"
	schemeFTPS scheme = "ftps"
	schemeSSH  scheme = "ssh"
)

// endpoint is the parsed form of Config.Host.
type endpoint struct {
	scheme scheme
	host   string
	port   int
}

// secure reports whether the control connection is protected with TLS.
func (e endpoint) secure() bool {
	return e.scheme == schemeSFTP || e.scheme == schemeFTPS
}

func (e endpoint) String() string {
	return e.host
}

func parseHost(raw string) (endpoint, error) {
	if raw == "" {
		return endpoint{}, nil
	}
	if !strings.Contains(raw, "://") {
		raw = string(schemeFTP) + "://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return endpoint{}, fmt.Errorf("invalid host %q: %w", raw, err)
	}
	if u.Hostname() == "" {
		return endpoint{}, fmt.Errorf("invalid host %q: missing hostname", raw)
	}

	e := endpoint{scheme: scheme(strings.ToLower(u.Scheme)), host: u.Hostname()}
	switch e.scheme {
	case schemeFTP, schemeSFTP, schemeFTPS:
		e.port = 21
	case schemeSSH:
		e.port = 22
	default:
		return endpoint{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return endpoint{}, fmt.Errorf("invalid port %q", p)
		}
		e.port = port
	}
	return e, nil
}
