package ftpwire

import (
	"crypto/tls"
	"log/slog"
	"net"
	"time"

	"github.com/orchestral/support/internal/ratelimit"
)

// Option configures a Conn before it dials.
type Option func(*Conn) error

// WithTimeout bounds dialing and every read or write on the control and
// data connections.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Conn) error {
		c.timeout = timeout
		return nil
	}
}

// WithExplicitTLS upgrades the control connection with AUTH TLS right after
// the greeting and protects data connections with PROT P. A session cache is
// added when config has none so data connections can resume the control
// connection's TLS session, which servers such as vsftpd require.
func WithExplicitTLS(config *tls.Config) Option {
	return func(c *Conn) error {
		if config == nil {
			config = &tls.Config{}
		} else {
			config = config.Clone()
		}
		if config.ClientSessionCache == nil {
			config.ClientSessionCache = tls.NewLRUClientSessionCache(0)
		}
		c.tlsConfig = config
		return nil
	}
}

// WithLogger logs every command and reply at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conn) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithDialer sets the dialer used for control and passive data connections.
func WithDialer(dialer *net.Dialer) Option {
	return func(c *Conn) error {
		c.dialer = dialer
		return nil
	}
}

// WithActiveMode makes the server connect back to the client (PORT/EPRT)
// instead of the default passive mode (EPSV/PASV).
func WithActiveMode() Option {
	return func(c *Conn) error {
		c.passive = false
		return nil
	}
}

// WithRateLimit caps data transfers at bytesPerSecond. Zero disables the
// limit.
func WithRateLimit(bytesPerSecond int64) Option {
	return func(c *Conn) error {
		c.limiter = ratelimit.New(bytesPerSecond)
		return nil
	}
}
