// Package ftpwire is the FTP protocol client behind the ftp package's
// default driver. It speaks the control channel over net/textproto and
// supports explicit TLS, passive and active data connections and bandwidth
// limited transfers.
package ftpwire

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Reply is a complete, possibly multi-line, server reply.
type Reply struct {
	Code    int
	Message string
}

func (r *Reply) is(class int) bool {
	return r.Code/100 == class
}

// Conn is an FTP control connection.
type Conn struct {
	conn net.Conn
	text *textproto.Conn

	host string
	port string

	tlsConfig *tls.Config
	timeout   time.Duration
	logger    *slog.Logger
	dialer    *net.Dialer
	passive   bool
	limiter   *rate.Limiter

	// epsvFailed is set once the server rejected EPSV; PASV is used from then on
	epsvFailed bool

	// currentType caches the last TYPE so repeated transfers skip the command
	currentType TransferType

	mu     sync.Mutex
	closed bool
}

// Dial connects to the FTP server at addr ("host:port") and reads its
// greeting. With WithExplicitTLS the connection is upgraded before Dial
// returns.
func Dial(addr string, options ...Option) (*Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}

	c := &Conn{
		host:    host,
		port:    port,
		timeout: 30 * time.Second,
		dialer:  &net.Dialer{},
		passive: true,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	c.dialer.Timeout = c.timeout

	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Conn) connect() error {
	addr := net.JoinHostPort(c.host, c.port)
	c.logger.Debug("connecting to ftp server", "addr", addr, "tls", c.tlsConfig != nil)

	conn, err := c.dialer.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.attach(conn)

	c.setDeadline(conn.SetReadDeadline)
	greeting, err := c.readReply()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to read greeting: %w", err)
	}
	c.logger.Debug("ftp greeting", "code", greeting.Code, "message", greeting.Message)

	if greeting.Code != 220 {
		conn.Close()
		return protocolError("CONNECT", greeting)
	}

	if c.tlsConfig != nil {
		if err := c.upgradeToTLS(); err != nil {
			c.conn.Close()
			return err
		}
	}
	return nil
}

func (c *Conn) attach(conn net.Conn) {
	c.conn = conn
	c.text = textproto.NewConn(conn)
}

func (c *Conn) upgradeToTLS() error {
	if _, err := c.expectCode(234, "AUTH", "TLS"); err != nil {
		return fmt.Errorf("AUTH TLS failed: %w", err)
	}

	c.logger.Debug("starting TLS handshake")
	tlsConfig := c.tlsConfig.Clone()
	if tlsConfig.ServerName == "" {
		tlsConfig.ServerName = c.host
	}
	tlsConn := tls.Client(c.conn, tlsConfig)

	c.setDeadline(c.conn.SetDeadline)
	if err := tlsConn.Handshake(); err != nil {
		return fmt.Errorf("TLS handshake failed: %w", err)
	}
	c.logger.Debug("TLS handshake complete")
	c.attach(tlsConn)

	if _, err := c.expectCode(200, "PBSZ", "0"); err != nil {
		return fmt.Errorf("PBSZ failed: %w", err)
	}
	if _, err := c.expectCode(200, "PROT", "P"); err != nil {
		return fmt.Errorf("PROT failed: %w", err)
	}
	return nil
}

// setDeadline arms one of the connection's deadline setters with the
// configured timeout. Errors are ignored: a broken connection surfaces on
// the following read or write.
func (c *Conn) setDeadline(set func(time.Time) error) {
	if c.timeout > 0 {
		_ = set(time.Now().Add(c.timeout))
	}
}

// Login authenticates with USER and, when the server asks for one, PASS.
func (c *Conn) Login(user, password string) error {
	r, err := c.cmd("USER", user)
	if err != nil {
		return err
	}

	switch r.Code {
	case 230:
		return nil
	case 331, 332:
		_, err := c.expectCode(230, "PASS", password)
		return err
	default:
		return protocolError("USER", r)
	}
}

// SetPassive switches between passive (true) and active data connections.
func (c *Conn) SetPassive(passive bool) {
	c.mu.Lock()
	c.passive = passive
	c.mu.Unlock()
}

// System returns the server's SYST reply, e.g. "UNIX Type: L8".
func (c *Conn) System() (string, error) {
	r, err := c.expect2xx("SYST")
	if err != nil {
		return "", err
	}
	return r.Message, nil
}

// Noop sends NOOP.
func (c *Conn) Noop() error {
	_, err := c.expect2xx("NOOP")
	return err
}

// Quit sends QUIT and closes the control connection. Calling Quit on a
// closed connection returns nil.
func (c *Conn) Quit() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	// The connection is going away regardless of the reply.
	_, _ = c.cmd("QUIT")

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.text.Close()
}

// cmd sends a command and reads its reply.
func (c *Conn) cmd(command string, args ...string) (*Reply, error) {
	line := command
	if len(args) > 0 {
		line = command + " " + strings.Join(args, " ")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, net.ErrClosed
	}

	if command == "PASS" {
		c.logger.Debug("ftp command", "cmd", "PASS ****")
	} else {
		c.logger.Debug("ftp command", "cmd", line)
	}

	c.setDeadline(c.conn.SetWriteDeadline)
	if err := c.text.PrintfLine("%s", line); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	c.setDeadline(c.conn.SetReadDeadline)
	r, err := c.readReply()
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	c.logger.Debug("ftp response", "code", r.Code, "message", r.Message)
	return r, nil
}

func (c *Conn) readReply() (*Reply, error) {
	code, msg, err := c.text.ReadResponse(0)
	if err != nil {
		var tpErr *textproto.Error
		if !errors.As(err, &tpErr) {
			return nil, err
		}
	}
	return &Reply{Code: code, Message: msg}, nil
}

func (c *Conn) expectCode(code int, command string, args ...string) (*Reply, error) {
	r, err := c.cmd(command, args...)
	if err != nil {
		return nil, err
	}
	if r.Code != code {
		return r, protocolError(command, r)
	}
	return r, nil
}

func (c *Conn) expect2xx(command string, args ...string) (*Reply, error) {
	r, err := c.cmd(command, args...)
	if err != nil {
		return nil, err
	}
	if !r.is(2) {
		return r, protocolError(command, r)
	}
	return r, nil
}
