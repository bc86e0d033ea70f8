package ftp

import (
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/orchestral/support/internal/config"
	"golang.org/x/crypto/ssh"
)

// State is the lifecycle state of a Client.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Client is a connection to a single server. File operations are only
// valid between a successful Connect and Close.
type Client struct {
	cfg      Config
	endpoint endpoint
	facade   *Facade
	logger   *slog.Logger
	id       uuid.UUID

	driver          Driver
	tlsConfig       *tls.Config
	hostKeyCallback ssh.HostKeyCallback

	mu      sync.Mutex
	state   State
	session Session
	system  string
}

// Option configures a Client.
type Option func(*Client) error

// WithDriver replaces the protocol driver chosen from the host scheme.
func WithDriver(d Driver) Option {
	return func(c *Client) error {
		if d == nil {
			return fmt.Errorf("driver cannot be nil")
		}
		c.driver = d
		return nil
	}
}

// WithSession adopts an already open session. The client starts in the
// Connected state and Connect is a no-op.
func WithSession(s Session) Option {
	return func(c *Client) error {
		if s == nil {
			return fmt.Errorf("session cannot be nil")
		}
		c.session = s
		c.state = Connected
		return nil
	}
}

// WithLogger sets the logger. Protocol traffic is logged at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithTLSConfig sets the TLS configuration used for sftp:// and ftps://
// hosts by the default driver.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Client) error {
		c.tlsConfig = cfg
		return nil
	}
}

// WithHostKeyCallback sets the host key check used for ssh:// hosts by the
// default driver. Without it any host key is accepted.
func WithHostKeyCallback(cb ssh.HostKeyCallback) Option {
	return func(c *Client) error {
		c.hostKeyCallback = cb
		return nil
	}
}

// New creates a client for cfg. It does not connect.
func New(cfg Config, options ...Option) (*Client, error) {
	ep, err := parseHost(cfg.Host)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	switch cfg.Mode {
	case "":
		cfg.Mode = Binary
	case Binary, ASCII:
	default:
		return nil, fmt.Errorf("unsupported transfer mode %q", cfg.Mode)
	}

	c := &Client{
		cfg:      cfg,
		endpoint: ep,
		id:       uuid.New(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	c.logger = c.logger.With("session", c.id.String())

	if c.driver == nil {
		if ep.scheme == schemeSSH {
			c.driver = &SSHDriver{HostKeyCallback: c.hostKeyCallback, Logger: c.logger, RateLimit: cfg.RateLimit}
		} else {
			c.driver = &WireDriver{TLSConfig: c.tlsConfig, Logger: c.logger, RateLimit: cfg.RateLimit}
		}
	}
	c.facade = NewFacade(c.driver)

	return c, nil
}

// Make creates a client from a loosely typed map with the keys of Config
// ("host", "user", "password", ...). An open Session under "stream" is
// adopted as with WithSession.
func Make(m map[string]any, options ...Option) (*Client, error) {
	var cfg Config
	if err := config.Decode(m, &cfg); err != nil {
		return nil, err
	}
	if s, ok := m["stream"].(Session); ok {
		options = append(options, WithSession(s))
	}
	return New(cfg, options...)
}

// ID identifies the client in log records.
func (c *Client) ID() string {
	return c.id.String()
}

// Facade returns the operation registry used by the client.
func (c *Client) Facade() *Facade {
	return c.facade
}

// Fire runs a facade operation directly.
func (c *Client) Fire(name string, args ...any) (any, error) {
	return c.facade.Fire(name, args...)
}

// Secure reports whether the host scheme requests a TLS transport.
func (c *Client) Secure() bool {
	return c.endpoint.secure()
}

// Connect opens the session and logs in. Connection and login failures are
// returned as *ServerError. Calling Connect on a connected client does
// nothing.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Connected {
		return nil
	}
	if c.endpoint.host == "" {
		return &ServerError{Message: "failed to connect to []", Err: fmt.Errorf("no host configured")}
	}
	c.state = Connecting

	op := "connect"
	if c.endpoint.secure() {
		op = "ssl_connect"
	}
	c.logger.Debug("connecting", "op", op, "host", c.endpoint.host, "port", c.endpoint.port)

	v, err := c.facade.Fire(op, c.endpoint.host, c.endpoint.port, c.cfg.Timeout)
	s, _ := v.(Session)
	if err != nil || s == nil {
		c.state = Disconnected
		return &ServerError{Message: fmt.Sprintf("failed to connect to [%s]", c.endpoint), Err: err}
	}

	if _, err := c.facade.Fire("login", s, c.cfg.User, c.cfg.Password); err != nil {
		if _, cerr := c.facade.Fire("close", s); cerr != nil {
			c.logger.Debug("close after failed login", "error", cerr)
		}
		c.state = Disconnected
		return &ServerError{Message: fmt.Sprintf("failed login to [%s]", c.endpoint), Err: err}
	}

	if _, err := c.facade.Fire("pasv", s, !c.cfg.Active); err != nil {
		_, _ = c.facade.Fire("close", s)
		c.state = Disconnected
		return fmt.Errorf("failed to select data connection mode: %w", err)
	}

	if v, err := c.facade.Fire("systype", s); err != nil {
		c.logger.Debug("systype unavailable", "error", err)
	} else {
		c.system, _ = v.(string)
	}

	c.session = s
	c.state = Connected
	c.logger.Debug("connected", "host", c.endpoint.host, "system", c.system)
	return nil
}

// Connected reports whether the client holds an open session.
func (c *Client) Connected() bool {
	return c.State() == Connected
}

// State returns the lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SystemType returns the SYST reply recorded while connecting, if any.
func (c *Client) SystemType() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.system
}

// Close closes the session. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	c.session = nil
	c.state = Disconnected
	if s == nil {
		return nil
	}

	c.logger.Debug("closing session")
	_, err := c.facade.Fire("close", s)
	return err
}

func (c *Client) fire(name string, args ...any) (any, error) {
	c.mu.Lock()
	s, state := c.session, c.state
	c.mu.Unlock()
	if state != Connected || s == nil {
		return nil, ErrNotConnected
	}
	return c.facade.Fire(name, append([]any{s}, args...)...)
}

// Get downloads remote into the local file.
func (c *Client) Get(remote, local string) error {
	_, err := c.fire("get", remote, local, c.cfg.Mode)
	return err
}

// Put uploads the local file to remote.
func (c *Client) Put(remote, local string) error {
	_, err := c.fire("put", remote, local, c.cfg.Mode)
	return err
}

// Rename renames a remote file.
func (c *Client) Rename(from, to string) error {
	_, err := c.fire("rename", from, to)
	return err
}

// Delete removes a remote file.
func (c *Client) Delete(path string) error {
	_, err := c.fire("delete", path)
	return err
}

// Chmod sets the permission bits of path.
func (c *Client) Chmod(path string, mode os.FileMode) error {
	_, err := c.fire("chmod", path, mode)
	return err
}

// List returns the names in dir.
func (c *Client) List(dir string) ([]string, error) {
	v, err := c.fire("nlist", dir)
	if err != nil {
		return nil, err
	}
	return result[[]string]("nlist", v)
}

// MakeDir creates a remote directory.
func (c *Client) MakeDir(dir string) error {
	_, err := c.fire("mkdir", dir)
	return err
}

// RemoveDir removes an empty remote directory.
func (c *Client) RemoveDir(dir string) error {
	_, err := c.fire("rmdir", dir)
	return err
}

// ChangeDir changes the remote working directory.
func (c *Client) ChangeDir(dir string) error {
	_, err := c.fire("chdir", dir)
	return err
}

// CurrentDir returns the remote working directory.
func (c *Client) CurrentDir() (string, error) {
	v, err := c.fire("pwd")
	if err != nil {
		return "", err
	}
	return result[string]("pwd", v)
}
