package ftp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/orchestral/support/internal/ratelimit"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/time/rate"
)

// SSHDriver serves ssh:// hosts over the SFTP subsystem. Connect only opens
// the TCP connection; the SSH handshake happens at Login, where the
// credentials are known.
type SSHDriver struct {
	// HostKeyCallback verifies the server key. Nil accepts any key.
	HostKeyCallback ssh.HostKeyCallback

	Logger *slog.Logger

	// RateLimit caps transfers in bytes per second; zero means unlimited.
	RateLimit int64
}

func (d *SSHDriver) Connect(host string, port int, timeout time.Duration) (Session, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	hostKey := d.HostKeyCallback
	if hostKey == nil {
		hostKey = ssh.InsecureIgnoreHostKey()
	}

	s := newSSHSession(d.Logger, d.RateLimit)
	s.conn = conn
	s.handshake = func(user, password string) (*sftp.Client, io.Closer, error) {
		cfg := &ssh.ClientConfig{
			User:            user,
			Auth:            []ssh.AuthMethod{ssh.Password(password)},
			HostKeyCallback: hostKey,
			Timeout:         timeout,
		}

		if timeout > 0 {
			_ = conn.SetDeadline(time.Now().Add(timeout))
		}
		c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
		if err != nil {
			return nil, nil, err
		}
		_ = conn.SetDeadline(time.Time{})

		client := ssh.NewClient(c, chans, reqs)
		sc, err := sftp.NewClient(client)
		if err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to start sftp subsystem: %w", err)
		}
		return sc, client, nil
	}
	return s, nil
}

// SecureConnect is Connect: the SSH transport is always encrypted.
func (d *SSHDriver) SecureConnect(host string, port int, timeout time.Duration) (Session, error) {
	return d.Connect(host, port, timeout)
}

// sshSession keeps its own working directory because SFTP has no notion
// of one.
type sshSession struct {
	handshake func(user, password string) (*sftp.Client, io.Closer, error)

	// conn is the TCP connection until Login hands it to the SSH client
	conn      net.Conn
	client    *sftp.Client
	transport io.Closer

	cwd     string
	limiter *rate.Limiter
	logger  *slog.Logger
}

func newSSHSession(logger *slog.Logger, bytesPerSecond int64) *sshSession {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sshSession{
		cwd:     "/",
		limiter: ratelimit.New(bytesPerSecond),
		logger:  logger,
	}
}

func (s *sshSession) Login(user, password string) error {
	if s.client != nil {
		return nil
	}
	client, transport, err := s.handshake(user, password)
	if err != nil {
		return err
	}
	s.client, s.transport, s.conn = client, transport, nil

	if wd, err := client.Getwd(); err == nil && wd != "" {
		s.cwd = wd
	}
	s.logger.Debug("sftp session started", "cwd", s.cwd)
	return nil
}

func (s *sshSession) ready() error {
	if s.client == nil {
		return ErrNotConnected
	}
	return nil
}

func (s *sshSession) resolve(name string) string {
	if path.IsAbs(name) {
		return path.Clean(name)
	}
	return path.Join(s.cwd, name)
}

// Passive is meaningless over SSH.
func (s *sshSession) Passive(bool) error {
	return nil
}

func (s *sshSession) SystemType() (string, error) {
	return "UNIX Type: SFTP", nil
}

func (s *sshSession) ChangeDir(dir string) error {
	if err := s.ready(); err != nil {
		return err
	}
	p := s.resolve(dir)
	fi, err := s.client.Stat(p)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s: not a directory", p)
	}
	s.cwd = p
	return nil
}

func (s *sshSession) CurrentDir() (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	return s.cwd, nil
}

// Retrieve copies remote into w. SFTP transfers are always binary.
func (s *sshSession) Retrieve(remote string, w io.Writer, _ TransferMode) error {
	if err := s.ready(); err != nil {
		return err
	}
	f, err := s.client.Open(s.resolve(remote))
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(w, ratelimit.NewReader(context.Background(), f, s.limiter)); err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	return nil
}

func (s *sshSession) Store(remote string, r io.Reader, _ TransferMode) error {
	if err := s.ready(); err != nil {
		return err
	}
	f, err := s.client.Create(s.resolve(remote))
	if err != nil {
		return err
	}

	if _, err := io.Copy(ratelimit.NewWriter(context.Background(), f, s.limiter), r); err != nil {
		f.Close()
		return fmt.Errorf("upload failed: %w", err)
	}
	return f.Close()
}

func (s *sshSession) Rename(from, to string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.client.Rename(s.resolve(from), s.resolve(to))
}

func (s *sshSession) Delete(name string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.client.Remove(s.resolve(name))
}

func (s *sshSession) Chmod(name string, mode os.FileMode) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.client.Chmod(s.resolve(name), mode)
}

func (s *sshSession) NameList(dir string) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if dir == "" {
		dir = s.cwd
	}
	entries, err := s.client.ReadDir(s.resolve(dir))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, fi := range entries {
		names = append(names, fi.Name())
	}
	return names, nil
}

func (s *sshSession) MakeDir(dir string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.client.Mkdir(s.resolve(dir))
}

func (s *sshSession) RemoveDir(dir string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.client.RemoveDirectory(s.resolve(dir))
}

// Close shuts down the SFTP client, the SSH transport and any connection
// not yet handed over, reporting every failure.
func (s *sshSession) Close() error {
	var result *multierror.Error

	if s.client != nil {
		if err := s.client.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("sftp: %w", err))
		}
		s.client = nil
	}
	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("ssh: %w", err))
		}
		s.transport = nil
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("tcp: %w", err))
		}
		s.conn = nil
	}
	return result.ErrorOrNil()
}
