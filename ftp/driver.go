package ftp

import (
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/orchestral/support/internal/ftpwire"
)

// WireDriver is the default driver for ftp://, sftp:// and ftps:// hosts.
// SecureConnect negotiates explicit TLS (AUTH TLS) on the control
// connection and protects data connections as well.
type WireDriver struct {
	// TLSConfig is used by SecureConnect. A nil config verifies the server
	// against the system roots.
	TLSConfig *tls.Config

	Logger *slog.Logger

	// RateLimit caps transfers in bytes per second; zero means unlimited.
	RateLimit int64
}

func (d *WireDriver) Connect(host string, port int, timeout time.Duration) (Session, error) {
	return d.dial(host, port, timeout)
}

func (d *WireDriver) SecureConnect(host string, port int, timeout time.Duration) (Session, error) {
	return d.dial(host, port, timeout, ftpwire.WithExplicitTLS(d.TLSConfig))
}

func (d *WireDriver) dial(host string, port int, timeout time.Duration, extra ...ftpwire.Option) (Session, error) {
	opts := []ftpwire.Option{
		ftpwire.WithTimeout(timeout),
		ftpwire.WithLogger(d.Logger),
		ftpwire.WithRateLimit(d.RateLimit),
	}
	conn, err := ftpwire.Dial(net.JoinHostPort(host, strconv.Itoa(port)), append(opts, extra...)...)
	if err != nil {
		return nil, err
	}
	return &wireSession{conn: conn}, nil
}

// wireSession adapts an ftpwire.Conn to Session.
type wireSession struct {
	conn *ftpwire.Conn
}

func (s *wireSession) Login(user, password string) error {
	return s.conn.Login(user, password)
}

func (s *wireSession) Passive(on bool) error {
	s.conn.SetPassive(on)
	return nil
}

func (s *wireSession) SystemType() (string, error) {
	return s.conn.System()
}

func (s *wireSession) ChangeDir(dir string) error {
	return s.conn.ChangeDir(dir)
}

func (s *wireSession) CurrentDir() (string, error) {
	return s.conn.CurrentDir()
}

func (s *wireSession) Retrieve(remote string, w io.Writer, mode TransferMode) error {
	return s.conn.Retrieve(remote, w, wireType(mode))
}

func (s *wireSession) Store(remote string, r io.Reader, mode TransferMode) error {
	return s.conn.Store(remote, r, wireType(mode))
}

func (s *wireSession) Rename(from, to string) error {
	return s.conn.Rename(from, to)
}

func (s *wireSession) Delete(path string) error {
	return s.conn.Delete(path)
}

func (s *wireSession) Chmod(path string, mode os.FileMode) error {
	return s.conn.Chmod(path, mode)
}

func (s *wireSession) NameList(dir string) ([]string, error) {
	return s.conn.NameList(dir)
}

func (s *wireSession) MakeDir(dir string) error {
	return s.conn.MakeDir(dir)
}

func (s *wireSession) RemoveDir(dir string) error {
	return s.conn.RemoveDir(dir)
}

func (s *wireSession) Close() error {
	return s.conn.Quit()
}

func wireType(mode TransferMode) ftpwire.TransferType {
	if mode == ASCII {
		return ftpwire.TypeASCII
	}
	return ftpwire.TypeBinary
}
