package ftp

import (
	"bytes"
	"errors"
	"io"
	"net"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/pkg/sftp"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

type brokenConn struct{ net.Conn }

func (brokenConn) Close() error { return errors.New("use of closed network connection") }

// newMemorySSHSession returns a session whose handshake starts an SFTP
// client against an in-memory server over a pipe.
func newMemorySSHSession(t *testing.T, transport io.Closer) *sshSession {
	t.Helper()

	s := newSSHSession(nil, 0)
	s.handshake = func(user, password string) (*sftp.Client, io.Closer, error) {
		if user != "foo" || password != "foobar" {
			return nil, nil, errors.New("ssh: unable to authenticate")
		}

		serverConn, clientConn := net.Pipe()
		server := sftp.NewRequestServer(serverConn, sftp.InMemHandler())
		go server.Serve()
		t.Cleanup(func() { server.Close() })

		client, err := sftp.NewClientPipe(clientConn, clientConn)
		if err != nil {
			return nil, nil, err
		}
		return client, transport, nil
	}
	return s
}

func TestSSHSession(t *testing.T) {
	t.Parallel()
	s := newMemorySSHSession(t, closerFunc(func() error { return nil }))

	if _, err := s.CurrentDir(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("CurrentDir() before Login error = %v, want ErrNotConnected", err)
	}
	if err := s.Login("foo", "foobar"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	defer s.Close()

	if err := s.MakeDir("/var"); err != nil {
		t.Fatalf("MakeDir() error = %v", err)
	}
	if err := s.ChangeDir("/var"); err != nil {
		t.Fatalf("ChangeDir() error = %v", err)
	}
	if dir, _ := s.CurrentDir(); dir != "/var" {
		t.Errorf("CurrentDir() = %q, want /var", dir)
	}
	if err := s.MakeDir("www"); err != nil {
		t.Fatalf("MakeDir() relative error = %v", err)
	}
	if err := s.ChangeDir("www"); err != nil {
		t.Fatal(err)
	}

	if err := s.Store("home.php", strings.NewReader("<?php"), Binary); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	var buf bytes.Buffer
	if err := s.Retrieve("/var/www/home.php", &buf, Binary); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if buf.String() != "<?php" {
		t.Errorf("Retrieve() = %q", buf.String())
	}

	if err := s.Rename("home.php", "dashboard.php"); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if err := s.Chmod("dashboard.php", 0o644); err != nil {
		t.Errorf("Chmod() error = %v", err)
	}
	if err := s.ChangeDir("dashboard.php"); err == nil {
		t.Error("ChangeDir() into a file should fail")
	}

	names, err := s.NameList("")
	if err != nil {
		t.Fatalf("NameList() error = %v", err)
	}
	if !slices.Equal(names, []string{"dashboard.php"}) {
		t.Errorf("NameList() = %v", names)
	}

	if err := s.Delete("dashboard.php"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.ChangeDir(".."); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveDir("www"); err != nil {
		t.Errorf("RemoveDir() error = %v", err)
	}
	if names, _ := s.NameList("/var"); len(names) != 0 {
		t.Errorf("NameList(/var) = %v, want empty", names)
	}

	if sys, _ := s.SystemType(); sys == "" {
		t.Error("SystemType() is empty")
	}
	if err := s.Passive(false); err != nil {
		t.Errorf("Passive() error = %v", err)
	}
}

func TestSSHSessionLoginFailure(t *testing.T) {
	t.Parallel()
	s := newMemorySSHSession(t, nil)

	if err := s.Login("foo", "wrong"); err == nil {
		t.Fatal("Login() should fail with wrong credentials")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestSSHSessionCloseAggregatesErrors(t *testing.T) {
	t.Parallel()
	transportErr := errors.New("transport already closed")
	s := newMemorySSHSession(t, closerFunc(func() error { return transportErr }))
	if err := s.Login("foo", "foobar"); err != nil {
		t.Fatal(err)
	}

	s.conn = brokenConn{}

	err := s.Close()
	if !errors.Is(err, transportErr) {
		t.Fatalf("Close() error = %v, want wrapped transport error", err)
	}
	if !strings.Contains(err.Error(), "tcp:") {
		t.Errorf("Close() error = %v, want the tcp error as well", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestSSHClientThroughFacade(t *testing.T) {
	t.Parallel()
	driver := &memorySSHDriver{t: t}
	c, err := New(Config{Host: "ssh://example.com", User: "foo", Password: "foobar"}, WithDriver(driver))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if driver.plain != 1 {
		t.Errorf("ssh:// should use connect, got %d plain dials", driver.plain)
	}
	if err := c.MakeDir("/deploy"); err != nil {
		t.Fatal(err)
	}
	if names, err := c.List("/"); err != nil || !slices.Equal(names, []string{"deploy"}) {
		t.Errorf("List() = %v, %v", names, err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

type memorySSHDriver struct {
	t     *testing.T
	plain int
}

func (d *memorySSHDriver) Connect(string, int, time.Duration) (Session, error) {
	d.plain++
	return newMemorySSHSession(d.t, closerFunc(func() error { return nil })), nil
}

func (d *memorySSHDriver) SecureConnect(host string, port int, timeout time.Duration) (Session, error) {
	return nil, errors.New("unexpected secure connect")
}
