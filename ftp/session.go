package ftp

import (
	"io"
	"os"
	"time"
)

// Session is an open connection to a file server.
type Session interface {
	Login(user, password string) error
	// Passive switches between passive and active data connections. Drivers
	// without the distinction ignore it.
	Passive(on bool) error
	SystemType() (string, error)

	ChangeDir(dir string) error
	CurrentDir() (string, error)

	Retrieve(remote string, w io.Writer, mode TransferMode) error
	Store(remote string, r io.Reader, mode TransferMode) error

	Rename(from, to string) error
	Delete(path string) error
	Chmod(path string, mode os.FileMode) error
	NameList(dir string) ([]string, error)
	MakeDir(dir string) error
	RemoveDir(dir string) error

	Close() error
}

// Driver opens sessions. Connect is used for plain hosts and SecureConnect
// for TLS protected ones.
type Driver interface {
	Connect(host string, port int, timeout time.Duration) (Session, error)
	SecureConnect(host string, port int, timeout time.Duration) (Session, error)
}
