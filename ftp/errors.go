package ftp

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by file operations on a client that is not
// connected.
var ErrNotConnected = errors.New("ftp: not connected")

// ServerError reports that the server could not be reached or rejected the
// credentials.
type ServerError struct {
	// Message is e.g. "failed to connect to [ftp.example.com]"
	Message string

	// Err is the underlying driver error, if any
	Err error
}

func (e *ServerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ftp: %s: %v", e.Message, e.Err)
	}
	return "ftp: " + e.Message
}

func (e *ServerError) Unwrap() error {
	return e.Err
}

// RuntimeError reports a facade call that cannot be dispatched: an unknown
// operation name or arguments of the wrong type.
type RuntimeError struct {
	Operation string
	Message   string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("ftp: %s: %s", e.Operation, e.Message)
}
