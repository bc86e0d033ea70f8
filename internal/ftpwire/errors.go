package ftpwire

import "fmt"

// ProtocolError is returned when the server answers a command with an
// unexpected reply code.
type ProtocolError struct {
	// Command is the command that was sent, without arguments (e.g. "STOR")
	Command string

	// Response is the reply text (e.g. "Permission denied")
	Response string

	// Code is the numeric reply code (e.g. 550)
	Code int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ftp: %s failed: %s (code %d)", e.Command, e.Response, e.Code)
}

// IsTemporary reports a transient negative reply (4xx) that may succeed
// when retried.
func (e *ProtocolError) IsTemporary() bool {
	return e.Code >= 400 && e.Code < 500
}

// IsPermanent reports a permanent negative reply (5xx).
func (e *ProtocolError) IsPermanent() bool {
	return e.Code >= 500 && e.Code < 600
}

func protocolError(command string, r *Reply) *ProtocolError {
	return &ProtocolError{Command: command, Response: r.Message, Code: r.Code}
}
