package ftpwire

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/orchestral/support/internal/ratelimit"
)

// TransferType is the representation type sent with TYPE.
type TransferType string

const (
	TypeBinary TransferType = "I"
	TypeASCII  TransferType = "A"
)

// Type selects the transfer type, skipping the command when it is already
// in effect.
func (c *Conn) Type(t TransferType) error {
	if c.currentType == t {
		return nil
	}
	if _, err := c.expectCode(200, "TYPE", string(t)); err != nil {
		return err
	}
	c.currentType = t
	return nil
}

// Retrieve downloads path into w.
func (c *Conn) Retrieve(path string, w io.Writer, t TransferType) error {
	if err := c.Type(t); err != nil {
		return fmt.Errorf("failed to set transfer type: %w", err)
	}

	tr, err := c.startTransfer("RETR", path)
	if err != nil {
		return err
	}

	_, copyErr := io.Copy(w, ratelimit.NewReader(context.Background(), tr.data, c.limiter))
	finishErr := c.finishTransfer(tr)
	if copyErr != nil {
		return fmt.Errorf("download failed: %w", copyErr)
	}
	return finishErr
}

// Store uploads the content of r to path.
func (c *Conn) Store(path string, r io.Reader, t TransferType) error {
	if err := c.Type(t); err != nil {
		return fmt.Errorf("failed to set transfer type: %w", err)
	}

	tr, err := c.startTransfer("STOR", path)
	if err != nil {
		return err
	}

	_, copyErr := io.Copy(ratelimit.NewWriter(context.Background(), tr.data, c.limiter), r)
	finishErr := c.finishTransfer(tr)
	if copyErr != nil {
		return fmt.Errorf("upload failed: %w", copyErr)
	}
	return finishErr
}

// NameList returns the names in dir (NLST). An empty dir lists the working
// directory.
func (c *Conn) NameList(dir string) ([]string, error) {
	var args []string
	if dir != "" {
		args = append(args, dir)
	}

	tr, err := c.startTransfer("NLST", args...)
	if err != nil {
		return nil, err
	}

	var names []string
	scanner := bufio.NewScanner(tr.data)
	for scanner.Scan() {
		if name := strings.TrimSpace(scanner.Text()); name != "" {
			names = append(names, name)
		}
	}
	scanErr := scanner.Err()

	if err := c.finishTransfer(tr); err != nil {
		return nil, err
	}
	if scanErr != nil {
		return nil, fmt.Errorf("failed to read name list: %w", scanErr)
	}
	return names, nil
}

// ChangeDir changes the working directory (CWD).
func (c *Conn) ChangeDir(dir string) error {
	_, err := c.expect2xx("CWD", dir)
	return err
}

// CurrentDir returns the working directory from a reply such as
// `257 "/home/user" is the current directory`.
func (c *Conn) CurrentDir() (string, error) {
	r, err := c.expect2xx("PWD")
	if err != nil {
		return "", err
	}
	return parseQuotedPath(r.Message)
}

func parseQuotedPath(msg string) (string, error) {
	start := strings.IndexByte(msg, '"')
	if start == -1 {
		return "", fmt.Errorf("invalid PWD response: %s", msg)
	}

	// RFC 959 escapes embedded quotes by doubling them.
	var b strings.Builder
	for i := start + 1; i < len(msg); i++ {
		if msg[i] != '"' {
			b.WriteByte(msg[i])
			continue
		}
		if i+1 < len(msg) && msg[i+1] == '"' {
			b.WriteByte('"')
			i++
			continue
		}
		return b.String(), nil
	}
	return "", fmt.Errorf("invalid PWD response: %s", msg)
}

// MakeDir creates dir (MKD).
func (c *Conn) MakeDir(dir string) error {
	_, err := c.expect2xx("MKD", dir)
	return err
}

// RemoveDir removes dir (RMD).
func (c *Conn) RemoveDir(dir string) error {
	_, err := c.expect2xx("RMD", dir)
	return err
}

// Delete removes a file (DELE).
func (c *Conn) Delete(path string) error {
	_, err := c.expect2xx("DELE", path)
	return err
}

// Rename renames from to to (RNFR, RNTO).
func (c *Conn) Rename(from, to string) error {
	if _, err := c.expectCode(350, "RNFR", from); err != nil {
		return err
	}
	_, err := c.expect2xx("RNTO", to)
	return err
}

// Chmod changes permissions with SITE CHMOD. The setuid, setgid and
// sticky bits of mode are sent as the leading octal digit.
func (c *Conn) Chmod(path string, mode os.FileMode) error {
	_, err := c.expect2xx("SITE", "CHMOD", fmt.Sprintf("%04o", unixPerm(mode)), path)
	return err
}

func unixPerm(mode os.FileMode) uint32 {
	perm := uint32(mode.Perm())
	if mode&os.ModeSetuid != 0 {
		perm |= 0o4000
	}
	if mode&os.ModeSetgid != 0 {
		perm |= 0o2000
	}
	if mode&os.ModeSticky != 0 {
		perm |= 0o1000
	}
	return perm
}
