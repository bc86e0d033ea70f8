package str

import (
	"database/sql/driver"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// StreamContents converts data returned by a database driver into a string.
//
// Strings and byte slices are returned as is. An io.Reader is drained; when
// its content is a hex dump, optionally prefixed with the "x" or "\x" marker
// PostgreSQL uses for BYTEA columns, the decoded bytes are returned instead.
func StreamContents(data any) (string, error) {
	switch v := data.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case io.Reader:
		b, err := io.ReadAll(v)
		if err != nil {
			return "", fmt.Errorf("read stream: %w", err)
		}
		return decodeHexDump(string(b)), nil
	default:
		return "", fmt.Errorf("unsupported stream type %T", data)
	}
}

func decodeHexDump(s string) string {
	if rest, ok := strings.CutPrefix(s, `\x`); ok {
		s = rest
	} else {
		s = strings.TrimPrefix(s, "x")
	}
	if !isHex(s) {
		return s
	}
	return fromHex(s)
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}

// fromHex decodes pairs of hex digits; a trailing odd digit is dropped.
func fromHex(s string) string {
	b, err := hex.DecodeString(s[:len(s)&^1])
	if err != nil {
		return s
	}
	return string(b)
}

// Bytea is a sql.Scanner that decodes hex encoded BYTEA column values.
type Bytea string

// Scan implements sql.Scanner.
func (b *Bytea) Scan(src any) error {
	var (
		s   string
		err error
	)
	switch v := src.(type) {
	case nil:
		s = ""
	case []byte:
		s, err = StreamContents(strings.NewReader(string(v)))
	case string:
		s, err = StreamContents(strings.NewReader(v))
	default:
		return fmt.Errorf("bytea: cannot scan %T", src)
	}
	if err != nil {
		return err
	}
	*b = Bytea(s)
	return nil
}

// Value implements driver.Valuer.
func (b Bytea) Value() (driver.Value, error) {
	return string(b), nil
}
