package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type sample struct {
	Host    string        `mapstructure:"host"`
	Port    int           `mapstructure:"port"`
	Timeout time.Duration `mapstructure:"timeout"`
	Active  bool          `mapstructure:"active"`
}

func TestDecode(t *testing.T) {
	t.Parallel()
	var s sample
	err := Decode(map[string]any{
		"host":    "ftp://localhost",
		"port":    "2121",
		"timeout": "15s",
		"active":  "1",
		"unknown": "ignored",
	}, &s)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if s.Host != "ftp://localhost" || s.Port != 2121 || s.Timeout != 15*time.Second || !s.Active {
		t.Errorf("Decode() = %+v", s)
	}
}

func TestDecode_Invalid(t *testing.T) {
	t.Parallel()
	var s sample
	if err := Decode(map[string]any{"port": "not-a-number"}, &s); err == nil {
		t.Error("expected error decoding a non numeric port")
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "ftp.yaml")
	content := "host: sftp://files.example.com:2222\ntimeout: 1m\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	var s sample
	if err := Load(path, &s); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Host != "sftp://files.example.com:2222" || s.Timeout != time.Minute {
		t.Errorf("Load() = %+v", s)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()
	var s sample
	if err := Load(filepath.Join(t.TempDir(), "missing.yaml"), &s); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("host: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := Load(path, &s); err == nil {
		t.Error("expected error for malformed YAML")
	}
}
