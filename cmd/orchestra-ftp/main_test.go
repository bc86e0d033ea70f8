package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/orchestral/support/internal/ftptest"
)

func run(t *testing.T, srv *ftptest.Server, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	argv := append([]string{"orchestra-ftp", "--host", "ftp://127.0.0.1:" + srv.Port(), "--user", "deploy", "--password", "secret", "--timeout", "5s"}, args...)
	err := newApp(&stdout, &stderr).Run(context.Background(), argv)
	return stdout.String(), err
}

func TestCommands(t *testing.T) {
	t.Parallel()
	srv := ftptest.NewServer(t, ftptest.WithCredentials("deploy", "secret"))
	srv.PutFile("/www/index.html", []byte("<h1>hello</h1>"))

	out, err := run(t, srv, "ls", "/www")
	if err != nil {
		t.Fatalf("ls error = %v", err)
	}
	if out != "index.html\n" {
		t.Errorf("ls output = %q", out)
	}

	out, err = run(t, srv, "pwd")
	if err != nil || out != "/\n" {
		t.Errorf("pwd = %q, %v", out, err)
	}

	local := filepath.Join(t.TempDir(), "index.html")
	out, err = run(t, srv, "get", "/www/index.html", local)
	if err != nil {
		t.Fatalf("get error = %v", err)
	}
	if !strings.HasPrefix(out, "downloaded /www/index.html (14 B)") {
		t.Errorf("get output = %q", out)
	}
	if data, _ := os.ReadFile(local); string(data) != "<h1>hello</h1>" {
		t.Errorf("downloaded %q", data)
	}

	if _, err := run(t, srv, "put", local, "/www/copy.html"); err != nil {
		t.Fatalf("put error = %v", err)
	}
	if data, _ := srv.File("/www/copy.html"); string(data) != "<h1>hello</h1>" {
		t.Errorf("uploaded %q", data)
	}

	steps := [][]string{
		{"mv", "/www/copy.html", "/www/about.html"},
		{"chmod", "640", "/www/about.html"},
		{"mkdir", "/www/assets"},
		{"rmdir", "/www/assets"},
		{"rm", "/www/about.html"},
	}
	for _, step := range steps {
		if _, err := run(t, srv, step...); err != nil {
			t.Fatalf("%v error = %v", step, err)
		}
	}
	if srv.Mode("/www/about.html") != 0o640 {
		t.Errorf("mode = %o", srv.Mode("/www/about.html"))
	}
	if _, ok := srv.File("/www/about.html"); ok {
		t.Error("rm did not delete the file")
	}

	srv.PutFile("/bin/tool", []byte("#!/bin/sh"))
	if _, err := run(t, srv, "chmod", "4755", "/bin/tool"); err != nil {
		t.Fatalf("chmod error = %v", err)
	}
	if got := srv.Mode("/bin/tool"); got != 0o4755 {
		t.Errorf("setuid mode = %o, want 4755", got)
	}
	if srv.HasDir("/www/assets") {
		t.Error("rmdir did not remove the directory")
	}
}

func TestCommandErrors(t *testing.T) {
	t.Parallel()
	srv := ftptest.NewServer(t, ftptest.WithCredentials("deploy", "secret"))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing arguments", []string{"get", "/only-remote"}, "expected remote local"},
		{"bad mode", []string{"chmod", "rwx", "/f"}, "invalid mode"},
		{"mode out of range", []string{"chmod", "17777", "/f"}, "invalid mode"},
		{"bad rate limit", []string{"--rate-limit", "fast", "ls"}, "invalid rate limit"},
		{"missing file", []string{"rm", "/nope"}, "550"},
	}

	for _, tt := range tests {
		_, err := run(t, srv, tt.args...)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: error = %v, want %q", tt.name, err, tt.want)
		}
	}
}

func TestConfigFile(t *testing.T) {
	t.Parallel()
	srv := ftptest.NewServer(t, ftptest.WithCredentials("deploy", "secret"))
	srv.PutFile("/a.txt", nil)

	path := filepath.Join(t.TempDir(), "ftp.yaml")
	cfg := "host: ftp://127.0.0.1:" + srv.Port() + "\nuser: deploy\npassword: secret\ntimeout: 5s\nrateLimit: 1048576\n"
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}

	var stdout bytes.Buffer
	err := newApp(&stdout, &bytes.Buffer{}).Run(context.Background(), []string{"orchestra-ftp", "--config", path, "ls", "/"})
	if err != nil {
		t.Fatalf("ls error = %v", err)
	}
	if stdout.String() != "a.txt\n" {
		t.Errorf("ls output = %q", stdout.String())
	}
}

func TestMissingHost(t *testing.T) {
	t.Setenv("FTP_HOST", "")
	err := newApp(&bytes.Buffer{}, &bytes.Buffer{}).Run(context.Background(), []string{"orchestra-ftp", "pwd"})
	if err == nil || !strings.Contains(err.Error(), "no host") {
		t.Errorf("error = %v", err)
	}
}
