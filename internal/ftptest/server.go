// Package ftptest runs an in-memory FTP server on the loopback interface for
// tests. It implements the subset of RFC 959 the support packages use,
// explicit TLS (RFC 4217) and both passive and active data connections.
package ftptest

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

// HandlerFunc answers a single command. arg is everything after the
// command verb.
type HandlerFunc func(s *Session, arg string)

// Option configures a Server.
type Option func(*Server)

// WithTLS enables AUTH TLS using a freshly generated self-signed
// certificate for 127.0.0.1 and localhost.
func WithTLS() Option {
	return func(s *Server) {
		s.enableTLS = true
	}
}

// WithCredentials restricts login to user and password. Without it any
// credentials are accepted.
func WithCredentials(user, password string) Option {
	return func(s *Server) {
		s.user, s.password = user, password
	}
}

// Server is a scripted FTP server.
type Server struct {
	t         testing.TB
	listener  net.Listener
	enableTLS bool
	tlsConfig *tls.Config
	roots     *x509.CertPool

	user, password string

	mu       sync.Mutex
	files    map[string][]byte
	modes    map[string]os.FileMode
	dirs     map[string]bool
	commands []string
	handlers map[string]HandlerFunc
	sessions map[*Session]struct{}

	wg sync.WaitGroup
}

// NewServer starts a server and registers its shutdown with t.Cleanup.
func NewServer(t testing.TB, opts ...Option) *Server {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ftptest: listen: %v", err)
	}

	s := &Server{
		t:        t,
		listener: ln,
		files:    make(map[string][]byte),
		modes:    make(map[string]os.FileMode),
		dirs:     map[string]bool{"/": true},
		handlers: make(map[string]HandlerFunc),
		sessions: make(map[*Session]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.enableTLS {
		s.tlsConfig, s.roots = selfSignedTLS(t)
	}

	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

// Addr returns the control address as "127.0.0.1:port".
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Port returns the control port.
func (s *Server) Port() string {
	_, port, _ := net.SplitHostPort(s.Addr())
	return port
}

// ClientTLSConfig returns a client configuration trusting the server
// certificate. It is nil unless the server was created WithTLS.
func (s *Server) ClientTLSConfig() *tls.Config {
	if s.roots == nil {
		return nil
	}
	return &tls.Config{RootCAs: s.roots, ServerName: "127.0.0.1"}
}

// Handle overrides the server's behaviour for command.
func (s *Server) Handle(command string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[strings.ToUpper(command)] = h
}

// PutFile stores a file, creating its parent directories.
func (s *Server) PutFile(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name = path.Clean("/" + name)
	s.files[name] = append([]byte(nil), data...)
	s.mkdirAllLocked(path.Dir(name))
}

// File returns the content of a stored file.
func (s *Server) File(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[path.Clean("/"+name)]
	return data, ok
}

// Mode returns the permissions last set with SITE CHMOD.
func (s *Server) Mode(name string) os.FileMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modes[path.Clean("/"+name)]
}

// HasDir reports whether dir exists.
func (s *Server) HasDir(dir string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirs[path.Clean("/"+dir)]
}

// Commands returns the verbs received so far, in order.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Close stops the server and drops every open session.
func (s *Server) Close() {
	s.listener.Close()
	s.mu.Lock()
	for sess := range s.sessions {
		sess.raw.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		sess := &Session{srv: s, raw: conn, conn: conn, text: textproto.NewConn(conn), cwd: "/"}

		s.mu.Lock()
		s.sessions[sess] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sess.run()
			s.mu.Lock()
			delete(s.sessions, sess)
			s.mu.Unlock()
		}()
	}
}

func (s *Server) mkdirAllLocked(dir string) {
	for dir != "/" && dir != "." {
		s.dirs[dir] = true
		dir = path.Dir(dir)
	}
}

// Session is one client connection.
type Session struct {
	srv *Server
	// raw is the accepted TCP connection, conn may wrap it in TLS
	raw  net.Conn
	conn net.Conn
	text *textproto.Conn
	cwd  string

	user       string
	protect    bool
	renameFrom string

	// pending receives the accepted passive data connection
	pending chan net.Conn
	// activeAddr is the address announced with PORT or EPRT
	activeAddr string
}

// Reply writes a single line reply.
func (s *Session) Reply(code int, format string, args ...any) {
	_ = s.text.PrintfLine("%d %s", code, fmt.Sprintf(format, args...))
}

// Resolve makes name absolute against the working directory.
func (s *Session) Resolve(name string) string {
	if strings.HasPrefix(name, "/") {
		return path.Clean(name)
	}
	return path.Join(s.cwd, name)
}

func (s *Session) run() {
	defer s.conn.Close()
	s.Reply(220, "ftptest ready")

	for {
		line, err := s.text.ReadLine()
		if err != nil {
			return
		}

		verb, arg, _ := strings.Cut(line, " ")
		verb = strings.ToUpper(verb)

		s.srv.mu.Lock()
		s.srv.commands = append(s.srv.commands, verb)
		h, ok := s.srv.handlers[verb]
		s.srv.mu.Unlock()

		if ok {
			h(s, arg)
			continue
		}
		if verb == "QUIT" {
			s.Reply(221, "Goodbye")
			return
		}
		s.dispatch(verb, arg)
	}
}

func (s *Session) dispatch(verb, arg string) {
	srv := s.srv
	switch verb {
	case "USER":
		s.user = arg
		s.Reply(331, "Password required")
	case "PASS":
		if srv.user != "" && (s.user != srv.user || arg != srv.password) {
			s.Reply(530, "Login incorrect")
			return
		}
		s.Reply(230, "Logged in")
	case "AUTH":
		s.auth()
	case "PBSZ":
		s.Reply(200, "PBSZ=0")
	case "PROT":
		s.protect = strings.EqualFold(arg, "P")
		s.Reply(200, "Protection level set")
	case "SYST":
		s.Reply(215, "UNIX Type: L8")
	case "TYPE", "NOOP":
		s.Reply(200, "OK")
	case "PWD":
		s.Reply(257, "%q is the current directory", s.cwd)
	case "CWD":
		dir := s.Resolve(arg)
		if !srv.HasDir(dir) {
			s.Reply(550, "No such directory")
			return
		}
		s.cwd = dir
		s.Reply(250, "Directory changed")
	case "MKD":
		dir := s.Resolve(arg)
		srv.mu.Lock()
		srv.mkdirAllLocked(dir)
		srv.mu.Unlock()
		s.Reply(257, "%q created", dir)
	case "RMD":
		dir := s.Resolve(arg)
		srv.mu.Lock()
		ok := srv.dirs[dir]
		delete(srv.dirs, dir)
		srv.mu.Unlock()
		if !ok {
			s.Reply(550, "No such directory")
			return
		}
		s.Reply(250, "Directory removed")
	case "DELE":
		name := s.Resolve(arg)
		srv.mu.Lock()
		_, ok := srv.files[name]
		delete(srv.files, name)
		srv.mu.Unlock()
		if !ok {
			s.Reply(550, "No such file")
			return
		}
		s.Reply(250, "File deleted")
	case "RNFR":
		name := s.Resolve(arg)
		if _, ok := srv.File(name); !ok {
			s.Reply(550, "No such file")
			return
		}
		s.renameFrom = name
		s.Reply(350, "Ready for RNTO")
	case "RNTO":
		if s.renameFrom == "" {
			s.Reply(503, "Bad sequence of commands")
			return
		}
		srv.mu.Lock()
		srv.files[s.Resolve(arg)] = srv.files[s.renameFrom]
		delete(srv.files, s.renameFrom)
		srv.mu.Unlock()
		s.renameFrom = ""
		s.Reply(250, "Rename successful")
	case "SITE":
		s.site(arg)
	case "EPSV":
		port := s.listenPassive()
		s.Reply(229, "Entering Extended Passive Mode (|||%d|)", port)
	case "PASV":
		port := s.listenPassive()
		s.Reply(227, "Entering Passive Mode (127,0,0,1,%d,%d)", port>>8, port&0xff)
	case "PORT":
		s.port(arg)
	case "EPRT":
		s.eprt(arg)
	case "RETR":
		s.retrieve(arg)
	case "STOR":
		s.store(arg)
	case "NLST":
		s.nameList(arg)
	default:
		s.Reply(502, "Command not implemented")
	}
}

func (s *Session) auth() {
	if s.srv.tlsConfig == nil {
		s.Reply(502, "TLS not available")
		return
	}
	s.Reply(234, "AUTH TLS successful")

	tlsConn := tls.Server(s.conn, s.srv.tlsConfig)
	_ = tlsConn.SetDeadline(time.Now().Add(5 * time.Second))
	if err := tlsConn.Handshake(); err != nil {
		s.conn.Close()
		return
	}
	_ = tlsConn.SetDeadline(time.Time{})
	s.conn = tlsConn
	s.text = textproto.NewConn(tlsConn)
}

func (s *Session) site(arg string) {
	fields := strings.Fields(arg)
	if len(fields) != 3 || !strings.EqualFold(fields[0], "CHMOD") {
		s.Reply(501, "Syntax error")
		return
	}
	var mode uint32
	if _, err := fmt.Sscanf(fields[1], "%o", &mode); err != nil {
		s.Reply(501, "Invalid mode")
		return
	}
	name := s.Resolve(fields[2])
	s.srv.mu.Lock()
	s.srv.modes[name] = os.FileMode(mode)
	s.srv.mu.Unlock()
	s.Reply(200, "SITE CHMOD command ok")
}

func (s *Session) listenPassive() int {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		s.srv.t.Errorf("ftptest: passive listen: %v", err)
		return 0
	}

	ch := make(chan net.Conn, 1)
	protect := s.protect
	go func() {
		defer ln.Close()
		_ = ln.(*net.TCPListener).SetDeadline(time.Now().Add(5 * time.Second))
		conn, err := ln.Accept()
		if err != nil {
			close(ch)
			return
		}
		conn, err = s.secureData(conn, protect)
		if err != nil {
			close(ch)
			return
		}
		ch <- conn
	}()

	s.pending = ch
	s.activeAddr = ""
	return ln.Addr().(*net.TCPAddr).Port
}

func (s *Session) port(arg string) {
	var h [4]int
	var p1, p2 int
	if _, err := fmt.Sscanf(arg, "%d,%d,%d,%d,%d,%d", &h[0], &h[1], &h[2], &h[3], &p1, &p2); err != nil {
		s.Reply(501, "Invalid PORT")
		return
	}
	host := fmt.Sprintf("%d.%d.%d.%d", h[0], h[1], h[2], h[3])
	s.activeAddr = net.JoinHostPort(host, fmt.Sprint(p1<<8|p2))
	s.pending = nil
	s.Reply(200, "PORT command successful")
}

func (s *Session) eprt(arg string) {
	parts := strings.Split(arg, "|")
	if len(parts) != 5 {
		s.Reply(501, "Invalid EPRT")
		return
	}
	s.activeAddr = net.JoinHostPort(parts[2], parts[3])
	s.pending = nil
	s.Reply(200, "EPRT command successful")
}

func (s *Session) secureData(conn net.Conn, protect bool) (net.Conn, error) {
	if !protect || s.srv.tlsConfig == nil {
		return conn, nil
	}
	tlsConn := tls.Server(conn, s.srv.tlsConfig)
	_ = tlsConn.SetDeadline(time.Now().Add(5 * time.Second))
	if err := tlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, err
	}
	_ = tlsConn.SetDeadline(time.Time{})
	return tlsConn, nil
}

// dataConn returns the data connection prepared by the last PASV, EPSV,
// PORT or EPRT.
func (s *Session) dataConn() (net.Conn, error) {
	switch {
	case s.pending != nil:
		ch := s.pending
		s.pending = nil
		select {
		case conn, ok := <-ch:
			if !ok {
				return nil, fmt.Errorf("passive connection failed")
			}
			return conn, nil
		case <-time.After(5 * time.Second):
			return nil, fmt.Errorf("passive connection timed out")
		}
	case s.activeAddr != "":
		addr := s.activeAddr
		s.activeAddr = ""
		conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
		if err != nil {
			return nil, err
		}
		return s.secureData(conn, s.protect)
	default:
		return nil, fmt.Errorf("no data connection")
	}
}

// transfer opens the data connection, announces it and runs fn on it.
func (s *Session) transfer(fn func(conn net.Conn) error) {
	s.Reply(150, "Opening data connection")
	conn, err := s.dataConn()
	if err != nil {
		s.Reply(425, "Can't open data connection")
		return
	}
	err = fn(conn)
	conn.Close()
	if err != nil {
		s.Reply(426, "Transfer aborted")
		return
	}
	s.Reply(226, "Transfer complete")
}

func (s *Session) discardData() {
	if s.pending != nil {
		go func(ch chan net.Conn) {
			if conn, ok := <-ch; ok {
				conn.Close()
			}
		}(s.pending)
	}
	s.pending = nil
	s.activeAddr = ""
}

func (s *Session) retrieve(arg string) {
	data, ok := s.srv.File(s.Resolve(arg))
	if !ok {
		s.discardData()
		s.Reply(550, "No such file")
		return
	}
	s.transfer(func(conn net.Conn) error {
		_, err := conn.Write(data)
		return err
	})
}

func (s *Session) store(arg string) {
	name := s.Resolve(arg)
	s.transfer(func(conn net.Conn) error {
		data, err := io.ReadAll(conn)
		if err != nil {
			return err
		}
		s.srv.PutFile(name, data)
		return nil
	})
}

func (s *Session) nameList(arg string) {
	dir := s.cwd
	if arg != "" {
		dir = s.Resolve(arg)
	}

	s.srv.mu.Lock()
	var names []string
	for name := range s.srv.files {
		if path.Dir(name) == dir {
			names = append(names, path.Base(name))
		}
	}
	for name := range s.srv.dirs {
		if name != "/" && path.Dir(name) == dir {
			names = append(names, path.Base(name))
		}
	}
	s.srv.mu.Unlock()
	sort.Strings(names)

	s.transfer(func(conn net.Conn) error {
		for _, name := range names {
			if _, err := fmt.Fprintf(conn, "%s\r\n", name); err != nil {
				return err
			}
		}
		return nil
	})
}
