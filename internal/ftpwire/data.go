package ftpwire

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"time"
)

var (
	// (h1,h2,h3,h4,p1,p2) of a 227 reply
	pasvAddrRe = regexp.MustCompile(`\((\d+),(\d+),(\d+),(\d+),(\d+),(\d+)\)`)

	// (|||port|) of a 229 reply
	epsvPortRe = regexp.MustCompile(`\(\|\|\|(\d+)\|\)`)
)

// parsePASV turns "Entering Passive Mode (192,168,1,1,195,149)" into
// "192.168.1.1:50069".
func parsePASV(msg string) (string, error) {
	m := pasvAddrRe.FindStringSubmatch(msg)
	if m == nil {
		return "", fmt.Errorf("invalid PASV response: %s", msg)
	}

	var n [6]int
	for i := range n {
		v, err := strconv.Atoi(m[i+1])
		if err != nil || v > 255 {
			return "", fmt.Errorf("invalid PASV field: %s", m[i+1])
		}
		n[i] = v
	}

	host := fmt.Sprintf("%d.%d.%d.%d", n[0], n[1], n[2], n[3])
	return net.JoinHostPort(host, strconv.Itoa(n[4]<<8|n[5])), nil
}

// parseEPSV extracts the port of "Entering Extended Passive Mode (|||6446|)".
func parseEPSV(msg string) (string, error) {
	m := epsvPortRe.FindStringSubmatch(msg)
	if m == nil {
		return "", fmt.Errorf("invalid EPSV response: %s", msg)
	}
	if port, err := strconv.Atoi(m[1]); err != nil || port < 1 || port > 65535 {
		return "", fmt.Errorf("invalid EPSV port: %s", m[1])
	}
	return m[1], nil
}

// formatPORT renders "192.168.1.100:50000" as "192,168,1,100,195,80".
func formatPORT(addr string) (string, error) {
	ip, port, err := splitIPPort(addr)
	if err != nil {
		return "", err
	}
	v4 := ip.To4()
	if v4 == nil {
		return "", fmt.Errorf("PORT requires an IPv4 address: %s", ip)
	}
	return fmt.Sprintf("%d,%d,%d,%d,%d,%d", v4[0], v4[1], v4[2], v4[3], port>>8, port&0xff), nil
}

// formatEPRT renders an address as "|proto|addr|port|" (RFC 2428).
func formatEPRT(addr string) (string, error) {
	ip, port, err := splitIPPort(addr)
	if err != nil {
		return "", err
	}
	proto := 2
	if ip.To4() != nil {
		proto = 1
	}
	return fmt.Sprintf("|%d|%s|%d|", proto, ip, port), nil
}

func splitIPPort(addr string) (net.IP, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, 0, err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, 0, fmt.Errorf("invalid IP address: %s", host)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid port: %s", portStr)
	}
	return ip, port, nil
}

func (c *Conn) isPassive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.passive
}

// openData prepares a data connection for the next transfer command.
func (c *Conn) openData() (io.ReadWriteCloser, error) {
	if c.isPassive() {
		return c.openPassive()
	}
	return c.openActive()
}

func (c *Conn) openPassive() (io.ReadWriteCloser, error) {
	var addr string

	if !c.epsvFailed {
		r, err := c.cmd("EPSV")
		if err != nil {
			return nil, fmt.Errorf("EPSV failed: %w", err)
		}
		if r.is(2) {
			if port, err := parseEPSV(r.Message); err == nil {
				addr = net.JoinHostPort(c.host, port)
			}
		} else {
			c.epsvFailed = true
		}
	}

	if addr == "" {
		r, err := c.expect2xx("PASV")
		if err != nil {
			return nil, err
		}
		if addr, err = parsePASV(r.Message); err != nil {
			return nil, err
		}
		// Servers behind NAT often advertise an unroutable address.
		if host, port, _ := net.SplitHostPort(addr); host == "0.0.0.0" {
			addr = net.JoinHostPort(c.host, port)
		}
	}

	conn, err := c.dialer.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to data port: %w", err)
	}
	return c.wrapData(conn)
}

func (c *Conn) openActive() (io.ReadWriteCloser, error) {
	host, _, err := net.SplitHostPort(c.conn.LocalAddr().String())
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}

	command, format := "PORT", formatPORT
	if ip := net.ParseIP(host); ip != nil && ip.To4() == nil {
		command, format = "EPRT", formatEPRT
	}
	arg, err := format(ln.Addr().String())
	if err != nil {
		ln.Close()
		return nil, err
	}
	if _, err := c.expect2xx(command, arg); err != nil {
		ln.Close()
		return nil, err
	}

	return &activeData{conn: c, listener: ln}, nil
}

// wrapData applies TLS and per-operation deadlines to a data connection.
func (c *Conn) wrapData(conn net.Conn) (io.ReadWriteCloser, error) {
	if c.tlsConfig != nil {
		tlsConfig := c.tlsConfig.Clone()
		if tlsConfig.ServerName == "" {
			tlsConfig.ServerName = c.host
		}
		tlsConn := tls.Client(conn, tlsConfig)
		c.setDeadline(conn.SetDeadline)
		if err := tlsConn.Handshake(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("data connection TLS handshake failed: %w", err)
		}
		conn = tlsConn
	}
	return &deadlineConn{Conn: conn, timeout: c.timeout}, nil
}

// activeData accepts the server's connection on first use.
type activeData struct {
	conn     *Conn
	listener net.Listener
	data     io.ReadWriteCloser
}

func (a *activeData) accept() error {
	if a.data != nil {
		return nil
	}
	if l, ok := a.listener.(*net.TCPListener); ok && a.conn.timeout > 0 {
		_ = l.SetDeadline(time.Now().Add(a.conn.timeout))
	}
	conn, err := a.listener.Accept()
	if err != nil {
		return fmt.Errorf("failed to accept data connection: %w", err)
	}
	data, err := a.conn.wrapData(conn)
	if err != nil {
		return err
	}
	a.data = data
	return nil
}

func (a *activeData) Read(p []byte) (int, error) {
	if err := a.accept(); err != nil {
		return 0, err
	}
	return a.data.Read(p)
}

func (a *activeData) Write(p []byte) (int, error) {
	if err := a.accept(); err != nil {
		return 0, err
	}
	return a.data.Write(p)
}

func (a *activeData) Close() error {
	err := a.listener.Close()
	if a.data != nil {
		if cerr := a.data.Close(); cerr != nil {
			return cerr
		}
	}
	return err
}

// deadlineConn re-arms the timeout before every read and write.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (d *deadlineConn) Read(p []byte) (int, error) {
	if d.timeout > 0 {
		if err := d.Conn.SetReadDeadline(time.Now().Add(d.timeout)); err != nil {
			return 0, err
		}
	}
	return d.Conn.Read(p)
}

func (d *deadlineConn) Write(p []byte) (int, error) {
	if d.timeout > 0 {
		if err := d.Conn.SetWriteDeadline(time.Now().Add(d.timeout)); err != nil {
			return 0, err
		}
	}
	return d.Conn.Write(p)
}

// transfer is an open data channel for one command.
type transfer struct {
	data io.ReadWriteCloser
	// done is set when the server already sent its completion reply
	done bool
}

// startTransfer opens the data channel and issues command on the control
// connection. The server must answer with a preliminary (1xx) reply or an
// immediate completion (2xx).
func (c *Conn) startTransfer(command string, args ...string) (*transfer, error) {
	data, err := c.openData()
	if err != nil {
		return nil, err
	}

	r, err := c.cmd(command, args...)
	if err != nil {
		data.Close()
		return nil, err
	}
	if !r.is(1) && !r.is(2) {
		data.Close()
		return nil, protocolError(command, r)
	}
	return &transfer{data: data, done: r.is(2)}, nil
}

// finishTransfer closes the data channel and reads the completion reply.
func (c *Conn) finishTransfer(t *transfer) error {
	// An empty upload never writes, so the server's connection is still
	// waiting on the listener.
	if a, ok := t.data.(*activeData); ok && !t.done {
		if err := a.accept(); err != nil {
			a.Close()
			return err
		}
	}
	if err := t.data.Close(); err != nil {
		return fmt.Errorf("failed to close data connection: %w", err)
	}
	if t.done {
		return nil
	}

	c.mu.Lock()
	c.setDeadline(c.conn.SetReadDeadline)
	r, err := c.readReply()
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to read completion response: %w", err)
	}
	c.logger.Debug("ftp data transfer complete", "code", r.Code, "message", r.Message)

	if !r.is(2) {
		return protocolError("DATA_TRANSFER", r)
	}
	return nil
}
