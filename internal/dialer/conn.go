package dialer

import (
	"bytes"
	"errors"
	"net"

	"github.com/die-net/sockshake/internal/socks"
)

// Conn is a connection established through a SOCKS proxy.
type Conn struct {
	net.Conn

	bound   socks.Endpoint
	pending []byte
}

func newConn(c net.Conn, bound socks.Endpoint, pending []byte) *Conn {
	return &Conn{Conn: c, bound: bound, pending: bytes.Clone(pending)}
}

// BoundAddr returns the endpoint the proxy reported for the connection.
func (c *Conn) BoundAddr() socks.Endpoint {
	return c.bound
}

// Read returns bytes that arrived with the handshake reply before reading
// from the underlying connection.
func (c *Conn) Read(b []byte) (int, error) {
	if len(c.pending) > 0 {
		n := copy(b, c.pending)
		c.pending = c.pending[n:]
		return n, nil
	}
	return c.Conn.Read(b)
}

// CloseWrite half-closes the proxy connection when the underlying
// connection supports it.
func (c *Conn) CloseWrite() error {
	if cw, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return errors.ErrUnsupported
}
