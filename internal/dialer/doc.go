// Package dialer provides outbound dialing implementations used by sockshake.
//
// Dialers implement a small interface (DialContext) and are used by the
// local listener and the CLI probe to establish outbound connections either
// directly or through an upstream SOCKS4, SOCKS4a or SOCKS5 proxy. The SOCKS
// dialer owns the transport side of the handshake: it dials the proxy, drives
// an internal/socks parser over the connection, and enforces the negotiation
// deadline the parser itself knows nothing about.
package dialer
