// Package proxy implements the local SOCKS5 listener that forwards client
// connections through a dialer.Dialer, plus shared connection plumbing such
// as keepalive listeners and bidirectional copy.
package proxy
