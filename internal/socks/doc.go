// Package socks implements the client side of the SOCKS4, SOCKS4a and SOCKS5
// handshakes as incremental, I/O-free parsers.
//
// A Parser is obtained from a Registry by protocol version ("4" or "5"). The
// caller installs a Delegate, calls Start, writes every request the parser
// forms to the proxy, and feeds whatever the proxy sends back into
// ParseNextChunk until the parser reports an endpoint or an error. Chunks may
// be any size; the parser buffers partial fields and asks for the exact
// number of bytes it is still missing.
//
// Parsers do no I/O, keep no clocks, and are not safe for concurrent use.
// Deadlines, retries and connection management belong to the caller (see
// internal/dialer).
package socks
