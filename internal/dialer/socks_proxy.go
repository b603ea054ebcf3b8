package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/die-net/sockshake/internal/socks"
)

// SOCKSOptions selects the upstream proxy and how it is addressed.
type SOCKSOptions struct {
	// Version is a protocol identifier registered with internal/socks.
	Version   string
	ProxyAddr string
	// RemoteDNS passes domain names to the proxy instead of resolving them
	// locally first.
	RemoteDNS bool
	Username  string
	Password  string
}

// SOCKSProxyDialer dials outbound TCP connections through a SOCKS proxy.
type SOCKSProxyDialer struct {
	cfg      Config
	opts     SOCKSOptions
	socksCfg socks.Config
	resolver *Resolver
	direct   Dialer
}

// NewSOCKSProxyDialer constructs a SOCKS dialer for opts.ProxyAddr.
//
// When credentials are set, SOCKS5 offers both no-auth and username/password
// and SOCKS4 sends the username as USERID.
func NewSOCKSProxyDialer(cfg Config, opts SOCKSOptions) (*SOCKSProxyDialer, error) {
	if opts.ProxyAddr == "" {
		return nil, errors.New("socks proxy dialer: missing proxy address")
	}
	if !slices.Contains(socks.DefaultRegistry().Versions(), opts.Version) {
		return nil, fmt.Errorf("socks proxy dialer: unsupported version %q", opts.Version)
	}
	if opts.Version == socks.Version4 && opts.Password != "" {
		return nil, errors.New("socks proxy dialer: socks4 does not support passwords")
	}

	socksCfg := socks.Config{}
	if opts.Username != "" {
		socksCfg[socks.ConfigUsername] = opts.Username
		socksCfg[socks.ConfigPassword] = opts.Password
	}

	f := &SOCKSProxyDialer{
		cfg:      cfg,
		opts:     opts,
		socksCfg: socksCfg,
		direct:   NewDirectDialer(cfg),
	}
	if !opts.RemoteDNS {
		f.resolver = NewResolver(cfg.DNSServer, cfg.DialTimeout)
	}
	return f, nil
}

// ProxyAddr returns the proxy host:port.
func (f *SOCKSProxyDialer) ProxyAddr() string {
	return f.opts.ProxyAddr
}

// DialContext establishes a TCP connection to address via the proxy. The
// returned net.Conn is a *Conn.
//
// If NegotiationTimeout is set, a deadline is applied during the handshake
// and cleared before returning. Canceling ctx during the handshake closes the
// proxy connection.
func (f *SOCKSProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("socks%s proxy dial %s %s: unsupported network", f.opts.Version, network, address)
	}

	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("socks%s proxy dial %s: %w", f.opts.Version, address, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("socks%s proxy dial %s: invalid port: %w", f.opts.Version, address, err)
	}

	if f.resolver != nil && socks.TypeOf(host) == socks.AddressDomain {
		host, err = f.resolver.LookupIPv4(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("socks%s proxy dial %s: %w", f.opts.Version, address, err)
		}
	}

	p, err := socks.New(f.opts.Version, f.socksCfg, host, uint16(port))
	if err != nil {
		return nil, fmt.Errorf("socks%s proxy dial %s: %w", f.opts.Version, address, err)
	}

	c, err := f.direct.DialContext(ctx, "tcp", f.opts.ProxyAddr)
	if err != nil {
		return nil, fmt.Errorf("socks%s proxy: %w", f.opts.Version, err)
	}

	if f.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Now().Add(f.cfg.NegotiationTimeout))
	}

	// Close conn if ctx is canceled during the handshake.
	stop := context.AfterFunc(ctx, func() {
		_ = c.Close()
	})

	bound, err := Handshake(c, p)
	if !stop() {
		_ = c.Close()
		return nil, fmt.Errorf("socks%s proxy dial %s: %w", f.opts.Version, address, ctx.Err())
	}
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("socks%s proxy dial %s: %w", f.opts.Version, address, err)
	}

	if f.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Time{})
	}
	return newConn(c, bound, p.Buffered()), nil
}
