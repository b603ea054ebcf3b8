package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/die-net/sockshake/internal/socks"
)

// Dialer mirrors the net.Dialer interface.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// New parses upstream and constructs the appropriate outbound Dialer.
//
// Supported schemes:
//   - direct://
//   - socks4://[user@]host:port (destinations resolved locally)
//   - socks4a://[user@]host:port
//   - socks5://[user:pass@]host:port (destinations resolved locally)
//   - socks5h://[user:pass@]host:port
//
// A default port of 1080 is applied if the URL host is missing a port.
func New(cfg Config, upstream string) (Dialer, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)

	if u.Path != "" && u.Path != "/" {
		return nil, errors.New("invalid URL: path should be empty")
	}

	switch u.Scheme {
	case "":
		return nil, errors.New("invalid url: missing scheme")
	case "direct":
		return NewDirectDialer(cfg), nil
	case "socks4", "socks4a", "socks5", "socks5h":
		host := u.Hostname()
		if host == "" {
			return nil, errors.New("invalid url: missing host")
		}
		if u.Port() == "" {
			u.Host = net.JoinHostPort(host, defaultSOCKSPort)
		}

		var user, pass string
		if u.User != nil {
			user = u.User.Username()
			pass, _ = u.User.Password()
		}

		version := socks.Version5
		if strings.HasPrefix(u.Scheme, "socks4") {
			version = socks.Version4
		}
		remoteDNS := u.Scheme == "socks4a" || u.Scheme == "socks5h"

		return NewSOCKSProxyDialer(cfg, SOCKSOptions{
			Version:   version,
			ProxyAddr: u.Host,
			RemoteDNS: remoteDNS,
			Username:  user,
			Password:  pass,
		})
	default:
		return nil, fmt.Errorf("invalid url scheme: %q", u.Scheme)
	}
}

const defaultSOCKSPort = "1080"
