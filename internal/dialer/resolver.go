package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
	"github.com/patrickmn/go-cache"
)

const (
	minResolveTTL     = 5 * time.Second
	maxResolveTTL     = 5 * time.Minute
	defaultResolveTTL = time.Minute
)

var errNoIPv4 = errors.New("no ipv4 address")

// Resolver turns domain names into IPv4 literals for proxies that are
// addressed by IP (socks4:// and socks5://). Answers are cached for their
// record TTL, clamped to [5s, 5m].
type Resolver struct {
	server string
	client *dns.Client
	cache  *cache.Cache
}

// NewResolver queries server (host or host:port, port 53 by default) over
// UDP. An empty server uses the system resolver.
func NewResolver(server string, timeout time.Duration) *Resolver {
	if server != "" {
		if _, _, err := net.SplitHostPort(server); err != nil {
			server = net.JoinHostPort(server, "53")
		}
	}
	return &Resolver{
		server: server,
		client: &dns.Client{Net: "udp", Timeout: timeout},
		cache:  cache.New(defaultResolveTTL, maxResolveTTL),
	}
}

// LookupIPv4 returns one IPv4 address for host.
func (r *Resolver) LookupIPv4(ctx context.Context, host string) (string, error) {
	if v, ok := r.cache.Get(host); ok {
		return v.(string), nil
	}

	var (
		ip  string
		ttl time.Duration
		err error
	)
	if r.server == "" {
		ip, err = lookupSystem(ctx, host)
		ttl = defaultResolveTTL
	} else {
		ip, ttl, err = r.query(ctx, host)
	}
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", host, err)
	}

	r.cache.Set(host, ip, min(max(ttl, minResolveTTL), maxResolveTTL))
	return ip, nil
}

func (r *Resolver) query(ctx context.Context, host string) (string, time.Duration, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)
	m.RecursionDesired = true

	in, _, err := r.client.ExchangeContext(ctx, m, r.server)
	if err != nil {
		return "", 0, err
	}
	if in.Rcode != dns.RcodeSuccess {
		return "", 0, fmt.Errorf("%s from %s", dns.RcodeToString[in.Rcode], r.server)
	}

	for _, rr := range in.Answer {
		if a, ok := rr.(*dns.A); ok {
			return a.A.String(), time.Duration(a.Hdr.Ttl) * time.Second, nil
		}
	}
	return "", 0, errNoIPv4
}

func lookupSystem(ctx context.Context, host string) (string, error) {
	ips, err := net.DefaultResolver.LookupNetIP(ctx, "ip4", host)
	if err != nil {
		return "", err
	}
	for _, ip := range ips {
		if ip.Is4() || ip.Is4In6() {
			return ip.Unmap().String(), nil
		}
	}
	return "", errNoIPv4
}
