package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // Intentionally exposed on debug port.
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/sockshake/internal/dialer"
	"github.com/die-net/sockshake/internal/log"
	"github.com/die-net/sockshake/internal/proxy"
)

var (
	// Reduce GC overhead by setting a minimum GC heap size. This only
	// allocates virtual memory, not RSS.
	ballast = make([]byte, 0, 25_000_000)
	_       = ballast
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		socksListen = pflag.String("socks5-listen", "", "SOCKS5 proxy listen address (e.g. 127.0.0.1:1080). Empty disables.")
		upstream    = pflag.String("upstream", defaultUpstream(), "Upstream target URL: direct:// | socks4://[user@]host:port | socks4a://[user@]host:port | socks5://[user:pass@]host:port | socks5h://[user:pass@]host:port")
		probe       = pflag.String("probe", "", "Connect to host:port through --upstream, print the bound address and exit")

		listenUser         = pflag.String("socks5-user", "", "Require this username from SOCKS5 clients. Empty disables authentication.")
		listenPass         = pflag.String("socks5-pass", "", "Password required with --socks5-user")
		debugListen        = pflag.String("debug-listen", "", "Debug HTTP listen address exposing /debug/pprof (e.g. 127.0.0.1:6060). Empty disables.")
		dialTimeout        = pflag.Duration("dial-timeout", 10*time.Second, "Timeout for outbound DNS lookup and TCP connect")
		negotiationTimeout = pflag.Duration("negotiation-timeout", 10*time.Second, "Timeout for protocol negotiation to set up connection")
		dnsServer          = pflag.String("dns-server", "", "DNS server (host[:port]) for resolving destinations with socks4:// and socks5:// upstreams. Empty uses the system resolver.")
		tcpKeepAlive       = pflag.String("tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
		logFormat          = pflag.String("log-format", "console", "Log format: console|json")
		verbose            = pflag.Bool("verbose", false, "Enable per-connection error logging")
	)

	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	logger, err := log.New(log.Config{Format: *logFormat, Verbose: *verbose})
	if err != nil {
		return fmt.Errorf("invalid --log-format: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ka, err := parseTCPKeepAlive(*tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	if *socksListen == "" && *probe == "" {
		return errors.New("nothing to do (set --socks5-listen or --probe)")
	}
	if *listenPass != "" && *listenUser == "" {
		return errors.New("--socks5-pass requires --socks5-user")
	}

	dialCfg := dialer.Config{
		DialTimeout:        *dialTimeout,
		NegotiationTimeout: *negotiationTimeout,
		KeepAlive:          ka,
		DNSServer:          *dnsServer,
	}

	d, err := dialer.New(dialCfg, *upstream)
	if err != nil {
		return fmt.Errorf("invalid --upstream: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *probe != "" {
		return runProbe(ctx, d, *probe, *dialTimeout+*negotiationTimeout)
	}

	g, ctx := errgroup.WithContext(ctx)

	if *debugListen != "" {
		debugSrv := &http.Server{Handler: http.DefaultServeMux} //nolint:gosec // Not concerned about timeouts on debug port.
		lc := net.ListenConfig{KeepAliveConfig: ka}
		debugLn, err := lc.Listen(ctx, "tcp", *debugListen)
		if err != nil {
			return fmt.Errorf("debug listen: %w", err)
		}
		context.AfterFunc(ctx, func() {
			_ = debugSrv.Close()
		})

		g.Go(func() error {
			if err := debugSrv.Serve(debugLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("debug serve: %w", err)
			}
			return nil
		})
		logger.Info("debug listening", zap.String("addr", *debugListen))
	}

	ln, err := proxy.ListenTCP(ctx, *socksListen, ka)
	if err != nil {
		return fmt.Errorf("socks5 listen: %w", err)
	}
	s5 := proxy.NewSOCKS5Server(ctx, proxy.Config{
		NegotiationTimeout: *negotiationTimeout,
		Dialer:             d,
		Username:           *listenUser,
		Password:           *listenPass,
		Logger:             logger,
	})
	context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})

	g.Go(func() error {
		if err := s5.Serve(ln); err != nil {
			return fmt.Errorf("socks5 serve: %w", err)
		}
		return nil
	})
	logger.Info("socks5 proxy listening", zap.String("addr", *socksListen), zap.String("upstream", redactUpstream(*upstream)))

	err = g.Wait()

	logger.Info("shutting down")
	return err
}

// runProbe makes one connection to target and reports where it landed.
func runProbe(ctx context.Context, d dialer.Dialer, target string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c, err := d.DialContext(ctx, "tcp", target)
	if err != nil {
		return fmt.Errorf("probe %s: %w", target, err)
	}
	defer c.Close()

	bound := c.LocalAddr().String()
	if sc, ok := c.(*dialer.Conn); ok {
		bound = sc.BoundAddr().String()
	}
	fmt.Printf("%s bound %s\n", target, bound)
	return nil
}

// redactUpstream hides any password in an upstream URL.
func redactUpstream(s string) string {
	u, err := url.Parse(s)
	if err != nil {
		return s
	}
	return u.Redacted()
}

func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "":
		return net.KeepAliveConfig{}, errors.New("empty")
	case "on":
		return net.KeepAliveConfig{Enable: true}, nil
	case "off":
		return net.KeepAliveConfig{Enable: false}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	keepIdle, err := parsePositiveInt(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepidle: %w", err)
	}
	keepIntvl, err := parsePositiveInt(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepintvl: %w", err)
	}
	keepCnt, err := parsePositiveInt(parts[2])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepcnt: %w", err)
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     time.Duration(keepIdle) * time.Second,
		Interval: time.Duration(keepIntvl) * time.Second,
		Count:    keepCnt,
	}, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}

func defaultUpstream() string {
	for _, k := range []string{"ALL_PROXY", "all_proxy"} {
		if p := os.Getenv(k); p != "" {
			return p
		}
	}
	return "direct://"
}
