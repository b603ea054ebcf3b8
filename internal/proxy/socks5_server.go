package proxy

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/txthinking/socks5"
	"go.uber.org/zap"

	"github.com/die-net/sockshake/internal/socks"
)

type SOCKS5Server struct {
	ctx context.Context
	cfg Config
	log *zap.Logger
}

func NewSOCKS5Server(ctx context.Context, cfg Config) *SOCKS5Server {
	l := cfg.Logger
	if l == nil {
		l = zap.NewNop()
	}
	return &SOCKS5Server{ctx: ctx, cfg: cfg, log: l.Named("socks5")}
}

// Serve accepts connections on ln until it is closed. Errors from Accept
// after ctx is done are not reported.
func (s *SOCKS5Server) Serve(ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil && errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.handleConn(c)
	}
}

func (s *SOCKS5Server) handleConn(conn net.Conn) {
	defer conn.Close()

	log := s.log.With(zap.Stringer("client", conn.RemoteAddr()))

	if s.cfg.NegotiationTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.cfg.NegotiationTimeout))
	}

	if err := negotiate(conn, s.cfg.Username, s.cfg.Password); err != nil {
		log.Debug("negotiation failed", zap.Error(err))
		return
	}

	req, err := socks5.NewRequestFrom(conn)
	if err != nil {
		log.Debug("read request failed", zap.Error(err))
		return
	}
	if req.Cmd != socks5.CmdConnect {
		_ = writeReply(conn, socks5.RepCommandNotSupported, socks.Endpoint{})
		log.Debug("unsupported command", zap.Uint8("cmd", req.Cmd))
		return
	}

	dst := req.Address()
	log = log.With(zap.String("dst", dst))

	ctx := s.ctx
	if s.cfg.NegotiationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.NegotiationTimeout)
		defer cancel()
	}

	up, err := s.cfg.Dialer.DialContext(ctx, "tcp", dst)
	if err != nil {
		_ = writeReply(conn, replyCode(err), socks.Endpoint{})
		log.Debug("dial failed", zap.Error(err))
		return
	}
	defer up.Close()

	if err := writeReply(conn, socks5.RepSuccess, boundEndpoint(up)); err != nil {
		log.Debug("reply failed", zap.Error(err))
		return
	}
	_ = conn.SetDeadline(time.Time{})

	if err := CopyBidirectional(s.ctx, conn, up); err != nil {
		log.Debug("copy failed", zap.Error(err))
	}
}

// boundEndpoint prefers the address reported by an upstream SOCKS proxy over
// the local end of the outbound connection.
func boundEndpoint(c net.Conn) socks.Endpoint {
	if bc, ok := c.(interface{ BoundAddr() socks.Endpoint }); ok {
		return bc.BoundAddr()
	}

	host, port, err := net.SplitHostPort(c.LocalAddr().String())
	if err != nil {
		return socks.Endpoint{}
	}
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return socks.Endpoint{}
	}
	return socks.Endpoint{Address: host, Port: uint16(p)}
}

// replyCode maps an outbound dial error to a SOCKS5 reply code. Rejections
// from a SOCKS5 upstream are passed through unchanged.
func replyCode(err error) byte {
	var se *socks.Error
	if errors.As(err, &se) && se.Kind == socks.KindServerRejected && se.Code >= socks5.RepServerFailure && se.Code <= socks5.RepAddressNotSupported {
		return se.Code
	}

	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, socks.ErrUnsupportedAddressType), errors.Is(err, socks.ErrMalformedAddress):
		return socks5.RepAddressNotSupported
	case errors.Is(err, syscall.ECONNREFUSED):
		return socks5.RepConnectionRefused
	case errors.Is(err, syscall.ENETUNREACH):
		return socks5.RepNetworkUnreachable
	case errors.Is(err, syscall.EHOSTUNREACH), errors.As(err, &dnsErr):
		return socks5.RepHostUnreachable
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return socks5.RepTTLExpired
	default:
		return socks5.RepServerFailure
	}
}
