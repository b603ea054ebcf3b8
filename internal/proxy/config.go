package proxy

import (
	"time"

	"go.uber.org/zap"

	"github.com/die-net/sockshake/internal/dialer"
)

type Config struct {
	// NegotiationTimeout bounds the client handshake and the outbound dial.
	NegotiationTimeout time.Duration

	Dialer dialer.Dialer

	// Username and Password, when Username is set, require RFC 1929
	// authentication from clients.
	Username string
	Password string

	// Logger receives per-connection errors at debug level. Nil disables.
	Logger *zap.Logger
}
