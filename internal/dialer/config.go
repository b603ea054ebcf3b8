package dialer

import (
	"net"
	"time"
)

type Config struct {
	DialTimeout        time.Duration
	NegotiationTimeout time.Duration
	KeepAlive          net.KeepAliveConfig

	// DNSServer is the host[:port] queried when a SOCKS dialer resolves
	// destinations locally. Empty uses the system resolver.
	DNSServer string
}
