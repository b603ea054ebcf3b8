package dialer

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startDNSServer serves A records from answers over UDP on loopback. Names
// missing from answers get NXDOMAIN. The returned counter tracks queries.
func startDNSServer(t *testing.T, answers map[string]string) (string, *atomic.Int32) {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	queries := &atomic.Int32{}
	handler := dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		queries.Add(1)

		m := new(dns.Msg)
		m.SetReply(r)
		q := r.Question[0]
		ip, ok := answers[q.Name]
		if !ok || q.Qtype != dns.TypeA {
			m.Rcode = dns.RcodeNameError
			_ = w.WriteMsg(m)
			return
		}
		m.Answer = append(m.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
			A:   net.ParseIP(ip),
		})
		_ = w.WriteMsg(m)
	})

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() {
		_ = srv.ActivateAndServe()
	}()
	<-started
	t.Cleanup(func() {
		_ = srv.Shutdown()
	})

	return pc.LocalAddr().String(), queries
}

func TestResolverLookupCaches(t *testing.T) {
	addr, queries := startDNSServer(t, map[string]string{"echo.test.": "127.0.0.1"})
	r := NewResolver(addr, 2*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for range 3 {
		ip, err := r.LookupIPv4(ctx, "echo.test")
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1", ip)
	}
	assert.Equal(t, int32(1), queries.Load())
}

func TestResolverLookupNXDOMAIN(t *testing.T) {
	addr, _ := startDNSServer(t, nil)
	r := NewResolver(addr, 2*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := r.LookupIPv4(ctx, "missing.test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NXDOMAIN")
	assert.Contains(t, err.Error(), "resolve missing.test")
}

func TestNewResolverDefaultPort(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "127.0.0.1:53", NewResolver("127.0.0.1", time.Second).server)
	assert.Equal(t, "[::1]:5353", NewResolver("[::1]:5353", time.Second).server)
	assert.Empty(t, NewResolver("", time.Second).server)
}
