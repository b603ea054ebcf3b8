package socks

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	txsocks5 "github.com/txthinking/socks5"
)

func successReply(t *testing.T, atyp byte, addr []byte, port uint16) []byte {
	t.Helper()
	var buf bytes.Buffer
	_, err := txsocks5.NewReply(txsocks5.RepSuccess, atyp, addr, EncodePort(port)).WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestSOCKS5NoAuth(t *testing.T) {
	t.Parallel()

	p, err := NewSOCKS5Parser(nil, "93.184.216.34", 80)
	require.NoError(t, err)

	rec := exchange(p,
		[]byte{0x05, 0x00},
		successReply(t, txsocks5.ATYPIPv4, []byte{10, 0, 0, 1}, 40000),
	)

	require.Equal(t, 0, rec.failed, "%v", rec.err)
	require.Len(t, rec.requests, 2)
	assert.Equal(t, []byte{0x05, 0x01, 0x00}, rec.requests[0])
	assert.Equal(t, []byte{0x05, 0x01, 0x00, 0x01, 93, 184, 216, 34, 0x00, 0x50}, rec.requests[1])
	assert.Equal(t, 1, rec.finished)
	assert.Equal(t, &Endpoint{Address: "10.0.0.1", Port: 40000}, rec.endpoint)
	assert.Equal(t, "Complete", p.(*SOCKS5Parser).State())
}

func TestSOCKS5RequestMatchesWireLibrary(t *testing.T) {
	t.Parallel()

	for _, address := range []string{"93.184.216.34", "2001:db8::68", "example.com"} {
		t.Run(address, func(t *testing.T) {
			p, err := NewSOCKS5Parser(nil, address, 8080)
			require.NoError(t, err)

			rec := exchange(p, []byte{0x05, 0x00})
			require.Len(t, rec.requests, 2)

			addr, typ, err := EncodeAddress(address)
			require.NoError(t, err)
			if typ == AddressDomain {
				addr = addr[1:]
			}
			var want bytes.Buffer
			_, err = txsocks5.NewRequest(txsocks5.CmdConnect, byte(typ), addr, EncodePort(8080)).WriteTo(&want)
			require.NoError(t, err)

			assert.Equal(t, want.Bytes(), rec.requests[1])
		})
	}
}

func TestSOCKS5RequestBytes(t *testing.T) {
	t.Parallel()

	cfg := Config{ConfigUsername: "u", ConfigPassword: "p"}
	p, err := NewSOCKS5Parser(cfg, "example.com", 443)
	require.NoError(t, err)

	rec := exchange(p, []byte{0x05, 0x02}, []byte{0x01, 0x00})
	require.Len(t, rec.requests, 3)

	assert.Equal(t, []byte{0x05, 0x02, 0x00, 0x02}, rec.requests[0])
	assert.Equal(t, []byte{0x01, 0x01, 'u', 0x01, 'p'}, rec.requests[1])

	want := []byte{0x05, 0x01, 0x00, 0x03, 11}
	want = append(want, "example.com"...)
	want = append(want, 0x01, 0xbb)
	assert.Equal(t, want, rec.requests[2])
}

func TestSOCKS5UserPass(t *testing.T) {
	t.Parallel()

	cfg := Config{ConfigUsername: "user", ConfigPassword: "pass"}
	p, err := NewSOCKS5Parser(cfg, "example.com", 443)
	require.NoError(t, err)

	rec := exchange(p,
		[]byte{0x05, 0x02},
		[]byte{0x01, 0x00},
		successReply(t, txsocks5.ATYPDomain, []byte("proxy.internal"), 1080),
	)

	require.Equal(t, 0, rec.failed, "%v", rec.err)
	require.Len(t, rec.requests, 3)
	assert.Equal(t, []byte{0x05, 0x02, 0x00, 0x02}, rec.requests[0])

	var auth bytes.Buffer
	_, err = txsocks5.NewUserPassNegotiationRequest([]byte("user"), []byte("pass")).WriteTo(&auth)
	require.NoError(t, err)
	assert.Equal(t, auth.Bytes(), rec.requests[1])

	assert.Equal(t, &Endpoint{Address: "proxy.internal", Port: 1080}, rec.endpoint)
}

func TestSOCKS5IPv6Reply(t *testing.T) {
	t.Parallel()

	p, err := NewSOCKS5Parser(nil, "2001:db8::68", 443)
	require.NoError(t, err)

	bound := []byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x01}
	rec := exchange(p, []byte{0x05, 0x00}, successReply(t, txsocks5.ATYPIPv6, bound, 5555))

	assert.Equal(t, &Endpoint{Address: "2001:db8::1", Port: 5555}, rec.endpoint)
}

func TestSOCKS5MethodNotOffered(t *testing.T) {
	t.Parallel()

	for _, method := range []byte{0x02, 0x01, 0xff} {
		p, err := NewSOCKS5Parser(nil, "93.184.216.34", 80)
		require.NoError(t, err)

		rec := exchange(p,
			[]byte{0x05, method},
			successReply(t, txsocks5.ATYPIPv4, []byte{10, 0, 0, 1}, 1),
		)

		assert.Equal(t, 1, rec.failed)
		assert.Equal(t, 0, rec.finished)
		assert.ErrorIs(t, rec.err, ErrAuthenticationFailed)
		assert.Len(t, rec.requests, 1)
	}
}

func TestSOCKS5AuthRejected(t *testing.T) {
	t.Parallel()

	cfg := Config{ConfigUsername: "user", ConfigPassword: "wrong", ConfigAuthMethods: "password"}
	p, err := NewSOCKS5Parser(cfg, "93.184.216.34", 80)
	require.NoError(t, err)

	rec := exchange(p, []byte{0x05, 0x02}, []byte{0x01, 0x01})

	assert.Equal(t, []byte{0x05, 0x01, 0x02}, rec.requests[0])
	assert.Equal(t, 1, rec.failed)
	assert.Equal(t, 0, rec.finished)
	assert.ErrorIs(t, rec.err, ErrAuthenticationFailed)
}

func TestSOCKS5ServerRejected(t *testing.T) {
	t.Parallel()

	for code := byte(0x01); code <= 0x09; code++ {
		p, err := NewSOCKS5Parser(nil, "93.184.216.34", 80)
		require.NoError(t, err)

		var reply bytes.Buffer
		_, err = txsocks5.NewReply(code, txsocks5.ATYPIPv4, []byte{0, 0, 0, 0}, []byte{0, 0}).WriteTo(&reply)
		require.NoError(t, err)

		rec := exchange(p, []byte{0x05, 0x00}, reply.Bytes())
		assert.Equal(t, 1, rec.failed)
		assert.Equal(t, 0, rec.finished)
		assert.ErrorIs(t, rec.err, &Error{Kind: KindServerRejected, Code: code})
		assert.Equal(t, "Failed", p.(*SOCKS5Parser).State())
	}
}

func TestSOCKS5ProtocolErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		responses [][]byte
		want      error
	}{
		{
			name:      "greeting version",
			responses: [][]byte{{0x04, 0x00}},
			want:      ErrProtocolViolation,
		},
		{
			name:      "reply version",
			responses: [][]byte{{0x05, 0x00}, {0x04, 0x00, 0x00, 0x01}},
			want:      ErrProtocolViolation,
		},
		{
			name:      "unsupported bound address type",
			responses: [][]byte{{0x05, 0x00}, {0x05, 0x00, 0x00, 0x02}},
			want:      ErrUnsupportedAddressType,
		},
		{
			name:      "empty bound domain",
			responses: [][]byte{{0x05, 0x00}, {0x05, 0x00, 0x00, 0x03, 0x00}},
			want:      ErrMalformedAddress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewSOCKS5Parser(nil, "93.184.216.34", 80)
			require.NoError(t, err)

			rec := exchange(p, tt.responses...)
			assert.Equal(t, 1, rec.failed)
			assert.Equal(t, 0, rec.finished)
			assert.ErrorIs(t, rec.err, tt.want)
		})
	}
}

func TestSOCKS5AuthVersionViolation(t *testing.T) {
	t.Parallel()

	cfg := Config{ConfigUsername: "user", ConfigPassword: "pass"}
	p, err := NewSOCKS5Parser(cfg, "93.184.216.34", 80)
	require.NoError(t, err)

	rec := exchange(p, []byte{0x05, 0x02}, []byte{0x05, 0x00})
	assert.ErrorIs(t, rec.err, ErrProtocolViolation)
}

func TestSOCKS5ConstructErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		address string
		want    error
	}{
		{"empty address", nil, "", ErrConfiguration},
		{"password without username", Config{ConfigAuthMethods: "password"}, "10.0.0.1", ErrConfiguration},
		{"unknown method", Config{ConfigAuthMethods: "none,gssapi"}, "10.0.0.1", ErrConfiguration},
		{"long username", Config{ConfigUsername: string(make([]byte, 256))}, "10.0.0.1", ErrConfiguration},
		{"oversize domain", nil, string(bytes.Repeat([]byte("a"), 256)), ErrMalformedAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewSOCKS5Parser(tt.cfg, tt.address, 80)
			assert.Nil(t, p)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSOCKS5MethodOrder(t *testing.T) {
	t.Parallel()

	cfg := Config{ConfigUsername: "u", ConfigAuthMethods: " password , none,password", "unrelated": "x"}
	p, err := NewSOCKS5Parser(cfg, "10.0.0.1", 80)
	require.NoError(t, err)

	rec := exchange(p)
	assert.Equal(t, []byte{0x05, 0x02, 0x02, 0x00}, rec.requests[0])
	assert.Equal(t, []int{2}, rec.needs)
}

func TestSOCKS5ConfigIsCopied(t *testing.T) {
	t.Parallel()

	cfg := Config{ConfigUsername: "user", ConfigPassword: "pass"}
	p, err := NewSOCKS5Parser(cfg, "10.0.0.1", 80)
	require.NoError(t, err)
	cfg[ConfigPassword] = "changed"

	rec := exchange(p, []byte{0x05, 0x02})
	require.Len(t, rec.requests, 2)
	assert.Equal(t, []byte{0x01, 0x04, 'u', 's', 'e', 'r', 0x04, 'p', 'a', 's', 's'}, rec.requests[1])
}

func TestReplyText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "connection refused", ReplyText(0x05))
	assert.Equal(t, "succeeded", ReplyText(0x00))
	assert.Equal(t, "unassigned", ReplyText(0x42))
}
