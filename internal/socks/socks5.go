package socks

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"slices"

	txsocks5 "github.com/txthinking/socks5"
)

// Version5 identifies SOCKS5 (RFC 1928) with username/password
// authentication (RFC 1929).
const Version5 = "5"

// maxCredentialLen is the RFC 1929 limit on ULEN and PLEN.
const maxCredentialLen = 255

var socks5ReplyText = map[byte]string{
	txsocks5.RepServerFailure:       "general SOCKS server failure",
	txsocks5.RepNotAllowed:          "connection not allowed by ruleset",
	txsocks5.RepNetworkUnreachable:  "network unreachable",
	txsocks5.RepHostUnreachable:     "host unreachable",
	txsocks5.RepConnectionRefused:   "connection refused",
	txsocks5.RepTTLExpired:          "TTL expired",
	txsocks5.RepCommandNotSupported: "command not supported",
	txsocks5.RepAddressNotSupported: "address type not supported",
}

// ReplyText describes a SOCKS5 REP code.
func ReplyText(code byte) string {
	if s, ok := socks5ReplyText[code]; ok {
		return s
	}
	if code == txsocks5.RepSuccess {
		return "succeeded"
	}
	return "unassigned"
}

// wire serializes a txthinking message. Writes to a bytes.Buffer cannot fail.
func wire(m io.WriterTo) []byte {
	var b bytes.Buffer
	_, _ = m.WriteTo(&b)
	return b.Bytes()
}

type socks5State int

const (
	socks5Initial socks5State = iota
	socks5SendingGreeting
	socks5AwaitingGreetingResponse
	socks5SendingAuthRequest
	socks5AwaitingAuthResponse
	socks5SendingConnectRequest
	socks5AwaitingConnectResponse
	socks5AwaitingAddressLength
	socks5AwaitingAddressBytes
	socks5Complete
	socks5Failed
)

func (s socks5State) String() string {
	switch s {
	case socks5Initial:
		return "Initial"
	case socks5SendingGreeting:
		return "SendingGreeting"
	case socks5AwaitingGreetingResponse:
		return "AwaitingGreetingResponse"
	case socks5SendingAuthRequest:
		return "SendingAuthRequest"
	case socks5AwaitingAuthResponse:
		return "AwaitingAuthResponse"
	case socks5SendingConnectRequest:
		return "SendingConnectRequest"
	case socks5AwaitingConnectResponse:
		return "AwaitingConnectResponse"
	case socks5AwaitingAddressLength:
		return "AwaitingAddressLength"
	case socks5AwaitingAddressBytes:
		return "AwaitingAddressBytes"
	case socks5Complete:
		return "Complete"
	case socks5Failed:
		return "Failed"
	default:
		return fmt.Sprintf("socks5State(%d)", int(s))
	}
}

// SOCKS5Parser negotiates a SOCKS5 CONNECT, including the optional
// username/password round.
type SOCKS5Parser struct {
	engine

	cfg     Config
	methods []byte
	address []byte
	atyp    AddressType
	port    uint16
	state   socks5State

	// bound address of the reply being parsed
	replyAtyp AddressType
	addrLen   int
}

// NewSOCKS5Parser validates cfg and the target.
func NewSOCKS5Parser(cfg Config, address string, port uint16) (Parser, error) {
	if address == "" {
		return nil, newError(KindConfiguration, "empty target address")
	}
	cfg = cfg.clone()
	if err := cfg.validateCredentials(); err != nil {
		return nil, err
	}
	methods, err := cfg.authMethods()
	if err != nil {
		return nil, err
	}
	if slices.Contains(methods, txsocks5.MethodUsernamePassword) && cfg.username() == "" {
		return nil, newError(KindConfiguration, "password authentication requires %q", ConfigUsername)
	}

	addr, atyp, err := EncodeAddress(address)
	if err != nil {
		return nil, err
	}

	p := &SOCKS5Parser{
		cfg:     cfg,
		methods: methods,
		address: addr,
		atyp:    atyp,
		port:    port,
	}
	p.engine = engine{version: Version5, self: p, m: p}
	return p, nil
}

// State returns the current handshake state.
func (p *SOCKS5Parser) State() string { return p.state.String() }

func (p *SOCKS5Parser) begin() ([]byte, error) {
	p.state = socks5SendingGreeting
	req := wire(txsocks5.NewNegotiationRequest(p.methods))
	p.state = socks5AwaitingGreetingResponse
	return req, nil
}

func (p *SOCKS5Parser) want() int {
	switch p.state {
	case socks5AwaitingGreetingResponse, socks5AwaitingAuthResponse:
		return 2
	case socks5AwaitingConnectResponse:
		return 4
	case socks5AwaitingAddressLength:
		return 1
	case socks5AwaitingAddressBytes:
		return p.addrLen + portLen
	default:
		return 0
	}
}

func (p *SOCKS5Parser) consume(unit []byte) (step, error) {
	switch p.state {
	case socks5AwaitingGreetingResponse:
		return p.consumeGreeting(unit)
	case socks5AwaitingAuthResponse:
		return p.consumeAuth(unit)
	case socks5AwaitingConnectResponse:
		return p.consumeReplyHeader(unit)
	case socks5AwaitingAddressLength:
		p.addrLen = int(unit[0])
		if p.addrLen == 0 {
			return step{}, newError(KindMalformedAddress, "empty bound domain name")
		}
		p.state = socks5AwaitingAddressBytes
		return step{}, nil
	case socks5AwaitingAddressBytes:
		return p.consumeBoundAddress(unit)
	default:
		return step{}, newError(KindProtocolViolation, "unexpected data in state %s", p.state)
	}
}

func (p *SOCKS5Parser) consumeGreeting(unit []byte) (step, error) {
	// VER METHOD
	if unit[0] != txsocks5.Ver {
		return step{}, &Error{Kind: KindProtocolViolation, Code: unit[0], Detail: fmt.Sprintf("unexpected greeting version 0x%02x", unit[0])}
	}

	method := unit[1]
	if method == txsocks5.MethodUnsupportAll {
		return step{}, &Error{Kind: KindAuthenticationFailed, Code: method, Detail: "no acceptable authentication methods"}
	}
	if !slices.Contains(p.methods, method) {
		return step{}, &Error{Kind: KindAuthenticationFailed, Code: method, Detail: fmt.Sprintf("server selected method 0x%02x which was not offered", method)}
	}

	switch method {
	case txsocks5.MethodNone:
		return step{request: p.connectRequest()}, nil
	case txsocks5.MethodUsernamePassword:
		return step{request: p.authRequest()}, nil
	default:
		return step{}, &Error{Kind: KindAuthenticationFailed, Code: method, Detail: fmt.Sprintf("unsupported method 0x%02x", method)}
	}
}

func (p *SOCKS5Parser) authRequest() []byte {
	p.state = socks5SendingAuthRequest
	req := wire(txsocks5.NewUserPassNegotiationRequest([]byte(p.cfg.username()), []byte(p.cfg.password())))
	p.state = socks5AwaitingAuthResponse
	return req
}

func (p *SOCKS5Parser) consumeAuth(unit []byte) (step, error) {
	// VER STATUS
	if unit[0] != txsocks5.UserPassVer {
		return step{}, &Error{Kind: KindProtocolViolation, Code: unit[0], Detail: fmt.Sprintf("unexpected auth version 0x%02x", unit[0])}
	}
	if unit[1] != txsocks5.UserPassStatusSuccess {
		return step{}, &Error{Kind: KindAuthenticationFailed, Code: unit[1], Detail: "username/password rejected"}
	}
	return step{request: p.connectRequest()}, nil
}

func (p *SOCKS5Parser) connectRequest() []byte {
	p.state = socks5SendingConnectRequest

	addr := p.address
	if p.atyp == AddressDomain {
		// NewRequest adds the length prefix itself.
		addr = addr[1:]
	}
	req := wire(txsocks5.NewRequest(txsocks5.CmdConnect, byte(p.atyp), addr, EncodePort(p.port)))

	p.state = socks5AwaitingConnectResponse
	return req
}

func (p *SOCKS5Parser) consumeReplyHeader(unit []byte) (step, error) {
	// VER REP RSV ATYP
	if unit[0] != txsocks5.Ver {
		return step{}, &Error{Kind: KindProtocolViolation, Code: unit[0], Detail: fmt.Sprintf("unexpected reply version 0x%02x", unit[0])}
	}
	if rep := unit[1]; rep != txsocks5.RepSuccess {
		return step{}, rejected(rep, ReplyText(rep))
	}

	atyp := AddressType(unit[3])
	switch atyp {
	case AddressIPv4, AddressIPv6:
		p.addrLen = addressLen(atyp)
		p.state = socks5AwaitingAddressBytes
	case AddressDomain:
		p.state = socks5AwaitingAddressLength
	default:
		return step{}, &Error{Kind: KindUnsupportedAddressType, Code: byte(atyp), Detail: "bound " + atyp.String()}
	}
	p.replyAtyp = atyp
	return step{}, nil
}

func (p *SOCKS5Parser) consumeBoundAddress(unit []byte) (step, error) {
	// ATYP [LEN] BND.ADDR BND.PORT
	raw := make([]byte, 0, 2+len(unit))
	raw = append(raw, byte(p.replyAtyp))
	if p.replyAtyp == AddressDomain {
		raw = append(raw, byte(p.addrLen))
	}
	raw = append(raw, unit...)

	atyp, addr, portBytes, err := txsocks5.ParseBytesAddress(raw)
	if err != nil {
		return step{}, newError(KindMalformedAddress, "bound address: %v", err)
	}
	host, _, err := net.SplitHostPort(txsocks5.ToAddress(atyp, addr, portBytes))
	if err != nil {
		return step{}, newError(KindMalformedAddress, "bound address: %v", err)
	}
	port, err := DecodePort(portBytes)
	if err != nil {
		return step{}, err
	}

	p.state = socks5Complete
	return step{result: &Endpoint{Address: host, Port: port}}, nil
}

func (p *SOCKS5Parser) abort() {
	p.state = socks5Failed
}
