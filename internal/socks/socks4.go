package socks

import (
	"fmt"
	"net/netip"
	"strings"
)

// Version4 identifies SOCKS4 with the SOCKS4a domain extension.
const Version4 = "4"

const (
	socks4Version      = 0x04
	socks4ReplyVersion = 0x00
	socks4CmdConnect   = 0x01
	socks4ReplyLen     = 8
)

// Possible CD reply values.
const (
	socks4Granted          = 0x5a
	socks4Rejected         = 0x5b
	socks4IdentUnreachable = 0x5c
	socks4IdentMismatch    = 0x5d
)

var socks4ReplyText = map[byte]string{
	socks4Rejected:         "request rejected or failed",
	socks4IdentUnreachable: "identd unreachable",
	socks4IdentMismatch:    "identd user mismatch",
}

type socks4State int

const (
	socks4Initial socks4State = iota
	socks4SendingRequest
	socks4AwaitingResponse
	socks4Complete
	socks4Failed
)

func (s socks4State) String() string {
	switch s {
	case socks4Initial:
		return "Initial"
	case socks4SendingRequest:
		return "SendingRequest"
	case socks4AwaitingResponse:
		return "AwaitingResponse"
	case socks4Complete:
		return "Complete"
	case socks4Failed:
		return "Failed"
	default:
		return fmt.Sprintf("socks4State(%d)", int(s))
	}
}

// SOCKS4Parser negotiates a SOCKS4 CONNECT. Domain targets are sent in the
// SOCKS4a form so the proxy resolves them.
type SOCKS4Parser struct {
	engine

	cfg     Config
	address string
	port    uint16
	atyp    AddressType
	state   socks4State
}

// NewSOCKS4Parser validates cfg and the target. IPv6 targets cannot be
// expressed in SOCKS4.
func NewSOCKS4Parser(cfg Config, address string, port uint16) (Parser, error) {
	if address == "" {
		return nil, newError(KindConfiguration, "empty target address")
	}
	cfg = cfg.clone()
	if err := cfg.validateCredentials(); err != nil {
		return nil, err
	}
	if strings.IndexByte(cfg.username(), 0) >= 0 {
		return nil, newError(KindConfiguration, "username contains NUL")
	}

	atyp := TypeOf(address)
	switch atyp {
	case AddressIPv6:
		return nil, &Error{Kind: KindUnsupportedAddressType, Code: byte(atyp), Detail: "socks4 cannot carry ipv6 address " + address}
	case AddressDomain:
		if _, _, err := EncodeAddress(address); err != nil {
			return nil, err
		}
		if strings.IndexByte(address, 0) >= 0 {
			return nil, newError(KindMalformedAddress, "domain name contains NUL")
		}
	}

	p := &SOCKS4Parser{
		cfg:     cfg,
		address: address,
		port:    port,
		atyp:    atyp,
	}
	p.engine = engine{version: Version4, self: p, m: p}
	return p, nil
}

// State returns the current handshake state.
func (p *SOCKS4Parser) State() string { return p.state.String() }

func (p *SOCKS4Parser) begin() ([]byte, error) {
	p.state = socks4SendingRequest

	// VN CD DSTPORT DSTIP USERID NUL [DOMAIN NUL]
	req := []byte{socks4Version, socks4CmdConnect}
	req = append(req, EncodePort(p.port)...)
	if p.atyp == AddressIPv4 {
		ip := netip.MustParseAddr(p.address).As4()
		req = append(req, ip[:]...)
	} else {
		req = append(req, 0, 0, 0, 1)
	}
	req = append(req, p.cfg.username()...)
	req = append(req, 0)
	if p.atyp == AddressDomain {
		req = append(req, p.address...)
		req = append(req, 0)
	}

	p.state = socks4AwaitingResponse
	return req, nil
}

func (p *SOCKS4Parser) want() int {
	return socks4ReplyLen
}

func (p *SOCKS4Parser) consume(unit []byte) (step, error) {
	if p.state != socks4AwaitingResponse {
		return step{}, newError(KindProtocolViolation, "unexpected data in state %s", p.state)
	}

	// VN CD DSTPORT DSTIP
	if unit[0] != socks4ReplyVersion {
		return step{}, &Error{Kind: KindProtocolViolation, Code: unit[0], Detail: fmt.Sprintf("unexpected reply version 0x%02x", unit[0])}
	}
	switch cd := unit[1]; cd {
	case socks4Granted:
	case socks4Rejected, socks4IdentUnreachable, socks4IdentMismatch:
		return step{}, rejected(cd, socks4ReplyText[cd])
	default:
		return step{}, &Error{Kind: KindProtocolViolation, Code: cd, Detail: fmt.Sprintf("unknown reply code 0x%02x", cd)}
	}

	port, err := DecodePort(unit[2:4])
	if err != nil {
		return step{}, err
	}
	addr, _, err := DecodeAddress(unit[4:8], AddressIPv4)
	if err != nil {
		return step{}, err
	}

	// Most servers leave the reply address zeroed; report the target then.
	ep := &Endpoint{Address: addr, Port: port}
	if port == 0 && addr == "0.0.0.0" {
		ep = &Endpoint{Address: p.address, Port: p.port}
	}

	p.state = socks4Complete
	return step{result: ep}, nil
}

func (p *SOCKS4Parser) abort() {
	p.state = socks4Failed
}
