package proxy

import (
	"errors"
	"fmt"
	"net"
	"slices"

	"github.com/txthinking/socks5"

	"github.com/die-net/sockshake/internal/socks"
)

var errNoAcceptableMethod = errors.New("no acceptable authentication method")

// negotiate runs the server side of method selection and, when configured,
// username/password authentication.
func negotiate(conn net.Conn, username, password string) error {
	neg, err := socks5.NewNegotiationRequestFrom(conn)
	if err != nil {
		return fmt.Errorf("negotiation request: %w", err)
	}

	var method byte = socks5.MethodNone
	if username != "" {
		method = socks5.MethodUsernamePassword
	}
	if !slices.Contains(neg.Methods, method) {
		_, _ = socks5.NewNegotiationReply(socks5.MethodUnsupportAll).WriteTo(conn)
		return errNoAcceptableMethod
	}
	if _, err := socks5.NewNegotiationReply(method).WriteTo(conn); err != nil {
		return fmt.Errorf("negotiation reply: %w", err)
	}
	if username == "" {
		return nil
	}

	urq, err := socks5.NewUserPassNegotiationRequestFrom(conn)
	if err != nil {
		return fmt.Errorf("read userpass: %w", err)
	}
	if string(urq.Uname) != username || string(urq.Passwd) != password {
		_, _ = socks5.NewUserPassNegotiationReply(socks5.UserPassStatusFailure).WriteTo(conn)
		return fmt.Errorf("auth failed for %q", urq.Uname)
	}
	if _, err := socks5.NewUserPassNegotiationReply(socks5.UserPassStatusSuccess).WriteTo(conn); err != nil {
		return fmt.Errorf("write userpass: %w", err)
	}
	return nil
}

// writeReply sends a reply carrying bound, or the all-zero IPv4 address when
// bound is empty.
func writeReply(conn net.Conn, rep byte, bound socks.Endpoint) error {
	var atyp byte = socks5.ATYPIPv4
	addr, port := []byte{0x00, 0x00, 0x00, 0x00}, []byte{0x00, 0x00}
	if bound.Address != "" {
		b, t, err := socks.EncodeAddress(bound.Address)
		if err != nil {
			return fmt.Errorf("encode bound address: %w", err)
		}
		atyp, addr, port = byte(t), b, socks.EncodePort(bound.Port)
		if t == socks.AddressDomain {
			// NewReply adds the length prefix itself.
			addr = addr[1:]
		}
	}

	if _, err := socks5.NewReply(rep, atyp, addr, port).WriteTo(conn); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	return nil
}
