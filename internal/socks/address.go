package socks

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"unicode/utf8"
)

// AddressType is the ATYP discriminant used on the wire.
type AddressType byte

const (
	AddressIPv4   AddressType = 0x01
	AddressDomain AddressType = 0x03
	AddressIPv6   AddressType = 0x04
)

const (
	ipv4Len      = 4
	ipv6Len      = 16
	portLen      = 2
	maxDomainLen = 255
)

func (t AddressType) String() string {
	switch t {
	case AddressIPv4:
		return "ipv4"
	case AddressDomain:
		return "domain"
	case AddressIPv6:
		return "ipv6"
	default:
		return fmt.Sprintf("atyp(0x%02x)", byte(t))
	}
}

// Valid reports whether t is one of the three address types.
func (t AddressType) Valid() bool {
	return t == AddressIPv4 || t == AddressDomain || t == AddressIPv6
}

// TypeOf classifies address as an IPv4 literal, an IPv6 literal (including
// IPv4-mapped forms), or a domain name.
func TypeOf(address string) AddressType {
	ip, err := netip.ParseAddr(address)
	if err != nil {
		return AddressDomain
	}
	if ip.Is4() {
		return AddressIPv4
	}
	return AddressIPv6
}

// EncodeAddress returns the wire form of address without the ATYP byte: 4 or
// 16 raw bytes for IP literals, or a length prefix followed by the name.
func EncodeAddress(address string) ([]byte, AddressType, error) {
	t := TypeOf(address)
	switch t {
	case AddressIPv4:
		ip := netip.MustParseAddr(address).As4()
		return ip[:], t, nil
	case AddressIPv6:
		ip := netip.MustParseAddr(address)
		if ip.Zone() != "" {
			return nil, t, newError(KindMalformedAddress, "zoned address %q", address)
		}
		b := ip.As16()
		return b[:], t, nil
	}

	if address == "" {
		return nil, t, newError(KindMalformedAddress, "empty domain name")
	}
	if len(address) > maxDomainLen {
		return nil, t, newError(KindMalformedAddress, "domain name is %d bytes, limit %d", len(address), maxDomainLen)
	}
	if !utf8.ValidString(address) {
		return nil, t, newError(KindMalformedAddress, "domain name is not valid UTF-8")
	}

	b := make([]byte, 0, 1+len(address))
	b = append(b, byte(len(address)))
	b = append(b, address...)
	return b, t, nil
}

// DecodeAddress decodes an address of type t from the start of b and returns
// it with the number of bytes consumed. Trailing bytes are ignored.
func DecodeAddress(b []byte, t AddressType) (string, int, error) {
	switch t {
	case AddressIPv4:
		if len(b) < ipv4Len {
			return "", 0, newError(KindMalformedAddress, "ipv4 address needs %d bytes, have %d", ipv4Len, len(b))
		}
		return netip.AddrFrom4([4]byte(b[:ipv4Len])).String(), ipv4Len, nil
	case AddressIPv6:
		if len(b) < ipv6Len {
			return "", 0, newError(KindMalformedAddress, "ipv6 address needs %d bytes, have %d", ipv6Len, len(b))
		}
		return netip.AddrFrom16([16]byte(b[:ipv6Len])).String(), ipv6Len, nil
	case AddressDomain:
		if len(b) < 1 {
			return "", 0, newError(KindMalformedAddress, "missing domain length")
		}
		n := int(b[0])
		if n == 0 {
			return "", 0, newError(KindMalformedAddress, "empty domain name")
		}
		if len(b) < 1+n {
			return "", 0, newError(KindMalformedAddress, "domain needs %d bytes, have %d", n, len(b)-1)
		}
		return string(b[1 : 1+n]), 1 + n, nil
	default:
		return "", 0, &Error{Kind: KindUnsupportedAddressType, Code: byte(t), Detail: t.String()}
	}
}

// EncodePort returns port in network byte order.
func EncodePort(port uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, port)
}

// DecodePort reads a network byte order port from the start of b.
func DecodePort(b []byte) (uint16, error) {
	if len(b) < portLen {
		return 0, newError(KindMalformedAddress, "port needs %d bytes, have %d", portLen, len(b))
	}
	return binary.BigEndian.Uint16(b), nil
}

// addressLen returns the encoded length of an address of type t, or -1 for
// domains, whose length comes from the prefix byte.
func addressLen(t AddressType) int {
	switch t {
	case AddressIPv4:
		return ipv4Len
	case AddressIPv6:
		return ipv6Len
	default:
		return -1
	}
}
