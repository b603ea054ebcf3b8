package socks

import (
	"fmt"
)

// ErrorKind classifies handshake failures.
type ErrorKind int

const (
	KindConfiguration ErrorKind = iota + 1
	KindProtocolViolation
	KindUnsupportedAddressType
	KindMalformedAddress
	KindAuthenticationFailed
	KindServerRejected
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration error"
	case KindProtocolViolation:
		return "protocol violation"
	case KindUnsupportedAddressType:
		return "unsupported address type"
	case KindMalformedAddress:
		return "malformed address"
	case KindAuthenticationFailed:
		return "authentication failed"
	case KindServerRejected:
		return "server rejected request"
	default:
		return fmt.Sprintf("error kind %d", int(k))
	}
}

// Error is the structured error reported by parsers, the registry and the
// address codec. Code carries the reply or type byte that caused the failure,
// when there is one.
type Error struct {
	Kind   ErrorKind
	Code   byte
	Detail string
}

// Sentinels for errors.Is.
var (
	ErrConfiguration          = &Error{Kind: KindConfiguration}
	ErrProtocolViolation      = &Error{Kind: KindProtocolViolation}
	ErrUnsupportedAddressType = &Error{Kind: KindUnsupportedAddressType}
	ErrMalformedAddress       = &Error{Kind: KindMalformedAddress}
	ErrAuthenticationFailed   = &Error{Kind: KindAuthenticationFailed}
	ErrServerRejected         = &Error{Kind: KindServerRejected}
)

func (e *Error) Error() string {
	if e.Detail == "" {
		return "socks: " + e.Kind.String()
	}
	return "socks: " + e.Kind.String() + ": " + e.Detail
}

// Is matches on Kind, and also on Code when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == 0 || t.Code == e.Code)
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func rejected(code byte, desc string) *Error {
	return &Error{Kind: KindServerRejected, Code: code, Detail: fmt.Sprintf("%s (code 0x%02x)", desc, code)}
}
