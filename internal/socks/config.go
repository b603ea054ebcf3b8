package socks

import (
	"maps"
	"slices"
	"strings"

	txsocks5 "github.com/txthinking/socks5"
)

// Recognized Config keys. Other keys are ignored.
const (
	ConfigUsername    = "username"
	ConfigPassword    = "password"
	ConfigAuthMethods = "auth-methods"
)

// Names accepted in ConfigAuthMethods.
const (
	AuthNone     = "none"
	AuthPassword = "password"
)

// Config holds proxy credentials and the accepted authentication methods.
// Parsers copy it on construction.
type Config map[string]string

func (c Config) clone() Config {
	if c == nil {
		return Config{}
	}
	return maps.Clone(c)
}

func (c Config) username() string { return c[ConfigUsername] }
func (c Config) password() string { return c[ConfigPassword] }

// authMethods returns the SOCKS5 method bytes to offer, in preference order.
func (c Config) authMethods() ([]byte, error) {
	raw, ok := c[ConfigAuthMethods]
	if !ok || strings.TrimSpace(raw) == "" {
		methods := []byte{txsocks5.MethodNone}
		if c.username() != "" {
			methods = append(methods, txsocks5.MethodUsernamePassword)
		}
		return methods, nil
	}

	var methods []byte
	for _, name := range strings.Split(raw, ",") {
		var m byte
		switch strings.ToLower(strings.TrimSpace(name)) {
		case AuthNone:
			m = txsocks5.MethodNone
		case AuthPassword:
			m = txsocks5.MethodUsernamePassword
		default:
			return nil, newError(KindConfiguration, "unknown auth method %q", name)
		}
		if !slices.Contains(methods, m) {
			methods = append(methods, m)
		}
	}
	return methods, nil
}

func (c Config) validateCredentials() error {
	if n := len(c.username()); n > maxCredentialLen {
		return newError(KindConfiguration, "username is %d bytes, limit %d", n, maxCredentialLen)
	}
	if n := len(c.password()); n > maxCredentialLen {
		return newError(KindConfiguration, "password is %d bytes, limit %d", n, maxCredentialLen)
	}
	return nil
}
