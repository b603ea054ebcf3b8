package testutil

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/txthinking/socks5"
)

// SOCKS4Request is what a fake SOCKS4 proxy received.
type SOCKS4Request struct {
	UserID string
	Host   string
	Port   uint16
	// Domain is set when the client used the SOCKS4a form.
	Domain bool
}

// Address returns host:port.
func (r *SOCKS4Request) Address() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(int(r.Port)))
}

// ServeSOCKS5Connect runs the proxy side of a SOCKS5 CONNECT on c, dials the
// requested destination and relays until either side closes. If user and
// pass are empty the proxy selects no-auth, otherwise it requires them.
func ServeSOCKS5Connect(ctx context.Context, c net.Conn, user, pass string) (*socks5.Request, error) {
	if _, err := socks5.NewNegotiationRequestFrom(c); err != nil {
		return nil, err
	}

	if user == "" && pass == "" {
		if _, err := socks5.NewNegotiationReply(socks5.MethodNone).WriteTo(c); err != nil {
			return nil, err
		}
	} else {
		if _, err := socks5.NewNegotiationReply(socks5.MethodUsernamePassword).WriteTo(c); err != nil {
			return nil, err
		}

		urq, err := socks5.NewUserPassNegotiationRequestFrom(c)
		if err != nil {
			return nil, err
		}
		if string(urq.Uname) != user || string(urq.Passwd) != pass {
			_, _ = socks5.NewUserPassNegotiationReply(socks5.UserPassStatusFailure).WriteTo(c)
			return nil, errors.New("auth failed")
		}
		if _, err := socks5.NewUserPassNegotiationReply(socks5.UserPassStatusSuccess).WriteTo(c); err != nil {
			return nil, err
		}
	}

	req, err := socks5.NewRequestFrom(c)
	if err != nil {
		return nil, err
	}
	if req.Cmd != socks5.CmdConnect {
		_, _ = socks5.NewReply(socks5.RepCommandNotSupported, socks5.ATYPIPv4, []byte{0x00, 0x00, 0x00, 0x00}, []byte{0x00, 0x00}).WriteTo(c)
		return req, fmt.Errorf("unexpected command %d", req.Cmd)
	}

	d := net.Dialer{}
	dst, err := d.DialContext(ctx, "tcp", req.Address())
	if err != nil {
		_, _ = socks5.NewReply(socks5.RepHostUnreachable, socks5.ATYPIPv4, []byte{0x00, 0x00, 0x00, 0x00}, []byte{0x00, 0x00}).WriteTo(c)
		return req, err
	}
	defer dst.Close()

	a, addr, port, err := socks5.ParseAddress(dst.LocalAddr().String())
	if err != nil {
		return req, err
	}
	if a == socks5.ATYPDomain {
		addr = addr[1:]
	}
	if _, err := socks5.NewReply(socks5.RepSuccess, a, addr, port).WriteTo(c); err != nil {
		return req, err
	}

	relay(c, dst)
	return req, nil
}

// ServeSOCKS4Connect runs the proxy side of a SOCKS4 or SOCKS4a CONNECT on c.
// A non-empty userID must match the client's USERID.
func ServeSOCKS4Connect(ctx context.Context, c net.Conn, userID string) (*SOCKS4Request, error) {
	br := bufio.NewReader(c)

	// VN CD DSTPORT DSTIP USERID NUL
	hdr := make([]byte, 8)
	if _, err := io.ReadFull(br, hdr); err != nil {
		return nil, err
	}
	if hdr[0] != 0x04 || hdr[1] != 0x01 {
		return nil, fmt.Errorf("unexpected request header %x", hdr[:2])
	}
	user, err := readNulString(br)
	if err != nil {
		return nil, err
	}

	req := &SOCKS4Request{
		UserID: user,
		Host:   net.IP(hdr[4:8]).String(),
		Port:   binary.BigEndian.Uint16(hdr[2:4]),
	}
	if hdr[4] == 0 && hdr[5] == 0 && hdr[6] == 0 && hdr[7] != 0 {
		if req.Host, err = readNulString(br); err != nil {
			return nil, err
		}
		req.Domain = true
	}

	reject := []byte{0x00, 0x5b, 0, 0, 0, 0, 0, 0}
	if userID != "" && user != userID {
		_, _ = c.Write(reject)
		return req, errors.New("userid mismatch")
	}

	d := net.Dialer{}
	dst, err := d.DialContext(ctx, "tcp", req.Address())
	if err != nil {
		_, _ = c.Write(reject)
		return req, err
	}
	defer dst.Close()

	if _, err := c.Write([]byte{0x00, 0x5a, 0, 0, 0, 0, 0, 0}); err != nil {
		return req, err
	}

	relay(c, dst)
	return req, nil
}

func readNulString(br *bufio.Reader) (string, error) {
	s, err := br.ReadString(0)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(s, "\x00"), nil
}

func relay(c, dst net.Conn) {
	go func() {
		_, _ = io.Copy(dst, c)
		_ = dst.Close()
	}()
	_, _ = io.Copy(c, dst)
}
