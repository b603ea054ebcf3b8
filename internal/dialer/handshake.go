package dialer

import (
	"errors"
	"fmt"
	"io"

	"github.com/die-net/sockshake/internal/socks"
)

// maxReplyUnit is the largest single unit a SOCKS reply can ask for: a
// 255-byte bound domain plus its port.
const maxReplyUnit = 255 + 2

var errHandshakeStalled = errors.New("handshake stalled")

// transport is the socks.Delegate used by Handshake. Requests are written as
// soon as the parser forms them.
type transport struct {
	w io.Writer

	need     int
	writeErr error
	result   *socks.Endpoint
	err      error
}

func (t *transport) NeedsMoreBytes(_ socks.Parser, n int) {
	t.need = n
}

func (t *transport) FormedRequest(_ socks.Parser, req []byte) {
	if t.writeErr != nil {
		return
	}
	if _, err := t.w.Write(req); err != nil {
		t.writeErr = err
	}
}

func (t *transport) FinishedWithAddress(_ socks.Parser, address string, port uint16) {
	t.result = &socks.Endpoint{Address: address, Port: port}
}

func (t *transport) EncounteredError(_ socks.Parser, err error) {
	t.err = err
}

// Handshake runs p to completion over rw and returns the endpoint reported by
// the proxy. Reads never ask for more than the parser needs, so a successful
// handshake leaves the stream positioned at the first proxied byte, apart
// from anything the parser reports through Buffered.
//
// Handshake applies no deadline; callers set one on the connection.
func Handshake(rw io.ReadWriter, p socks.Parser) (socks.Endpoint, error) {
	t := &transport{w: rw}
	p.SetDelegate(t)
	p.Start()

	buf := make([]byte, maxReplyUnit)
	for {
		switch {
		case t.writeErr != nil:
			return socks.Endpoint{}, fmt.Errorf("write request: %w", t.writeErr)
		case t.err != nil:
			return socks.Endpoint{}, t.err
		case t.result != nil:
			return *t.result, nil
		case t.need <= 0:
			return socks.Endpoint{}, errHandshakeStalled
		}

		n, err := rw.Read(buf[:min(t.need, len(buf))])
		if n > 0 {
			t.need = 0
			p.ParseNextChunk(buf[:n])
		}
		if err != nil && !p.Done() {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return socks.Endpoint{}, fmt.Errorf("read reply: %w", err)
		}
	}
}
