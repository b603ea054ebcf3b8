package socks

import (
	"net"
	"strconv"
)

// Delegate receives parser events. All callbacks run synchronously inside
// Start or ParseNextChunk.
type Delegate interface {
	// NeedsMoreBytes reports how many more bytes complete the current step.
	NeedsMoreBytes(p Parser, n int)
	// FormedRequest hands over bytes that must be written to the proxy.
	FormedRequest(p Parser, req []byte)
	// FinishedWithAddress reports the endpoint the proxy connected to. It is
	// called at most once.
	FinishedWithAddress(p Parser, address string, port uint16)
	// EncounteredError reports a terminal failure, always a *Error. It is
	// called at most once.
	EncounteredError(p Parser, err error)
}

// Parser is a single-use handshake state machine for one protocol version.
//
// Start is effective once; later calls do nothing. ParseNextChunk does
// nothing before Start, for empty chunks, and once the parser is done.
type Parser interface {
	Version() string
	SetDelegate(d Delegate)
	Delegate() Delegate
	Start()
	ParseNextChunk(chunk []byte)
	// Done reports whether the parser reached Complete or Failed.
	Done() bool
	// Buffered returns bytes received after the final handshake unit. They
	// belong to the proxied stream.
	Buffered() []byte
}

// Endpoint is a host and port pair as reported by the proxy.
type Endpoint struct {
	Address string
	Port    uint16
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Address, strconv.Itoa(int(e.Port)))
}

// step is the outcome of consuming one protocol unit.
type step struct {
	request []byte
	result  *Endpoint
}

// machine is the version-specific part of a parser.
type machine interface {
	// begin forms the first request.
	begin() ([]byte, error)
	// want is the length of the next unit.
	want() int
	// consume advances the state with exactly want() bytes.
	consume(unit []byte) (step, error)
	// abort moves the machine to its Failed state.
	abort()
}

// engine owns the partial buffer and delegate plumbing shared by every
// version. Variants embed it and set m and self.
type engine struct {
	version  string
	delegate Delegate
	self     Parser
	m        machine

	buf     []byte
	started bool
	done    bool
}

func (e *engine) Version() string { return e.version }

func (e *engine) SetDelegate(d Delegate) { e.delegate = d }

func (e *engine) Delegate() Delegate { return e.delegate }

func (e *engine) Done() bool { return e.done }

func (e *engine) Buffered() []byte {
	if !e.done {
		return nil
	}
	return e.buf
}

func (e *engine) Start() {
	if e.started {
		return
	}
	e.started = true

	req, err := e.m.begin()
	if err != nil {
		e.fail(err)
		return
	}
	e.emitRequest(req)
	e.needMore()
}

func (e *engine) ParseNextChunk(chunk []byte) {
	if !e.started || e.done || len(chunk) == 0 {
		return
	}
	e.buf = append(e.buf, chunk...)

	for !e.done {
		n := e.m.want()
		if len(e.buf) < n {
			e.needMore()
			return
		}

		st, err := e.m.consume(e.buf[:n:n])
		e.buf = append(e.buf[:0], e.buf[n:]...)
		if err != nil {
			e.fail(err)
			return
		}
		if st.request != nil {
			e.emitRequest(st.request)
		}
		if st.result != nil {
			e.done = true
			if e.delegate != nil {
				e.delegate.FinishedWithAddress(e.self, st.result.Address, st.result.Port)
			}
			return
		}
	}
}

// needMore is silent once the parser is done, including when a delegate
// finished the handshake re-entrantly from FormedRequest.
func (e *engine) needMore() {
	if !e.done && e.delegate != nil {
		e.delegate.NeedsMoreBytes(e.self, e.m.want()-len(e.buf))
	}
}

func (e *engine) emitRequest(req []byte) {
	if e.delegate != nil {
		e.delegate.FormedRequest(e.self, req)
	}
}

func (e *engine) fail(err error) {
	if e.done {
		return
	}
	e.done = true
	e.buf = nil
	e.m.abort()
	if e.delegate != nil {
		e.delegate.EncounteredError(e.self, err)
	}
}
