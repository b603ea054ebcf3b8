package socks

import (
	"bytes"
	"fmt"
)

// recorder is a Delegate that logs every callback.
type recorder struct {
	events   []string
	requests [][]byte
	needs    []int
	endpoint *Endpoint
	err      error
	finished int
	failed   int
}

func (r *recorder) NeedsMoreBytes(_ Parser, n int) {
	r.needs = append(r.needs, n)
}

func (r *recorder) FormedRequest(_ Parser, req []byte) {
	r.requests = append(r.requests, bytes.Clone(req))
	r.events = append(r.events, fmt.Sprintf("request %x", req))
}

func (r *recorder) FinishedWithAddress(_ Parser, address string, port uint16) {
	r.finished++
	r.endpoint = &Endpoint{Address: address, Port: port}
	r.events = append(r.events, "finished "+r.endpoint.String())
}

func (r *recorder) EncounteredError(_ Parser, err error) {
	r.failed++
	r.err = err
	r.events = append(r.events, "error "+err.Error())
}

func (r *recorder) lastNeed() int {
	if len(r.needs) == 0 {
		return -1
	}
	return r.needs[len(r.needs)-1]
}

// exchange starts p and feeds each response as a single chunk after the
// matching request has been formed.
func exchange(p Parser, responses ...[]byte) *recorder {
	rec := &recorder{}
	p.SetDelegate(rec)
	p.Start()
	for _, resp := range responses {
		p.ParseNextChunk(resp)
	}
	return rec
}

// trickle is exchange with every response split into single bytes.
func trickle(p Parser, responses ...[]byte) *recorder {
	rec := &recorder{}
	p.SetDelegate(rec)
	p.Start()
	for _, resp := range responses {
		for i := range resp {
			p.ParseNextChunk(resp[i : i+1])
		}
	}
	return rec
}

// loopback is a recorder that answers each formed request synchronously
// from inside FormedRequest, like an in-memory transport.
type loopback struct {
	recorder
	replies [][]byte
}

func (l *loopback) FormedRequest(p Parser, req []byte) {
	l.recorder.FormedRequest(p, req)
	if len(l.replies) == 0 {
		return
	}
	reply := l.replies[0]
	l.replies = l.replies[1:]
	p.ParseNextChunk(reply)
}
