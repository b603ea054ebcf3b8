package proxy

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/die-net/sockshake/internal/testutil"
)

func TestCopyBidirectional(t *testing.T) {
	aLocal, left := net.Pipe()
	right, bLocal := net.Pipe()

	done := make(chan error, 1)
	go func() {
		done <- CopyBidirectional(context.Background(), left, right)
	}()

	testutil.AssertEcho(t, aLocal, bLocal, []byte("left to right"))
	testutil.AssertEcho(t, bLocal, aLocal, []byte("right to left"))

	// Pipes cannot half-close, so EOF on one side ends the session.
	_ = aLocal.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("copy did not return")
	}

	if _, err := bLocal.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("expected EOF on far side, got %v", err)
	}
}

func TestCopyBidirectionalCancel(t *testing.T) {
	_, left := net.Pipe()
	right, _ := net.Pipe()

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- CopyBidirectional(ctx, left, right)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("copy did not return after cancel")
	}
}

func TestBufferPoolReuse(t *testing.T) {
	p := newBufferPool(16)
	b := p.Get()
	if len(*b) != 16 {
		t.Fatalf("got len %d", len(*b))
	}
	p.Put(b)
}
