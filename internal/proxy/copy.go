package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
)

type closeWriter interface {
	CloseWrite() error
}

// CopyBidirectional relays between left and right until both directions
// reach EOF, either side fails, or ctx is canceled. Both connections are
// closed on return. A direction that reaches EOF half-closes its destination
// when the connection supports it.
func CopyBidirectional(ctx context.Context, left, right net.Conn) error {
	g, gctx := errgroup.WithContext(ctx)

	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = left.Close()
			_ = right.Close()
		})
	}
	defer closeBoth()

	// Unblock both copies if ctx is canceled or one direction fails.
	stop := context.AfterFunc(gctx, closeBoth)
	defer stop()

	g.Go(func() error {
		return copyHalf(left, right)
	})
	g.Go(func() error {
		return copyHalf(right, left)
	})

	err := g.Wait()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

func copyHalf(dst, src net.Conn) error {
	buf := copyBuffers.Get()
	defer copyBuffers.Put(buf)

	_, err := io.CopyBuffer(dst, src, *buf)
	if err != nil {
		return err
	}

	if cw, ok := dst.(closeWriter); ok {
		return cw.CloseWrite()
	}
	// Without half-close, EOF on one side ends the session.
	return net.ErrClosed
}
