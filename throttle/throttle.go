package throttle

import (
	"context"
	"net"

	"golang.org/x/time/rate"
)

// ThrottledConn limits the rate at which bytes are written to the wrapped
// connection. Reads are not limited.
type ThrottledConn struct {
	net.Conn
	Limiter *rate.Limiter

	ctx context.Context
}

// Wrap returns conn unchanged when bytesPerSecond <= 0.
// ctx aborts a write that is waiting for the limiter.
func Wrap(ctx context.Context, conn net.Conn, bytesPerSecond float64) net.Conn {
	if bytesPerSecond <= 0 {
		return conn
	}
	burst := int(bytesPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &ThrottledConn{
		Conn:    conn,
		Limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
		ctx:     ctx,
	}
}

// Write blocks until the limiter allows len(p) bytes. Large writes are split
// in pieces no larger than the limiter burst.
func (tc *ThrottledConn) Write(p []byte) (n int, err error) {
	burst := tc.Limiter.Burst()
	for n < len(p) {
		piece := p[n:]
		if len(piece) > burst {
			piece = piece[:burst]
		}
		if err := tc.Limiter.WaitN(tc.ctx, len(piece)); err != nil {
			return n, err
		}
		written, err := tc.Conn.Write(piece)
		n += written
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
