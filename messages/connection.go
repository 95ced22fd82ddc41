package messages

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// CreateServerSocket binds host:port and listens with the given backlog.
// Port 0 picks a free port, use Addr() on the listener to find it.
func CreateServerSocket(host string, port int, backlog int) (net.Listener, error) {
	if backlog <= 0 {
		return nil, fmt.Errorf("invalid backlog %d", backlog)
	}
	ln, err := listenTCP(host, port, backlog)
	if err != nil {
		return nil, fmt.Errorf("error creating listener on %s: %w", net.JoinHostPort(host, strconv.Itoa(port)), err)
	}
	return ln, nil
}

// CreateClientSocket dials address:port. A zero timeout only relies on ctx.
func CreateClientSocket(ctx context.Context, address string, port int, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(address, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("error dialing to server: %w", err)
	}
	return conn, nil
}
