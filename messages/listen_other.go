//go:build !linux

package messages

import (
	"net"
	"strconv"
)

// The standard library does not expose the backlog, the OS default is used.
func listenTCP(host string, port int, backlog int) (net.Listener, error) {
	return net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
}
