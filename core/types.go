package core

import (
	"net"
)

// ConnectionHandler takes full ownership of an accepted connection,
// including closing it.
type ConnectionHandler interface {
	HandleConnection(conn net.Conn)
}

// HandlerFunc adapts a function to ConnectionHandler.
type HandlerFunc func(conn net.Conn)

func (f HandlerFunc) HandleConnection(conn net.Conn) {
	f(conn)
}
