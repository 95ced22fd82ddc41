package core

import (
	"context"
	"errors"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"gitlab.lrz.de/protocol-design-sose-2022-team-0/tcpft/logger"
)

// ErrDrainTimeout is returned by Serve when running handlers did not finish
// within ShutdownTimeout and their connections were closed.
var ErrDrainTimeout = errors.New("shutdown timeout exceeded, remaining connections closed")

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Server accepts connections and runs one handler per connection with at
// most MaxWorkers handlers at a time. While all workers are busy no further
// connection is accepted, so waiting clients stay in the listen backlog.
type Server struct {
	Listener          net.Listener
	ConnectionHandler ConnectionHandler
	// MaxWorkers <= 0 means no limit.
	MaxWorkers int
	// ShutdownTimeout bounds the wait for running handlers once ctx is done;
	// zero waits until all of them returned.
	ShutdownTimeout time.Duration

	wg     sync.WaitGroup
	mu     sync.Mutex
	active map[net.Conn]struct{}
}

// Serve accepts connections until ctx is cancelled or the listener is
// closed. Other accept errors are logged and retried with a growing delay.
// It always waits for running handlers (see ShutdownTimeout) before
// returning, and it closes the listener.
func (s *Server) Serve(ctx context.Context) error {
	ln := s.Listener
	if s.MaxWorkers > 0 {
		ln = netutil.LimitListener(ln, s.MaxWorkers)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-stop:
		}
	}()

	var acceptErr error
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				acceptErr = err
				break
			}
			// EMFILE and friends: keep serving after a pause
			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay *= 2
			}
			if delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			logger.Warn("Accept failed, retrying", "error", err, "delay", delay)
			if !sleepCtx(ctx, delay) {
				break
			}
			continue
		}
		delay = 0
		logger.Debug("Accepted connection", "remote_addr", conn.RemoteAddr().String())
		s.track(conn, true)
		s.wg.Add(1)
		go s.handleConnection(conn)
	}

	if err := s.drain(); err != nil {
		return err
	}
	return acceptErr
}

// ActiveConnections returns the number of connections being handled.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer s.track(conn, false)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Connection handler panicked",
				"remote_addr", conn.RemoteAddr(),
				"panic", r,
				"stack", string(debug.Stack()))
			conn.Close()
		}
	}()

	s.ConnectionHandler.HandleConnection(conn)
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		s.active = make(map[net.Conn]struct{})
	}
	if add {
		s.active[conn] = struct{}{}
	} else {
		delete(s.active, conn)
	}
}

// sleepCtx waits for d and reports false if ctx was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Server) drain() error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	if s.ShutdownTimeout <= 0 {
		<-done
		return nil
	}

	timer := time.NewTimer(s.ShutdownTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
	}

	s.mu.Lock()
	logger.Warn("Shutdown timeout exceeded, closing connections", "remaining", len(s.active))
	for conn := range s.active {
		conn.Close()
	}
	s.mu.Unlock()
	<-done
	return ErrDrainTimeout
}
