package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"gitlab.lrz.de/protocol-design-sose-2022-team-0/tcpft/logger"
)

// ActiveCounter reports the number of transfers in progress.
type ActiveCounter interface {
	ActiveConnections() int
}

// HealthServer answers /health (process alive) and /ready (accepting
// transfers) over HTTP.
type HealthServer struct {
	server   *http.Server
	listener net.Listener
	ready    atomic.Bool
	active   ActiveCounter
}

func NewHealthServer(addr string, active ActiveCounter) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		active: active,
	}

	mux.HandleFunc("/health", hs.handleHealth)
	mux.HandleFunc("/ready", hs.handleReady)

	return hs
}

// Start binds the address and serves in the background.
func (s *HealthServer) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	go func() {
		logger.Info("Health server listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, nil before Start.
func (s *HealthServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *HealthServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HealthServer) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready"))
		return
	}
	if s.active != nil {
		w.Header().Set("X-Active-Transfers", strconv.Itoa(s.active.ActiveConnections()))
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}
