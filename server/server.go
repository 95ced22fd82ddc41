package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"gitlab.lrz.de/protocol-design-sose-2022-team-0/tcpft/api"
	"gitlab.lrz.de/protocol-design-sose-2022-team-0/tcpft/config"
	"gitlab.lrz.de/protocol-design-sose-2022-team-0/tcpft/core"
	"gitlab.lrz.de/protocol-design-sose-2022-team-0/tcpft/logger"
	"gitlab.lrz.de/protocol-design-sose-2022-team-0/tcpft/messages"
)

type Server struct {
	Config   *config.Config
	Receiver *Receiver

	core   *core.Server
	health *api.HealthServer
}

// Init creates the save directory and binds the listening socket.
// cfg is used as is, it should have been validated.
func Init(cfg *config.Config) (*Server, error) {
	if err := os.MkdirAll(cfg.SaveDir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating save_dir %s: %w", cfg.SaveDir, err)
	}

	ln, err := messages.CreateServerSocket(cfg.Host, cfg.Port, cfg.Backlog)
	if err != nil {
		return nil, fmt.Errorf("error while creating the socket: %w", err)
	}

	s := new(Server)
	s.Config = cfg
	s.Receiver = &Receiver{
		SaveDir:     cfg.SaveDir,
		BufferSize:  cfg.BufferSize,
		IdleTimeout: cfg.IdleTimeout,
	}
	s.core = &core.Server{
		Listener:          ln,
		ConnectionHandler: s.Receiver,
		MaxWorkers:        cfg.MaxThreads,
		ShutdownTimeout:   cfg.ShutdownTimeout,
	}
	if cfg.HealthAddr != "" {
		s.health = api.NewHealthServer(cfg.HealthAddr, s.core)
	}

	return s, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() net.Addr {
	return s.core.Listener.Addr()
}

// ActiveConnections returns the number of transfers in progress.
func (s *Server) ActiveConnections() int {
	return s.core.ActiveConnections()
}

// Listen serves transfers until ctx is cancelled, then waits for the running
// transfers and releases the listening socket.
func (s *Server) Listen(ctx context.Context) error {
	if s.health != nil {
		if err := s.health.Start(); err != nil {
			s.core.Listener.Close()
			return fmt.Errorf("error starting health server: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.health.Stop(stopCtx)
		}()
		s.health.SetReady(true)
	}

	logger.Info("Server started",
		"addr", s.Addr().String(),
		"backlog", s.Config.Backlog,
		"max_threads", s.Config.MaxThreads,
		"save_dir", s.Config.SaveDir)

	err := s.core.Serve(ctx)

	if s.health != nil {
		s.health.SetReady(false)
	}
	if err != nil {
		return fmt.Errorf("error while serving: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}
