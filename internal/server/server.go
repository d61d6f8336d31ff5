// Package server owns the HTTP listener's lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// Server is a start/stop lifecycle around one http.Server. Start while
// running and Stop while stopped are no-ops.
type Server struct {
	addr    string
	handler http.Handler
	logger  *slog.Logger

	mu         sync.Mutex
	onShutdown []func()
	srv        *http.Server
	ln      net.Listener
	serveCh chan error
}

// New creates a stopped server for addr.
func New(addr string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{addr: addr, handler: handler, logger: logger}
}

// Start binds the listener and serves in the background. Bind errors are
// returned; serve errors are reported by Wait.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		s.logger.Info("server already running", slog.String("address", s.Addr()))
		return nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	for _, f := range s.onShutdown {
		srv.RegisterOnShutdown(f)
	}
	serveCh := make(chan error, 1)
	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serveCh <- err
		close(serveCh)
	}()

	s.srv, s.ln, s.serveCh = srv, ln, serveCh
	s.logger.Info("server started", slog.String("address", ln.Addr().String()))
	return nil
}

// OnShutdown registers f to run when Stop begins, before in-flight requests
// are awaited. Long-lived handlers such as event streams use it to end their
// responses. It applies from the next Start.
func (s *Server) OnShutdown(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onShutdown = append(s.onShutdown, f)
}

// Stop gracefully shuts the server down, waiting for in-flight requests
// until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv == nil {
		return nil
	}
	s.logger.Info("stopping server...")
	err := s.srv.Shutdown(ctx)
	if err != nil {
		_ = s.srv.Close()
	}
	<-s.serveCh
	s.srv, s.ln, s.serveCh = nil, nil, nil
	s.logger.Info("server stopped")
	return err
}

// Running reports whether the server is started.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.srv != nil
}

// Addr returns the bound address while running, the configured one
// otherwise.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// BoundAddr is Addr safe for use from other goroutines.
func (s *Server) BoundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Addr()
}

// Wait blocks until the running server stops serving or ctx is done and
// returns the serve error, if any. It returns nil at once when stopped.
func (s *Server) Wait(ctx context.Context) error {
	s.mu.Lock()
	ch := s.serveCh
	s.mu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return nil
	}
}
