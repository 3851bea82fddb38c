package inbound

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/goliatone/go-webhook-ingest/core"
)

const defaultShutdownTimeout = 10 * time.Second

type Server struct {
	http            *http.Server
	shutdownTimeout time.Duration
	observer        core.Observer
}

func NewServer(port int, handler http.Handler, shutdownTimeout time.Duration, observer core.Observer) *Server {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	return &Server{
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		shutdownTimeout: shutdownTimeout,
		observer:        observer,
	}
}

func (s *Server) Addr() string {
	return s.http.Addr
}

// Run serves until ctx is canceled, then drains in-flight requests within
// the shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("inbound: listen %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, listener)
}

func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.observer.Info(ctx, "webhook receiver listening", map[string]any{"addr": listener.Addr().String()})
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.observer.Info(ctx, "webhook receiver shutting down", map[string]any{"timeout": s.shutdownTimeout.String()})
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("inbound: shutdown: %w", err)
	}
	return <-errCh
}
