package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// ServiceManager runs the HTTP server until its context ends, then shuts
// it down within a deadline and runs the registered cleanups.
type ServiceManager struct {
	server          *http.Server
	shutdownTimeout time.Duration
	cleanups        []namedCleanup
}

type namedCleanup struct {
	name string
	fn   func() error
}

// NewServiceManager creates a new service manager
func NewServiceManager(server *http.Server, shutdownTimeout time.Duration) *ServiceManager {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	return &ServiceManager{
		server:          server,
		shutdownTimeout: shutdownTimeout,
	}
}

// OnShutdown registers fn to run after the server stops, in registration order.
func (sm *ServiceManager) OnShutdown(name string, fn func() error) {
	sm.cleanups = append(sm.cleanups, namedCleanup{name: name, fn: fn})
}

// Run listens on the server address and blocks until ctx is cancelled or
// the server fails.
func (sm *ServiceManager) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", sm.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", sm.server.Addr, err)
	}
	return sm.Serve(ctx, listener)
}

// Serve is Run on an existing listener.
func (sm *ServiceManager) Serve(ctx context.Context, listener net.Listener) error {
	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", listener.Addr().String()).
			Msg("Server starting")
		serveErr <- sm.server.Serve(listener)
	}()

	var runErr error
	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server stopped unexpectedly: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("Shutting down server gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), sm.shutdownTimeout)
		defer cancel()

		if err := sm.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown failed")
			runErr = fmt.Errorf("server shutdown: %w", err)
		}
		<-serveErr
	}

	for _, cleanup := range sm.cleanups {
		if err := cleanup.fn(); err != nil {
			log.Warn().Err(err).Str("cleanup", cleanup.name).Msg("Cleanup failed")
			continue
		}
		log.Info().Str("cleanup", cleanup.name).Msg("Cleanup completed")
	}

	return runErr
}
