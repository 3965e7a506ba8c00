package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/carbonex/conformoor/pkg/conformance"
	"github.com/carbonex/conformoor/pkg/config"
	"github.com/carbonex/conformoor/pkg/reconcile"
	"github.com/carbonex/conformoor/pkg/store"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log          logrus.FieldLogger
	cfg          *config.ServerConfig
	store        store.Store
	orchestrator *conformance.Orchestrator
	reconciler   *reconcile.Reconciler
	httpServer   *http.Server
	wg           sync.WaitGroup
}

// NewServer creates a new API server. The store, orchestrator, and
// reconciler are injected; the server owns none of them.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.ServerConfig,
	st store.Store,
	orchestrator *conformance.Orchestrator,
	reconciler *reconcile.Reconciler,
) Server {
	return &server{
		log:          log.WithField("component", "api"),
		cfg:          cfg,
		store:        st,
		orchestrator: orchestrator,
		reconciler:   reconciler,
	}
}

// Start builds the router and starts the HTTP server.
func (s *server) Start(ctx context.Context) error {
	router := s.buildRouter()

	s.httpServer = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Listen, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", s.cfg.Listen).
			Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	s.log.Info("API server stopped")

	return nil
}
