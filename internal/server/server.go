// File: internal/server/server.go
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/puppetd/api/schemas"
	"github.com/xkilldash9x/puppetd/internal/config"
	"github.com/xkilldash9x/puppetd/internal/rpc"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// HealthReporter exposes the browser health for the health endpoint.
type HealthReporter interface {
	Health() schemas.HealthStatus
}

// Server is the HTTP transport in front of the RPC dispatcher.
type Server struct {
	cfg        config.ServerConfig
	dispatcher *rpc.Dispatcher
	health     HealthReporter
	logger     *zap.Logger
	httpServer *http.Server
}

// New builds the server with its router and middleware chain.
func New(cfg config.ServerConfig, dispatcher *rpc.Dispatcher, health HealthReporter, logger *zap.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		health:     health,
		logger:     logger.Named("server"),
	}

	router := mux.NewRouter()
	router.Use(requestIDMiddleware)
	router.Use(accessLogMiddleware(s.logger))
	router.Use(rateLimitMiddleware(cfg.RateLimit, cfg.RateBurst, s.logger))

	router.HandleFunc("/jsonrpc", s.handleRPC).Methods(http.MethodPost)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until the context is canceled, then drains connections within
// the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("HTTP server listening.", zap.String("addr", s.cfg.Addr()))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		s.logger.Info("Shutting down HTTP server.")
		return s.httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// handleRPC reads one request body and hands it to the dispatcher. Transport
// failures (unreadable or oversized bodies) are still answered with a
// protocol-shaped parse error so clients see exactly one envelope per call.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		s.logger.Warn("Failed to read request body.", zap.Error(err))
		s.writeResponse(w, schemas.NewErrorResponse(nil, schemas.CodeParseError,
			"Parse error", "unable to read request body"))
		return
	}
	s.writeResponse(w, s.dispatcher.Dispatch(r.Context(), body))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := s.health.Health()
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := codec.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("Failed to write health response.", zap.Error(err))
	}
}

// writeResponse serializes one envelope. JSON-RPC errors still ride on HTTP
// 200; the envelope carries the failure.
func (s *Server) writeResponse(w http.ResponseWriter, resp schemas.Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := codec.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("Failed to write RPC response.", zap.Error(err))
	}
}
