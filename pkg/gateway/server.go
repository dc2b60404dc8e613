// Package gateway is the HTTP surface agents use to register, poll for
// commands and send reports.
package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/sipeed/picohub/pkg/config"
	"github.com/sipeed/picohub/pkg/hub"
	"github.com/sipeed/picohub/pkg/logger"
	"github.com/sipeed/picohub/pkg/metrics"
)

const (
	readTimeout  = 10 * time.Second
	writeTimeout = 15 * time.Second
	idleTimeout  = 60 * time.Second
)

var publicPaths = []string{"/healthz"}

// Server is the agent-facing HTTP server.
type Server struct {
	cfg     config.GatewayConfig
	hub     *hub.Hub
	metrics *metrics.Metrics
	server  *http.Server
}

// NewServer creates a gateway server. m may be nil, in which case /metrics
// answers 404.
func NewServer(cfg config.GatewayConfig, h *hub.Hub, m *metrics.Metrics) *Server {
	return &Server{cfg: cfg, hub: h, metrics: m}
}

// Handler returns the routed, authenticated handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("GET /cmd/{id}", s.handleDrain)
	mux.HandleFunc("POST /report/{id}", s.handleReport)
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	return RequestIDMiddleware(AuthMiddleware(s.cfg.AgentToken, publicPaths, mux))
}

// Start begins listening on the configured host:port.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln in the background.
func (s *Server) Serve(ln net.Listener) error {
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	go func() {
		logger.InfoCF("gateway", "HTTP server starting", map[string]any{"addr": ln.Addr().String()})
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("gateway", "HTTP server error", map[string]any{"error": err.Error()})
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
