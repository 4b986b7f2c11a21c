package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"leadscout/internal/logging"
)

// Route is a registered method and path.
type Route struct {
	Method string
	Path   string
}

// Pattern returns the ServeMux pattern for r.
func (r Route) Pattern() string { return r.Method + " " + r.Path }

// Routes lists every route the server registers.
func Routes() []Route {
	return []Route{
		{http.MethodGet, "/health"},
		{http.MethodPost, "/scrape"},
		{http.MethodGet, "/leads"},
		{http.MethodGet, "/metrics"},
		{http.MethodGet, "/leads/export"},
		{http.MethodPost, "/ingest"},
	}
}

// NewRouter builds the handler tree with middleware applied.
func NewRouter(h *Handlers, corsOrigins []string, logger *zap.Logger) http.Handler {
	log := logging.For(logger, logging.CategoryAPI)

	handlers := map[string]http.HandlerFunc{
		"GET /health":       h.Health,
		"POST /scrape":      h.Scrape,
		"GET /leads":        h.Leads,
		"GET /metrics":      h.Metrics,
		"GET /leads/export": h.Export,
		"POST /ingest":      h.Ingest,
	}
	mux := http.NewServeMux()
	for _, r := range Routes() {
		mux.HandleFunc(r.Pattern(), handlers[r.Pattern()])
	}

	return Chain(mux,
		RecoverPanic(log),
		RequestID(log),
		AccessLog(),
		CORS(corsOrigins),
	)
}

// ServerConfig configures Server.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server runs the HTTP API.
type Server struct {
	cfg        ServerConfig
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer creates a Server serving handler.
func NewServer(cfg ServerConfig, handler http.Handler, logger *zap.Logger) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
	return &Server{
		cfg: cfg,
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
		},
		logger: logging.For(logger, logging.CategoryAPI),
	}
}

// Run listens on the configured address and serves until ctx ends, then
// shuts down gracefully. A bind failure is returned immediately.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	serveErr := make(chan error, 1)
	s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
	go func() {
		serveErr <- s.httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down")
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		<-serveErr
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}
