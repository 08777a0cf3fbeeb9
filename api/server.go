package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"powchain/api/handlers"
	"powchain/p2p"
)

// Server represents the HTTP API server
type Server struct {
	svc      handlers.Service
	gatherer prometheus.Gatherer
	logger   zerolog.Logger
	router   *mux.Router

	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates a new API server. A nil gatherer leaves /metrics out.
func NewServer(svc handlers.Service, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	server := &Server{
		svc:      svc,
		gatherer: gatherer,
		logger:   logger,
		router:   mux.NewRouter(),
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP endpoints
func (s *Server) setupRoutes() {
	s.router.Use(s.withLogger)

	s.route("/transactions/new", handlers.HandleNewTransaction).Methods(http.MethodPost)
	s.route("/transactions/pending", handlers.HandlePendingTransactions).Methods(http.MethodGet)

	s.route("/mine", handlers.HandleMine).Methods(http.MethodGet)
	s.route(p2p.ChainPath, handlers.HandleChain).Methods(http.MethodGet)

	s.route("/nodes", handlers.HandleListNodes).Methods(http.MethodGet)
	s.route("/nodes/register", handlers.HandleRegisterNodes).Methods(http.MethodPost)
	s.route("/nodes/resolve", handlers.HandleResolve).Methods(http.MethodGet)

	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
}

func (s *Server) route(path string, h func(http.ResponseWriter, *http.Request, handlers.Service)) *mux.Route {
	return s.router.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		h(w, r, s.svc)
	})
}

// withLogger attaches the server logger to every request context and logs
// the request once it completes.
func (s *Server) withLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log := s.logger.With().Str("method", r.Method).Str("path", r.URL.Path).Logger()
		next.ServeHTTP(w, r.WithContext(log.WithContext(r.Context())))
		log.Debug().Dur("took", time.Since(start)).Msg("Request served")
	})
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Listen binds addr without serving yet, so callers can learn the real port.
func (s *Server) Listen(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = l
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Addr is the bound address, or "" before Listen.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve blocks until the server is shut down.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("api server is not listening")
	}
	s.logger.Info().Str("addr", s.Addr()).Msg("Starting HTTP API server")
	err := s.httpServer.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
