// Package api serves the HTTP control API.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ytuploader/internal/control"
)

// Server exposes a control.Service over HTTP.
type Server struct {
	srv      *http.Server
	ln       net.Listener
	handler  http.Handler
	service  *control.Service
	gatherer prometheus.Gatherer
	token    string
	logger   *slog.Logger
}

// NewServer builds the router. A nil gatherer disables /metrics and an
// empty token leaves /v1 open.
func NewServer(addr, token string, service *control.Service, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	s := &Server{service: service, gatherer: gatherer, token: token, logger: logger}
	s.handler = s.routes()
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed handler without a listener.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Listen binds the address so a busy port fails startup instead of a
// background goroutine.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.srv.Addr, err)
	}
	s.ln = ln
	s.logger.Info("http server listening", "addr", ln.Addr().String())
	return nil
}

// Serve blocks until Shutdown. It binds first if Listen was not called.
func (s *Server) Serve() error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(s.logger), middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(private chi.Router) {
		if s.token != "" {
			private.Use(AuthMiddleware(s.token))
		}
		if s.gatherer != nil {
			private.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		}
		private.Mount("/v1", s.v1())
	})
	return r
}

func (s *Server) v1() http.Handler {
	r := chi.NewRouter()
	r.Get("/status", s.handleStatus)
	r.Get("/accounts", s.handleAccounts)
	r.Post("/run", s.handleRun)
	r.Post("/schedule/preview", s.handleSchedulePreview)
	r.Get("/runs", s.handleListRuns)
	r.Get("/runs/{runID}", s.handleGetRun)
	return r
}
