package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/racksync/racksync/internal/engine"
)

/*
Server serves 3 endpoints while a reconciliation is running:
- /api/v1/status returns the current run phase
- /api/v1/report returns the last completed reconciliation report
- /metrics exposes the prometheus registry
*/
type Server struct {
	listen     string
	restServer *http.Server

	mu     sync.RWMutex
	phase  string
	report *engine.Report
}

func New(listen string) *Server {
	return &Server{listen: listen, phase: "starting"}
}

// SetPhase records the current run phase reported by /api/v1/status.
func (s *Server) SetPhase(phase string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phase
}

// SetReport publishes a completed report on /api/v1/report.
func (s *Server) SetReport(report *engine.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = report
}

func (s *Server) Start() {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)

	s.registerApi(router)

	s.restServer = &http.Server{Addr: s.listen, Handler: router}

	err := s.restServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		zap.S().Named("server").Fatalf("failed to start server: %s", err)
	}
}

func (s *Server) Stop() {
	if s.restServer == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.restServer.Shutdown(shutdownCtx); err != nil {
		zap.S().Named("server").Errorf("failed to graceful shutdown the server: %s", err)
	}
}

func (s *Server) registerApi(router *chi.Mux) {
	router.Get("/api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		phase := s.phase
		s.mu.RUnlock()
		_ = render.Render(w, r, StatusReply{Phase: phase})
	})
	router.Get("/api/v1/report", func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		report := s.report
		s.mu.RUnlock()
		if report == nil {
			http.Error(w, "no report yet", http.StatusNotFound)
			return
		}
		render.JSON(w, r, report)
	})
	router.Handle("/metrics", promhttp.Handler())
}

type StatusReply struct {
	Phase string `json:"phase"`
}

func (s StatusReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}
