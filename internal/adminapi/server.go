// Package adminapi exposes a small read-only HTTP surface for
// operational visibility into the filter manager: check/set/create/
// drop/flush/unmap stay on the keyed wire protocol, not here. This
// package only answers "how many filters exist" and "what is this
// filter's lifecycle state".
package adminapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const contentTypeJSON = "application/json"

// StatsSource is the subset of *filtmgr.Manager this server depends
// on.
type StatsSource interface {
	NumFilters() int
	Info(name string) (active bool, refCount int32, ok bool)
}

// Server is the admin HTTP surface.
type Server struct {
	mgr  StatsSource
	log  *slog.Logger
	addr string

	httpServer *http.Server
}

// New builds an admin server bound to addr.
func New(mgr StatsSource, addr string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{mgr: mgr, addr: addr, log: log}
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Get("/stats", s.handleStats)
	r.Get("/filters/{name}", s.handleFilter)
	return r
}

// Start launches the HTTP server in the background. It returns once
// the listener goroutine has been spawned.
func (s *Server) Start() {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.router(),
		ReadHeaderTimeout: time.Second,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("admin HTTP server error", "error", err)
		}
	}()
	s.log.Info("admin HTTP server started", "addr", s.addr)
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown admin HTTP server: %w", err)
	}
	return nil
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		s.log.Debug("admin request", "request_id", id, "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, StatsResponse{
		Response:   newOKResponse(),
		NumFilters: s.mgr.NumFilters(),
	})
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	active, refCount, ok := s.mgr.Info(name)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, FilterResponse{
			Response: newErrorResponse("no such filter"),
			Name:     name,
		})
		return
	}
	s.writeJSON(w, http.StatusOK, FilterResponse{
		Response: newOKResponse(),
		Name:     name,
		Active:   active,
		RefCount: refCount,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("error encoding admin response", "error", err)
	}
}
