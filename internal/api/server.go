// Package api exposes the HTTP surface of the service: health, on-demand
// computation, track reads and the mission WebSocket feed.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/pursuit-ops/isochroned/internal/scheduler"
	"github.com/pursuit-ops/isochroned/internal/storage"
	"github.com/pursuit-ops/isochroned/pkg/core"
)

const defaultHistoryLimit = 50

// Computer runs an on-demand computation for one track.
type Computer interface {
	ComputeNow(ctx context.Context, id uint) (*core.TrackCache, error)
}

// Dependencies holds what the router needs.
type Dependencies struct {
	Store    storage.Store
	Computer Computer
	// Feed serves /ws/missions/{missionID}; nil leaves the route out.
	Feed   http.Handler
	Logger *slog.Logger
}

// Server routes HTTP requests.
type Server struct {
	deps   Dependencies
	router *mux.Router
}

// New builds the router.
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{deps: deps, router: mux.NewRouter()}

	s.router.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	s.router.HandleFunc("/tracks/{id:[0-9]+}", s.getTrack).Methods(http.MethodGet)
	s.router.HandleFunc("/tracks/{id:[0-9]+}/history", s.getHistory).Methods(http.MethodGet)
	s.router.HandleFunc("/tracks/{id:[0-9]+}/compute", s.compute).Methods(http.MethodPost)
	if deps.Feed != nil {
		s.router.Handle("/ws/missions/{missionID:[0-9]+}", deps.Feed)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getTrack(w http.ResponseWriter, r *http.Request) {
	id, ok := trackID(w, r)
	if !ok {
		return
	}
	t, err := s.deps.Store.GetTrack(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := trackID(w, r)
	if !ok {
		return
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	recs, err := s.deps.Store.ListHistory(r.Context(), id, limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) compute(w http.ResponseWriter, r *http.Request) {
	id, ok := trackID(w, r)
	if !ok {
		return
	}
	cache, err := s.deps.Computer.ComputeNow(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cache)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, scheduler.ErrBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, scheduler.ErrNotActive), errors.Is(err, scheduler.ErrNotImmediate):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.deps.Logger.Error("Request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func trackID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid track id")
		return 0, false
	}
	return uint(id), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
