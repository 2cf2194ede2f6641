// Package api serves stored benchmark records over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mlbench/mlbench/internal/database"
	"github.com/mlbench/mlbench/record"
)

// maxBodyBytes bounds the size of an uploaded record.
const maxBodyBytes = 32 << 20

// Server holds dependencies for API handlers.
type Server struct {
	repo   database.Repo
	logger *slog.Logger
}

// NewServer creates a new API server.
func NewServer(repo database.Repo, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{repo: repo, logger: logger}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/v1/records", s.handleListRecords)
	mux.HandleFunc("POST /api/v1/records", s.handleCreateRecord)
	mux.HandleFunc("GET /api/v1/records/{run}", s.handleGetRecord)
	mux.HandleFunc("DELETE /api/v1/records/{run}", s.handleDeleteRecord)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := database.RecordFilter{Benchmark: q.Get("benchmark")}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		f.Since = t
	}
	for key, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		if v := q.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, key+" must be a non-negative integer")
				return
			}
			*dst = n
		}
	}

	items, err := s.repo.ListRecords(r.Context(), f)
	if err != nil {
		s.logger.Error("list records", "error", err)
		writeError(w, http.StatusInternalServerError, "records query failed")
		return
	}
	if items == nil {
		items = []database.RecordSummary{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var rec record.Record
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&rec); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "record too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if rec.Run == "" {
		writeError(w, http.StatusBadRequest, "run is required")
		return
	}
	if rec.Context == nil {
		rec.Context = record.Context{}
	}

	if err := s.repo.SaveRecord(r.Context(), &rec); err != nil {
		s.logger.Error("save record", "run", rec.Run, "error", err)
		writeError(w, http.StatusInternalServerError, "save record failed")
		return
	}
	s.logger.Info("stored record", "run", rec.Run, "benchmarks", len(rec.Benchmarks))
	writeJSON(w, http.StatusCreated, map[string]any{
		"run":        rec.Run,
		"benchmarks": len(rec.Benchmarks),
	})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	run := r.PathValue("run")
	rec, err := s.repo.GetRecord(r.Context(), run)
	if err != nil {
		s.logger.Error("get record", "run", run, "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	run := r.PathValue("run")
	ok, err := s.repo.DeleteRecord(r.Context(), run)
	if err != nil {
		s.logger.Error("delete record", "run", run, "error", err)
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
