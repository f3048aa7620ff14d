// Package dashboard serves a read-only JSON API and a static viewer over
// the history store. It never writes; the pipeline remains the single
// writer of record.
package dashboard

import (
	"embed"
	"encoding/json"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/talentpilot/talentpilot/history"
)

//go:embed static
var staticFS embed.FS

// Server exposes the history store over HTTP.
type Server struct {
	store *history.Store
	log   *slog.Logger
}

// NewServer creates a dashboard server over an open store.
func NewServer(store *history.Store, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{store: store, log: log}
}

// Routes builds the router: /api/* plus the embedded viewer at /.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/api/stats", s.handleStats)
	r.Get("/api/submissions", s.handleSubmissions)
	r.Get("/api/postings", s.handlePostings)
	r.Get("/api/runs", s.handleRuns)
	r.Get("/api/status/{posting}", s.handleStatusHistory)
	r.Get("/api/export/json", s.handleExportJSON)
	r.Get("/api/export/csv", s.handleExportCSV)

	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic("dashboard: embedded static tree missing: " + err.Error())
	}
	r.Handle("/*", http.FileServerFS(static))
	return r
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	totals, err := s.store.Totals(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, totals)
}

func (s *Server) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.RecentSubmissions(r.Context(), limitParam(r, 100))
	if err != nil {
		s.fail(w, err)
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	s.writeJSON(w, records)
}

func (s *Server) handlePostings(w http.ResponseWriter, r *http.Request) {
	postings, err := s.store.Postings(r.Context(), limitParam(r, 100))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, postings)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.Runs(r.Context(), limitParam(r, 50))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, runs)
}

func (s *Server) handleStatusHistory(w http.ResponseWriter, r *http.Request) {
	trail, err := s.store.StatusHistory(r.Context(), chi.URLParam(r, "posting"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, trail)
}

func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="talentpilot-export.json"`)
	if err := s.store.ExportJSON(r.Context(), w); err != nil {
		s.log.Error("dashboard: json export failed", "error", err)
	}
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="talentpilot-export.csv"`)
	if err := s.store.ExportCSV(r.Context(), w); err != nil {
		s.log.Error("dashboard: csv export failed", "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("dashboard: response encode failed", "error", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.log.Error("dashboard: query failed", "error", err)
	http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
}

func limitParam(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
