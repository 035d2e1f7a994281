package analysis

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Server exposes the analysis queries as JSON over HTTP.
type Server struct {
	dbCache *DBCache
}

func NewServer(roots []string, refreshRate time.Duration, logger *slog.Logger) *Server {
	return &Server{dbCache: NewDBCache(roots, refreshRate, logger)}
}

func (s *Server) Close() error { return s.dbCache.Close() }

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/curve", s.handleCurve)
	mux.HandleFunc("/api/curve/mean", s.handleMeanCurve)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/games/", s.handleGamePlacements)
}

// CurveResponse is the body of /api/curve.
type CurveResponse struct {
	Games []CurvePoint `json:"games"`
}

func (s *Server) handleCurve(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	db, err := s.dbCache.Get()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	runID := strings.TrimSpace(r.URL.Query().Get("run"))
	points, err := LearningCurve(r.Context(), db, runID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, CurveResponse{Games: points})
}

func (s *Server) handleMeanCurve(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	db, err := s.dbCache.Get()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	points, err := MeanCurve(r.Context(), db)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, points)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	// Stats are polled by dashboards; always look at the latest files.
	if err := s.dbCache.Refresh(); err != nil {
		http.Error(w, "failed to refresh db: "+err.Error(), http.StatusInternalServerError)
		return
	}
	db, err := s.dbCache.Get()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	st, err := QueryStats(r.Context(), db)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, st)
}

func (s *Server) handleGamePlacements(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	// /api/games/{id}/placements
	rest := strings.TrimPrefix(r.URL.Path, "/api/games/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "placements" {
		http.NotFound(w, r)
		return
	}
	gameID, err := url.PathUnescape(parts[0])
	if err != nil {
		http.Error(w, "bad game id", http.StatusBadRequest)
		return
	}
	db, err := s.dbCache.Get()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	placements, err := GamePlacements(r.Context(), db, gameID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, placements)
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	withCORS(w, r)
	if r.Method == http.MethodOptions {
		return false
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func withCORS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}
