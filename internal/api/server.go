// Package api serves the read-only reporting endpoints over the tracked
// data: recent posts, per-identity rolling averages, and aggregate stats.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"engagement-tracker/internal/storage"
	"engagement-tracker/pkg/types"
)

// ReportStore is the read side of storage the server needs. *storage.DB
// satisfies it; tests substitute an in-memory store.
type ReportStore interface {
	GetRecentPosts(limit int) ([]types.Post, error)
	GetIdentitySummaries() ([]storage.IdentitySummary, error)
	GetTrackingStats() (map[string]interface{}, error)
	Ping() error
}

type Server struct {
	db     ReportStore
	logger *logrus.Logger
	port   string
}

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Count   int         `json:"count,omitempty"`
}

func NewServer(db ReportStore, logger *logrus.Logger, port string) *Server {
	return &Server{
		db:     db,
		logger: logger,
		port:   port,
	}
}

func (s *Server) Start() error {
	mux := s.Routes()
	s.logger.Infof("Starting API server on port %s", s.port)
	return http.ListenAndServe(":"+s.port, mux)
}

// Routes builds the handler mux; split out so tests can exercise handlers
// without binding a port.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.corsMiddleware(s.handleRoot))
	mux.HandleFunc("/api/posts", s.corsMiddleware(s.handlePosts))
	mux.HandleFunc("/api/identities", s.corsMiddleware(s.handleIdentities))
	mux.HandleFunc("/api/stats", s.corsMiddleware(s.handleStats))
	mux.HandleFunc("/api/export/csv", s.corsMiddleware(s.handleExportCSV))
	mux.HandleFunc("/api/health", s.corsMiddleware(s.handleHealth))
	return mux
}

func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	response := APIResponse{
		Success: true,
		Data: map[string]string{
			"message":   "Engagement Tracker API",
			"version":   "1.0.0",
			"endpoints": "/api/posts, /api/identities, /api/stats, /api/export/csv, /api/health",
		},
	}
	s.writeJSON(w, response)
}

func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	posts, err := s.db.GetRecentPosts(limit)
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to fetch posts: %v", err), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    posts,
		Count:   len(posts),
	})
}

func (s *Server) handleIdentities(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.db.GetIdentitySummaries()
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to fetch identities: %v", err), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    summaries,
		Count:   len(summaries),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetTrackingStats()
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to fetch stats: %v", err), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    stats,
	})
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 1000 {
		limit = 500
	}

	posts, err := s.db.GetRecentPosts(limit)
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to fetch posts for export: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=tracked_posts_%s.csv", time.Now().Format("2006-01-02")))

	w.Write([]byte("Username,Platform,Post Link,Posted Date,Likes,Comments,Views\n"))

	for _, post := range posts {
		views := ""
		if post.Views != nil {
			views = strconv.FormatInt(*post.Views, 10)
		}
		posted := ""
		if !post.PostedDate.IsZero() {
			posted = post.PostedDate.Format("2006-01-02 15:04:05")
		}
		line := fmt.Sprintf("%s,%s,%s,%s,%d,%d,%s\n",
			post.Username,
			post.Platform,
			post.PostLink,
			posted,
			post.Likes,
			post.Comments,
			views,
		)
		w.Write([]byte(line))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.writeError(w, "Database connection failed", http.StatusServiceUnavailable)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status":    "healthy",
			"timestamp": time.Now().Format(time.RFC3339),
			"database":  "connected",
		},
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}
