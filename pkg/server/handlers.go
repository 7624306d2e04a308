package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"marketscope/pkg/usage"
)

// UsageReporter is the reporting surface the API exposes.
type UsageReporter interface {
	GetUsageStats(ctx context.Context, windowDays int) (*usage.Stats, error)
	GetTopUsersByUsage(ctx context.Context, windowDays, limit int) ([]usage.UserSpend, error)
}

type statsResponse struct {
	UniqueUsers       int64   `json:"unique_users"`
	TotalRequests     int64   `json:"total_requests"`
	TotalCost         float64 `json:"total_cost"`
	AvgCostPerRequest float64 `json:"avg_cost_per_request"`
	PeriodDays        int     `json:"period_days"`
}

type topUserResponse struct {
	UserID    string  `json:"user_id"`
	TotalCost float64 `json:"total_cost"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStats serves GET /api/usage/stats?days=N.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	days, ok := queryDays(w, r, 30)
	if !ok {
		return
	}

	stats, err := s.reporter.GetUsageStats(r.Context(), days)
	if err != nil {
		s.logger.Error("stats query failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "usage stats unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		UniqueUsers:       stats.UniqueUsers,
		TotalRequests:     stats.TotalRequests,
		TotalCost:         stats.TotalCost,
		AvgCostPerRequest: stats.AvgCostPerRequest,
		PeriodDays:        stats.PeriodDays,
	})
}

// handleTopUsers serves GET /api/usage/top?days=N&limit=N.
func (s *Server) handleTopUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	days, ok := queryDays(w, r, 30)
	if !ok {
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	top, err := s.reporter.GetTopUsersByUsage(r.Context(), days, limit)
	if err != nil {
		s.logger.Error("top users query failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "top users unavailable"})
		return
	}

	out := make([]topUserResponse, 0, len(top))
	for _, entry := range top {
		out = append(out, topUserResponse{UserID: entry.UserID, TotalCost: entry.TotalCost})
	}
	writeJSON(w, http.StatusOK, out)
}

func queryDays(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "days must be a positive integer"})
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload) //nolint:errcheck
}
