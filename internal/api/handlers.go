package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/edgard/pulsebot/internal/database"
	"github.com/edgard/pulsebot/internal/stats"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.ErrorContext(r.Context(), "Health check failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "UNHEALTHY", "Service is unhealthy.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"status":    "healthy",
		"timestamp": nowTimestamp(),
		"version":   Version,
	})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := s.stats.Overview(r.Context())
	if err != nil {
		s.serveStatsError(w, r, err, "overview")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"total":     overview.Total,
		"platforms": overview.Platforms,
		"timestamp": nowTimestamp(),
	})
}

func (s *Server) handlePlatformStats(w http.ResponseWriter, r *http.Request) {
	platform := database.Platform(chi.URLParam(r, "platform"))

	platformStats, err := s.stats.PlatformStats(r.Context(), platform)
	if err != nil {
		s.serveStatsError(w, r, err, "platform stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"platform":  platform,
		"stats":     platformStats,
		"timestamp": nowTimestamp(),
	})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	platform := database.Platform(chi.URLParam(r, "platform"))

	period, err := stats.ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_PERIOD",
			"Period must be one of daily, weekly, monthly, all.")
		return
	}

	limit := defaultLeaderboardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "Limit must be a positive integer.")
			return
		}
		limit = parsed
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	entries, err := s.stats.Leaderboard(r.Context(), platform, period, limit)
	if err != nil {
		s.serveStatsError(w, r, err, "leaderboard")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"platform":    platform,
		"period":      period,
		"leaderboard": entries,
		"count":       len(entries),
		"timestamp":   nowTimestamp(),
	})
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	platform := database.Platform(chi.URLParam(r, "platform"))
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))

	userStats, err := s.stats.UserStats(r.Context(), platform, userID)
	if err != nil {
		s.serveStatsError(w, r, err, "user stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"platform":  platform,
		"userId":    userID,
		"stats":     userStats,
		"timestamp": nowTimestamp(),
	})
}

// handleDocs serves a static description of the API surface.
func (s *Server) handleDocs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"name":    "pulsebot API",
		"version": Version,
		"endpoints": []map[string]string{
			{"method": "GET", "path": "/api/health", "description": "Service health and version."},
			{"method": "GET", "path": "/api/overview", "description": "Combined totals and per-platform breakdown."},
			{"method": "GET", "path": "/api/stats/{platform}", "description": "Stats for one platform (telegram or discord)."},
			{"method": "GET", "path": "/api/leaderboard/{platform}/{period}", "description": "Leaderboard for a period (daily, weekly, monthly, all). Query: limit (default 10, max 100)."},
			{"method": "GET", "path": "/api/user/{platform}/{userId}", "description": "Per-user activity windows and all-time rank."},
			{"method": "POST", "path": "/telegram/webhook", "description": "Telegram update ingestion."},
			{"method": "POST", "path": "/discord/webhook", "description": "Discord message ingestion."},
		},
		"rateLimit": map[string]any{
			"maxRequests": s.cfg.RateLimit.API.MaxRequests,
			"window":      s.cfg.RateLimit.API.Window.String(),
		},
	})
}

// serveStatsError maps engine errors onto the API taxonomy: validation
// sentinels become 400s with machine-readable codes, everything else is a
// persistence failure logged in full and served as a generic 500.
func (s *Server) serveStatsError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	switch {
	case errors.Is(err, stats.ErrInvalidPlatform):
		s.writeError(w, http.StatusBadRequest, "INVALID_PLATFORM", "Platform must be telegram or discord.")
	case errors.Is(err, stats.ErrInvalidPeriod):
		s.writeError(w, http.StatusBadRequest, "INVALID_PERIOD", "Period must be one of daily, weekly, monthly, all.")
	case errors.Is(err, stats.ErrInvalidLimit):
		s.writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "Limit must be between 1 and 1000.")
	case errors.Is(err, stats.ErrEmptyUserID):
		s.writeError(w, http.StatusBadRequest, "INVALID_USER_ID", "User id must not be blank.")
	default:
		s.logger.ErrorContext(r.Context(), "Stats operation failed",
			"operation", operation, "path", r.URL.Path, "error", err)
		s.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred.")
	}
}
