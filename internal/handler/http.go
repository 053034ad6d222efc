package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/explorers-club/progress/internal/domain"
	"github.com/explorers-club/progress/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// Completer records activity completions
type Completer interface {
	Submit(ctx context.Context, submission domain.CompletionSubmission) (*domain.CompletionOutcome, error)
}

// ChapterReader answers chapter queries
type ChapterReader interface {
	GetCurrentChapter(ctx context.Context) domain.CurrentChapter
	GetChapterProgress(ctx context.Context, profileID *int64) domain.ChapterProgress
}

// FeedReader builds team activity feeds
type FeedReader interface {
	GetTeamActivityLogs(ctx context.Context, teamID int64, limit int) ([]domain.FeedEntry, error)
	GetSocialFeed(ctx context.Context, teamID int64, limit int) ([]domain.FeedEntry, error)
}

// RankingReader serves the scoreboards
type RankingReader interface {
	GetTopTeams(ctx context.Context, n int) ([]domain.ScoreboardEntry, error)
	GetTopExplorers(ctx context.Context, n int) ([]domain.ScoreboardEntry, error)
}

// CategoryReader serves cached activity categories
type CategoryReader interface {
	Categories(ctx context.Context) ([]string, error)
	Activities(ctx context.Context, category string) ([]domain.ActivitySummary, error)
	Invalidate()
}

// Services groups the dependencies of the HTTP API
type Services struct {
	Completions Completer
	Chapters    ChapterReader
	Feed        FeedReader
	Rankings    RankingReader
	Categories  CategoryReader
}

// ReadinessCheck reports whether a dependency can serve traffic
type ReadinessCheck func(ctx context.Context) error

// Handler provides HTTP handlers for the progress API
type Handler struct {
	services       Services
	hub            *websocket.Hub
	allowedOrigins []string
	checks         map[string]ReadinessCheck
	logger         *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(services Services, hub *websocket.Hub, allowedOrigins []string, logger *slog.Logger) *Handler {
	return &Handler{
		services:       services,
		hub:            hub,
		allowedOrigins: allowedOrigins,
		checks:         make(map[string]ReadinessCheck),
		logger:         logger,
	}
}

// AddReadinessCheck registers a dependency probed by /ready
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.checks[name] = check
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: h.allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
	}).Handler)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	r.Handle("/metrics", promhttp.Handler())

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/profiles/{profileID}/activities/{activityID}/complete", h.CompleteActivity)

		r.Route("/chapters", func(r chi.Router) {
			r.Get("/current", h.GetCurrentChapter)
			r.Get("/progress", h.GetChapterProgress)
		})

		r.Route("/teams", func(r chi.Router) {
			r.Get("/leaderboard", h.GetTeamLeaderboard)
			r.Get("/{teamID}/activity", h.GetTeamActivity)
		})
		r.Get("/explorers/leaderboard", h.GetExplorerLeaderboard)

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", h.ListCategories)
			r.Post("/invalidate", h.InvalidateCategories)
			r.Get("/{category}/activities", h.ListCategoryActivities)
		})

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeDomainError maps a domain error to its status. Unclassified errors are
// logged and reported as internal errors.
func (h *Handler) writeDomainError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	switch {
	case status == http.StatusInternalServerError && domain.IsXPPersisted(err):
		h.logger.Error(op, "error", err)
		h.writeError(w, status, domain.ErrBadgeEvaluation)
	case status == http.StatusInternalServerError && domain.IsCreditUncertain(err):
		h.logger.Error(op, "error", err)
		h.writeError(w, status, domain.ErrCreditUncertain)
	case status == http.StatusInternalServerError:
		h.logger.Error(op, "error", err)
		h.writeError(w, status, domain.ErrInternalError)
	default:
		h.writeError(w, status, err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case domain.IsNotFoundError(err):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyCompleted):
		return http.StatusConflict
	case domain.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// pathID parses a positive integer URL parameter
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// queryLimit parses the limit query parameter; missing or malformed values yield 0
func queryLimit(r *http.Request) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			return l
		}
	}
	return 0
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck probes every registered dependency
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{}
	ready := true
	for name, check := range h.checks {
		if err := check(r.Context()); err != nil {
			h.logger.Warn("readiness check failed", "check", name, "error", err)
			status[name] = "unavailable"
			ready = false
			continue
		}
		status[name] = "ok"
	}

	if !ready {
		h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Data:    status,
			Error:   domain.ErrUnavailable.Error(),
		})
		return
	}
	status["status"] = "ready"
	h.writeSuccess(w, status)
}

type completeRequest struct {
	Notes string `json:"notes"`
}

// CompleteActivity marks an activity completed for a profile and awards XP
func (h *Handler) CompleteActivity(w http.ResponseWriter, r *http.Request) {
	profileID, ok := pathID(r, "profileID")
	if !ok {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	activityID, ok := pathID(r, "activityID")
	if !ok {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	outcome, err := h.services.Completions.Submit(r.Context(), domain.CompletionSubmission{
		ProfileID:  profileID,
		ActivityID: activityID,
		Notes:      req.Notes,
	})
	if err != nil {
		h.writeDomainError(w, "failed to complete activity", err)
		return
	}

	h.writeSuccess(w, outcome)
}

// GetCurrentChapter returns the unlocked chapter of the latest season
func (h *Handler) GetCurrentChapter(w http.ResponseWriter, r *http.Request) {
	current := h.services.Chapters.GetCurrentChapter(r.Context())
	if current.Err != nil {
		h.writeDomainError(w, "failed to get current chapter", current.Err)
		return
	}
	h.writeSuccess(w, current)
}

// GetChapterProgress returns per-chapter completion tallies, optionally for a profile
func (h *Handler) GetChapterProgress(w http.ResponseWriter, r *http.Request) {
	var profileID *int64
	if raw := r.URL.Query().Get("profile_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
			return
		}
		profileID = &id
	}

	progress := h.services.Chapters.GetChapterProgress(r.Context(), profileID)
	if progress.Err != nil {
		h.writeDomainError(w, "failed to get chapter progress", progress.Err)
		return
	}
	h.writeSuccess(w, progress)
}

// GetTeamActivity returns the team's recent completions, newest first.
// feed=social sizes the page for the social view when no limit is given.
func (h *Handler) GetTeamActivity(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(r, "teamID")
	if !ok {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	var (
		entries []domain.FeedEntry
		err     error
	)
	switch r.URL.Query().Get("feed") {
	case "social":
		entries, err = h.services.Feed.GetSocialFeed(r.Context(), teamID, queryLimit(r))
	default:
		entries, err = h.services.Feed.GetTeamActivityLogs(r.Context(), teamID, queryLimit(r))
	}
	if err != nil {
		h.writeDomainError(w, "failed to get team activity", err)
		return
	}
	h.writeSuccess(w, entries)
}

// GetTeamLeaderboard returns the highest scoring teams
func (h *Handler) GetTeamLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.services.Rankings.GetTopTeams(r.Context(), queryLimit(r))
	if err != nil {
		h.writeDomainError(w, "failed to get team leaderboard", err)
		return
	}
	h.writeSuccess(w, entries)
}

// GetExplorerLeaderboard returns the highest scoring explorers
func (h *Handler) GetExplorerLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.services.Rankings.GetTopExplorers(r.Context(), queryLimit(r))
	if err != nil {
		h.writeDomainError(w, "failed to get explorer leaderboard", err)
		return
	}
	h.writeSuccess(w, entries)
}

// ListCategories returns every activity category
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.services.Categories.Categories(r.Context())
	if err != nil {
		h.writeDomainError(w, "failed to list categories", err)
		return
	}
	h.writeSuccess(w, categories)
}

// ListCategoryActivities returns the activities of one category
func (h *Handler) ListCategoryActivities(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	if category == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	activities, err := h.services.Categories.Activities(r.Context(), category)
	if err != nil {
		h.writeDomainError(w, "failed to list category activities", err)
		return
	}
	h.writeSuccess(w, activities)
}

// InvalidateCategories drops the cached categories
func (h *Handler) InvalidateCategories(w http.ResponseWriter, r *http.Request) {
	h.services.Categories.Invalidate()
	h.writeSuccess(w, map[string]string{"status": "invalidated"})
}
