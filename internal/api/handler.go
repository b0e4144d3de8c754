// Package api provides the HTTP transport for the counseling service.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/calmline/calmline/internal/domain"
	"github.com/calmline/calmline/internal/identity"
	"github.com/calmline/calmline/internal/orchestrator"
	"github.com/go-chi/chi/v5"
)

// Handler provides common handler utilities.
type Handler struct {
	orch *orchestrator.Orchestrator
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(orch *orchestrator.Orchestrator) *Handler {
	return &Handler{orch: orch}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)

		r.Get("/counselors", h.ListCounselors)
		r.Post("/counselors/{counselorID}/select", h.SelectCounselor)

		r.Post("/sessions", h.StartSession)
		r.Get("/sessions/active", h.ActiveSession)
		r.Get("/sessions/history", h.SessionHistory)
		r.Get("/sessions/{sessionID}", h.SessionDetail)
		r.Post("/sessions/{sessionID}/messages", h.PostTurn)
		r.Post("/sessions/{sessionID}/end", h.EndSession)

		r.Get("/onboarding", h.OnboardingState)
		r.Post("/onboarding/answers", h.SubmitAnswer)

		r.Post("/scores", h.RecordScore)
		r.Get("/scores", h.ScoreHistory)
		r.Get("/scores/latest", h.LatestScore)
		r.Get("/scores/{scoreID}", h.ScoreByID)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps the error taxonomy onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	// AgentError first: it wraps its cause, and a failed agent call is a
	// 502 no matter what that cause unwraps to.
	case domain.IsAgent(err):
		slog.Error("agent operation failed", "error", err)
		Error(w, http.StatusBadGateway, "the counseling agent is unavailable, please try again")
	case domain.IsValidation(err):
		Error(w, http.StatusBadRequest, err.Error())
	case domain.IsNotFound(err):
		Error(w, http.StatusNotFound, err.Error())
	case domain.IsConflict(err):
		Error(w, http.StatusConflict, err.Error())
	default:
		slog.Error("request failed", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.Validationf("invalid request body: %v", err)
	}
	return nil
}

// requireUser resolves the anonymous user ID and writes a 401 when the
// identity middleware did not run.
func requireUser(w http.ResponseWriter, r *http.Request) string {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
	}
	return userID
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Validationf("invalid %s", name)
	}
	return id, nil
}

// GetMe returns the current user's profile.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	user, err := h.orch.Profile(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":             user.UserID,
		"nickname":            user.Nickname,
		"counselor_id":        user.CounselorID,
		"finished_onboarding": user.FinishedOnboarding,
	})
}
