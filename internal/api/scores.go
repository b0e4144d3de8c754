package api

import (
	"net/http"

	"github.com/calmline/calmline/internal/domain"
)

type recordScoreRequest struct {
	Stress     *int   `json:"stress,omitempty"`
	Stable     *int   `json:"stable,omitempty"`
	Anxiety    *int   `json:"anxiety,omitempty"`
	Functional *int   `json:"functional,omitempty"`
	Source     string `json:"source"`
	SessionID  *int64 `json:"session_id,omitempty"`
}

// sourceFilter parses the optional ?source= query parameter.
func sourceFilter(r *http.Request) (*domain.EmoScoreSource, error) {
	raw := r.URL.Query().Get("source")
	if raw == "" {
		return nil, nil
	}
	source := domain.EmoScoreSource(raw)
	if source != domain.SourceOnboarding && source != domain.SourceSession {
		return nil, domain.Validationf("invalid score source %q", raw)
	}
	return &source, nil
}

// RecordScore appends one assessment to the user's score ledger.
func (h *Handler) RecordScore(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	var req recordScoreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	scores := domain.EmoScores{
		Stress:     req.Stress,
		Stable:     req.Stable,
		Anxiety:    req.Anxiety,
		Functional: req.Functional,
	}
	rec, err := h.orch.RecordEmotionScore(r.Context(), userID, scores, domain.EmoScoreSource(req.Source), req.SessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	JSON(w, http.StatusCreated, rec)
}

// LatestScore returns the user's newest record, or null when none.
func (h *Handler) LatestScore(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	source, err := sourceFilter(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	rec, err := h.orch.LatestEmotionScore(r.Context(), userID, source)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"score": rec})
}

// ScoreHistory returns the user's records, newest first.
func (h *Handler) ScoreHistory(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	source, err := sourceFilter(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	records, err := h.orch.EmotionScoreHistory(r.Context(), userID, source)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"scores": records})
}

// ScoreByID returns one record scoped to the current user.
func (h *Handler) ScoreByID(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	id, err := pathID(r, "scoreID")
	if err != nil {
		writeDomainError(w, err)
		return
	}

	rec, err := h.orch.EmotionScoreByID(r.Context(), id, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, rec)
}
