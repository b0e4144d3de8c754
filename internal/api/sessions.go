package api

import (
	"net/http"
)

type postTurnRequest struct {
	Message               string `json:"message"`
	ActiveDurationSeconds *int   `json:"active_duration_seconds,omitempty"`
}

// StartSession opens a new counseling session for the current user.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	result, err := h.orch.StartSession(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	JSON(w, http.StatusCreated, result)
}

// PostTurn records one conversation turn and returns the reply.
func (h *Handler) PostTurn(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	sessionID, err := pathID(r, "sessionID")
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req postTurnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	result, err := h.orch.PostTurn(r.Context(), userID, sessionID, req.Message, req.ActiveDurationSeconds)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, result)
}

// EndSession closes a session and returns the end-of-session review.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	sessionID, err := pathID(r, "sessionID")
	if err != nil {
		writeDomainError(w, err)
		return
	}

	result, err := h.orch.EndSession(r.Context(), userID, sessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, result)
}

// ActiveSession returns the user's open session, or null when none.
func (h *Handler) ActiveSession(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	sess, err := h.orch.ActiveSession(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"session": sess})
}

// SessionHistory returns the user's closed sessions, oldest first.
func (h *Handler) SessionHistory(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	sessions, err := h.orch.SessionHistory(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// SessionDetail returns one session with the live reminder decision.
func (h *Handler) SessionDetail(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	sessionID, err := pathID(r, "sessionID")
	if err != nil {
		writeDomainError(w, err)
		return
	}

	detail, err := h.orch.SessionDetail(r.Context(), userID, sessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, detail)
}
