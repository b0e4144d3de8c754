package api

import (
	"net/http"
)

type submitAnswerRequest struct {
	QuestionNumber int    `json:"question_number"`
	Answer         string `json:"answer"`
}

// OnboardingState reports where the user is in the intake flow,
// generating the question batch for a fresh user.
func (h *Handler) OnboardingState(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	state, err := h.orch.OnboardingState(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, state)
}

// SubmitAnswer records one intake answer and returns the next question
// or the completion payload.
func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	var req submitAnswerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	outcome, err := h.orch.SubmitOnboardingAnswer(r.Context(), userID, req.QuestionNumber, req.Answer)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, outcome)
}
