package api

import (
	"net/http"
)

// ListCounselors returns every available counselor.
func (h *Handler) ListCounselors(w http.ResponseWriter, r *http.Request) {
	counselors, err := h.orch.ListCounselors(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"counselors": counselors})
}

// SelectCounselor assigns a counselor to the current user.
func (h *Handler) SelectCounselor(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	counselorID, err := pathID(r, "counselorID")
	if err != nil {
		writeDomainError(w, err)
		return
	}

	counselor, err := h.orch.SelectCounselor(r.Context(), userID, counselorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"counselor_id": counselor.ID,
		"name":         counselor.Name,
	})
}
