package handlers

import (
	"encoding/json"
	"net/http"
)

// GetUsersByID resolves a list of user ids to users. Ids that do not
// exist are absent from the response rather than erroring the whole
// lookup.
func (h *Handler) GetUsersByID(w http.ResponseWriter, r *http.Request) {
	var ids []int64
	if err := json.NewDecoder(r.Body).Decode(&ids); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(ids) > 100 {
		h.Error(w, http.StatusBadRequest, "too many ids")
		return
	}

	users, err := h.db.GetUsersByIDs(r.Context(), ids)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	h.JSON(w, http.StatusOK, users)
}

// SearchUsers finds users by username substring.
func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	query := sanitizeName(r.URL.Query().Get("q"))
	if query == "" {
		h.Error(w, http.StatusBadRequest, "q parameter is required")
		return
	}

	users, err := h.db.SearchUsers(r.Context(), query, 20)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	h.JSON(w, http.StatusOK, users)
}
