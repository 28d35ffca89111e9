package controller

import (
	"errors"
	"net/http"

	"github.com/heliowatt/solarstream/pkg/hub"
	"github.com/heliowatt/solarstream/pkg/store"
)

// HandleTotalSavings returns an account's current savings total.
func (c *Controller) HandleTotalSavings(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	total, err := c.App.Store.TotalSavings(r.Context(), email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, hub.TotalSavingsPayload{TotalSavings: total})
}
