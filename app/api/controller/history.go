package controller

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/heliowatt/solarstream/pkg/store"
)

var unitMultipliers = map[string]time.Duration{
	"minutes": time.Minute,
	"hours":   time.Hour,
	"days":    24 * time.Hour,
}

// HandleHistoricalData returns an account's samples inside a trailing time
// window, oldest first.
// Query parameters:
//   - email: account identity (required)
//   - amount: window length in units (default 1; zero or negative yields an
//     empty window)
//   - unit: "minutes", "hours" or "days" (default "hours")
func (c *Controller) HandleHistoricalData(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()

	email := qs.Get("email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	amount := 1.0
	if v := qs.Get("amount"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		// ParseFloat accepts "NaN" and "Inf", which would poison the cutoff.
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			writeError(w, http.StatusBadRequest, "invalid amount")
			return
		}
		amount = n
	}

	unit := "hours"
	if v := qs.Get("unit"); v != "" {
		unit = v
	}
	multiplier, ok := unitMultipliers[unit]
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid unit, must be 'minutes', 'hours' or 'days'")
		return
	}

	cutoff := time.Now().Add(-time.Duration(amount * float64(multiplier)))

	samples, err := c.App.Store.SamplesSince(r.Context(), email, cutoff)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, samples)
}
