package handlers

import (
	"context"
	"net/http"
	"time"
)

// HealthHandler reports liveness and, when Check is set, storage reachability.
type HealthHandler struct {
	Check    func(ctx context.Context) error
	Mode     string
	Provider string
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	res := map[string]string{
		"status":   "ok",
		"mode":     h.Mode,
		"provider": h.Provider,
	}

	if h.Check != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Check(ctx); err != nil {
			res["status"] = "unavailable"
			writeJSON(w, r, http.StatusServiceUnavailable, res)
			return
		}
	}

	writeJSON(w, r, http.StatusOK, res)
}
