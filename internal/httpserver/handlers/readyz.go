package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/snaps/internal/httpserver/deps"
	"github.com/MrSnakeDoc/snaps/internal/logger"
)

const readyzTimeout = 2 * time.Second

type readyzResponse struct {
	Ready bool   `json:"ready"`
	Redis string `json:"redis"`
}

// Readyz answers 200 only when Redis responds to PING.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Store == nil {
			writeJSON(w, http.StatusServiceUnavailable, readyzResponse{Redis: "not initialized"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), readyzTimeout)
		defer cancel()

		if err := d.Store.Ping(ctx); err != nil {
			d.Logger.Warn("readiness check failed", logger.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, readyzResponse{Redis: "unreachable"})
			return
		}

		writeJSON(w, http.StatusOK, readyzResponse{Ready: true, Redis: "ok"})
	}
}
