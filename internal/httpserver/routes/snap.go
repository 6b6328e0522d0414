package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/snaps/internal/httpserver/deps"
	"github.com/MrSnakeDoc/snaps/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/snaps/internal/httpserver/mw"
)

func init() { Register(registerSnaps) }

func registerSnaps(r chi.Router, d deps.Deps) {
	limit := mw.RateLimit(mw.RateLimitConfig{
		Burst:             d.RateBurst,
		RefillPerIPPerMin: d.RateRefillPerMin,
		MaxEntries:        100_000,
		TrustProxy:        d.TrustProxy,
		OnReject:          func() { d.Metrics.Submission("rate_limited") },
	})

	r.With(limit).Post("/snap", handlers.SubmitSnap(d))
	r.Get("/snap", handlers.GetSnaps(d))
	r.Get("/verify", handlers.Verify(d))
	r.Get("/ping", handlers.Ping())
}
