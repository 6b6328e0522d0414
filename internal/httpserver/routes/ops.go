package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/snaps/internal/httpserver/deps"
	"github.com/MrSnakeDoc/snaps/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/snaps/internal/httpserver/mw"
)

func init() { Register(registerOps) }

// registerOps mounts the probes and the metrics endpoint behind the CIDR allowlist.
func registerOps(r chi.Router, d deps.Deps) {
	ops := r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
	ops.Get("/healthz", handlers.Healthz(d))
	ops.Get("/readyz", handlers.Readyz(d))
	if d.Metrics != nil {
		ops.Handle("/metrics", d.Metrics.Handler())
	}
}
