package deps

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/snaps/internal/logger"
	"github.com/MrSnakeDoc/snaps/internal/metrics"
	"github.com/MrSnakeDoc/snaps/internal/snaps"
)

// Pinger reports whether the backing store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Logger       logger.Logger
	StartTime    time.Time
	Version      string
	Commit       string
	BuildDate    string
	GoVersion    string
	AllowedHosts []string // Host headers allowed to access the server
	AllowedCIDRS []string // IPs allowed to access healthz/readyz/metrics endpoints
	TrustProxy   bool     // true if running behind a trusted reverse proxy (e.g., cloudflared)
	CORSOrigins  []string // browser origins allowed to call the API

	Submitter *snaps.Submitter
	Verifier  *snaps.Verifier
	Counter   *snaps.Counter
	Store     Pinger           // readiness probe target
	Metrics   *metrics.Metrics // nil disables /metrics

	RateBurst        int // POST /snap burst per client IP
	RateRefillPerMin int // POST /snap refill per client IP per minute
}
