package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenPort      string        // ex: ":3000"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	Secret     string        // HMAC key for verification tokens, never logged
	BaseURL    string        // public base URL used in verification links (ex: https://snaps.domain.ext)
	PendingTTL time.Duration // how long an unverified submission is kept (default: 168h)

	// Redis
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts

	// Mail
	SMTPHost     string        // empty => verification links are only logged
	SMTPPort     int           // ex: 587
	SMTPUsername string        // optional
	SMTPPassword string        // optional, never logged
	SMTPFrom     string        // envelope and header sender
	MailTemplate string        // optional path to a YAML mail template
	MailRate     float64       // outbound mails per second
	MailBurst    int           // outbound mail burst
	MailTimeout  time.Duration // bound on a single send

	// POST /snap rate limiting
	RateBurst        int // tokens per client IP
	RateRefillPerMin int // refill per client IP per minute

	// Intent recovery
	RecoveryInterval time.Duration // how often to look for stranded migrations
	RecoveryGrace    time.Duration // age before a claimed migration is considered stranded

	AllowedHosts []string // optional, restrict access to specific Host headers
	AllowedCIDRS []string // optional, restrict ops endpoints (healthz, readyz, metrics) to these IPs/CIDRs
	TrustProxy   bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)
	CORSOrigins  []string // allowed browser origins, default "*"
}

// Load reads .env files (if any) then the environment.
// It panics when a required variable is missing.
func Load() *Config {
	if err := loadEnvFiles(); err != nil {
		panic(fmt.Sprintf("❌ FATAL: %v", err))
	}

	cfg := &Config{
		// Server settings
		ListenPort:      getenv("SNAPS_LISTEN_PORT", ":3000"),
		ShutdownTimeout: mustDuration("SNAPS_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("SNAPS_LOG_LEVEL", "info"),
		PrettyLog: mustBool("SNAPS_PRETTY_LOG", false),

		// Verification
		Secret:     requireEnv("SNAPS_SECRET"),
		BaseURL:    strings.TrimRight(requireEnv("SNAPS_BASE_URL"), "/"),
		PendingTTL: mustDuration("SNAPS_PENDING_TTL", 7*24*time.Hour),

		// Redis settings
		RedisAddr:             requireEnv("SNAPS_REDIS_ADDR"),
		RedisUser:             getenv("SNAPS_REDIS_USERNAME", ""),
		RedisPasswordRequired: mustBool("SNAPS_REDIS_PASSWORD_REQUIRED", false),
		RedisPassword:         getenv("SNAPS_REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("SNAPS_REDIS_DB", 0),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Mail
		SMTPHost:     getenv("SNAPS_SMTP_HOST", ""),
		SMTPPort:     getenvInt("SNAPS_SMTP_PORT", 587),
		SMTPUsername: getenv("SNAPS_SMTP_USERNAME", ""),
		SMTPPassword: getenv("SNAPS_SMTP_PASSWORD", ""),
		SMTPFrom:     getenv("SNAPS_SMTP_FROM", "snaps@localhost"),
		MailTemplate: getenv("SNAPS_MAIL_TEMPLATE", ""),
		MailRate:     getenvFloat("SNAPS_MAIL_RATE_PER_SEC", 5),
		MailBurst:    getenvInt("SNAPS_MAIL_BURST", 10),
		MailTimeout:  mustDuration("SNAPS_MAIL_TIMEOUT", 15*time.Second),

		// Rate limiting
		RateBurst:        getenvInt("SNAPS_RATE_BURST", 10),
		RateRefillPerMin: getenvInt("SNAPS_RATE_REFILL_PER_MIN", 10),

		// Recovery
		RecoveryInterval: mustDuration("SNAPS_RECOVERY_INTERVAL", time.Minute),
		RecoveryGrace:    mustDuration("SNAPS_RECOVERY_GRACE", 2*time.Minute),

		// Access restrictions
		AllowedHosts: splitAndTrim(getenv("SNAPS_ALLOWED_HOSTS", "")),
		AllowedCIDRS: splitAndTrim(getenv("SNAPS_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("SNAPS_TRUST_PROXY", false),
		CORSOrigins:  splitAndTrim(getenv("SNAPS_CORS_ORIGINS", "*")),
	}

	if cfg.RedisPasswordRequired && cfg.RedisPassword == "" {
		panic("❌ FATAL: SNAPS_REDIS_PASSWORD is required when SNAPS_REDIS_PASSWORD_REQUIRED=true")
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		log.Printf("[DEBUG] cfg: %+v\n", cfg.Redacted())
	}

	return cfg
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	cp := *c
	cp.Secret = "***REDACTED***"
	if cp.RedisPassword != "" {
		cp.RedisPassword = "***REDACTED***"
	}
	if cp.SMTPPassword != "" {
		cp.SMTPPassword = "***REDACTED***"
	}
	return cp
}

// loadEnvFiles loads ENV_FILE if set, otherwise .env.local then .env.
// Variables already present in the environment win. Missing files are ignored.
func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}

	for _, f := range []string{".env.local", ".env"} {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
