package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/snaps/internal/config"
	"github.com/MrSnakeDoc/snaps/internal/domain"
	"github.com/MrSnakeDoc/snaps/internal/httpserver"
	"github.com/MrSnakeDoc/snaps/internal/httpserver/deps"
	"github.com/MrSnakeDoc/snaps/internal/logger"
	"github.com/MrSnakeDoc/snaps/internal/metrics"
	"github.com/MrSnakeDoc/snaps/internal/notify"
	"github.com/MrSnakeDoc/snaps/internal/redis"
	"github.com/MrSnakeDoc/snaps/internal/scheduler"
	"github.com/MrSnakeDoc/snaps/internal/snaps"
	redisstore "github.com/MrSnakeDoc/snaps/internal/store/redis"
	"github.com/MrSnakeDoc/snaps/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	dispatcher  *notify.Dispatcher
	recoverer   *scheduler.IntentRecoverer
}

// New wires configuration, storage, services and the HTTP server.
// It fails if Redis cannot be reached or the mail template is invalid.
func New() (*App, error) {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	// Initialize Redis early - fail fast if unavailable
	loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
	redisClient, err := redis.Connect(context.Background(), redis.ConnectOptions{
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		DB:             cfg.RedisDB,
		DialTimeout:    cfg.RedisDT,
		ReadTimeout:    cfg.RedisRT,
		WriteTimeout:   cfg.RedisWT,
		PoolSize:       cfg.RedisPoolSize,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}, loggerClient)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	loggerClient.Info("Redis initialized successfully")

	store := redisstore.NewStore(redisClient, cfg.PendingTTL)
	m := metrics.New()

	tmpl, err := notify.LoadTemplate(cfg.MailTemplate)
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to load mail template: %w", err)
	}

	var mailer notify.Mailer
	if cfg.SMTPHost != "" {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
		loggerClient.Info("smtp mailer configured",
			logger.String("host", cfg.SMTPHost),
			logger.Int("port", cfg.SMTPPort))
	} else {
		mailer = notify.NewLogMailer(loggerClient)
		loggerClient.Warn("SNAPS_SMTP_HOST not set, verification emails are only logged")
	}

	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		BaseURL:     cfg.BaseURL,
		SendTimeout: cfg.MailTimeout,
		RatePerSec:  cfg.MailRate,
		Burst:       cfg.MailBurst,
	}, mailer, tmpl, loggerClient, m)

	tokens := domain.NewTokenGenerator([]byte(cfg.Secret))
	migrator := snaps.NewMigrator(store, store, loggerClient, m)

	recoverer := scheduler.NewIntentRecoverer(
		store,
		loggerClient,
		m,
		cfg.RecoveryInterval,
		cfg.RecoveryGrace,
	)

	// Dependencies passed to routes.
	d := deps.Deps{
		Logger:           loggerClient,
		StartTime:        time.Now(),
		Version:          version.Version,
		Commit:           version.Commit,
		BuildDate:        version.BuildDate,
		GoVersion:        version.GoVersion,
		AllowedHosts:     cfg.AllowedHosts,
		AllowedCIDRS:     cfg.AllowedCIDRS,
		TrustProxy:       cfg.TrustProxy,
		CORSOrigins:      cfg.CORSOrigins,
		Submitter:        snaps.NewSubmitter(store, tokens, dispatcher, loggerClient, m),
		Verifier:         snaps.NewVerifier(store, migrator, loggerClient, m),
		Counter:          snaps.NewCounter(store),
		Store:            store,
		Metrics:          m,
		RateBurst:        cfg.RateBurst,
		RateRefillPerMin: cfg.RateRefillPerMin,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      server,
		redisClient: redisClient,
		dispatcher:  dispatcher,
		recoverer:   recoverer,
	}, nil
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting Snaps v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Info(version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Finish migrations left half-applied by a previous run, then keep watching
	a.recoverer.Start(ctx)
	a.logger.Info("intent recoverer started",
		logger.Duration("interval", a.cfg.RecoveryInterval),
		logger.Duration("grace", a.cfg.RecoveryGrace))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
		a.logger.Error("http server stopped unexpectedly", logger.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Stop(shutdownCtx); err != nil {
		a.logger.Warn("failed to stop http server cleanly", logger.Error(err))
	}

	a.recoverer.Stop()

	// In-flight requests are done; let their verification emails go out
	if err := a.dispatcher.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("pending verification emails were cancelled", logger.Error(err))
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	a.logger.Info("✅ Snaps stopped cleanly")
	_ = a.logger.Sync()
	return runErr
}
