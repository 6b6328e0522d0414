package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrSnakeDoc/snaps/internal/domain"
	"github.com/MrSnakeDoc/snaps/internal/logger"
	"github.com/MrSnakeDoc/snaps/internal/metrics"
)

const (
	DefaultSendTimeout = 15 * time.Second
	DefaultRatePerSec  = 5
	DefaultBurst       = 10
)

// DispatcherConfig tunes the outbound mail path.
type DispatcherConfig struct {
	BaseURL     string        // public base URL, e.g. https://snaps.example.com
	SendTimeout time.Duration // bound on a single send, including the wait for a rate token
	RatePerSec  float64       // sustained outbound mail rate
	Burst       int
}

// Dispatcher sends verification emails in the background. Failures are logged
// and counted, never retried and never reported to the submitter.
type Dispatcher struct {
	mailer  Mailer
	tmpl    *Template
	baseURL string
	timeout time.Duration
	limiter *rate.Limiter
	logger  logger.Logger
	metrics *metrics.Metrics

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewDispatcher creates a dispatcher. Zero config values fall back to defaults.
func NewDispatcher(cfg DispatcherConfig, mailer Mailer, tmpl *Template, log logger.Logger, m *metrics.Metrics) *Dispatcher {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = DefaultRatePerSec
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	if tmpl == nil {
		tmpl = DefaultTemplate()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		mailer:  mailer,
		tmpl:    tmpl,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.SendTimeout,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		logger:  log.With(logger.Component("notify")),
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Notify schedules the verification email for sub and returns immediately.
func (d *Dispatcher) Notify(sub *domain.Submission) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.send(sub); err != nil {
			d.metrics.Notification("failed")
			d.logger.Error("failed to send verification email",
				logger.String("submission_id", sub.ID),
				logger.Error(err))
			return
		}
		d.metrics.Notification("sent")
		d.logger.Debug("verification email sent",
			logger.String("submission_id", sub.ID))
	}()
}

func (d *Dispatcher) send(sub *domain.Submission) error {
	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	subject, body, err := d.tmpl.Render(TemplateData{
		Link:  d.VerificationLink(sub),
		URL:   sub.CanonicalURL,
		Snaps: sub.Weight,
		Email: sub.Email,
	})
	if err != nil {
		return err
	}

	return d.mailer.Send(ctx, sub.Email, subject, body)
}

// VerificationLink builds the link embedded in the email.
func (d *Dispatcher) VerificationLink(sub *domain.Submission) string {
	q := url.Values{}
	q.Set("id", sub.ID)
	q.Set("key", sub.VerificationToken)
	return d.baseURL + "/verify?" + q.Encode()
}

// Shutdown waits for in-flight sends. When ctx expires first, remaining sends
// are cancelled and ctx's error is returned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
