package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/snaps/internal/domain"
	"github.com/MrSnakeDoc/snaps/internal/httpserver/deps"
	"github.com/MrSnakeDoc/snaps/internal/logger"
	"github.com/MrSnakeDoc/snaps/internal/metrics"
	"github.com/MrSnakeDoc/snaps/internal/snaps"
	redisstore "github.com/MrSnakeDoc/snaps/internal/store/redis"
)

type captureNotifier struct {
	mu   sync.Mutex
	subs map[string]*domain.Submission
}

func (n *captureNotifier) Notify(sub *domain.Submission) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs[sub.ID] = sub
}

func (n *captureNotifier) token(id string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if sub, ok := n.subs[id]; ok {
		return sub.VerificationToken
	}
	return ""
}

type testServer struct {
	handler  http.Handler
	mr       *miniredis.Miniredis
	notifier *captureNotifier
}

func newTestServer(t *testing.T, mutate ...func(*deps.Deps)) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := redisstore.NewStore(client, time.Hour)
	log := logger.Nop()
	m := metrics.New()
	notifier := &captureNotifier{subs: map[string]*domain.Submission{}}
	migrator := snaps.NewMigrator(store, store, log, m)

	d := deps.Deps{
		Logger:           log,
		StartTime:        time.Now(),
		Version:          "test",
		CORSOrigins:      []string{"*"},
		Submitter:        snaps.NewSubmitter(store, domain.NewTokenGenerator([]byte("secret")), notifier, log, m),
		Verifier:         snaps.NewVerifier(store, migrator, log, m),
		Counter:          snaps.NewCounter(store),
		Store:            store,
		Metrics:          m,
		RateBurst:        100,
		RateRefillPerMin: 100,
	}
	for _, fn := range mutate {
		fn(&d)
	}

	return &testServer{handler: NewRouter(log, d), mr: mr, notifier: notifier}
}

func (s *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, r)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func verifyURL(id, key string) string {
	q := url.Values{}
	q.Set("id", id)
	q.Set("key", key)
	return "/verify?" + q.Encode()
}

func TestSubmitVerifyCount(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/snap", `{"url":"http://blog.com/post/","snaps":5,"email":"a@x.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decode[map[string]any](t, rec)
	assert.Equal(t, "blog.com/post", created["canonicalUrl"])
	assert.Equal(t, "http://blog.com/post/", created["url"])
	assert.EqualValues(t, 5, created["snaps"])
	assert.NotContains(t, created, "verificationToken")
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)

	rec = s.do(t, http.MethodGet, "/snap?url="+url.QueryEscape("http://blog.com/post"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"url":"blog.com/post","snaps":0}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, verifyURL(id, s.notifier.token(id)), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, decode[map[string]string](t, rec), "message")

	rec = s.do(t, http.MethodGet, "/snap?url="+url.QueryEscape("https://BLOG.com/post/"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"url":"blog.com/post","snaps":5}`, rec.Body.String())

	// the link is single use
	rec = s.do(t, http.MethodGet, verifyURL(id, s.notifier.token(id)), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid or already used verification link", decode[map[string]string](t, rec)["error"])
}

func TestSubmitSnapsAsString(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/snap", `{"url":"https://a.com/x","snaps":"7","email":"a@x.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.EqualValues(t, 7, decode[map[string]any](t, rec)["snaps"])
}

func TestSubmitRejects(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "malformed json", body: `{"url":`, want: "invalid JSON body"},
		{name: "missing email", body: `{"url":"https://a.com","snaps":5}`, want: domain.ErrMissingEmail.Error()},
		{name: "zero snaps", body: `{"url":"https://a.com","snaps":0,"email":"a@x.com"}`, want: domain.ErrInvalidWeight.Error()},
		{name: "too many snaps", body: `{"url":"https://a.com","snaps":51,"email":"a@x.com"}`, want: domain.ErrInvalidWeight.Error()},
		{name: "fractional snaps", body: `{"url":"https://a.com","snaps":2.5,"email":"a@x.com"}`, want: domain.ErrInvalidWeight.Error()},
		{name: "boolean snaps", body: `{"url":"https://a.com","snaps":true,"email":"a@x.com"}`, want: domain.ErrInvalidWeight.Error()},
		{name: "relative url", body: `{"url":"not a url","snaps":5,"email":"a@x.com"}`, want: domain.ErrInvalidURL.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/snap", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, decode[map[string]string](t, rec)["error"])
		})
	}
}

func TestSubmitBodyTooLarge(t *testing.T) {
	s := newTestServer(t)

	body := `{"url":"https://a.com/` + strings.Repeat("x", 70<<10) + `","snaps":5,"email":"a@x.com"}`
	rec := s.do(t, http.MethodPost, "/snap", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitStorageDown(t *testing.T) {
	s := newTestServer(t)
	s.mr.Close()

	rec := s.do(t, http.MethodPost, "/snap", `{"url":"https://a.com","snaps":5,"email":"a@x.com"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}

func TestVerifyOutcomes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/snap", `{"url":"https://a.com","snaps":3,"email":"a@x.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[map[string]any](t, rec)["id"].(string)

	tests := []struct {
		name   string
		target string
		want   string
	}{
		{name: "missing id", target: "/verify?key=abc", want: "invalid or already used verification link"},
		{name: "malformed id", target: verifyURL("nope", "abc"), want: "invalid or already used verification link"},
		{name: "unknown id", target: verifyURL("1b4e28ba-2fa1-11d2-883f-0016d3cca427", "abc"), want: "invalid or already used verification link"},
		{name: "wrong key", target: verifyURL(id, "abc"), want: "invalid verification key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, tt.target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, decode[map[string]string](t, rec)["error"])
		})
	}

	// a wrong key does not consume the submission
	rec = s.do(t, http.MethodGet, verifyURL(id, s.notifier.token(id)), "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetSnapsInvalidURL(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/snap", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitRateLimited(t *testing.T) {
	s := newTestServer(t, func(d *deps.Deps) {
		d.RateBurst = 1
		d.RateRefillPerMin = 1
	})

	body := `{"url":"https://a.com","snaps":1,"email":"a@x.com"}`
	assert.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/snap", body).Code)

	rec := s.do(t, http.MethodPost, "/snap", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// reads are not limited
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/snap?url=https://a.com", "").Code)
}

func TestPing(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestOpsEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, rec)["status"])

	rec = s.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "snaps_migrated_weight_total")
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestReadyzUnavailable(t *testing.T) {
	s := newTestServer(t, func(d *deps.Deps) { d.Store = downPinger{} })

	rec := s.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, decode[map[string]any](t, rec)["ready"])
}

func TestOpsEndpointsRestricted(t *testing.T) {
	s := newTestServer(t, func(d *deps.Deps) { d.AllowedCIDRS = []string{"10.0.0.0/8"} })

	// httptest requests come from 192.0.2.1
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, path, "").Code, path)
	}
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/ping", "").Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	r := httptest.NewRequest(http.MethodOptions, "/snap", nil)
	r.Header.Set("Origin", "https://blog.com")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, r)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
