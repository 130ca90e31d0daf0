package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authapi/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Database.Driver = "memory"
	cfg.Auth.JWTSecret = "app-test-secret-0123456789abcdef"
	cfg.Auth.BcryptCost = 4
	cfg.Email.DryRun = true
	cfg.ApplyDefaults()
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "warn", "json")
	log.Info("hidden")
	log.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &line))
	assert.Equal(t, "shown", line["msg"])

	buf.Reset()
	NewLogger(&buf, "debug", "text").Debug("dbg")
	assert.Contains(t, buf.String(), "msg=dbg")
}

func TestApp_OperationalEndpoints(t *testing.T) {
	a := newTestApp(t, testConfig())
	h := a.Handler()

	rec := get(h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = get(h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `authapi_http_requests_total{method="GET",route="/healthz",status="200"} 1`)

	assert.Equal(t, http.StatusOK, get(h, "/swagger/doc.json").Code)
}

func TestApp_RegistersAPIRoutes(t *testing.T) {
	a := newTestApp(t, testConfig())

	body := `{"email":"a@x.com","firstname":"Ada","lastname":"Lovelace","mobile":"+14155552671","password":"Secret123"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/registration", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, get(a.Handler(), "/api/v1/me").Code)
}

func TestApp_RateLimitFromConfig(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RateLimit.RedisAddr = mr.Addr()
	cfg.RateLimit.Requests = 2
	cfg.RateLimit.Window = time.Minute

	a := newTestApp(t, cfg)
	assert.Equal(t, http.StatusOK, get(a.Handler(), "/healthz").Code)
	assert.Equal(t, http.StatusOK, get(a.Handler(), "/healthz").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(a.Handler(), "/healthz").Code)
}

func getFrom(h http.Handler, path, forwardedFor string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil) // RemoteAddr 192.0.2.1:1234
	req.Header.Set("X-Forwarded-For", forwardedFor)
	h.ServeHTTP(rec, req)
	return rec
}

func TestApp_RateLimitIgnoresForwardedForByDefault(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RateLimit.RedisAddr = mr.Addr()
	cfg.RateLimit.Requests = 2
	cfg.RateLimit.Window = time.Minute

	a := newTestApp(t, cfg)
	limited := 0
	for i := 0; i < 10; i++ {
		if getFrom(a.Handler(), "/healthz", fmt.Sprintf("203.0.113.%d", i+1)).Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 8, limited)
}

func TestApp_RateLimitHonorsTrustedProxy(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Server.TrustedProxies = []string{"192.0.2.1"}
	cfg.RateLimit.RedisAddr = mr.Addr()
	cfg.RateLimit.Requests = 1
	cfg.RateLimit.Window = time.Minute

	a := newTestApp(t, cfg)
	assert.Equal(t, http.StatusOK, getFrom(a.Handler(), "/healthz", "203.0.113.1").Code)
	assert.Equal(t, http.StatusOK, getFrom(a.Handler(), "/healthz", "203.0.113.2").Code)
	assert.Equal(t, http.StatusTooManyRequests, getFrom(a.Handler(), "/healthz", "203.0.113.2").Code)
}

func TestNew_RejectsBadTrustedProxy(t *testing.T) {
	cfg := testConfig()
	cfg.Server.TrustedProxies = []string{"not-an-ip"}
	_, err := New(context.Background(), cfg, slog.New(slog.DiscardHandler))
	assert.Error(t, err)
}

func TestApp_ServeStopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Port = 0
	a := newTestApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestMigrate_RejectsMemoryDriver(t *testing.T) {
	path := t.TempDir() + "/config.yaml"
	cfgYAML := "database:\n  driver: memory\nauth:\n  jwt_secret: \"0123456789abcdef0123456789abcdef\"\nemail:\n  dry_run: true\n"
	require.NoError(t, os.WriteFile(path, []byte(cfgYAML), 0o600))

	err := Migrate(context.Background(), path)
	assert.Error(t, err)
}
