package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/turtacn/SafeScan/internal/application/analysis"
	"github.com/turtacn/SafeScan/internal/config"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

func offlineConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Storage.Mode = config.StorageModeOffline
	cfg.AI.APIKey = ""
	cfg.Metrics.Namespace = "bootstrap_test"
	return cfg
}

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.RemoteAddr = "192.0.2.10:4000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(context.Background(), nil, nil)
	require.Error(t, err)
}

func TestNew_Offline(t *testing.T) {
	a := newApp(t, offlineConfig())

	assert.NotNil(t, a.Analysis)
	assert.NotNil(t, a.Reviews)
	assert.NotNil(t, a.Admin)
	assert.NotNil(t, a.KnowledgeBase)
	assert.NotNil(t, a.Matcher)
	assert.NotNil(t, a.Calculator)
	assert.NotNil(t, a.Metrics)
	assert.Nil(t, a.Cache)
	assert.Nil(t, a.Redis)
	assert.Nil(t, a.Archive)
	assert.Empty(t, a.HealthChecks())

	allergens, err := a.KnowledgeBase.GetAllAllergens(context.Background())
	require.NoError(t, err)
	assert.Empty(t, allergens)
}

func TestNew_InvalidURLRejected(t *testing.T) {
	a := newApp(t, offlineConfig())

	_, err := a.Analysis.Analyze(context.Background(), &app.AnalyzeRequest{URL: "not a url"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidProductURL))
}

func TestNew_PostgresSinkNeedsPostgresStorage(t *testing.T) {
	cfg := offlineConfig()
	cfg.Validation.Sink = config.ValidationSinkPostgres

	_, err := New(context.Background(), cfg, logging.NewNopLogger())
	require.Error(t, err)
}

func TestNew_RedisUnavailableDegrades(t *testing.T) {
	cfg := offlineConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = "127.0.0.1:1"

	a := newApp(t, cfg)
	assert.Nil(t, a.Cache)
	assert.Nil(t, a.Redis)
}

func TestHandler_PublicEndpoints(t *testing.T) {
	a := newApp(t, offlineConfig())
	h := a.Handler("test")

	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/readyz", "").Code)

	rec := serve(h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bootstrap_test_")
}

func TestHandler_AuthEnabled(t *testing.T) {
	cfg := offlineConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.APIKeys = []string{"secret"}
	h := newApp(t, cfg).Handler("test")

	rec := serve(h, http.MethodGet, "/api/v1/admin/validation-stats", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/healthz", "").Code)
}

func TestHandler_RedisRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := offlineConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()
	cfg.Auth.AnalyzePerMinute = 1

	a := newApp(t, cfg)
	require.NotNil(t, a.Redis)
	require.NotNil(t, a.Cache)
	assert.Len(t, a.HealthChecks(), 1)

	h := a.Handler("test")
	body := `{"url":"not a url"}`

	first := serve(h, http.MethodPost, "/api/v1/analyze", body)
	assert.NotEqual(t, http.StatusTooManyRequests, first.Code)

	second := serve(h, http.MethodPost, "/api/v1/analyze", body)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
}

func TestClose_Idempotent(t *testing.T) {
	a, err := New(context.Background(), offlineConfig(), logging.NewNopLogger())
	require.NoError(t, err)

	assert.NoError(t, a.Close())
	assert.NoError(t, a.Close())
}

func TestServe_StopsOnCancel(t *testing.T) {
	cfg := offlineConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	a := newApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	assert.NoError(t, a.Serve(ctx, "test"))
}

func TestReload_LogLevel(t *testing.T) {
	before := logging.CurrentLevel()
	t.Cleanup(func() { logging.SetLevel(before) })

	a := newApp(t, offlineConfig())
	next := offlineConfig()
	next.Log.Level = logging.LevelDebug

	a.Reload(next)
	assert.Equal(t, logging.LevelDebug, logging.CurrentLevel())
	assert.Equal(t, logging.LevelDebug, a.Config.Log.Level)
}
