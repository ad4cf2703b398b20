package middleware

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/bus-ticket-booking/internal/config"
	"github.com/iliyamo/bus-ticket-booking/internal/maintenance"
	"github.com/iliyamo/bus-ticket-booking/internal/utils"
)

func quietLog() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func do(e *echo.Echo, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func ok(c echo.Context) error { return c.JSON(http.StatusOK, echo.Map{"ok": true}) }

func TestJWTAuthAndRole(t *testing.T) {
	e := echo.New()
	g := e.Group("/v1/admin", JWTAuth("secret"), RequireRole("ADMIN"))
	g.GET("/me", func(c echo.Context) error {
		id, _ := UserID(c)
		return c.JSON(http.StatusOK, echo.Map{"id": id, "role": Role(c)})
	})

	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/v1/admin/me", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/v1/admin/me", map[string]string{"Authorization": "Bearer junk"}).Code)

	staff, err := utils.NewAccessToken("secret", 3, "STAFF", 5)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, do(e, http.MethodGet, "/v1/admin/me", map[string]string{"Authorization": "Bearer " + staff.Token}).Code)

	admin, err := utils.NewAccessToken("secret", 9, "ADMIN", 5)
	require.NoError(t, err)
	rec := do(e, http.MethodGet, "/v1/admin/me", map[string]string{"Authorization": "Bearer " + admin.Token})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":9,"role":"ADMIN"}`, rec.Body.String())
}

func TestRateLimitBlocksAfterCapacity(t *testing.T) {
	rdb, _ := newRedis(t)
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Minute, TTL: 5 * time.Minute, KeyStrategy: "ip", Prefix: "rl"}
	e := echo.New()
	e.Use(RateLimit(cfg, rdb, quietLog()))
	e.GET("/v1/locations", ok)

	hdr := map[string]string{"X-Real-IP": "41.90.1.1"}
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/v1/locations", hdr).Code)
	second := do(e, http.MethodGet, "/v1/locations", hdr)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "0", second.Header().Get("X-RateLimit-Remaining"))

	blocked := do(e, http.MethodGet, "/v1/locations", hdr)
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.NotEmpty(t, blocked.Header().Get("Retry-After"))

	other := do(e, http.MethodGet, "/v1/locations", map[string]string{"X-Real-IP": "41.90.1.2"})
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestRateLimitWithoutRedisPassesThrough(t *testing.T) {
	e := echo.New()
	e.Use(RateLimit(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil, quietLog()))
	e.GET("/", ok)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/", nil).Code)
	}
}

func TestResponseCacheHit(t *testing.T) {
	rdb, _ := newRedis(t)
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute, Prefix: "cache", MaxBodyBytes: 1 << 20}
	calls := 0
	e := echo.New()
	e.GET("/v1/trips/search", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"items": []int{1, 2}})
	}, ResponseCache(cfg, rdb, quietLog()))

	first := do(e, http.MethodGet, "/v1/trips/search?from=1&to=2&date=2025-03-11", nil)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := do(e, http.MethodGet, "/v1/trips/search?from=1&to=2&date=2025-03-11", nil)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Contains(t, second.Header().Get(echo.HeaderContentType), "application/json")
	assert.Equal(t, 1, calls)

	do(e, http.MethodGet, "/v1/trips/search?from=1&to=3&date=2025-03-11", nil)
	assert.Equal(t, 2, calls)
}

func TestResponseCacheSkipsErrors(t *testing.T) {
	rdb, mr := newRedis(t)
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute, Prefix: "cache"}
	e := echo.New()
	e.GET("/x", func(c echo.Context) error {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "bad"})
	}, ResponseCache(cfg, rdb, quietLog()))
	do(e, http.MethodGet, "/x", nil)
	assert.Empty(t, mr.Keys())
}

func TestMaintenanceGate(t *testing.T) {
	rdb, _ := newRedis(t)
	store := maintenance.NewStore(rdb)
	e := echo.New()
	e.Use(Maintenance(store, quietLog()))
	e.GET("/v1/trips/search", ok)
	e.GET("/v1/admin/bookings", ok)
	e.GET("/healthz", ok)

	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/v1/trips/search", nil).Code)

	_, err := store.Enable(context.Background(), maintenance.Options{Duration: 30 * time.Minute, Message: "Upgrading"})
	require.NoError(t, err)

	rec := do(e, http.MethodGet, "/v1/trips/search", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "Upgrading")
	assert.Contains(t, rec.Body.String(), "30 minutes")
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/v1/admin/bookings", nil).Code)
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/healthz", nil).Code)
}

func TestSecurityHeaders(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders())
	e.GET("/", ok)
	rec := do(e, http.MethodGet, "/", nil)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "1; mode=block", rec.Header().Get("X-XSS-Protection"))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
	assert.Contains(t, rec.Header().Get("Permissions-Policy"), "camera=()")
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestSuspicious(t *testing.T) {
	assert.True(t, Suspicious("/wp-admin/setup.php", ""))
	assert.True(t, Suspicious("/v1/trips/search", "q=1 UNION SELECT password"))
	assert.True(t, Suspicious("/.env", ""))
	assert.False(t, Suspicious("/v1/trips/search", "from=1&to=2"))
}

func TestErrorMonitorCountsServerErrors(t *testing.T) {
	rdb, mr := newRedis(t)
	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, nil))
	e := echo.New()
	e.Use(ErrorMonitor(DefaultErrorMonitorConfig(), rdb, log))
	e.GET("/boom", func(c echo.Context) error {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "boom"})
	})
	e.GET("/fine", ok)

	hdr := map[string]string{"X-Real-IP": "41.90.2.2"}
	for i := 0; i < 11; i++ {
		do(e, http.MethodGet, "/boom", hdr)
	}
	do(e, http.MethodGet, "/fine", hdr)

	got, err := mr.Get("error_count_41.90.2.2")
	require.NoError(t, err)
	assert.Equal(t, "11", got)
	assert.Greater(t, mr.TTL("error_count_41.90.2.2"), time.Duration(0))
	assert.Contains(t, logs.String(), "CRITICAL: high error rate from IP")

	do(e, http.MethodGet, "/phpmyadmin/index", hdr)
	assert.Contains(t, logs.String(), "suspicious request")
}
