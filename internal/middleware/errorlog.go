package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

var suspiciousPatterns = []string{
	"/admin/login/",
	"/wp-admin/",
	"/phpmyadmin/",
	".php",
	".env",
	"eval(",
	"<script>",
	"union select",
	"drop table",
}

// Suspicious reports whether the path or raw query looks like a scanner request.
func Suspicious(path, rawQuery string) bool {
	p, q := strings.ToLower(path), strings.ToLower(rawQuery)
	for _, pat := range suspiciousPatterns {
		if strings.Contains(p, pat) || strings.Contains(q, pat) {
			return true
		}
	}
	return false
}

// ErrorMonitorConfig tunes ErrorMonitor.
type ErrorMonitorConfig struct {
	SlowThreshold time.Duration
	CounterTTL    time.Duration
	CriticalAbove int64
}

func DefaultErrorMonitorConfig() ErrorMonitorConfig {
	return ErrorMonitorConfig{SlowThreshold: 5 * time.Second, CounterTTL: 300 * time.Second, CriticalAbove: 10}
}

// ErrorMonitor logs probing requests and slow requests, and counts 5xx
// responses per client IP in Redis.  An IP above the threshold within the
// counter window is logged at error level as critical.
func ErrorMonitor(cfg ErrorMonitorConfig, rdb *redis.Client, log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ip := c.RealIP()
			if Suspicious(req.URL.Path, req.URL.RawQuery) {
				log.Warn("suspicious request", "path", req.URL.Path, "query", req.URL.RawQuery, "ip", ip)
			}
			start := time.Now()
			err := next(c)
			if took := time.Since(start); took > cfg.SlowThreshold {
				log.Warn("slow request", "path", req.URL.Path, "took", took.Round(time.Millisecond))
			}

			status := c.Response().Status
			if err != nil {
				status = http.StatusInternalServerError
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				}
			}
			if status >= 500 {
				log.Error("server error", "path", req.URL.Path, "method", req.Method, "ip", ip,
					"status", status, "user_agent", req.UserAgent(), "err", err)
				countError(req.Context(), cfg, rdb, log, ip)
			}
			return err
		}
	}
}

func countError(ctx context.Context, cfg ErrorMonitorConfig, rdb *redis.Client, log *slog.Logger, ip string) {
	if rdb == nil {
		return
	}
	key := "error_count_" + ip
	ctx = context.WithoutCancel(ctx)
	pipe := rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, cfg.CounterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn("error counter update failed", "ip", ip, "err", err)
		return
	}
	if n := incr.Val(); n > cfg.CriticalAbove {
		log.Error("CRITICAL: high error rate from IP", "ip", ip, "errors", n, "window", cfg.CounterTTL)
	}
}
