// Package router assembles the Echo instance: global middleware first, then
// the public booking routes and the admin console routes.
package router

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/bus-ticket-booking/internal/config"
	"github.com/iliyamo/bus-ticket-booking/internal/handler"
	"github.com/iliyamo/bus-ticket-booking/internal/maintenance"
	"github.com/iliyamo/bus-ticket-booking/internal/middleware"
)

// Deps is everything the routes need.  Redis may be nil; the rate limiter,
// response cache and error counter then pass requests through.
type Deps struct {
	Log         *slog.Logger
	JWTSecret   string
	Redis       *redis.Client
	RateLimit   config.RateLimitConfig
	Cache       config.CacheConfig
	Maintenance *maintenance.Store

	Auth         *handler.AuthHandler
	Public       *handler.PublicHandler
	Booking      *handler.BookingHandler
	Admin        *handler.AdminHandler
	MaintenanceH *handler.MaintenanceHandler
}

// New builds the HTTP server.  Middleware order matters: the maintenance
// gate runs before the rate limiter so a closed site does not spend tokens.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLog(d.Log))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.ErrorMonitor(middleware.DefaultErrorMonitorConfig(), d.Redis, d.Log))
	e.Use(middleware.Maintenance(d.Maintenance, d.Log))
	e.Use(middleware.RateLimit(d.RateLimit, d.Redis, d.Log))

	e.GET("/healthz", handler.Health)
	RegisterPublic(e, d)
	RegisterAdmin(e, d)
	return e
}
