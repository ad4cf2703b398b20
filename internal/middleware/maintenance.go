package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-ticket-booking/internal/maintenance"
)

// maintenanceBypass lists the path prefixes that stay reachable while the
// site is in maintenance.
var maintenanceBypass = []string{"/admin/", "/v1/admin/", "/healthz"}

// Maintenance answers 503 with the configured message and ETA while the
// maintenance flag is set.  Redis errors fail open.
func Maintenance(store *maintenance.Store, log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			for _, p := range maintenanceBypass {
				if strings.HasPrefix(path, p) {
					return next(c)
				}
			}
			ctx := c.Request().Context()
			on, err := store.Enabled(ctx)
			if err != nil {
				log.Warn("maintenance check failed", "err", err)
				return next(c)
			}
			if !on {
				return next(c)
			}
			st, err := store.Status(ctx)
			if err != nil || !st.Enabled {
				return next(c)
			}
			c.Response().Header().Set("Retry-After", "1800")
			return c.JSON(http.StatusServiceUnavailable, echo.Map{
				"error":          "service under maintenance",
				"maintenance":    true,
				"message":        st.Message,
				"estimated_time": st.ETA,
			})
		}
	}
}
