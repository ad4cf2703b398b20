package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-ticket-booking/internal/middleware"
	"github.com/iliyamo/bus-ticket-booking/internal/model"
)

// RegisterAdmin mounts the console API under /v1/admin.  Login, refresh and
// logout are open; everything else needs an ADMIN or STAFF token.
func RegisterAdmin(e *echo.Echo, d Deps) {
	auth := e.Group("/v1/admin/auth")
	auth.POST("/login", d.Auth.Login)
	auth.POST("/refresh", d.Auth.Refresh)
	auth.POST("/logout", d.Auth.Logout)

	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(model.RoleAdmin, model.RoleStaff),
	)
	// Catalog and maintenance changes are ADMIN only.
	adminOnly := middleware.RequireRole(model.RoleAdmin)
	a := d.Admin

	g.GET("/me", d.Auth.Me)

	// ---- Locations ----
	g.GET("/locations", a.ListLocations)
	g.GET("/locations/:id", a.GetLocation)
	g.POST("/locations", a.CreateLocation, adminOnly)
	g.PUT("/locations/:id", a.UpdateLocation, adminOnly)
	g.PATCH("/locations/:id", a.UpdateLocation, adminOnly)
	g.DELETE("/locations/:id", a.DeleteLocation, adminOnly)

	// ---- Companies ----
	g.GET("/companies", a.ListCompanies)
	g.GET("/companies/:id", a.GetCompany)
	g.POST("/companies", a.CreateCompany, adminOnly)
	g.PUT("/companies/:id", a.UpdateCompany, adminOnly)
	g.PATCH("/companies/:id", a.UpdateCompany, adminOnly)
	g.DELETE("/companies/:id", a.DeleteCompany, adminOnly)

	// ---- Seat layouts ----
	g.GET("/layouts", a.ListLayouts)
	g.GET("/layouts/:id", a.GetLayout)
	g.POST("/layouts", a.CreateLayout, adminOnly)
	g.PUT("/layouts/:id", a.UpdateLayout, adminOnly)
	g.PATCH("/layouts/:id", a.UpdateLayout, adminOnly)
	g.PUT("/layouts/:id/design", a.SaveLayoutDesign, adminOnly)
	g.DELETE("/layouts/:id", a.DeleteLayout, adminOnly)

	// ---- Buses and seats ----
	g.GET("/buses", a.ListBuses)
	g.GET("/buses/:id", a.GetBus)
	g.GET("/buses/:id/seats", a.ListBusSeats)
	g.POST("/buses", a.CreateBus, adminOnly)
	g.PUT("/buses/:id", a.UpdateBus, adminOnly)
	g.PATCH("/buses/:id", a.UpdateBus, adminOnly)
	g.DELETE("/buses/:id", a.DeleteBus, adminOnly)
	g.PUT("/seats/:id", a.UpdateSeat, adminOnly)
	g.PATCH("/seats/:id", a.UpdateSeat, adminOnly)

	// ---- Routes ----
	g.GET("/routes", a.ListRoutes)
	g.GET("/routes/:id", a.GetRoute)
	g.POST("/routes", a.CreateRoute, adminOnly)
	g.PUT("/routes/:id", a.UpdateRoute, adminOnly)
	g.PATCH("/routes/:id", a.UpdateRoute, adminOnly)
	g.DELETE("/routes/:id", a.DeleteRoute, adminOnly)
	g.POST("/routes/:id/stops", a.AddRouteStop, adminOnly)
	g.DELETE("/routes/:id/stops/:stop_id", a.DeleteRouteStop, adminOnly)

	// ---- Trips ----
	g.GET("/trips", a.ListTrips)
	g.GET("/trips/:id", a.GetTrip)
	g.GET("/trips/:id/availability", a.TripAvailability)
	g.POST("/trips", a.CreateTrip)
	g.PUT("/trips/:id", a.UpdateTrip)
	g.PATCH("/trips/:id", a.UpdateTrip)
	g.DELETE("/trips/:id", a.DeleteTrip, adminOnly)

	// ---- Bookings ----
	g.GET("/bookings", a.ListBookings)
	g.GET("/bookings/:id", a.GetBooking)
	g.POST("/bookings/bulk", a.BulkBookings)
	g.POST("/cleanup", a.Cleanup, adminOnly)

	// ---- Maintenance ----
	g.GET("/maintenance", d.MaintenanceH.Status)
	g.POST("/maintenance/on", d.MaintenanceH.Enable, adminOnly)
	g.POST("/maintenance/off", d.MaintenanceH.Disable, adminOnly)
}
