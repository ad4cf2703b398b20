package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-ticket-booking/internal/middleware"
)

// RegisterPublic mounts the guest API under /v1.  Customers have no
// accounts; a booking is addressed by its reference.
func RegisterPublic(e *echo.Echo, d Deps) {
	g := e.Group("/v1")
	cache := middleware.ResponseCache(d.Cache, d.Redis, d.Log)

	// ---- Browse ----
	g.GET("/locations", d.Public.ListLocations, cache)
	g.GET("/locations/autocomplete", d.Public.Autocomplete, cache)
	g.GET("/trips/search", d.Public.SearchTrips, cache)
	g.GET("/trips/:id/seats", d.Public.TripSeats)

	// ---- Checkout ----
	g.POST("/trips/:id/reserve", d.Booking.Reserve)
	g.POST("/bookings", d.Booking.Create)
	g.GET("/bookings/:booking_id", d.Booking.Get)
	g.POST("/bookings/:booking_id/pay", d.Booking.Pay)
	g.GET("/bookings/:booking_id/confirmation", d.Booking.Confirmation)
	g.GET("/bookings/:booking_id/receipt.pdf", d.Booking.Receipt)
}
