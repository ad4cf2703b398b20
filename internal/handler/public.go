package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-ticket-booking/internal/model"
	"github.com/iliyamo/bus-ticket-booking/internal/repository"
	"github.com/iliyamo/bus-ticket-booking/internal/service"
)

// PublicHandler serves the guest browse endpoints: locations, trip search
// and seat maps.
type PublicHandler struct {
	Svc       *service.BookingService
	Locations *repository.LocationRepo
	Log       *slog.Logger
}

func NewPublicHandler(svc *service.BookingService, locations *repository.LocationRepo, log *slog.Logger) *PublicHandler {
	return &PublicHandler{Svc: svc, Locations: locations, Log: log}
}

// ListLocations handles GET /v1/locations (active locations for the search form).
func (h *PublicHandler) ListLocations(c echo.Context) error {
	items, err := h.Locations.List(c.Request().Context(), true)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Autocomplete handles GET /v1/locations/autocomplete?q=...  Terms shorter
// than two characters return an empty list.
func (h *PublicHandler) Autocomplete(c echo.Context) error {
	term := strings.TrimSpace(c.QueryParam("q"))
	if len([]rune(term)) < 2 {
		return c.JSON(http.StatusOK, echo.Map{"items": []model.Location{}})
	}
	items, err := h.Locations.Autocomplete(c.Request().Context(), term, 10)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// SearchTrips handles GET /v1/trips/search?from=1&to=2&date=2025-03-10.
func (h *PublicHandler) SearchTrips(c echo.Context) error {
	from, ok := queryUint(c, "from")
	if !ok {
		return badRequest(c, "invalid from")
	}
	to, ok := queryUint(c, "to")
	if !ok {
		return badRequest(c, "invalid to")
	}
	date := strings.TrimSpace(c.QueryParam("date"))
	items, err := h.Svc.Search(c.Request().Context(), from, to, date)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"date": date, "count": len(items), "items": items})
}

// TripSeats handles GET /v1/trips/:id/seats.
func (h *PublicHandler) TripSeats(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid trip id")
	}
	sm, err := h.Svc.SeatMap(c.Request().Context(), id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, sm)
}
