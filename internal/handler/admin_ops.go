package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-ticket-booking/internal/maintenance"
	"github.com/iliyamo/bus-ticket-booking/internal/model"
	"github.com/iliyamo/bus-ticket-booking/internal/repository"
	"github.com/iliyamo/bus-ticket-booking/internal/utils"
)

// ---- Trips ----

type tripReq struct {
	BusID          *uint64    `json:"bus_id"`
	RouteID        *uint64    `json:"route_id"`
	DepartureTime  *time.Time `json:"departure_time"`
	ArrivalTime    *time.Time `json:"arrival_time"`
	BasePriceCents *uint64    `json:"base_price_cents"`
	BasePrice      string     `json:"base_price"` // "1250.00", alternative to cents
	Status         string     `json:"status"`
}

// apply overlays the request on t and validates the result.
func (r tripReq) apply(t *model.Trip) string {
	if r.BusID != nil {
		t.BusID = *r.BusID
	}
	if r.RouteID != nil {
		t.RouteID = *r.RouteID
	}
	if r.DepartureTime != nil {
		t.DepartureTime = r.DepartureTime.UTC()
	}
	if r.ArrivalTime != nil {
		t.ArrivalTime = r.ArrivalTime.UTC()
	}
	if r.BasePriceCents != nil {
		t.BasePriceCents = *r.BasePriceCents
	}
	if strings.TrimSpace(r.BasePrice) != "" {
		cents, err := utils.ParseMoney(r.BasePrice)
		if err != nil {
			return "invalid base_price"
		}
		t.BasePriceCents = cents
	}
	if s := strings.ToUpper(strings.TrimSpace(r.Status)); s != "" {
		t.Status = s
	}
	switch {
	case t.BusID == 0 || t.RouteID == 0:
		return "bus_id and route_id are required"
	case t.DepartureTime.IsZero() || t.ArrivalTime.IsZero():
		return "departure_time and arrival_time are required"
	case !t.ArrivalTime.After(t.DepartureTime):
		return "arrival_time must be after departure_time"
	case t.BasePriceCents == 0:
		return "base price must be positive"
	case t.BasePriceCents > utils.MaxAmountCents:
		return "base price too large"
	case t.Status != "" && !model.ValidTripStatus(t.Status):
		return "invalid status"
	}
	return ""
}

func (h *AdminHandler) CreateTrip(c echo.Context) error {
	var req tripReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	t := model.Trip{Status: model.TripScheduled}
	if msg := req.apply(&t); msg != "" {
		return badRequest(c, msg)
	}
	ctx := c.Request().Context()
	if _, err := h.Buses.GetByID(ctx, t.BusID); err != nil {
		return fail(c, h.Log, err)
	}
	if _, err := h.Routes.GetByID(ctx, t.RouteID); err != nil {
		return fail(c, h.Log, err)
	}
	if err := h.Trips.Create(ctx, &t); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, t)
}

// ListTrips supports route_id, bus_id, status, from and to (YYYY-MM-DD in
// the booking timezone) filters.
func (h *AdminHandler) ListTrips(c echo.Context) error {
	f := repository.TripFilter{Status: strings.ToUpper(c.QueryParam("status"))}
	var ok bool
	if f.RouteID, ok = queryUint(c, "route_id"); !ok {
		return badRequest(c, "invalid route_id")
	}
	if f.BusID, ok = queryUint(c, "bus_id"); !ok {
		return badRequest(c, "invalid bus_id")
	}
	loc := h.Svc.Rules().Location()
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		if v := c.QueryParam(p.name); v != "" {
			d, err := time.ParseInLocation("2006-01-02", v, loc)
			if err != nil {
				return badRequest(c, "invalid "+p.name)
			}
			*p.dst = d
		}
	}
	if !f.To.IsZero() {
		f.To = f.To.AddDate(0, 0, 1)
	}
	f.Limit, f.Offset = page(c)
	items, err := h.Trips.List(c.Request().Context(), f)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

func (h *AdminHandler) GetTrip(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	t, err := h.Trips.GetDetail(c.Request().Context(), id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *AdminHandler) UpdateTrip(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req tripReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx := c.Request().Context()
	t, err := h.Trips.GetByID(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if msg := req.apply(t); msg != "" {
		return badRequest(c, msg)
	}
	if err := h.Trips.Update(ctx, t); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *AdminHandler) DeleteTrip(c echo.Context) error {
	return h.deleteByID(c, h.Trips.Delete)
}

// TripAvailability handles GET /v1/admin/trips/:id/availability: the ledger
// rows of the trip and its occupancy rate.
func (h *AdminHandler) TripAvailability(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx := c.Request().Context()
	t, err := h.Trips.GetByID(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if err := h.Ledger.EnsureForTrip(ctx, t.ID, t.BusID); err != nil {
		return fail(c, h.Log, err)
	}
	rows, err := h.Ledger.ListByTrip(ctx, t.ID)
	if err != nil {
		return fail(c, h.Log, err)
	}
	occ, err := h.Ledger.Occupancy(ctx, t.ID, t.BusID, h.Svc.Now())
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"trip_id": t.ID, "occupancy": occ, "items": rows})
}

// ---- Bookings ----

// ListBookings supports status, trip_id and q (reference, name or email).
func (h *AdminHandler) ListBookings(c echo.Context) error {
	now := h.Svc.Now()
	f := repository.BookingFilter{
		Status: strings.ToUpper(strings.TrimSpace(c.QueryParam("status"))),
		Search: c.QueryParam("q"),
		Now:    now,
	}
	var ok bool
	if f.TripID, ok = queryUint(c, "trip_id"); !ok {
		return badRequest(c, "invalid trip_id")
	}
	f.Limit, f.Offset = page(c)
	items, err := h.Bookings.List(c.Request().Context(), f)
	if err != nil {
		return fail(c, h.Log, err)
	}
	for i := range items {
		items[i].Status = items[i].EffectiveStatus(now)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

func (h *AdminHandler) GetBooking(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx := c.Request().Context()
	b, err := h.Bookings.GetByID(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if b.Seats, err = h.Bookings.ListSeats(ctx, b.ID); err != nil {
		return fail(c, h.Log, err)
	}
	b.Status = b.EffectiveStatus(h.Svc.Now())
	return c.JSON(http.StatusOK, b)
}

type bulkReq struct {
	Action string   `json:"action"`
	IDs    []uint64 `json:"ids"`
}

// BulkBookings handles POST /v1/admin/bookings/bulk with action confirm,
// cancel or expire.
func (h *AdminHandler) BulkBookings(c echo.Context) error {
	var req bulkReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if len(req.IDs) == 0 {
		return badRequest(c, "ids required")
	}
	action := strings.ToLower(strings.TrimSpace(req.Action))
	n, err := h.Svc.BulkAction(c.Request().Context(), action, req.IDs)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"action": action, "updated": n})
}

// Cleanup handles POST /v1/admin/cleanup?dry_run=true, the same sweep as
// `busctl cleanup`.
func (h *AdminHandler) Cleanup(c echo.Context) error {
	rep, err := h.Svc.Cleanup(c.Request().Context(), c.QueryParam("dry_run") == "true")
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, rep)
}

// ---- Maintenance ----

// MaintenanceHandler toggles maintenance mode from the console.  Admin paths
// stay reachable while it is on.
type MaintenanceHandler struct {
	Store *maintenance.Store
}

type maintenanceReq struct {
	DurationMin int    `json:"duration_minutes"`
	Message     string `json:"message"`
	ETA         string `json:"eta"`
}

func (h *MaintenanceHandler) Status(c echo.Context) error {
	st, err := h.Store.Status(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "maintenance store unavailable"})
	}
	return c.JSON(http.StatusOK, st)
}

func (h *MaintenanceHandler) Enable(c echo.Context) error {
	req := maintenanceReq{DurationMin: int(maintenance.DefaultDuration / time.Minute)}
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
	}
	if req.DurationMin < 0 {
		return badRequest(c, "duration_minutes must not be negative")
	}
	st, err := h.Store.Enable(c.Request().Context(), maintenance.Options{
		Duration: time.Duration(req.DurationMin) * time.Minute,
		Message:  req.Message,
		ETA:      req.ETA,
	})
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "maintenance store unavailable"})
	}
	return c.JSON(http.StatusOK, st)
}

func (h *MaintenanceHandler) Disable(c echo.Context) error {
	st, err := h.Store.Disable(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "maintenance store unavailable"})
	}
	return c.JSON(http.StatusOK, st)
}
