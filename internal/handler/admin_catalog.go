package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-ticket-booking/internal/model"
	"github.com/iliyamo/bus-ticket-booking/internal/repository"
	"github.com/iliyamo/bus-ticket-booking/internal/service"
)

// AdminHandler serves the admin console API.  Updates load the current row
// and overlay the fields present in the request body, so PUT and PATCH
// behave the same.
type AdminHandler struct {
	Locations *repository.LocationRepo
	Companies *repository.CompanyRepo
	Layouts   *repository.SeatLayoutRepo
	Buses     *repository.BusRepo
	Seats     *repository.SeatRepo
	Routes    *repository.RouteRepo
	Trips     *repository.TripRepo
	Ledger    *repository.AvailabilityRepo
	Bookings  *repository.BookingRepo
	Svc       *service.BookingService
	Log       *slog.Logger
}

// ---- Locations ----

func validLocation(l *model.Location) string {
	l.Name = strings.TrimSpace(l.Name)
	l.Code = strings.ToUpper(strings.TrimSpace(l.Code))
	l.County = strings.TrimSpace(l.County)
	switch {
	case l.Name == "":
		return "name is required"
	case l.Code == "" || len(l.Code) > 10:
		return "code must be 1 to 10 characters"
	}
	return ""
}

func (h *AdminHandler) CreateLocation(c echo.Context) error {
	l := model.Location{IsActive: true}
	if err := c.Bind(&l); err != nil {
		return badRequest(c, "invalid request body")
	}
	if msg := validLocation(&l); msg != "" {
		return badRequest(c, msg)
	}
	if err := h.Locations.Create(c.Request().Context(), &l); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *AdminHandler) ListLocations(c echo.Context) error {
	items, err := h.Locations.List(c.Request().Context(), c.QueryParam("active") == "true")
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

func (h *AdminHandler) GetLocation(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	l, err := h.Locations.GetByID(c.Request().Context(), id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, l)
}

func (h *AdminHandler) UpdateLocation(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx := c.Request().Context()
	l, err := h.Locations.GetByID(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if err := c.Bind(l); err != nil {
		return badRequest(c, "invalid request body")
	}
	l.ID = id
	if msg := validLocation(l); msg != "" {
		return badRequest(c, msg)
	}
	if err := h.Locations.Update(ctx, l); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, l)
}

func (h *AdminHandler) DeleteLocation(c echo.Context) error {
	return h.deleteByID(c, h.Locations.Delete)
}

// deleteByID is the shared DELETE /:id handler body.
func (h *AdminHandler) deleteByID(c echo.Context, del func(ctx context.Context, id uint64) error) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	if err := del(c.Request().Context(), id); err != nil {
		return fail(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ---- Companies ----

func (h *AdminHandler) CreateCompany(c echo.Context) error {
	co := model.Company{IsActive: true}
	if err := c.Bind(&co); err != nil {
		return badRequest(c, "invalid request body")
	}
	co.Name = strings.TrimSpace(co.Name)
	if co.Name == "" {
		return badRequest(c, "name is required")
	}
	if err := h.Companies.Create(c.Request().Context(), &co); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, co)
}

func (h *AdminHandler) ListCompanies(c echo.Context) error {
	items, err := h.Companies.List(c.Request().Context())
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

func (h *AdminHandler) GetCompany(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	co, err := h.Companies.GetByID(c.Request().Context(), id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, co)
}

func (h *AdminHandler) UpdateCompany(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx := c.Request().Context()
	co, err := h.Companies.GetByID(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if err := c.Bind(co); err != nil {
		return badRequest(c, "invalid request body")
	}
	co.ID = id
	co.Name = strings.TrimSpace(co.Name)
	if co.Name == "" {
		return badRequest(c, "name is required")
	}
	if err := h.Companies.Update(ctx, co); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, co)
}

func (h *AdminHandler) DeleteCompany(c echo.Context) error {
	return h.deleteByID(c, h.Companies.Delete)
}

// ---- Seat layouts ----

func validLayout(l *model.SeatLayout) string {
	l.Name = strings.TrimSpace(l.Name)
	l.SeatClass = strings.ToUpper(strings.TrimSpace(l.SeatClass))
	switch {
	case l.Name == "":
		return "name is required"
	case !model.ValidSeatClass(l.SeatClass):
		return "seat_class must be VIP, BUSINESS or ECONOMY"
	case l.TotalSeats == 0 || l.Rows == 0 || l.Columns == 0:
		return "total_seats, rows and columns must be positive"
	case l.TotalSeats > l.Rows*l.Columns:
		return "total_seats exceeds rows x columns"
	}
	if cfg := l.LayoutConfig(); cfg != "2x2" && cfg != "2x3" {
		return `layout_data.config must be "2x2" or "2x3"`
	}
	return ""
}

func (h *AdminHandler) CreateLayout(c echo.Context) error {
	var l model.SeatLayout
	if err := c.Bind(&l); err != nil {
		return badRequest(c, "invalid request body")
	}
	if msg := validLayout(&l); msg != "" {
		return badRequest(c, msg)
	}
	if err := h.Layouts.Create(c.Request().Context(), &l); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *AdminHandler) ListLayouts(c echo.Context) error {
	items, err := h.Layouts.List(c.Request().Context())
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

func (h *AdminHandler) GetLayout(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	l, err := h.Layouts.GetByID(c.Request().Context(), id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, l)
}

func (h *AdminHandler) UpdateLayout(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx := c.Request().Context()
	l, err := h.Layouts.GetByID(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if err := c.Bind(l); err != nil {
		return badRequest(c, "invalid request body")
	}
	l.ID = id
	if msg := validLayout(l); msg != "" {
		return badRequest(c, msg)
	}
	if err := h.Layouts.Update(ctx, l); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, l)
}

// SaveLayoutDesign handles PUT /v1/admin/layouts/:id/design.  The body is the
// designer document itself.
func (h *AdminHandler) SaveLayoutDesign(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var doc json.RawMessage
	if err := json.NewDecoder(c.Request().Body).Decode(&doc); err != nil || !json.Valid(doc) {
		return badRequest(c, "layout data must be a JSON document")
	}
	layout := model.SeatLayout{LayoutData: doc}
	if cfg := layout.LayoutConfig(); cfg != "2x2" && cfg != "2x3" {
		return badRequest(c, `config must be "2x2" or "2x3"`)
	}
	if err := h.Layouts.SaveDesign(c.Request().Context(), id, doc); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "layout_data": doc})
}

func (h *AdminHandler) DeleteLayout(c echo.Context) error {
	return h.deleteByID(c, h.Layouts.Delete)
}

// ---- Buses ----

// CreateBus inserts the bus and generates its seats from the layout.  When
// total_seats is omitted the layout's count is used.
func (h *AdminHandler) CreateBus(c echo.Context) error {
	b := model.Bus{IsActive: true}
	if err := c.Bind(&b); err != nil {
		return badRequest(c, "invalid request body")
	}
	b.NumberPlate = strings.ToUpper(strings.TrimSpace(b.NumberPlate))
	b.BusType = strings.ToUpper(strings.TrimSpace(b.BusType))
	switch {
	case b.NumberPlate == "":
		return badRequest(c, "number_plate is required")
	case !model.ValidBusType(b.BusType):
		return badRequest(c, "bus_type must be VIP, BUSINESS, ECONOMY or MIXED")
	case b.CompanyID == 0 || b.SeatLayoutID == 0:
		return badRequest(c, "company_id and seat_layout_id are required")
	}
	ctx := c.Request().Context()
	if _, err := h.Companies.GetByID(ctx, b.CompanyID); err != nil {
		return fail(c, h.Log, err)
	}
	layout, err := h.Layouts.GetByID(ctx, b.SeatLayoutID)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if b.TotalSeats == 0 || b.TotalSeats > layout.TotalSeats {
		b.TotalSeats = layout.TotalSeats
	}
	gen := *layout
	gen.TotalSeats = b.TotalSeats
	seats := model.GenerateSeats(0, gen)
	if err := h.Buses.CreateWithSeats(ctx, &b, seats); err != nil {
		return fail(c, h.Log, err)
	}
	h.Log.Info("bus created", "bus_id", b.ID, "plate", b.NumberPlate, "seats", len(seats))
	return c.JSON(http.StatusCreated, echo.Map{"bus": b, "seats_generated": len(seats)})
}

func (h *AdminHandler) ListBuses(c echo.Context) error {
	companyID, ok := queryUint(c, "company_id")
	if !ok {
		return badRequest(c, "invalid company_id")
	}
	items, err := h.Buses.List(c.Request().Context(), companyID)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

func (h *AdminHandler) GetBus(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	b, err := h.Buses.GetByID(c.Request().Context(), id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *AdminHandler) UpdateBus(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx := c.Request().Context()
	b, err := h.Buses.GetByID(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if err := c.Bind(b); err != nil {
		return badRequest(c, "invalid request body")
	}
	b.ID = id
	b.NumberPlate = strings.ToUpper(strings.TrimSpace(b.NumberPlate))
	b.BusType = strings.ToUpper(strings.TrimSpace(b.BusType))
	if b.NumberPlate == "" || !model.ValidBusType(b.BusType) {
		return badRequest(c, "number_plate and a valid bus_type are required")
	}
	if err := h.Buses.Update(ctx, b); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *AdminHandler) DeleteBus(c echo.Context) error {
	return h.deleteByID(c, h.Buses.Delete)
}

// ---- Seats ----

// ListBusSeats handles GET /v1/admin/buses/:id/seats, inactive seats included.
func (h *AdminHandler) ListBusSeats(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx := c.Request().Context()
	if _, err := h.Buses.GetByID(ctx, id); err != nil {
		return fail(c, h.Log, err)
	}
	items, err := h.Seats.ListByBus(ctx, id, false)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// UpdateSeat changes type, class, multiplier or the active flag of a seat.
func (h *AdminHandler) UpdateSeat(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx := c.Request().Context()
	s, err := h.Seats.GetByID(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if err := c.Bind(s); err != nil {
		return badRequest(c, "invalid request body")
	}
	s.ID = id
	s.SeatType = strings.ToUpper(s.SeatType)
	s.SeatClass = strings.ToUpper(s.SeatClass)
	switch {
	case !model.ValidSeatType(s.SeatType):
		return badRequest(c, "seat_type must be WINDOW, AISLE or MIDDLE")
	case !model.ValidSeatClass(s.SeatClass):
		return badRequest(c, "seat_class must be VIP, BUSINESS or ECONOMY")
	case s.MultiplierPct == 0:
		return badRequest(c, "multiplier_pct must be positive")
	}
	if err := h.Seats.Update(ctx, s); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, s)
}

// ---- Routes ----

func validRoute(rt *model.Route) string {
	switch {
	case rt.OriginID == 0 || rt.DestinationID == 0:
		return "origin_id and destination_id are required"
	case rt.OriginID == rt.DestinationID:
		return "origin and destination must differ"
	}
	return ""
}

func (h *AdminHandler) CreateRoute(c echo.Context) error {
	rt := model.Route{IsActive: true}
	if err := c.Bind(&rt); err != nil {
		return badRequest(c, "invalid request body")
	}
	if msg := validRoute(&rt); msg != "" {
		return badRequest(c, msg)
	}
	if err := h.Routes.Create(c.Request().Context(), &rt); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, rt)
}

func (h *AdminHandler) ListRoutes(c echo.Context) error {
	items, err := h.Routes.List(c.Request().Context())
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

func (h *AdminHandler) GetRoute(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	rt, err := h.Routes.GetByID(c.Request().Context(), id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, rt)
}

func (h *AdminHandler) UpdateRoute(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx := c.Request().Context()
	rt, err := h.Routes.GetByID(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if err := c.Bind(rt); err != nil {
		return badRequest(c, "invalid request body")
	}
	rt.ID = id
	if msg := validRoute(rt); msg != "" {
		return badRequest(c, msg)
	}
	if err := h.Routes.Update(ctx, rt); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, rt)
}

func (h *AdminHandler) DeleteRoute(c echo.Context) error {
	return h.deleteByID(c, h.Routes.Delete)
}

// AddRouteStop handles POST /v1/admin/routes/:id/stops.
func (h *AdminHandler) AddRouteStop(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var s model.RouteStop
	if err := c.Bind(&s); err != nil {
		return badRequest(c, "invalid request body")
	}
	s.RouteID = id
	if s.LocationID == 0 || s.StopOrder == 0 {
		return badRequest(c, "location_id and stop_order are required")
	}
	ctx := c.Request().Context()
	rt, err := h.Routes.GetByID(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if s.LocationID == rt.OriginID || s.LocationID == rt.DestinationID {
		return badRequest(c, "a stop cannot be the route origin or destination")
	}
	if rt.DistanceKM > 0 && s.DistanceFromOrigin >= rt.DistanceKM {
		return badRequest(c, "distance_from_origin must be less than the route distance")
	}
	if err := h.Routes.AddStop(ctx, &s); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, s)
}

func (h *AdminHandler) DeleteRouteStop(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	stopID, ok := paramID(c, "stop_id")
	if !ok {
		return badRequest(c, "invalid stop id")
	}
	if err := h.Routes.DeleteStop(c.Request().Context(), id, stopID); err != nil {
		return fail(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
