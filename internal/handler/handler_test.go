package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/bus-ticket-booking/internal/config"
	"github.com/iliyamo/bus-ticket-booking/internal/maintenance"
	"github.com/iliyamo/bus-ticket-booking/internal/model"
	"github.com/iliyamo/bus-ticket-booking/internal/repository"
	"github.com/iliyamo/bus-ticket-booking/internal/service"
	"github.com/iliyamo/bus-ticket-booking/internal/utils"
)

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

var (
	tripColumns    = []string{"id", "bus_id", "route_id", "departure_time", "arrival_time", "base_price_cents", "status", "created_at", "updated_at"}
	seatColumns    = []string{"id", "bus_id", "seat_number", "seat_type", "seat_class", "seat_row", "seat_col", "price_multiplier_pct", "is_active"}
	ledgerColumns  = []string{"id", "trip_id", "seat_id", "is_available", "reserved_until", "hold_token", "booking_id"}
	bookingColumns = []string{"id", "booking_id", "trip_id", "status", "passenger_name", "passenger_email", "passenger_phone",
		"passenger_id_number", "passenger_age", "is_kenyan", "pickup_location_id", "dropoff_location_id", "total_amount_cents",
		"mpesa_transaction_id", "payment_phone", "paid_at", "expires_at", "created_at", "updated_at"}
	bookingSeatColumns = []string{"booking_id", "seat_id", "seat_number", "seat_class", "price_cents"}
	userColumns        = []string{"id", "email", "password_hash", "role", "is_active", "created_at", "updated_at"}
)

func quietLog() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fixture struct {
	e       *echo.Echo
	mock    sqlmock.Sqlmock
	db      *sql.DB
	svc     *service.BookingService
	booking *BookingHandler
	public  *PublicHandler
	admin   *AdminHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	seats := repository.NewSeatRepo(db)
	trips := repository.NewTripRepo(db)
	ledger := repository.NewAvailabilityRepo(db)
	bookings := repository.NewBookingRepo(db)
	svc := service.NewBookingService(db, trips, seats, ledger, bookings, config.BookingConfig{
		HoldTTL: 5 * time.Minute, PaymentTTL: 5 * time.Minute, Timezone: "Africa/Nairobi", Currency: "KSh",
	}, nil)
	svc.Now = func() time.Time { return testNow }
	svc.Log = quietLog()

	f := &fixture{e: echo.New(), mock: mock, db: db, svc: svc}
	f.booking = NewBookingHandler(svc, config.LoadCompany(), quietLog())
	f.public = NewPublicHandler(svc, repository.NewLocationRepo(db), quietLog())
	f.admin = &AdminHandler{
		Locations: repository.NewLocationRepo(db),
		Companies: repository.NewCompanyRepo(db),
		Layouts:   repository.NewSeatLayoutRepo(db),
		Buses:     repository.NewBusRepo(db, seats),
		Seats:     seats,
		Routes:    repository.NewRouteRepo(db),
		Trips:     trips,
		Ledger:    ledger,
		Bookings:  bookings,
		Svc:       svc,
		Log:       quietLog(),
	}
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func bookingRow(status string, expires time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(bookingColumns).AddRow(5, "ABCDEF12-345", 7, status, "Jane Wanjiru", "jane@example.com", "254712345678",
		"12345678", 30, true, nil, nil, 210000, nil, "254712345678", nil, expires, testNow.Add(-2*time.Minute), testNow.Add(-2*time.Minute))
}

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{&service.ValidationError{Field: "date", Msg: "is in the past"}, http.StatusBadRequest},
		{&service.SeatsUnavailableError{SeatIDs: []uint64{3}}, http.StatusConflict},
		{service.ErrNoSeats, http.StatusBadRequest},
		{service.ErrBookingExpired, http.StatusGone},
		{service.ErrNotConfirmed, http.StatusConflict},
		{service.ErrTripNotBookable, http.StatusConflict},
		{repository.ErrTripNotFound, http.StatusNotFound},
		{repository.ErrDuplicate, http.StatusConflict},
		{repository.ErrConflict, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		code, body := errorStatus(tc.err)
		assert.Equal(t, tc.code, code, tc.err.Error())
		assert.NotEmpty(t, body["error"])
	}
	_, body := errorStatus(errors.New("dial tcp 10.0.0.1: secret detail"))
	assert.Equal(t, "internal error", body["error"])
}

func TestReserveConflictListsSeats(t *testing.T) {
	f := newFixture(t)
	f.e.POST("/v1/trips/:id/reserve", f.booking.Reserve)

	f.mock.ExpectBegin()
	f.mock.ExpectQuery(`FROM trips t WHERE t.id = \? LOCK IN SHARE MODE`).WithArgs(7).
		WillReturnRows(sqlmock.NewRows(tripColumns).
			AddRow(7, 3, 2, testNow.Add(24*time.Hour), testNow.Add(30*time.Hour), 100000, model.TripScheduled, testNow, testNow))
	f.mock.ExpectQuery(`FROM seats WHERE bus_id = \? AND is_active = 1 AND id IN`).WithArgs(3, 11, 12).
		WillReturnRows(sqlmock.NewRows(seatColumns).
			AddRow(11, 3, "01A", model.SeatTypeWindow, model.SeatClassEconomy, 1, 1, 110, true).
			AddRow(12, 3, "01B", model.SeatTypeAisle, model.SeatClassEconomy, 1, 2, 100, true))
	f.mock.ExpectExec("INSERT IGNORE INTO trip_seat_availability").WithArgs(7, 3).
		WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectQuery("FOR UPDATE").WithArgs(7, 11, 12).
		WillReturnRows(sqlmock.NewRows(ledgerColumns).
			AddRow(1, 7, 11, true, nil, nil, nil).
			AddRow(2, 7, 12, false, nil, nil, 9))
	f.mock.ExpectRollback()

	rec := f.do(http.MethodPost, "/v1/trips/7/reserve", `{"seat_ids":[11,12]}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, []any{float64(12)}, body["unavailable_seats"])
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestReserveRejectsBadTripID(t *testing.T) {
	f := newFixture(t)
	f.e.POST("/v1/trips/:id/reserve", f.booking.Reserve)
	rec := f.do(http.MethodPost, "/v1/trips/abc/reserve", `{"seat_ids":[1]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBookingShowsCountdown(t *testing.T) {
	f := newFixture(t)
	f.e.GET("/v1/bookings/:booking_id", f.booking.Get)
	f.mock.ExpectQuery(`FROM bookings WHERE booking_id = \?`).WithArgs("ABCDEF12-345").
		WillReturnRows(bookingRow(model.BookingPending, testNow.Add(3*time.Minute)))
	f.mock.ExpectQuery("FROM booking_seats bs").WithArgs(5).
		WillReturnRows(sqlmock.NewRows(bookingSeatColumns).AddRow(5, 11, "01A", "ECONOMY", 110000))

	rec := f.do(http.MethodGet, "/v1/bookings/abcdef12-345", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, model.BookingPending, body["status"])
	assert.Equal(t, float64(180), body["seconds_left"])
	assert.Equal(t, "KSh 2,100.00", body["total_formatted"])
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGetBookingNotFound(t *testing.T) {
	f := newFixture(t)
	f.e.GET("/v1/bookings/:booking_id", f.booking.Get)
	f.mock.ExpectQuery(`FROM bookings WHERE booking_id = \?`).WillReturnError(sql.ErrNoRows)
	rec := f.do(http.MethodGet, "/v1/bookings/NOPE", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPayExpiredBookingIsGone(t *testing.T) {
	f := newFixture(t)
	f.e.POST("/v1/bookings/:booking_id/pay", f.booking.Pay)
	f.mock.ExpectBegin()
	f.mock.ExpectQuery("FOR UPDATE").WillReturnRows(bookingRow(model.BookingPending, testNow.Add(-time.Minute)))
	f.mock.ExpectExec("UPDATE bookings SET status = 'EXPIRED'").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("UPDATE trip_seat_availability SET is_available = 1").WillReturnResult(sqlmock.NewResult(0, 2))
	f.mock.ExpectCommit()

	rec := f.do(http.MethodPost, "/v1/bookings/ABCDEF12-345/pay", "")
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPayAlreadyConfirmedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.e.POST("/v1/bookings/:booking_id/pay", f.booking.Pay)
	f.mock.ExpectBegin()
	f.mock.ExpectQuery("FOR UPDATE").WillReturnRows(sqlmock.NewRows(bookingColumns).
		AddRow(5, "ABCDEF12-345", 7, model.BookingConfirmed, "Jane", "jane@example.com", "254712345678", "1", 30, true,
			nil, nil, 210000, "MPesa0123456789", "254712345678", testNow, testNow, testNow, testNow))
	f.mock.ExpectQuery("FROM booking_seats bs").WillReturnRows(sqlmock.NewRows(bookingSeatColumns))
	f.mock.ExpectRollback()

	rec := f.do(http.MethodPost, "/v1/bookings/ABCDEF12-345/pay", `{"phone":""}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["already_paid"])
	assert.Equal(t, "MPesa0123456789", body["mpesa_transaction_id"])
}

func TestConfirmationRequiresPayment(t *testing.T) {
	f := newFixture(t)
	f.e.GET("/v1/bookings/:booking_id/receipt.pdf", f.booking.Receipt)
	f.mock.ExpectQuery(`FROM bookings WHERE booking_id = \?`).
		WillReturnRows(bookingRow(model.BookingPending, testNow.Add(time.Minute)))
	f.mock.ExpectQuery("FROM booking_seats bs").WillReturnRows(sqlmock.NewRows(bookingSeatColumns))

	rec := f.do(http.MethodGet, "/v1/bookings/ABCDEF12-345/receipt.pdf", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAutocompleteShortTermSkipsDatabase(t *testing.T) {
	f := newFixture(t)
	f.e.GET("/v1/locations/autocomplete", f.public.Autocomplete)
	rec := f.do(http.MethodGet, "/v1/locations/autocomplete?q=n", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSearchValidatesInput(t *testing.T) {
	f := newFixture(t)
	f.e.GET("/v1/trips/search", f.public.SearchTrips)

	rec := f.do(http.MethodGet, "/v1/trips/search?from=1&to=2&date=10-03-2025", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "date", decode(t, rec)["field"])

	rec = f.do(http.MethodGet, "/v1/trips/search?from=x&to=2&date=2025-03-10", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/v1/trips/search?from=1&to=1&date=2025-03-10", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "to", decode(t, rec)["field"])
}

func TestCreateLocation(t *testing.T) {
	f := newFixture(t)
	f.e.POST("/v1/admin/locations", f.admin.CreateLocation)

	rec := f.do(http.MethodPost, "/v1/admin/locations", `{"name":"Nairobi","code":"WAYTOOLONGCODE"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.mock.ExpectExec("INSERT INTO locations").WithArgs("Nairobi", "NBO", "Nairobi County", true).
		WillReturnResult(sqlmock.NewResult(4, 1))
	f.mock.ExpectQuery(`FROM locations WHERE id = \?`).WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "code", "county", "is_active", "created_at", "updated_at"}).
			AddRow(4, "Nairobi", "NBO", "Nairobi County", true, testNow, testNow))
	rec = f.do(http.MethodPost, "/v1/admin/locations", `{"name":" Nairobi ","code":"nbo","county":"Nairobi County"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, float64(4), decode(t, rec)["id"])
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateLayoutNeedsKnownConfig(t *testing.T) {
	f := newFixture(t)
	f.e.POST("/v1/admin/layouts", f.admin.CreateLayout)
	rec := f.do(http.MethodPost, "/v1/admin/layouts",
		`{"name":"Std","seat_class":"economy","total_seats":40,"rows":10,"columns":4,"layout_data":{"config":"3x3"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTripRequestValidation(t *testing.T) {
	dep := testNow.Add(24 * time.Hour)
	arr := dep.Add(-time.Hour)
	var trip model.Trip
	busID, routeID := uint64(1), uint64(2)
	msg := tripReq{BusID: &busID, RouteID: &routeID, DepartureTime: &dep, ArrivalTime: &arr, BasePrice: "1,500"}.apply(&trip)
	assert.Equal(t, "arrival_time must be after departure_time", msg)

	arr = dep.Add(6 * time.Hour)
	trip = model.Trip{Status: model.TripScheduled}
	msg = tripReq{BusID: &busID, RouteID: &routeID, DepartureTime: &dep, ArrivalTime: &arr, BasePrice: "1,500.50"}.apply(&trip)
	assert.Empty(t, msg)
	assert.Equal(t, uint64(150050), trip.BasePriceCents)

	msg = tripReq{BasePrice: "184467440737095517"}.apply(&trip)
	assert.Equal(t, "invalid base_price", msg)
	huge := uint64(1) << 40
	msg = tripReq{BasePriceCents: &huge}.apply(&trip)
	assert.Equal(t, "base price too large", msg)
	trip.BasePriceCents = 150050

	msg = tripReq{Status: "parked"}.apply(&trip)
	assert.Equal(t, "invalid status", msg)
}

func TestBulkBookingsRejectsUnknownAction(t *testing.T) {
	f := newFixture(t)
	f.e.POST("/v1/admin/bookings/bulk", f.admin.BulkBookings)
	rec := f.do(http.MethodPost, "/v1/admin/bookings/bulk", `{"action":"refund","ids":[1]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(http.MethodPost, "/v1/admin/bookings/bulk", `{"action":"cancel","ids":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	hash, err := utils.HashPassword("s3cret-pass", 4)
	require.NoError(t, err)

	h := NewAuthHandler(config.Config{JWTSecret: "test-secret", AccessTTLMin: 15, RefreshTTLDays: 7},
		repository.NewUserRepo(db), repository.NewTokenRepo(db), quietLog())
	e := echo.New()
	e.POST("/v1/admin/auth/login", h.Login)
	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/admin/auth/login", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	mock.ExpectQuery("FROM users WHERE email=").WithArgs("admin@dreamline.test").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(1, "admin@dreamline.test", hash, model.RoleAdmin, true, testNow, testNow))
	assert.Equal(t, http.StatusUnauthorized, post(`{"email":"Admin@DreamLine.test","password":"wrong"}`).Code)

	mock.ExpectQuery("FROM users WHERE email=").WithArgs("admin@dreamline.test").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(1, "admin@dreamline.test", hash, model.RoleAdmin, true, testNow, testNow))
	mock.ExpectExec("INSERT INTO refresh_tokens").WithArgs(1, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	rec := post(`{"email":"admin@dreamline.test","password":"s3cret-pass"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp authResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	claims, err := utils.ParseAccessToken("test-secret", resp.Access.Token)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, claims.Role)
	assert.Len(t, resp.Refresh.Token, 96)

	mock.ExpectQuery("FROM users WHERE email=").WillReturnError(sql.ErrNoRows)
	assert.Equal(t, http.StatusUnauthorized, post(`{"email":"ghost@dreamline.test","password":"x"}`).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaintenanceToggle(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	h := &MaintenanceHandler{Store: maintenance.NewStore(rdb)}

	e := echo.New()
	e.GET("/m", h.Status)
	e.POST("/m/on", h.Enable)
	e.POST("/m/off", h.Disable)
	call := func(method, target, body string) map[string]any {
		var r io.Reader
		if body != "" {
			r = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, target, r)
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decode(t, rec)
	}

	assert.Equal(t, false, call(http.MethodGet, "/m", "")["enabled"])
	on := call(http.MethodPost, "/m/on", `{"duration_minutes":10,"message":"Upgrading"}`)
	assert.Equal(t, true, on["enabled"])
	assert.Equal(t, "Upgrading", on["message"])
	assert.Equal(t, "10 minutes", on["eta"])
	assert.True(t, mr.Exists(maintenance.KeyMode))
	call(http.MethodPost, "/m/off", "")
	assert.False(t, mr.Exists(maintenance.KeyMode))
}

func TestTripSeatsAnswersSeatMap(t *testing.T) {
	f := newFixture(t)
	f.e.GET("/v1/trips/:id/seats", f.public.TripSeats)
	detail := append(append([]string{}, tripColumns...),
		"origin", "destination", "company_id", "company_name", "number_plate", "bus_type", "total_seats", "distance_km")
	f.mock.ExpectQuery(`WHERE t.id = \?`).WithArgs(7).
		WillReturnRows(sqlmock.NewRows(detail).
			AddRow(7, 3, 2, testNow.Add(24*time.Hour), testNow.Add(30*time.Hour), 100000, model.TripScheduled, testNow, testNow,
				"Nairobi", "Mombasa", 1, "Coast Express", "KDA 123A", model.BusTypeVIP, 2, 484))
	f.mock.ExpectExec("INSERT IGNORE INTO trip_seat_availability").WithArgs(7, 3).
		WillReturnResult(sqlmock.NewResult(0, 2))
	f.mock.ExpectQuery("FROM seats WHERE bus_id = ").WithArgs(3).
		WillReturnRows(sqlmock.NewRows(seatColumns).
			AddRow(11, 3, "01A", model.SeatTypeWindow, model.SeatClassVIP, 1, 1, 160, true).
			AddRow(12, 3, "01B", model.SeatTypeAisle, model.SeatClassVIP, 1, 2, 150, true))
	f.mock.ExpectQuery("FROM trip_seat_availability WHERE trip_id = ").WithArgs(7).
		WillReturnRows(sqlmock.NewRows(ledgerColumns).
			AddRow(1, 7, 11, true, nil, nil, nil).
			AddRow(2, 7, 12, false, nil, nil, 5))

	rec := f.do(http.MethodGet, "/v1/trips/7/seats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Available int `json:"available"`
		Seats     []struct {
			SeatNumber string `json:"seat_number"`
			Status     string `json:"status"`
			PriceCents uint64 `json:"price_cents"`
		} `json:"seats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Available)
	require.Len(t, body.Seats, 2)
	assert.Equal(t, model.SeatAvailable, body.Seats[0].Status)
	assert.Equal(t, uint64(160000), body.Seats[0].PriceCents)
	assert.Equal(t, model.SeatBooked, body.Seats[1].Status)
	assert.NoError(t, f.mock.ExpectationsWereMet())

	f.mock.ExpectQuery(`WHERE t.id = \?`).WithArgs(99).WillReturnError(sql.ErrNoRows)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/v1/trips/99/seats", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/v1/trips/x/seats", "").Code)
}
