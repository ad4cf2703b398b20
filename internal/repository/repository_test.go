package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/bus-ticket-booking/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var bookingColumns = []string{"id", "booking_id", "trip_id", "status", "passenger_name", "passenger_email",
	"passenger_phone", "passenger_id_number", "passenger_age", "is_kenyan", "pickup_location_id",
	"dropoff_location_id", "total_amount_cents", "mpesa_transaction_id", "payment_phone", "paid_at",
	"expires_at", "created_at", "updated_at"}

func TestMapWriteErr(t *testing.T) {
	assert.ErrorIs(t, mapWriteErr(&mysql.MySQLError{Number: 1062}), ErrDuplicate)
	assert.ErrorIs(t, mapWriteErr(&mysql.MySQLError{Number: 1451}), ErrConflict)
	other := errors.New("x")
	assert.Equal(t, other, mapWriteErr(other))
	assert.Equal(t, "?, ?, ?", placeholders(3))
	assert.Equal(t, "", placeholders(0))
}

func TestAutocompleteLowercasesTerm(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM locations WHERE is_active = 1 AND LOWER(name) LIKE ? ORDER BY name LIMIT ?")).
		WithArgs("%nai%", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "code", "county", "is_active", "created_at", "updated_at"}).
			AddRow(1, "Nairobi", "NBI", "Nairobi", true, now, now).
			AddRow(7, "Naivasha", "NVS", "Nakuru", true, now, now))

	locs, err := NewLocationRepo(db).Autocomplete(context.Background(), " NAI ", 0)
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, "Nairobi", locs[0].Name)
	assert.Equal(t, uint64(7), locs[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocationDeleteReferenced(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("DELETE FROM locations").WithArgs(3).
		WillReturnError(&mysql.MySQLError{Number: 1451, Message: "a foreign key constraint fails"})
	err := NewLocationRepo(db).Delete(context.Background(), 3)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHoldTxOnlyTouchesReservableRows(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	until := now.Add(5 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE trip_seat_availability SET reserved_until = ?, hold_token = ?, booking_id = NULL")).
		WithArgs(until, "tok", 9, 11, 12, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)
	n, err := NewAvailabilityRepo(db).HoldTx(context.Background(), tx, 9, []uint64{11, 12}, "tok", until, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockSeatsTxScansNullableColumns(t *testing.T) {
	db, mock := newMock(t)
	until := time.Date(2025, 5, 1, 8, 5, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM trip_seat_availability WHERE trip_id = ? AND seat_id IN (?, ?) ORDER BY seat_id FOR UPDATE")).
		WithArgs(4, 1, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "trip_id", "seat_id", "is_available", "reserved_until", "hold_token", "booking_id"}).
			AddRow(100, 4, 1, true, nil, nil, nil).
			AddRow(101, 4, 2, true, until, "abc", 55))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)
	rows, err := NewAvailabilityRepo(db).LockSeatsTx(context.Background(), tx, 4, []uint64{1, 2})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.Len(t, rows, 2)
	assert.Nil(t, rows[0].ReservedUntil)
	assert.Nil(t, rows[0].BookingID)
	assert.Equal(t, "", rows[0].HoldToken)
	require.NotNil(t, rows[1].ReservedUntil)
	assert.True(t, rows[1].ReservedUntil.Equal(until))
	assert.Equal(t, "abc", rows[1].HoldToken)
	require.NotNil(t, rows[1].BookingID)
	assert.Equal(t, uint64(55), *rows[1].BookingID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOccupancyRate(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT").WithArgs(2, now, 8).
		WillReturnRows(sqlmock.NewRows([]string{"total", "unavailable", "held"}).AddRow(40, 13, 2))
	o, err := NewAvailabilityRepo(db).Occupancy(context.Background(), 8, 2, now)
	require.NoError(t, err)
	assert.Equal(t, int64(40), o.TotalSeats)
	assert.Equal(t, int64(13), o.Unavailable)
	assert.Equal(t, int64(2), o.Held)
	assert.InDelta(t, 32.5, o.Rate, 0.0001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByCodeUppercasesAndScans(t *testing.T) {
	db, mock := newMock(t)
	created := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM bookings WHERE booking_id = ?")).
		WithArgs("AB12CD34-EF5").
		WillReturnRows(sqlmock.NewRows(bookingColumns).AddRow(
			3, "AB12CD34-EF5", 9, "PENDING", "Wanjiku", "w@example.com", "0712345678",
			"12345678", 30, true, 1, nil, 250000, nil, "0712345678", nil,
			created.Add(5*time.Minute), created, created))

	b, err := NewBookingRepo(db).GetByCode(context.Background(), "ab12cd34-ef5")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), b.ID)
	assert.Equal(t, "Wanjiku", b.Passenger.Name)
	assert.Equal(t, uint32(30), b.Passenger.Age)
	require.NotNil(t, b.PickupLocationID)
	assert.Equal(t, uint64(1), *b.PickupLocationID)
	assert.Nil(t, b.DropoffLocationID)
	assert.Nil(t, b.PaidAt)
	assert.Equal(t, "", b.MpesaTransactionID)
	assert.Equal(t, uint64(250000), b.TotalAmountCents)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByCodeNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("FROM bookings").WillReturnRows(sqlmock.NewRows(bookingColumns))
	_, err := NewBookingRepo(db).GetByCode(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestExpireTxGuardsOnStatusAndDeadline(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET status = 'EXPIRED' WHERE id IN (?, ?) AND status = 'PENDING' AND expires_at <= ?")).
		WithArgs(1, 2, now).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)
	n, err := NewBookingRepo(db).ExpireTx(context.Background(), tx, []uint64{1, 2}, now)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingListFilters(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = ? AND (booking_id = ? OR LOWER(passenger_name) LIKE ? OR LOWER(passenger_email) LIKE ?) ORDER BY created_at DESC LIMIT ? OFFSET ?")).
		WithArgs("PENDING", "OTIENO", "%otieno%", "%otieno%", 50, 0).
		WillReturnRows(sqlmock.NewRows(bookingColumns))
	out, err := NewBookingRepo(db).List(context.Background(), BookingFilter{Status: "PENDING", Search: "Otieno"})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingListStatusFollowsExpiry(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE (status = ? AND expires_at > ?) ORDER BY")).
		WithArgs("PENDING", now, 50, 0).
		WillReturnRows(sqlmock.NewRows(bookingColumns))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE (status = ? OR (status = ? AND expires_at <= ?)) AND trip_id = ? ORDER BY")).
		WithArgs("EXPIRED", "PENDING", now, uint64(7), 50, 0).
		WillReturnRows(sqlmock.NewRows(bookingColumns))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = ? ORDER BY")).
		WithArgs("CONFIRMED", 50, 0).
		WillReturnRows(sqlmock.NewRows(bookingColumns))

	repo := NewBookingRepo(db)
	ctx := context.Background()
	_, err := repo.List(ctx, BookingFilter{Status: "PENDING", Now: now})
	require.NoError(t, err)
	_, err = repo.List(ctx, BookingFilter{Status: "EXPIRED", TripID: 7, Now: now})
	require.NoError(t, err)
	_, err = repo.List(ctx, BookingFilter{Status: "CONFIRMED", Now: now})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchBindsOriginForDirectAndStop(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2025, 5, 1, 5, 0, 0, 0, time.UTC)
	dayStart := time.Date(2025, 4, 30, 21, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)
	dep := time.Date(2025, 5, 1, 6, 0, 0, 0, time.UTC)

	cols := []string{"id", "bus_id", "route_id", "departure_time", "arrival_time", "base_price_cents", "status",
		"created_at", "updated_at", "origin", "destination", "company_id", "company_name", "number_plate",
		"bus_type", "total_seats", "distance_km", "available_seats", "via_stop"}
	mock.ExpectQuery("EXISTS").
		WithArgs(now, 1, dayStart, dayEnd, now, 2, 1, 1).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(5, 3, 4, dep, dep.Add(8*time.Hour), 150000, "SCHEDULED", now, now,
				"Nairobi", "Mombasa", 1, "Easy Coach", "KAA 123A", "VIP", 28, 484, 26, false).
			AddRow(6, 3, 7, dep, dep.Add(9*time.Hour), 120000, "SCHEDULED", now, now,
				"Thika", "Mombasa", 1, "Easy Coach", "KAA 123A", "VIP", 28, 520, 28, true))

	res, err := NewTripRepo(db).Search(context.Background(), TripSearchQuery{
		OriginID: 1, DestinationID: 2, DayStart: dayStart, DayEnd: dayEnd, Now: now,
	})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.False(t, res[0].ViaStop)
	assert.Equal(t, uint32(26), res[0].AvailableSeats)
	assert.Equal(t, "Easy Coach", res[0].CompanyName)
	assert.True(t, res[1].ViaStop)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithSeatsRollsBackOnSeatFailure(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO buses").WillReturnResult(sqlmock.NewResult(12, 1))
	mock.ExpectExec("INSERT INTO seats").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	seats := []model.Seat{{SeatNumber: "01A"}, {SeatNumber: "01B"}}
	bus := &model.Bus{CompanyID: 1, NumberPlate: "KBL 100A", BusType: "VIP", SeatLayoutID: 2, TotalSeats: 2}
	err := NewBusRepo(db, NewSeatRepo(db)).CreateWithSeats(context.Background(), bus, seats)
	require.Error(t, err)
	assert.Equal(t, uint64(12), seats[0].BusID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRotateRejectsRevoked(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE refresh_tokens SET revoked_at").WithArgs("old", 4).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := NewTokenRepo(db).Rotate(context.Background(), 4, "old", "new", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrTokenInvalid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenLookupExpired(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM refresh_tokens").WithArgs("h").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "revoked_at", "created_at"}).
			AddRow(1, 4, "h", now.Add(-time.Minute), nil, now.Add(-time.Hour)))
	_, err := NewTokenRepo(db).Lookup(context.Background(), "h", now)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
