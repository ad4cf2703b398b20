package repository

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/iliyamo/bus-ticket-booking/internal/model"
)

// AvailabilityRepo owns the trip_seat_availability ledger.  Rows are created
// lazily the first time a trip's seats are looked at; every state change is
// a conditional UPDATE so a stale read can never overwrite a newer hold.
type AvailabilityRepo struct {
	db *sql.DB
}

func NewAvailabilityRepo(db *sql.DB) *AvailabilityRepo { return &AvailabilityRepo{db: db} }

const availabilityCols = "id, trip_id, seat_id, is_available, reserved_until, hold_token, booking_id"

const ensureLedgerSQL = `INSERT IGNORE INTO trip_seat_availability (trip_id, seat_id, is_available)
SELECT ?, s.id, 1 FROM seats s WHERE s.bus_id = ? AND s.is_active = 1`

func scanAvailability(s interface{ Scan(...interface{}) error }, a *model.TripSeatAvailability) error {
	var (
		until   sql.NullTime
		token   sql.NullString
		booking sql.NullInt64
	)
	if err := s.Scan(&a.ID, &a.TripID, &a.SeatID, &a.IsAvailable, &until, &token, &booking); err != nil {
		return err
	}
	a.ReservedUntil = nil
	if until.Valid {
		t := until.Time.UTC()
		a.ReservedUntil = &t
	}
	a.HoldToken = token.String
	a.BookingID = nil
	if booking.Valid {
		id := uint64(booking.Int64)
		a.BookingID = &id
	}
	return nil
}

// EnsureForTrip creates the missing ledger rows for every active seat of the
// trip's bus.  Existing rows are left untouched.
func (r *AvailabilityRepo) EnsureForTrip(ctx context.Context, tripID, busID uint64) error {
	_, err := r.db.ExecContext(ctx, ensureLedgerSQL, tripID, busID)
	return err
}

func (r *AvailabilityRepo) EnsureForTripTx(ctx context.Context, tx *sql.Tx, tripID, busID uint64) error {
	_, err := tx.ExecContext(ctx, ensureLedgerSQL, tripID, busID)
	return err
}

// ListByTrip returns the ledger of a trip keyed by nothing in particular;
// callers index it by SeatID.
func (r *AvailabilityRepo) ListByTrip(ctx context.Context, tripID uint64) ([]model.TripSeatAvailability, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+availabilityCols+" FROM trip_seat_availability WHERE trip_id = ? ORDER BY seat_id", tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAvailability(rows)
}

// LockSeatsTx reads the ledger rows of the requested seats FOR UPDATE.
func (r *AvailabilityRepo) LockSeatsTx(ctx context.Context, tx *sql.Tx, tripID uint64, seatIDs []uint64) ([]model.TripSeatAvailability, error) {
	if len(seatIDs) == 0 {
		return []model.TripSeatAvailability{}, nil
	}
	args := append([]interface{}{tripID}, uint64Args(seatIDs)...)
	rows, err := tx.QueryContext(ctx,
		"SELECT "+availabilityCols+" FROM trip_seat_availability WHERE trip_id = ? AND seat_id IN ("+placeholders(len(seatIDs))+") ORDER BY seat_id FOR UPDATE",
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAvailability(rows)
}

func collectAvailability(rows *sql.Rows) ([]model.TripSeatAvailability, error) {
	out := []model.TripSeatAvailability{}
	for rows.Next() {
		var a model.TripSeatAvailability
		if err := scanAvailability(rows, &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// HoldTx marks seats held until the given time under a fresh token.  Only
// reservable rows are touched; the caller compares the affected count with
// the number of seats requested.  Taking over a lapsed hold also drops the
// link to the booking that owned it.
func (r *AvailabilityRepo) HoldTx(ctx context.Context, tx *sql.Tx, tripID uint64, seatIDs []uint64, token string, until, now time.Time) (int64, error) {
	if len(seatIDs) == 0 {
		return 0, nil
	}
	args := []interface{}{until.UTC(), token, tripID}
	args = append(args, uint64Args(seatIDs)...)
	args = append(args, now.UTC())
	res, err := tx.ExecContext(ctx,
		`UPDATE trip_seat_availability SET reserved_until = ?, hold_token = ?, booking_id = NULL
		 WHERE trip_id = ? AND seat_id IN (`+placeholders(len(seatIDs))+`)
		   AND is_available = 1 AND (reserved_until IS NULL OR reserved_until <= ?)`,
		args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// AttachBookingTx links seats to a pending booking and extends their hold to
// the booking's payment deadline.
func (r *AvailabilityRepo) AttachBookingTx(ctx context.Context, tx *sql.Tx, tripID uint64, seatIDs []uint64, bookingID uint64, until time.Time) (int64, error) {
	if len(seatIDs) == 0 {
		return 0, nil
	}
	args := []interface{}{bookingID, until.UTC(), tripID}
	args = append(args, uint64Args(seatIDs)...)
	res, err := tx.ExecContext(ctx,
		`UPDATE trip_seat_availability SET booking_id = ?, reserved_until = ?, hold_token = NULL
		 WHERE trip_id = ? AND seat_id IN (`+placeholders(len(seatIDs))+`) AND is_available = 1`,
		args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// FinalizeBookingsTx turns the seats of paid bookings into sold seats.
func (r *AvailabilityRepo) FinalizeBookingsTx(ctx context.Context, tx *sql.Tx, bookingIDs []uint64) (int64, error) {
	if len(bookingIDs) == 0 {
		return 0, nil
	}
	res, err := tx.ExecContext(ctx,
		"UPDATE trip_seat_availability SET is_available = 0, reserved_until = NULL, hold_token = NULL WHERE booking_id IN ("+placeholders(len(bookingIDs))+")",
		uint64Args(bookingIDs)...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ReleaseBookingsTx returns the seats of expired or cancelled bookings to the
// pool.
func (r *AvailabilityRepo) ReleaseBookingsTx(ctx context.Context, tx *sql.Tx, bookingIDs []uint64) (int64, error) {
	if len(bookingIDs) == 0 {
		return 0, nil
	}
	res, err := tx.ExecContext(ctx,
		"UPDATE trip_seat_availability SET is_available = 1, reserved_until = NULL, hold_token = NULL, booking_id = NULL WHERE booking_id IN ("+placeholders(len(bookingIDs))+")",
		uint64Args(bookingIDs)...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const staleHoldWhere = "booking_id IS NULL AND is_available = 1 AND reserved_until IS NOT NULL AND reserved_until <= ?"

// ClearStaleHolds wipes lapsed holds that never became bookings.  Lapsed
// holds are already reservable; this only tidies the ledger.
func (r *AvailabilityRepo) ClearStaleHolds(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE trip_seat_availability SET reserved_until = NULL, hold_token = NULL WHERE "+staleHoldWhere, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *AvailabilityRepo) CountStaleHolds(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trip_seat_availability WHERE "+staleHoldWhere, now.UTC()).Scan(&n)
	return n, err
}

// Occupancy is the seat usage of one trip.
type Occupancy struct {
	TotalSeats  int64   `json:"total_seats"`
	Unavailable int64   `json:"unavailable"`
	Held        int64   `json:"held"`
	Rate        float64 `json:"occupancy_rate"`
}

// Occupancy counts sold and held seats against the bus's active seats.  The
// rate is the sold share as a percentage with one decimal.
func (r *AvailabilityRepo) Occupancy(ctx context.Context, tripID, busID uint64, now time.Time) (Occupancy, error) {
	var o Occupancy
	err := r.db.QueryRowContext(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM seats WHERE bus_id = ? AND is_active = 1),
		   COALESCE(SUM(is_available = 0), 0),
		   COALESCE(SUM(is_available = 1 AND reserved_until > ?), 0)
		 FROM trip_seat_availability WHERE trip_id = ?`,
		busID, now.UTC(), tripID).Scan(&o.TotalSeats, &o.Unavailable, &o.Held)
	if err != nil {
		return o, err
	}
	if o.TotalSeats > 0 {
		o.Rate = math.Round(float64(o.Unavailable)*1000/float64(o.TotalSeats)) / 10
	}
	return o, nil
}
