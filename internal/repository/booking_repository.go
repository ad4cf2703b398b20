package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/bus-ticket-booking/internal/model"
)

// BookingRepo provides persistence for bookings and booking_seats.  All
// timestamps are stored in UTC.
type BookingRepo struct {
	db *sql.DB
}

func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

func (r *BookingRepo) DB() *sql.DB { return r.db }

const bookingCols = `id, booking_id, trip_id, status, passenger_name, passenger_email, passenger_phone,
passenger_id_number, passenger_age, is_kenyan, pickup_location_id, dropoff_location_id, total_amount_cents,
mpesa_transaction_id, payment_phone, paid_at, expires_at, created_at, updated_at`

func scanBooking(s interface{ Scan(...interface{}) error }, b *model.Booking) error {
	var (
		pickup, dropoff sql.NullInt64
		txnID, payPhone sql.NullString
		paidAt          sql.NullTime
	)
	p := &b.Passenger
	if err := s.Scan(&b.ID, &b.BookingID, &b.TripID, &b.Status, &p.Name, &p.Email, &p.Phone,
		&p.IDNumber, &p.Age, &p.IsKenyan, &pickup, &dropoff, &b.TotalAmountCents,
		&txnID, &payPhone, &paidAt, &b.ExpiresAt, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return err
	}
	b.PickupLocationID = nullableID(pickup)
	b.DropoffLocationID = nullableID(dropoff)
	b.MpesaTransactionID = txnID.String
	b.PaymentPhone = payPhone.String
	b.PaidAt = nil
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		b.PaidAt = &t
	}
	b.ExpiresAt = b.ExpiresAt.UTC()
	return nil
}

func nullableID(n sql.NullInt64) *uint64 {
	if !n.Valid {
		return nil
	}
	id := uint64(n.Int64)
	return &id
}

func idOrNull(id *uint64) interface{} {
	if id == nil {
		return nil
	}
	return *id
}

// CreateTx inserts a pending booking and sets its ID.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	p := b.Passenger
	res, err := tx.ExecContext(ctx,
		`INSERT INTO bookings (booking_id, trip_id, status, passenger_name, passenger_email, passenger_phone,
		 passenger_id_number, passenger_age, is_kenyan, pickup_location_id, dropoff_location_id,
		 total_amount_cents, payment_phone, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.BookingID, b.TripID, b.Status, p.Name, p.Email, p.Phone, p.IDNumber, p.Age, p.IsKenyan,
		idOrNull(b.PickupLocationID), idOrNull(b.DropoffLocationID), b.TotalAmountCents,
		b.PaymentPhone, b.ExpiresAt.UTC())
	if err != nil {
		return mapWriteErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	return nil
}

// CreateSeatsBulkTx records the captured price of every seat.
func (r *BookingRepo) CreateSeatsBulkTx(ctx context.Context, tx *sql.Tx, bookingID uint64, seats []model.BookingSeat) error {
	if len(seats) == 0 {
		return nil
	}
	query := "INSERT INTO booking_seats (booking_id, seat_id, price_cents) VALUES "
	args := make([]interface{}, 0, len(seats)*3)
	for i, s := range seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?)"
		args = append(args, bookingID, s.SeatID, s.PriceCents)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// GetByCode looks a booking up by its customer-facing reference.
func (r *BookingRepo) GetByCode(ctx context.Context, code string) (*model.Booking, error) {
	var b model.Booking
	err := scanBooking(r.db.QueryRowContext(ctx, "SELECT "+bookingCols+" FROM bookings WHERE booking_id = ?", strings.ToUpper(code)), &b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetByCodeForUpdateTx is GetByCode with a row lock.
func (r *BookingRepo) GetByCodeForUpdateTx(ctx context.Context, tx *sql.Tx, code string) (*model.Booking, error) {
	var b model.Booking
	err := scanBooking(tx.QueryRowContext(ctx, "SELECT "+bookingCols+" FROM bookings WHERE booking_id = ? FOR UPDATE", strings.ToUpper(code)), &b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	var b model.Booking
	err := scanBooking(r.db.QueryRowContext(ctx, "SELECT "+bookingCols+" FROM bookings WHERE id = ?", id), &b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListSeats returns the seats of a booking with their numbers.
func (r *BookingRepo) ListSeats(ctx context.Context, bookingID uint64) ([]model.BookingSeat, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT bs.booking_id, bs.seat_id, s.seat_number, s.seat_class, bs.price_cents
		 FROM booking_seats bs JOIN seats s ON s.id = bs.seat_id
		 WHERE bs.booking_id = ? ORDER BY s.seat_row, s.seat_col`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.BookingSeat{}
	for rows.Next() {
		var s model.BookingSeat
		if err := rows.Scan(&s.BookingID, &s.SeatID, &s.SeatNumber, &s.SeatClass, &s.PriceCents); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ConfirmPaymentTx moves a pending, unexpired booking to CONFIRMED.  It
// reports false when the guard did not match.
func (r *BookingRepo) ConfirmPaymentTx(ctx context.Context, tx *sql.Tx, id uint64, txnID, phone string, paidAt time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = 'CONFIRMED', mpesa_transaction_id = ?, payment_phone = ?, paid_at = ?
		 WHERE id = ? AND status = 'PENDING' AND expires_at > ?`,
		txnID, phone, paidAt.UTC(), id, paidAt.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ExpireTx marks overdue pending bookings EXPIRED.  Bookings that were paid
// or cancelled meanwhile are skipped by the guard.
func (r *BookingRepo) ExpireTx(ctx context.Context, tx *sql.Tx, ids []uint64, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := append(uint64Args(ids), now.UTC())
	res, err := tx.ExecContext(ctx,
		"UPDATE bookings SET status = 'EXPIRED' WHERE id IN ("+placeholders(len(ids))+") AND status = 'PENDING' AND expires_at <= ?",
		args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SetStatusTx applies an admin status change.  paidAt is written only when
// non-nil.
func (r *BookingRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, ids []uint64, status string, paidAt *time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := "UPDATE bookings SET status = ?"
	args := []interface{}{status}
	if paidAt != nil {
		q += ", paid_at = ?"
		args = append(args, paidAt.UTC())
	}
	q += " WHERE id IN (" + placeholders(len(ids)) + ")"
	args = append(args, uint64Args(ids)...)
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LockManyTx reads and locks the given bookings.
func (r *BookingRepo) LockManyTx(ctx context.Context, tx *sql.Tx, ids []uint64) ([]model.Booking, error) {
	if len(ids) == 0 {
		return []model.Booking{}, nil
	}
	rows, err := tx.QueryContext(ctx,
		"SELECT "+bookingCols+" FROM bookings WHERE id IN ("+placeholders(len(ids))+") ORDER BY id FOR UPDATE",
		uint64Args(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

// ListExpiredPending returns pending bookings whose payment window closed.
func (r *BookingRepo) ListExpiredPending(ctx context.Context, now time.Time) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+bookingCols+" FROM bookings WHERE status = 'PENDING' AND expires_at <= ? ORDER BY expires_at",
		now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

func collectBookings(rows *sql.Rows) ([]model.Booking, error) {
	out := []model.Booking{}
	for rows.Next() {
		var b model.Booking
		if err := scanBooking(rows, &b); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// BookingFilter narrows the admin booking listing.
type BookingFilter struct {
	Status string
	TripID uint64
	Search string // booking reference, passenger name or email
	Limit  int
	Offset int
	// Now, when set, makes PENDING and EXPIRED match the status a caller
	// would see after lazy expiry.
	Now time.Time
}

func (r *BookingRepo) List(ctx context.Context, f BookingFilter) ([]model.Booking, error) {
	where := []string{}
	args := []interface{}{}
	switch {
	case f.Status == "":
	case f.Now.IsZero() || (f.Status != model.BookingPending && f.Status != model.BookingExpired):
		where = append(where, "status = ?")
		args = append(args, f.Status)
	case f.Status == model.BookingPending:
		where = append(where, "(status = ? AND expires_at > ?)")
		args = append(args, model.BookingPending, f.Now)
	default:
		where = append(where, "(status = ? OR (status = ? AND expires_at <= ?))")
		args = append(args, model.BookingExpired, model.BookingPending, f.Now)
	}
	if f.TripID > 0 {
		where = append(where, "trip_id = ?")
		args = append(args, f.TripID)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		where = append(where, "(booking_id = ? OR LOWER(passenger_name) LIKE ? OR LOWER(passenger_email) LIKE ?)")
		args = append(args, strings.ToUpper(s), like, like)
	}
	q := "SELECT " + bookingCols + " FROM bookings"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}
