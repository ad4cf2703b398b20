package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/bus-ticket-booking/internal/model"
)

// SeatRepo encapsulates queries on seats.
type SeatRepo struct {
	db *sql.DB
}

func NewSeatRepo(db *sql.DB) *SeatRepo { return &SeatRepo{db: db} }

const seatCols = "id, bus_id, seat_number, seat_type, seat_class, seat_row, seat_col, price_multiplier_pct, is_active"

func scanSeat(s interface{ Scan(...interface{}) error }, st *model.Seat) error {
	return s.Scan(&st.ID, &st.BusID, &st.SeatNumber, &st.SeatType, &st.SeatClass, &st.Row, &st.Column, &st.MultiplierPct, &st.IsActive)
}

// CreateBulkTx inserts all seats in a single statement.
func (r *SeatRepo) CreateBulkTx(ctx context.Context, tx *sql.Tx, seats []model.Seat) error {
	if len(seats) == 0 {
		return nil
	}
	query := "INSERT INTO seats (bus_id, seat_number, seat_type, seat_class, seat_row, seat_col, price_multiplier_pct, is_active) VALUES "
	args := make([]interface{}, 0, len(seats)*8)
	for i, s := range seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?, ?, ?)"
		args = append(args, s.BusID, s.SeatNumber, s.SeatType, s.SeatClass, s.Row, s.Column, s.MultiplierPct, s.IsActive)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return mapWriteErr(err)
}

// ListByBus returns every seat of a bus in row/column order.
func (r *SeatRepo) ListByBus(ctx context.Context, busID uint64, activeOnly bool) ([]model.Seat, error) {
	q := "SELECT " + seatCols + " FROM seats WHERE bus_id = ?"
	if activeOnly {
		q += " AND is_active = 1"
	}
	q += " ORDER BY seat_row, seat_col"
	rows, err := r.db.QueryContext(ctx, q, busID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSeats(rows)
}

// ListActiveByIDsTx loads the requested seats of a bus that are active.
// Ids that belong to another bus or are inactive are simply absent from the
// result.
func (r *SeatRepo) ListActiveByIDsTx(ctx context.Context, tx *sql.Tx, busID uint64, ids []uint64) ([]model.Seat, error) {
	if len(ids) == 0 {
		return []model.Seat{}, nil
	}
	args := append([]interface{}{busID}, uint64Args(ids)...)
	rows, err := tx.QueryContext(ctx,
		"SELECT "+seatCols+" FROM seats WHERE bus_id = ? AND is_active = 1 AND id IN ("+placeholders(len(ids))+") ORDER BY seat_row, seat_col",
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSeats(rows)
}

func collectSeats(rows *sql.Rows) ([]model.Seat, error) {
	out := []model.Seat{}
	for rows.Next() {
		var s model.Seat
		if err := scanSeat(rows, &s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SeatRepo) GetByID(ctx context.Context, id uint64) (*model.Seat, error) {
	var s model.Seat
	err := scanSeat(r.db.QueryRowContext(ctx, "SELECT "+seatCols+" FROM seats WHERE id = ?", id), &s)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSeatNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Update changes a seat's type, class, multiplier and active flag.
func (r *SeatRepo) Update(ctx context.Context, s *model.Seat) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE seats SET seat_type = ?, seat_class = ?, price_multiplier_pct = ?, is_active = ? WHERE id = ?",
		s.SeatType, s.SeatClass, s.MultiplierPct, s.IsActive, s.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, s.ID); err != nil {
			return err
		}
	}
	return nil
}
