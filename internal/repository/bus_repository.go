package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/iliyamo/bus-ticket-booking/internal/model"
)

// BusRepo encapsulates queries on buses.  Seats are written through SeatRepo
// inside the same transaction when a bus is created.
type BusRepo struct {
	db    *sql.DB
	seats *SeatRepo
}

func NewBusRepo(db *sql.DB, seats *SeatRepo) *BusRepo { return &BusRepo{db: db, seats: seats} }

const busCols = "id, company_id, number_plate, bus_type, seat_layout_id, total_seats, amenities, is_active, created_at, updated_at"

func scanBus(s interface{ Scan(...interface{}) error }, b *model.Bus) error {
	var amenities sql.NullString
	if err := s.Scan(&b.ID, &b.CompanyID, &b.NumberPlate, &b.BusType, &b.SeatLayoutID, &b.TotalSeats,
		&amenities, &b.IsActive, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return err
	}
	b.Amenities = []string{}
	if amenities.Valid && amenities.String != "" {
		_ = json.Unmarshal([]byte(amenities.String), &b.Amenities)
	}
	return nil
}

func amenitiesJSON(a []string) string {
	if a == nil {
		a = []string{}
	}
	bs, _ := json.Marshal(a)
	return string(bs)
}

// CreateWithSeats inserts the bus and its generated seats atomically.  The
// seats' BusID fields are filled in from the new bus id.
func (r *BusRepo) CreateWithSeats(ctx context.Context, b *model.Bus, seats []model.Seat) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO buses (company_id, number_plate, bus_type, seat_layout_id, total_seats, amenities, is_active) VALUES (?, ?, ?, ?, ?, ?, ?)",
		b.CompanyID, b.NumberPlate, b.BusType, b.SeatLayoutID, b.TotalSeats, amenitiesJSON(b.Amenities), b.IsActive)
	if err != nil {
		return mapWriteErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	for i := range seats {
		seats[i].BusID = b.ID
	}
	if err := r.seats.CreateBulkTx(ctx, tx, seats); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (r *BusRepo) GetByID(ctx context.Context, id uint64) (*model.Bus, error) {
	var b model.Bus
	err := scanBus(r.db.QueryRowContext(ctx, "SELECT "+busCols+" FROM buses WHERE id = ?", id), &b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBusNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// List returns buses, optionally restricted to one company.
func (r *BusRepo) List(ctx context.Context, companyID uint64) ([]model.Bus, error) {
	q := "SELECT " + busCols + " FROM buses"
	var args []interface{}
	if companyID > 0 {
		q += " WHERE company_id = ?"
		args = append(args, companyID)
	}
	q += " ORDER BY number_plate"
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Bus{}
	for rows.Next() {
		var b model.Bus
		if err := scanBus(rows, &b); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Update changes plate, type, amenities and the active flag.  The layout of
// an existing bus is fixed because its seats were generated from it.
func (r *BusRepo) Update(ctx context.Context, b *model.Bus) error {
	if _, err := r.GetByID(ctx, b.ID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		"UPDATE buses SET number_plate = ?, bus_type = ?, amenities = ?, is_active = ? WHERE id = ?",
		b.NumberPlate, b.BusType, amenitiesJSON(b.Amenities), b.IsActive, b.ID)
	return mapWriteErr(err)
}

func (r *BusRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM buses WHERE id = ?", id)
	if err != nil {
		return mapWriteErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrBusNotFound
	}
	return nil
}
