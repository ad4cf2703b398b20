package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/iliyamo/bus-ticket-booking/internal/model"
)

// SeatLayoutRepo encapsulates queries on seat_layouts.
type SeatLayoutRepo struct {
	db *sql.DB
}

func NewSeatLayoutRepo(db *sql.DB) *SeatLayoutRepo { return &SeatLayoutRepo{db: db} }

const layoutCols = "id, name, seat_class, total_seats, rows_count, columns_count, layout_data, created_at, updated_at"

func scanLayout(s interface{ Scan(...interface{}) error }, l *model.SeatLayout) error {
	var data []byte
	if err := s.Scan(&l.ID, &l.Name, &l.SeatClass, &l.TotalSeats, &l.Rows, &l.Columns, &data, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return err
	}
	l.LayoutData = json.RawMessage(data)
	return nil
}

func layoutDataOrEmpty(d json.RawMessage) []byte {
	if len(d) == 0 {
		return []byte("{}")
	}
	return d
}

func (r *SeatLayoutRepo) Create(ctx context.Context, l *model.SeatLayout) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO seat_layouts (name, seat_class, total_seats, rows_count, columns_count, layout_data) VALUES (?, ?, ?, ?, ?, ?)",
		l.Name, l.SeatClass, l.TotalSeats, l.Rows, l.Columns, layoutDataOrEmpty(l.LayoutData))
	if err != nil {
		return mapWriteErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	got, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*l = *got
	return nil
}

func (r *SeatLayoutRepo) GetByID(ctx context.Context, id uint64) (*model.SeatLayout, error) {
	var l model.SeatLayout
	err := scanLayout(r.db.QueryRowContext(ctx, "SELECT "+layoutCols+" FROM seat_layouts WHERE id = ?", id), &l)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLayoutNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *SeatLayoutRepo) List(ctx context.Context) ([]model.SeatLayout, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+layoutCols+" FROM seat_layouts ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.SeatLayout{}
	for rows.Next() {
		var l model.SeatLayout
		if err := scanLayout(rows, &l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *SeatLayoutRepo) Update(ctx context.Context, l *model.SeatLayout) error {
	if _, err := r.GetByID(ctx, l.ID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		"UPDATE seat_layouts SET name = ?, seat_class = ?, total_seats = ?, rows_count = ?, columns_count = ?, layout_data = ? WHERE id = ?",
		l.Name, l.SeatClass, l.TotalSeats, l.Rows, l.Columns, layoutDataOrEmpty(l.LayoutData), l.ID)
	return mapWriteErr(err)
}

// SaveDesign stores the output of the layout designer.
func (r *SeatLayoutRepo) SaveDesign(ctx context.Context, id uint64, data json.RawMessage) error {
	res, err := r.db.ExecContext(ctx, "UPDATE seat_layouts SET layout_data = ? WHERE id = ?", layoutDataOrEmpty(data), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *SeatLayoutRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM seat_layouts WHERE id = ?", id)
	if err != nil {
		return mapWriteErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrLayoutNotFound
	}
	return nil
}
