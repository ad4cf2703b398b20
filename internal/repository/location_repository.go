package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/bus-ticket-booking/internal/model"
)

// LocationRepo encapsulates queries on the locations table.
type LocationRepo struct {
	db *sql.DB
}

func NewLocationRepo(db *sql.DB) *LocationRepo { return &LocationRepo{db: db} }

const locationCols = "id, name, code, county, is_active, created_at, updated_at"

func scanLocation(s interface{ Scan(...interface{}) error }, l *model.Location) error {
	return s.Scan(&l.ID, &l.Name, &l.Code, &l.County, &l.IsActive, &l.CreatedAt, &l.UpdatedAt)
}

// Create inserts a location and reloads it so timestamps are populated.
func (r *LocationRepo) Create(ctx context.Context, l *model.Location) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO locations (name, code, county, is_active) VALUES (?, ?, ?, ?)",
		l.Name, strings.ToUpper(l.Code), l.County, l.IsActive)
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

func (r *LocationRepo) GetByID(ctx context.Context, id uint64) (*model.Location, error) {
	var l model.Location
	err := scanLocation(r.db.QueryRowContext(ctx, "SELECT "+locationCols+" FROM locations WHERE id = ?", id), &l)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLocationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// List returns locations ordered by name.
func (r *LocationRepo) List(ctx context.Context, activeOnly bool) ([]model.Location, error) {
	q := "SELECT " + locationCols + " FROM locations"
	if activeOnly {
		q += " WHERE is_active = 1"
	}
	q += " ORDER BY name"
	return r.query(ctx, q)
}

// Autocomplete matches active locations whose name contains term,
// case-insensitively.
func (r *LocationRepo) Autocomplete(ctx context.Context, term string, limit int) ([]model.Location, error) {
	if limit <= 0 {
		limit = 10
	}
	return r.query(ctx,
		"SELECT "+locationCols+" FROM locations WHERE is_active = 1 AND LOWER(name) LIKE ? ORDER BY name LIMIT ?",
		"%"+strings.ToLower(strings.TrimSpace(term))+"%", limit)
}

func (r *LocationRepo) query(ctx context.Context, q string, args ...interface{}) ([]model.Location, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Location{}
	for rows.Next() {
		var l model.Location
		if err := scanLocation(rows, &l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Update overwrites the mutable columns.
func (r *LocationRepo) Update(ctx context.Context, l *model.Location) error {
	if _, err := r.GetByID(ctx, l.ID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		"UPDATE locations SET name = ?, code = ?, county = ?, is_active = ? WHERE id = ?",
		l.Name, strings.ToUpper(l.Code), l.County, l.IsActive, l.ID)
	return mapWriteErr(err)
}

// Delete removes a location.  Locations referenced by routes or stops yield
// ErrConflict.
func (r *LocationRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM locations WHERE id = ?", id)
	if err != nil {
		return mapWriteErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrLocationNotFound
	}
	return nil
}
