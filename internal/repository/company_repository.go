package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/bus-ticket-booking/internal/model"
)

// CompanyRepo encapsulates queries on bus_companies.
type CompanyRepo struct {
	db *sql.DB
}

func NewCompanyRepo(db *sql.DB) *CompanyRepo { return &CompanyRepo{db: db} }

const companyCols = "id, name, logo_url, contact_phone, email, is_active, created_at, updated_at"

func (r *CompanyRepo) Create(ctx context.Context, c *model.Company) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO bus_companies (name, logo_url, contact_phone, email, is_active) VALUES (?, ?, ?, ?, ?)",
		c.Name, c.LogoURL, c.ContactPhone, c.Email, c.IsActive)
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
	*c = *got
	return nil
}

func (r *CompanyRepo) GetByID(ctx context.Context, id uint64) (*model.Company, error) {
	var c model.Company
	err := r.db.QueryRowContext(ctx, "SELECT "+companyCols+" FROM bus_companies WHERE id = ?", id).
		Scan(&c.ID, &c.Name, &c.LogoURL, &c.ContactPhone, &c.Email, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCompanyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CompanyRepo) List(ctx context.Context) ([]model.Company, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+companyCols+" FROM bus_companies ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Company{}
	for rows.Next() {
		var c model.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.LogoURL, &c.ContactPhone, &c.Email, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CompanyRepo) Update(ctx context.Context, c *model.Company) error {
	if _, err := r.GetByID(ctx, c.ID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		"UPDATE bus_companies SET name = ?, logo_url = ?, contact_phone = ?, email = ?, is_active = ? WHERE id = ?",
		c.Name, c.LogoURL, c.ContactPhone, c.Email, c.IsActive, c.ID)
	return mapWriteErr(err)
}

// Delete removes a company without buses.
func (r *CompanyRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM bus_companies WHERE id = ?", id)
	if err != nil {
		return mapWriteErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCompanyNotFound
	}
	return nil
}
