package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/bus-ticket-booking/internal/model"
)

// TripRepo encapsulates queries on trips.
type TripRepo struct {
	db *sql.DB
}

func NewTripRepo(db *sql.DB) *TripRepo { return &TripRepo{db: db} }

// DB exposes the handle so the booking workflow can open transactions.
func (r *TripRepo) DB() *sql.DB { return r.db }

const tripCols = "t.id, t.bus_id, t.route_id, t.departure_time, t.arrival_time, t.base_price_cents, t.status, t.created_at, t.updated_at"

const tripDetailCols = tripCols + ", o.name, d.name, c.id, c.name, b.number_plate, b.bus_type, b.total_seats, r.distance_km"

const tripDetailFrom = `
FROM trips t
JOIN routes r ON r.id = t.route_id
JOIN locations o ON o.id = r.origin_id
JOIN locations d ON d.id = r.destination_id
JOIN buses b ON b.id = t.bus_id
JOIN bus_companies c ON c.id = b.company_id`

const tripDetailSelect = "SELECT " + tripDetailCols + tripDetailFrom

func tripDest(t *model.Trip) []interface{} {
	return []interface{}{&t.ID, &t.BusID, &t.RouteID, &t.DepartureTime, &t.ArrivalTime, &t.BasePriceCents, &t.Status, &t.CreatedAt, &t.UpdatedAt}
}

func tripDetailDest(d *model.TripDetail) []interface{} {
	return append(tripDest(&d.Trip), &d.Origin, &d.Destination, &d.CompanyID, &d.CompanyName, &d.NumberPlate, &d.BusType, &d.TotalSeats, &d.DistanceKM)
}

func (r *TripRepo) Create(ctx context.Context, t *model.Trip) error {
	if t.Status == "" {
		t.Status = model.TripScheduled
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO trips (bus_id, route_id, departure_time, arrival_time, base_price_cents, status) VALUES (?, ?, ?, ?, ?, ?)",
		t.BusID, t.RouteID, t.DepartureTime.UTC(), t.ArrivalTime.UTC(), t.BasePriceCents, t.Status)
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
	*t = *got
	return nil
}

func (r *TripRepo) GetByID(ctx context.Context, id uint64) (*model.Trip, error) {
	var t model.Trip
	err := r.db.QueryRowContext(ctx, "SELECT "+tripCols+" FROM trips t WHERE t.id = ?", id).Scan(tripDest(&t)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTripNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetByIDTx reads the trip row with a shared lock so a concurrent admin
// status change cannot slip between the bookable check and the seat hold.
func (r *TripRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Trip, error) {
	var t model.Trip
	err := tx.QueryRowContext(ctx, "SELECT "+tripCols+" FROM trips t WHERE t.id = ? LOCK IN SHARE MODE", id).Scan(tripDest(&t)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTripNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// RouteLocationIDsTx lists the locations a route serves: its two ends and
// every intermediate stop.
func (r *TripRepo) RouteLocationIDsTx(ctx context.Context, tx *sql.Tx, routeID uint64) (map[uint64]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT origin_id FROM routes WHERE id = ?
		UNION SELECT destination_id FROM routes WHERE id = ?
		UNION SELECT location_id FROM route_stops WHERE route_id = ?`, routeID, routeID, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[uint64]bool{}
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// GetDetail loads a trip joined with route, bus and company names.
func (r *TripRepo) GetDetail(ctx context.Context, id uint64) (*model.TripDetail, error) {
	var d model.TripDetail
	err := r.db.QueryRowContext(ctx, tripDetailSelect+" WHERE t.id = ?", id).Scan(tripDetailDest(&d)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTripNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// TripFilter narrows the admin trip listing.  Zero values are ignored.
type TripFilter struct {
	RouteID uint64
	BusID   uint64
	Status  string
	From    time.Time
	To      time.Time
	Limit   int
	Offset  int
}

func (r *TripRepo) List(ctx context.Context, f TripFilter) ([]model.TripDetail, error) {
	where := []string{}
	args := []interface{}{}
	if f.RouteID > 0 {
		where = append(where, "t.route_id = ?")
		args = append(args, f.RouteID)
	}
	if f.BusID > 0 {
		where = append(where, "t.bus_id = ?")
		args = append(args, f.BusID)
	}
	if f.Status != "" {
		where = append(where, "t.status = ?")
		args = append(args, f.Status)
	}
	if !f.From.IsZero() {
		where = append(where, "t.departure_time >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		where = append(where, "t.departure_time < ?")
		args = append(args, f.To.UTC())
	}
	q := tripDetailSelect
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	q += " ORDER BY t.departure_time LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.TripDetail{}
	for rows.Next() {
		var d model.TripDetail
		if err := rows.Scan(tripDetailDest(&d)...); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *TripRepo) Update(ctx context.Context, t *model.Trip) error {
	if _, err := r.GetByID(ctx, t.ID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		"UPDATE trips SET bus_id = ?, route_id = ?, departure_time = ?, arrival_time = ?, base_price_cents = ?, status = ? WHERE id = ?",
		t.BusID, t.RouteID, t.DepartureTime.UTC(), t.ArrivalTime.UTC(), t.BasePriceCents, t.Status, t.ID)
	return mapWriteErr(err)
}

// Delete removes a trip that has no bookings.
func (r *TripRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM trips WHERE id = ?", id)
	if err != nil {
		return mapWriteErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTripNotFound
	}
	return nil
}
