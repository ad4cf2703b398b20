package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/bus-ticket-booking/internal/model"
)

// RouteRepo encapsulates queries on routes and route_stops.
type RouteRepo struct {
	db *sql.DB
}

func NewRouteRepo(db *sql.DB) *RouteRepo { return &RouteRepo{db: db} }

const routeSelect = `SELECT r.id, r.origin_id, r.destination_id, o.name, d.name, r.distance_km, r.duration_min,
       r.is_active, r.created_at, r.updated_at
FROM routes r
JOIN locations o ON o.id = r.origin_id
JOIN locations d ON d.id = r.destination_id`

func scanRoute(s interface{ Scan(...interface{}) error }, rt *model.Route) error {
	return s.Scan(&rt.ID, &rt.OriginID, &rt.DestinationID, &rt.Origin, &rt.Destination, &rt.DistanceKM,
		&rt.DurationMin, &rt.IsActive, &rt.CreatedAt, &rt.UpdatedAt)
}

func (r *RouteRepo) Create(ctx context.Context, rt *model.Route) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO routes (origin_id, destination_id, distance_km, duration_min, is_active) VALUES (?, ?, ?, ?, ?)",
		rt.OriginID, rt.DestinationID, rt.DistanceKM, rt.DurationMin, rt.IsActive)
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
	*rt = *got
	return nil
}

// GetByID loads a route together with its stops.
func (r *RouteRepo) GetByID(ctx context.Context, id uint64) (*model.Route, error) {
	var rt model.Route
	err := scanRoute(r.db.QueryRowContext(ctx, routeSelect+" WHERE r.id = ?", id), &rt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRouteNotFound
	}
	if err != nil {
		return nil, err
	}
	stops, err := r.ListStops(ctx, id)
	if err != nil {
		return nil, err
	}
	rt.Stops = stops
	return &rt, nil
}

func (r *RouteRepo) List(ctx context.Context) ([]model.Route, error) {
	rows, err := r.db.QueryContext(ctx, routeSelect+" ORDER BY o.name, d.name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Route{}
	for rows.Next() {
		var rt model.Route
		if err := scanRoute(rows, &rt); err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

func (r *RouteRepo) Update(ctx context.Context, rt *model.Route) error {
	if _, err := r.GetByID(ctx, rt.ID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		"UPDATE routes SET origin_id = ?, destination_id = ?, distance_km = ?, duration_min = ?, is_active = ? WHERE id = ?",
		rt.OriginID, rt.DestinationID, rt.DistanceKM, rt.DurationMin, rt.IsActive, rt.ID)
	return mapWriteErr(err)
}

func (r *RouteRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM routes WHERE id = ?", id)
	if err != nil {
		return mapWriteErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRouteNotFound
	}
	return nil
}

// ListStops returns the stops of a route in travel order.
func (r *RouteRepo) ListStops(ctx context.Context, routeID uint64) ([]model.RouteStop, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.id, s.route_id, s.location_id, l.name, s.stop_order, s.distance_from_origin
		 FROM route_stops s JOIN locations l ON l.id = s.location_id
		 WHERE s.route_id = ? ORDER BY s.stop_order`, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.RouteStop{}
	for rows.Next() {
		var s model.RouteStop
		if err := rows.Scan(&s.ID, &s.RouteID, &s.LocationID, &s.Location, &s.StopOrder, &s.DistanceFromOrigin); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// AddStop inserts a stop.  A second stop with the same order yields
// ErrDuplicate.
func (r *RouteRepo) AddStop(ctx context.Context, s *model.RouteStop) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO route_stops (route_id, location_id, stop_order, distance_from_origin) VALUES (?, ?, ?, ?)",
		s.RouteID, s.LocationID, s.StopOrder, s.DistanceFromOrigin)
	if err != nil {
		return mapWriteErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return nil
}

func (r *RouteRepo) DeleteStop(ctx context.Context, routeID, stopID uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM route_stops WHERE id = ? AND route_id = ?", stopID, routeID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRouteNotFound
	}
	return nil
}
