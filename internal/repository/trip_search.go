package repository

import (
	"context"
	"time"

	"github.com/iliyamo/bus-ticket-booking/internal/model"
)

// TripSearchQuery selects scheduled departures between two locations within
// [DayStart, DayEnd).  Now excludes trips that already left and decides which
// holds are still live when counting free seats.
type TripSearchQuery struct {
	OriginID      uint64
	DestinationID uint64
	DayStart      time.Time
	DayEnd        time.Time
	Now           time.Time
}

// Search returns direct trips (route starts at the origin) and trips whose
// route passes through the origin as an intermediate stop.  A route that
// matches directly is never reported a second time as a via-stop hit.
func (r *TripRepo) Search(ctx context.Context, q TripSearchQuery) ([]model.TripSearchResult, error) {
	const query = "SELECT " + tripDetailCols + `,
  GREATEST(
    (SELECT COUNT(*) FROM seats s WHERE s.bus_id = b.id AND s.is_active = 1) -
    (SELECT COUNT(*) FROM trip_seat_availability a
       WHERE a.trip_id = t.id AND (a.is_available = 0 OR a.reserved_until > ?)),
    0) AS available_seats,
  (r.origin_id <> ?) AS via_stop` + tripDetailFrom + `
WHERE t.status = 'SCHEDULED'
  AND t.departure_time >= ? AND t.departure_time < ? AND t.departure_time > ?
  AND r.destination_id = ?
  AND (r.origin_id = ? OR EXISTS (
        SELECT 1 FROM route_stops rs WHERE rs.route_id = r.id AND rs.location_id = ?))
ORDER BY t.departure_time`

	rows, err := r.db.QueryContext(ctx, query,
		q.Now.UTC(), q.OriginID,
		q.DayStart.UTC(), q.DayEnd.UTC(), q.Now.UTC(),
		q.DestinationID,
		q.OriginID, q.OriginID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.TripSearchResult{}
	for rows.Next() {
		var res model.TripSearchResult
		dest := append(tripDetailDest(&res.TripDetail), &res.AvailableSeats, &res.ViaStop)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
