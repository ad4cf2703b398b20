package model

import "time"

const (
	TripScheduled  = "SCHEDULED"
	TripInProgress = "IN_PROGRESS"
	TripCompleted  = "COMPLETED"
	TripCancelled  = "CANCELLED"
)

// Trip is one scheduled departure of a bus on a route.
type Trip struct {
	ID             uint64    `json:"id"`
	BusID          uint64    `json:"bus_id"`
	RouteID        uint64    `json:"route_id"`
	DepartureTime  time.Time `json:"departure_time"`
	ArrivalTime    time.Time `json:"arrival_time"`
	BasePriceCents uint64    `json:"base_price_cents"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func ValidTripStatus(s string) bool {
	switch s {
	case TripScheduled, TripInProgress, TripCompleted, TripCancelled:
		return true
	}
	return false
}

// Bookable reports whether seats on the trip can still be sold.
func (t Trip) Bookable(now time.Time) bool {
	return t.Status == TripScheduled && t.DepartureTime.After(now)
}

// TripDetail is a trip joined with the names needed by search results,
// seat maps, receipts and emails.
type TripDetail struct {
	Trip
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	CompanyID   uint64 `json:"company_id"`
	CompanyName string `json:"company_name"`
	NumberPlate string `json:"number_plate"`
	BusType     string `json:"bus_type"`
	TotalSeats  uint32 `json:"total_seats"`
	DistanceKM  uint32 `json:"distance_km"`
}

// TripSearchResult is a search hit.  ViaStop is set when the customer boards
// at an intermediate stop rather than the route origin.
type TripSearchResult struct {
	TripDetail
	AvailableSeats uint32 `json:"available_seats"`
	ViaStop        bool   `json:"via_stop"`
}
