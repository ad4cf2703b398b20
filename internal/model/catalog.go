package model

import (
	"encoding/json"
	"time"
)

// Location is a town or city served by at least one route.
type Location struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	County    string    `json:"county"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Company is a bus operator.
type Company struct {
	ID           uint64    `json:"id"`
	Name         string    `json:"name"`
	LogoURL      string    `json:"logo_url"`
	ContactPhone string    `json:"contact_phone"`
	Email        string    `json:"email"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SeatLayout describes the seat grid shared by a family of buses.
// LayoutData is stored verbatim as JSON; seat generation reads its
// "config" key ("2x2" or "2x3").
type SeatLayout struct {
	ID         uint64          `json:"id"`
	Name       string          `json:"name"`
	SeatClass  string          `json:"seat_class"`
	TotalSeats uint32          `json:"total_seats"`
	Rows       uint32          `json:"rows"`
	Columns    uint32          `json:"columns"`
	LayoutData json.RawMessage `json:"layout_data"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// LayoutConfig returns the "config" value of the layout data, or "" when the
// document has none.
func (l SeatLayout) LayoutConfig() string {
	var doc struct {
		Config string `json:"config"`
	}
	if len(l.LayoutData) == 0 || json.Unmarshal(l.LayoutData, &doc) != nil {
		return ""
	}
	return doc.Config
}

const (
	BusTypeVIP      = "VIP"
	BusTypeBusiness = "BUSINESS"
	BusTypeEconomy  = "ECONOMY"
	BusTypeMixed    = "MIXED"
)

// Bus is a vehicle owned by a company.  Its seats are generated from the
// layout when the bus is created.
type Bus struct {
	ID           uint64    `json:"id"`
	CompanyID    uint64    `json:"company_id"`
	NumberPlate  string    `json:"number_plate"`
	BusType      string    `json:"bus_type"`
	SeatLayoutID uint64    `json:"seat_layout_id"`
	TotalSeats   uint32    `json:"total_seats"`
	Amenities    []string  `json:"amenities"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func ValidBusType(s string) bool {
	switch s {
	case BusTypeVIP, BusTypeBusiness, BusTypeEconomy, BusTypeMixed:
		return true
	}
	return false
}

// Route connects two locations.  Stops lists the intermediate pickup points
// in travel order; it is only populated by detail lookups.
type Route struct {
	ID            uint64      `json:"id"`
	OriginID      uint64      `json:"origin_id"`
	DestinationID uint64      `json:"destination_id"`
	Origin        string      `json:"origin,omitempty"`
	Destination   string      `json:"destination,omitempty"`
	DistanceKM    uint32      `json:"distance_km"`
	DurationMin   uint32      `json:"duration_min"`
	IsActive      bool        `json:"is_active"`
	Stops         []RouteStop `json:"stops,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

type RouteStop struct {
	ID                 uint64 `json:"id"`
	RouteID            uint64 `json:"route_id"`
	LocationID         uint64 `json:"location_id"`
	Location           string `json:"location,omitempty"`
	StopOrder          uint32 `json:"stop_order"`
	DistanceFromOrigin uint32 `json:"distance_from_origin"`
}
