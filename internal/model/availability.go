package model

import "time"

const (
	SeatAvailable = "AVAILABLE"
	SeatHeld      = "HELD"
	SeatBooked    = "BOOKED"
)

// TripSeatAvailability is the ledger row for one seat on one trip.
// ReservedUntil is the end of the current hold; BookingID links the row to
// the pending or confirmed booking that owns it.
type TripSeatAvailability struct {
	ID            uint64     `json:"id"`
	TripID        uint64     `json:"trip_id"`
	SeatID        uint64     `json:"seat_id"`
	IsAvailable   bool       `json:"is_available"`
	ReservedUntil *time.Time `json:"reserved_until"`
	HoldToken     string     `json:"-"`
	BookingID     *uint64    `json:"booking_id"`
}

// IsReservable is the ledger invariant: the seat is free and either has no
// hold or the hold has lapsed.
func (a TripSeatAvailability) IsReservable(now time.Time) bool {
	return a.IsAvailable && (a.ReservedUntil == nil || !a.ReservedUntil.After(now))
}

// HeldBy reports whether a live, not yet booked hold carries the token.
func (a TripSeatAvailability) HeldBy(token string, now time.Time) bool {
	return token != "" && a.IsAvailable && a.BookingID == nil && a.HoldToken == token &&
		a.ReservedUntil != nil && a.ReservedUntil.After(now)
}

// State maps the row to the status shown on the seat map.
func (a TripSeatAvailability) State(now time.Time) string {
	switch {
	case !a.IsAvailable:
		return SeatBooked
	case a.IsReservable(now):
		return SeatAvailable
	default:
		return SeatHeld
	}
}
