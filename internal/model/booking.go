package model

import "time"

const (
	BookingPending   = "PENDING"
	BookingConfirmed = "CONFIRMED"
	BookingCancelled = "CANCELLED"
	BookingExpired   = "EXPIRED"
)

// Passenger holds the traveller details captured at checkout.
type Passenger struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	IDNumber string `json:"id_number"`
	Age      uint32 `json:"age"`
	IsKenyan bool   `json:"is_kenyan"`
}

// Booking is a purchase of one or more seats on a trip.  ID is the database
// key; BookingID is the 12-character reference shown to customers.
type Booking struct {
	ID                 uint64        `json:"id"`
	BookingID          string        `json:"booking_id"`
	TripID             uint64        `json:"trip_id"`
	Status             string        `json:"status"`
	Passenger          Passenger     `json:"passenger"`
	PickupLocationID   *uint64       `json:"pickup_location_id"`
	DropoffLocationID  *uint64       `json:"dropoff_location_id"`
	TotalAmountCents   uint64        `json:"total_amount_cents"`
	MpesaTransactionID string        `json:"mpesa_transaction_id,omitempty"`
	PaymentPhone       string        `json:"payment_phone,omitempty"`
	PaidAt             *time.Time    `json:"paid_at"`
	ExpiresAt          time.Time     `json:"expires_at"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
	Seats              []BookingSeat `json:"seats,omitempty"`
}

// BookingSeat records the price charged for a seat when the booking was made.
type BookingSeat struct {
	BookingID  uint64 `json:"-"`
	SeatID     uint64 `json:"seat_id"`
	SeatNumber string `json:"seat_number,omitempty"`
	SeatClass  string `json:"seat_class,omitempty"`
	PriceCents uint64 `json:"price_cents"`
}

// IsExpired reports whether a pending booking has run past its payment
// window.  The stored status may still read PENDING.
func (b Booking) IsExpired(now time.Time) bool {
	return b.Status == BookingPending && !now.Before(b.ExpiresAt)
}

// EffectiveStatus is the status after applying lazy expiry.
func (b Booking) EffectiveStatus(now time.Time) string {
	if b.IsExpired(now) {
		return BookingExpired
	}
	return b.Status
}

// SecondsLeft is the remaining payment window, zero when not pending.
func (b Booking) SecondsLeft(now time.Time) int64 {
	if b.Status != BookingPending || !b.ExpiresAt.After(now) {
		return 0
	}
	return int64(b.ExpiresAt.Sub(now) / time.Second)
}

func (b Booking) SeatNumbers() []string {
	out := make([]string, 0, len(b.Seats))
	for _, s := range b.Seats {
		out = append(out, s.SeatNumber)
	}
	return out
}
