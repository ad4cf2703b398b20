package model

const (
	SeatTypeWindow = "WINDOW"
	SeatTypeAisle  = "AISLE"
	SeatTypeMiddle = "MIDDLE"

	SeatClassVIP      = "VIP"
	SeatClassBusiness = "BUSINESS"
	SeatClassEconomy  = "ECONOMY"
)

// Seat belongs to exactly one bus.  MultiplierPct is the price multiplier
// in hundredths: 110 means the seat costs 1.10 × the trip base price.
type Seat struct {
	ID            uint64 `json:"id"`
	BusID         uint64 `json:"bus_id"`
	SeatNumber    string `json:"seat_number"`
	SeatType      string `json:"seat_type"`
	SeatClass     string `json:"seat_class"`
	Row           uint32 `json:"row"`
	Column        uint32 `json:"column"`
	MultiplierPct uint32 `json:"multiplier_pct"`
	IsActive      bool   `json:"is_active"`
}

func ValidSeatType(s string) bool {
	return s == SeatTypeWindow || s == SeatTypeAisle || s == SeatTypeMiddle
}

func ValidSeatClass(s string) bool {
	return s == SeatClassVIP || s == SeatClassBusiness || s == SeatClassEconomy
}

// SeatPrice applies a multiplier to a base price, rounding half up to the
// nearest cent.  Base prices are capped at utils.MaxAmountCents, far below
// the overflow point of the product.
func SeatPrice(baseCents uint64, multiplierPct uint32) uint64 {
	return (baseCents*uint64(multiplierPct) + 50) / 100
}

// PriceFor is SeatPrice for this seat.
func (s Seat) PriceFor(baseCents uint64) uint64 {
	return SeatPrice(baseCents, s.MultiplierPct)
}
