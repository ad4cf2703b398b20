package model

import "fmt"

// GenerateSeats lays out the seats of a new bus.  Seats are numbered
// row-first as "01A", "01B", ... and generation stops at the layout's total.
//
//	2x2: A B | C D   A,D window; B,C aisle
//	2x3: A B | C D E A,E window; B,C aisle; D middle
//
// Window seats carry a 10% premium and middle seats a 5% discount.  On 2x2
// layouts VIP adds 50 points and BUSINESS 20 points to the multiplier.
// Unknown configs fall back to 2x2.
func GenerateSeats(busID uint64, layout SeatLayout) []Seat {
	positions := []string{"A", "B", "C", "D"}
	wide := layout.LayoutConfig() == "2x3"
	if wide {
		positions = append(positions, "E")
	}
	total := int(layout.TotalSeats)
	seats := make([]Seat, 0, total)
	for row := 1; row <= int(layout.Rows) && len(seats) < total; row++ {
		for col, pos := range positions {
			if len(seats) >= total {
				break
			}
			st := seatType(pos, wide)
			seats = append(seats, Seat{
				BusID:         busID,
				SeatNumber:    fmt.Sprintf("%02d%s", row, pos),
				SeatType:      st,
				SeatClass:     layout.SeatClass,
				Row:           uint32(row),
				Column:        uint32(col + 1),
				MultiplierPct: multiplierPct(st, layout.SeatClass, wide),
				IsActive:      true,
			})
		}
	}
	return seats
}

func seatType(pos string, wide bool) string {
	switch {
	case pos == "A", pos == "D" && !wide, pos == "E":
		return SeatTypeWindow
	case pos == "D" && wide:
		return SeatTypeMiddle
	default:
		return SeatTypeAisle
	}
}

func multiplierPct(seatType, class string, wide bool) uint32 {
	pct := uint32(100)
	switch seatType {
	case SeatTypeWindow:
		pct = 110
	case SeatTypeMiddle:
		pct = 95
	}
	if !wide {
		switch class {
		case SeatClassVIP:
			pct += 50
		case SeatClassBusiness:
			pct += 20
		}
	}
	return pct
}
