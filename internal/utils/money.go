package utils

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatMoney renders cents as "KSh 1,250.00".
func FormatMoney(currency string, cents uint64) string {
	whole := strconv.FormatUint(cents/100, 10)
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("%s %s.%02d", currency, b.String(), cents%100)
}

// MaxAmountCents bounds every price the console accepts (KSh 1,000,000).
// Seat multipliers stay far below the point where cents*pct overflows.
const MaxAmountCents uint64 = 100_000_000

// ParseMoney converts a decimal amount such as "1250.5" or "1,250.50" into
// cents.
func ParseMoney(s string) (uint64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if !d.Equal(d.Truncate(2)) {
		return 0, fmt.Errorf("too many decimals in %q", s)
	}
	if d.IsNegative() || d.GreaterThan(decimal.New(int64(MaxAmountCents), -2)) {
		return 0, fmt.Errorf("amount %q out of range", s)
	}
	return uint64(d.Shift(2).IntPart()), nil
}
