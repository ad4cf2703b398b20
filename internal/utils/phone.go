package utils

import (
	"strconv"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const kenyaCallingCode = 254

// NormalizeKenyanPhone accepts Kenyan mobile numbers in national (07XX,
// 01XX) or international (+254, 254) form, spaces and dashes ignored, and
// returns the 2547XXXXXXXX form used by M-Pesa.  ok is false for anything
// else, including landlines and foreign numbers.
func NormalizeKenyanPhone(s string) (string, bool) {
	s = strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}
	if strings.HasPrefix(s, "254") {
		s = "+" + s
	}
	num, err := phonenumbers.Parse(s, "KE")
	if err != nil || num.GetCountryCode() != kenyaCallingCode || !phonenumbers.IsValidNumberForRegion(num, "KE") {
		return "", false
	}
	switch phonenumbers.GetNumberType(num) {
	case phonenumbers.MOBILE, phonenumbers.FIXED_LINE_OR_MOBILE:
	default:
		return "", false
	}
	return strconv.Itoa(kenyaCallingCode) + strconv.FormatUint(num.GetNationalNumber(), 10), true
}
