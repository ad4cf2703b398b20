package utils

import (
	"strings"

	"github.com/google/uuid"
)

// NewBookingReference returns the customer-facing booking id: the first 12
// characters of a random UUID, upper-cased (e.g. "3F2A9C1B-7D4E").
func NewBookingReference() string {
	return strings.ToUpper(uuid.NewString()[:12])
}

// NewMpesaTransactionID mimics an M-Pesa receipt number for the mock
// payment step: "MPesa" followed by 10 upper-case hex characters.
func NewMpesaTransactionID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "MPesa" + strings.ToUpper(hex[:10])
}

// NewHoldToken identifies one reserve call; it is 32 hex characters.
func NewHoldToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
