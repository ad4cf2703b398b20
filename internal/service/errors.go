// Package service implements the seat hold, checkout, payment and expiry
// workflow on top of the repositories.
package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrNoSeats           = errors.New("no seats selected")
	ErrTripNotBookable   = errors.New("trip is not open for booking")
	ErrBookingExpired    = errors.New("booking has expired")
	ErrBookingNotPending = errors.New("booking is not pending")
	ErrNotConfirmed      = errors.New("booking is not confirmed")
	ErrUnknownAction     = errors.New("unknown bulk action")
)

// SeatsUnavailableError lists the requested seats that could not be held.
type SeatsUnavailableError struct {
	SeatIDs []uint64
}

func (e *SeatsUnavailableError) Error() string {
	ids := make([]string, len(e.SeatIDs))
	for i, id := range e.SeatIDs {
		ids[i] = strconv.FormatUint(id, 10)
	}
	return "seats unavailable: " + strings.Join(ids, ",")
}

// ValidationError is a client input problem on a named field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

func invalid(field, msg string) error { return &ValidationError{Field: field, Msg: msg} }
