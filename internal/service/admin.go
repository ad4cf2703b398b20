package service

import (
	"context"
	"time"

	"github.com/iliyamo/bus-ticket-booking/internal/model"
	"github.com/iliyamo/bus-ticket-booking/internal/repository"
)

const (
	ActionConfirm = "confirm"
	ActionCancel  = "cancel"
	ActionExpire  = "expire"
)

// BulkAction applies an admin action to a set of bookings and returns how
// many changed.  Bookings the action does not apply to are skipped:
// confirm takes live pending bookings, expire takes pending ones and cancel
// takes anything not yet cancelled.
func (s *BookingService) BulkAction(ctx context.Context, action string, ids []uint64) (int64, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	var eligible func(b model.Booking, now time.Time) bool
	switch action {
	case ActionConfirm:
		eligible = func(b model.Booking, now time.Time) bool {
			return b.Status == model.BookingPending && !b.IsExpired(now)
		}
	case ActionCancel:
		eligible = func(b model.Booking, _ time.Time) bool { return b.Status != model.BookingCancelled }
	case ActionExpire:
		eligible = func(b model.Booking, _ time.Time) bool { return b.Status == model.BookingPending }
	default:
		return 0, ErrUnknownAction
	}

	now := s.Now()
	tx, rollback, err := s.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer rollback()

	locked, err := s.bookings.LockManyTx(ctx, tx, ids)
	if err != nil {
		return 0, err
	}
	targets := make([]uint64, 0, len(locked))
	for _, b := range locked {
		if eligible(b, now) {
			targets = append(targets, b.ID)
		}
	}
	if len(targets) == 0 {
		return 0, nil
	}

	var n int64
	switch action {
	case ActionConfirm:
		if n, err = s.bookings.SetStatusTx(ctx, tx, targets, model.BookingConfirmed, &now); err != nil {
			return 0, err
		}
		_, err = s.ledger.FinalizeBookingsTx(ctx, tx, targets)
	case ActionCancel:
		if n, err = s.bookings.SetStatusTx(ctx, tx, targets, model.BookingCancelled, nil); err != nil {
			return 0, err
		}
		_, err = s.ledger.ReleaseBookingsTx(ctx, tx, targets)
	case ActionExpire:
		if n, err = s.bookings.SetStatusTx(ctx, tx, targets, model.BookingExpired, nil); err != nil {
			return 0, err
		}
		_, err = s.ledger.ReleaseBookingsTx(ctx, tx, targets)
	}
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	s.Log.Info("bulk booking action", "action", action, "requested", len(ids), "changed", n)
	return n, nil
}

// CleanupReport summarizes one cleanup pass.
type CleanupReport struct {
	DryRun        bool     `json:"dry_run"`
	Expired       []string `json:"expired_bookings"`
	SeatsReleased int64    `json:"seats_released"`
	StaleHolds    int64    `json:"stale_holds"`
}

// Cleanup expires overdue pending bookings, releases their seats and clears
// lapsed holds that never became bookings.  Running it twice in a row
// changes nothing the second time.  A dry run only reports.
func (s *BookingService) Cleanup(ctx context.Context, dryRun bool) (*CleanupReport, error) {
	now := s.Now()
	rep := &CleanupReport{DryRun: dryRun, Expired: []string{}}
	overdue, err := s.bookings.ListExpiredPending(ctx, now)
	if err != nil {
		return nil, err
	}
	if dryRun {
		for _, b := range overdue {
			rep.Expired = append(rep.Expired, b.BookingID)
		}
		if rep.StaleHolds, err = s.ledger.CountStaleHolds(ctx, now); err != nil {
			return nil, err
		}
		return rep, nil
	}

	if len(overdue) > 0 {
		ids := make([]uint64, len(overdue))
		for i, b := range overdue {
			ids[i] = b.ID
		}
		tx, rollback, err := s.begin(ctx)
		if err != nil {
			return nil, err
		}
		defer rollback()
		locked, err := s.bookings.LockManyTx(ctx, tx, ids)
		if err != nil {
			return nil, err
		}
		expired, released, err := s.expireLockedTx(ctx, tx, locked, now)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		for _, b := range expired {
			rep.Expired = append(rep.Expired, b.BookingID)
		}
		rep.SeatsReleased = released
	}
	if rep.StaleHolds, err = s.ledger.ClearStaleHolds(ctx, now); err != nil {
		return nil, err
	}
	s.Log.Info("cleanup finished", "expired", len(rep.Expired), "seats_released", rep.SeatsReleased, "stale_holds", rep.StaleHolds)
	return rep, nil
}

// Search resolves a travel date in the booking timezone and returns the
// scheduled departures of that day that have not left yet.
func (s *BookingService) Search(ctx context.Context, originID, destinationID uint64, date string) ([]model.TripSearchResult, error) {
	if originID == 0 {
		return nil, invalid("from", "is required")
	}
	if destinationID == 0 {
		return nil, invalid("to", "is required")
	}
	if originID == destinationID {
		return nil, invalid("to", "must differ from origin")
	}
	loc := s.rules.Location()
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return nil, invalid("date", "must be YYYY-MM-DD")
	}
	now := s.Now()
	y, m, d := now.In(loc).Date()
	if day.Before(time.Date(y, m, d, 0, 0, 0, 0, loc)) {
		return nil, invalid("date", "is in the past")
	}
	return s.trips.Search(ctx, repository.TripSearchQuery{
		OriginID:      originID,
		DestinationID: destinationID,
		DayStart:      day.UTC(),
		DayEnd:        day.AddDate(0, 0, 1).UTC(),
		Now:           now,
	})
}
