package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/iliyamo/bus-ticket-booking/internal/config"
	"github.com/iliyamo/bus-ticket-booking/internal/model"
	"github.com/iliyamo/bus-ticket-booking/internal/queue"
	"github.com/iliyamo/bus-ticket-booking/internal/repository"
	"github.com/iliyamo/bus-ticket-booking/internal/utils"
)

// Publisher is the outbound side of the booking.confirmed queue.
type Publisher interface {
	PublishBookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error
}

// BookingService owns every state change of the seat ledger and of
// bookings.  Each operation runs in one transaction and re-checks the ledger
// under row locks, so two customers racing for a seat cannot both win.
type BookingService struct {
	db       *sql.DB
	trips    *repository.TripRepo
	seats    *repository.SeatRepo
	ledger   *repository.AvailabilityRepo
	bookings *repository.BookingRepo
	rules    config.BookingConfig
	pub      Publisher

	Log *slog.Logger
	Now func() time.Time
}

func NewBookingService(db *sql.DB, trips *repository.TripRepo, seats *repository.SeatRepo,
	ledger *repository.AvailabilityRepo, bookings *repository.BookingRepo,
	rules config.BookingConfig, pub Publisher) *BookingService {
	return &BookingService{
		db:       db,
		trips:    trips,
		seats:    seats,
		ledger:   ledger,
		bookings: bookings,
		rules:    rules,
		pub:      pub,
		Log:      slog.Default(),
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// Rules exposes the hold and payment windows.
func (s *BookingService) Rules() config.BookingConfig { return s.rules }

// PricedSeat is a seat with the price it costs on a particular trip.
type PricedSeat struct {
	SeatID     uint64 `json:"seat_id"`
	SeatNumber string `json:"seat_number"`
	SeatType   string `json:"seat_type"`
	SeatClass  string `json:"seat_class"`
	PriceCents uint64 `json:"price_cents"`
}

func priceSeats(seats []model.Seat, baseCents uint64) ([]PricedSeat, uint64) {
	out := make([]PricedSeat, 0, len(seats))
	var total uint64
	for _, st := range seats {
		p := st.PriceFor(baseCents)
		total += p
		out = append(out, PricedSeat{SeatID: st.ID, SeatNumber: st.SeatNumber, SeatType: st.SeatType, SeatClass: st.SeatClass, PriceCents: p})
	}
	return out, total
}

// uniqueIDs drops zeros and duplicates, keeping the first occurrence order.
func uniqueIDs(ids []uint64) []uint64 {
	out := make([]uint64, 0, len(ids))
	seen := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (s *BookingService) begin(ctx context.Context) (*sql.Tx, func(), error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	return tx, func() { _ = tx.Rollback() }, nil
}

// SeatView is one cell of the seat map.
type SeatView struct {
	model.Seat
	PriceCents uint64 `json:"price_cents"`
	Status     string `json:"status"`
}

type SeatMap struct {
	Trip      *model.TripDetail `json:"trip"`
	Seats     []SeatView        `json:"seats"`
	Available int               `json:"available"`
}

// SeatMap returns the trip with every active seat, its price and its state.
// Missing ledger rows are created on the way.
func (s *BookingService) SeatMap(ctx context.Context, tripID uint64) (*SeatMap, error) {
	trip, err := s.trips.GetDetail(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.EnsureForTrip(ctx, trip.ID, trip.BusID); err != nil {
		return nil, err
	}
	seats, err := s.seats.ListByBus(ctx, trip.BusID, true)
	if err != nil {
		return nil, err
	}
	rows, err := s.ledger.ListByTrip(ctx, trip.ID)
	if err != nil {
		return nil, err
	}
	bySeat := make(map[uint64]model.TripSeatAvailability, len(rows))
	for _, r := range rows {
		bySeat[r.SeatID] = r
	}
	now := s.Now()
	sm := &SeatMap{Trip: trip, Seats: make([]SeatView, 0, len(seats))}
	for _, st := range seats {
		state := model.SeatAvailable
		if r, ok := bySeat[st.ID]; ok {
			state = r.State(now)
		}
		if state == model.SeatAvailable {
			sm.Available++
		}
		sm.Seats = append(sm.Seats, SeatView{Seat: st, PriceCents: st.PriceFor(trip.BasePriceCents), Status: state})
	}
	return sm, nil
}

// Hold is the result of a successful reserve call.
type Hold struct {
	Token      string       `json:"hold_token"`
	TripID     uint64       `json:"trip_id"`
	ExpiresAt  time.Time    `json:"expires_at"`
	Seats      []PricedSeat `json:"seats"`
	TotalCents uint64       `json:"total_cents"`
}

// lockBookableSeats is the shared prefix of reserve and checkout: it checks
// the trip, loads the requested active seats, makes sure ledger rows exist
// and locks them.  Seats of another bus or inactive seats are reported
// unavailable.
func (s *BookingService) lockBookableSeats(ctx context.Context, tx *sql.Tx, tripID uint64, ids []uint64, now time.Time) (*model.Trip, []model.Seat, map[uint64]model.TripSeatAvailability, error) {
	trip, err := s.trips.GetByIDTx(ctx, tx, tripID)
	if err != nil {
		return nil, nil, nil, err
	}
	if !trip.Bookable(now) {
		return nil, nil, nil, ErrTripNotBookable
	}
	seats, err := s.seats.ListActiveByIDsTx(ctx, tx, trip.BusID, ids)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(seats) != len(ids) {
		found := make(map[uint64]struct{}, len(seats))
		for _, st := range seats {
			found[st.ID] = struct{}{}
		}
		missing := []uint64{}
		for _, id := range ids {
			if _, ok := found[id]; !ok {
				missing = append(missing, id)
			}
		}
		return nil, nil, nil, &SeatsUnavailableError{SeatIDs: missing}
	}
	if err := s.ledger.EnsureForTripTx(ctx, tx, trip.ID, trip.BusID); err != nil {
		return nil, nil, nil, err
	}
	rows, err := s.ledger.LockSeatsTx(ctx, tx, trip.ID, ids)
	if err != nil {
		return nil, nil, nil, err
	}
	bySeat := make(map[uint64]model.TripSeatAvailability, len(rows))
	for _, r := range rows {
		bySeat[r.SeatID] = r
	}
	return trip, seats, bySeat, nil
}

// ReserveSeats places a short hold on the requested seats.  Either every
// seat is held or none is.
func (s *BookingService) ReserveSeats(ctx context.Context, tripID uint64, seatIDs []uint64) (*Hold, error) {
	ids := uniqueIDs(seatIDs)
	if len(ids) == 0 {
		return nil, ErrNoSeats
	}
	now := s.Now()
	tx, rollback, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			rollback()
		}
	}()

	trip, seats, bySeat, err := s.lockBookableSeats(ctx, tx, tripID, ids, now)
	if err != nil {
		return nil, err
	}
	unavailable := []uint64{}
	for _, id := range ids {
		if r, ok := bySeat[id]; !ok || !r.IsReservable(now) {
			unavailable = append(unavailable, id)
		}
	}
	if len(unavailable) > 0 {
		return nil, &SeatsUnavailableError{SeatIDs: unavailable}
	}

	token := utils.NewHoldToken()
	until := now.Add(s.rules.HoldTTL)
	n, err := s.ledger.HoldTx(ctx, tx, trip.ID, ids, token, until, now)
	if err != nil {
		return nil, err
	}
	if n != int64(len(ids)) {
		return nil, &SeatsUnavailableError{SeatIDs: ids}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	priced, total := priceSeats(seats, trip.BasePriceCents)
	return &Hold{Token: token, TripID: trip.ID, ExpiresAt: until, Seats: priced, TotalCents: total}, nil
}

// CheckoutRequest carries the passenger form of the booking page.
type CheckoutRequest struct {
	TripID            uint64
	HoldToken         string
	SeatIDs           []uint64
	Passenger         model.Passenger
	PickupLocationID  *uint64
	DropoffLocationID *uint64
	PaymentPhone      string
}

func (r *CheckoutRequest) normalize() error {
	p := &r.Passenger
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.TrimSpace(p.Email)
	p.IDNumber = strings.TrimSpace(p.IDNumber)
	if p.Name == "" {
		return invalid("passenger.name", "is required")
	}
	if _, err := mail.ParseAddress(p.Email); err != nil || !strings.Contains(p.Email, "@") {
		return invalid("passenger.email", "is not a valid email address")
	}
	phone, ok := utils.NormalizeKenyanPhone(p.Phone)
	if !ok {
		return invalid("passenger.phone", "must be a Kenyan mobile number")
	}
	p.Phone = phone
	if p.IDNumber == "" {
		return invalid("passenger.id_number", "is required")
	}
	if p.Age < 1 || p.Age > 120 {
		return invalid("passenger.age", "must be between 1 and 120")
	}
	if strings.TrimSpace(r.PaymentPhone) == "" {
		r.PaymentPhone = p.Phone
	} else if pay, ok := utils.NormalizeKenyanPhone(r.PaymentPhone); ok {
		r.PaymentPhone = pay
	} else {
		return invalid("payment_phone", "must be a Kenyan mobile number")
	}
	return nil
}

// CreateBooking turns held seats into a pending booking awaiting payment.
// Seats must be held under the given token or still be free.
func (s *BookingService) CreateBooking(ctx context.Context, req CheckoutRequest) (*model.Booking, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	ids := uniqueIDs(req.SeatIDs)
	if len(ids) == 0 {
		return nil, ErrNoSeats
	}
	now := s.Now()
	tx, rollback, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			rollback()
		}
	}()

	trip, seats, bySeat, err := s.lockBookableSeats(ctx, tx, req.TripID, ids, now)
	if err != nil {
		return nil, err
	}
	unavailable := []uint64{}
	for _, id := range ids {
		r, ok := bySeat[id]
		if !ok || !(r.HeldBy(req.HoldToken, now) || r.IsReservable(now)) {
			unavailable = append(unavailable, id)
		}
	}
	if len(unavailable) > 0 {
		return nil, &SeatsUnavailableError{SeatIDs: unavailable}
	}
	if err := s.checkBoardingPointsTx(ctx, tx, trip.RouteID, req); err != nil {
		return nil, err
	}

	priced, total := priceSeats(seats, trip.BasePriceCents)
	b := &model.Booking{
		BookingID:         utils.NewBookingReference(),
		TripID:            trip.ID,
		Status:            model.BookingPending,
		Passenger:         req.Passenger,
		PickupLocationID:  req.PickupLocationID,
		DropoffLocationID: req.DropoffLocationID,
		TotalAmountCents:  total,
		PaymentPhone:      req.PaymentPhone,
		ExpiresAt:         now.Add(s.rules.PaymentTTL),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.bookings.CreateTx(ctx, tx, b); err != nil {
		return nil, err
	}
	b.Seats = make([]model.BookingSeat, 0, len(priced))
	for _, p := range priced {
		b.Seats = append(b.Seats, model.BookingSeat{BookingID: b.ID, SeatID: p.SeatID, SeatNumber: p.SeatNumber, SeatClass: p.SeatClass, PriceCents: p.PriceCents})
	}
	if err := s.bookings.CreateSeatsBulkTx(ctx, tx, b.ID, b.Seats); err != nil {
		return nil, err
	}
	n, err := s.ledger.AttachBookingTx(ctx, tx, trip.ID, ids, b.ID, b.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if n != int64(len(ids)) {
		return nil, &SeatsUnavailableError{SeatIDs: ids}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	s.Log.Info("booking created", "booking_id", b.BookingID, "trip_id", trip.ID, "seats", len(ids), "total_cents", total)
	return b, nil
}

// checkBoardingPointsTx requires pickup and dropoff, when given, to be
// served by the trip's route.
func (s *BookingService) checkBoardingPointsTx(ctx context.Context, tx *sql.Tx, routeID uint64, req CheckoutRequest) error {
	if req.PickupLocationID == nil && req.DropoffLocationID == nil {
		return nil
	}
	served, err := s.trips.RouteLocationIDsTx(ctx, tx, routeID)
	if err != nil {
		return err
	}
	if id := req.PickupLocationID; id != nil && !served[*id] {
		return invalid("pickup_location_id", "is not served by this trip")
	}
	if id := req.DropoffLocationID; id != nil && !served[*id] {
		return invalid("dropoff_location_id", "is not served by this trip")
	}
	if p, d := req.PickupLocationID, req.DropoffLocationID; p != nil && d != nil && *p == *d {
		return invalid("dropoff_location_id", "must differ from pickup_location_id")
	}
	return nil
}

// expireLockedTx expires the bookings among locked that are overdue and
// releases their seats.  It returns the expired ones.
func (s *BookingService) expireLockedTx(ctx context.Context, tx *sql.Tx, locked []model.Booking, now time.Time) ([]model.Booking, int64, error) {
	overdue := make([]model.Booking, 0, len(locked))
	ids := make([]uint64, 0, len(locked))
	for _, b := range locked {
		if b.IsExpired(now) {
			overdue = append(overdue, b)
			ids = append(ids, b.ID)
		}
	}
	if len(ids) == 0 {
		return overdue, 0, nil
	}
	if _, err := s.bookings.ExpireTx(ctx, tx, ids, now); err != nil {
		return nil, 0, err
	}
	released, err := s.ledger.ReleaseBookingsTx(ctx, tx, ids)
	if err != nil {
		return nil, 0, err
	}
	return overdue, released, nil
}

// expireOne applies lazy expiry to a single booking and returns the status
// the booking has under the row lock.  A booking that changed since it was
// read keeps its new status.
func (s *BookingService) expireOne(ctx context.Context, id uint64, now time.Time) (string, error) {
	tx, rollback, err := s.begin(ctx)
	if err != nil {
		return "", err
	}
	defer rollback()
	locked, err := s.bookings.LockManyTx(ctx, tx, []uint64{id})
	if err != nil {
		return "", err
	}
	if len(locked) == 0 {
		return "", repository.ErrBookingNotFound
	}
	expired, _, err := s.expireLockedTx(ctx, tx, locked, now)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	if len(expired) > 0 {
		return model.BookingExpired, nil
	}
	return locked[0].Status, nil
}

// GetBooking loads a booking with its seats.  A pending booking past its
// deadline is expired and its seats released before it is returned.
func (s *BookingService) GetBooking(ctx context.Context, code string) (*model.Booking, error) {
	b, err := s.bookings.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	if b.IsExpired(now) {
		status, err := s.expireOne(ctx, b.ID, now)
		if err != nil {
			return nil, err
		}
		b.Status = status
		if status == model.BookingExpired {
			s.Log.Info("booking expired on view", "booking_id", b.BookingID)
		}
	}
	seats, err := s.bookings.ListSeats(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	b.Seats = seats
	return b, nil
}

// PaymentResult reports the outcome of a payment attempt.
type PaymentResult struct {
	Booking     *model.Booking
	AlreadyPaid bool
}

// ProcessPayment runs the mock M-Pesa confirmation.  Paying twice returns the
// stored transaction.  The booking.confirmed event is published after commit
// and a publish failure only gets logged.
func (s *BookingService) ProcessPayment(ctx context.Context, code, phone string) (*PaymentResult, error) {
	if strings.TrimSpace(phone) != "" {
		norm, ok := utils.NormalizeKenyanPhone(phone)
		if !ok {
			return nil, invalid("phone", "must be a Kenyan mobile number")
		}
		phone = norm
	}
	now := s.Now()
	tx, rollback, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			rollback()
		}
	}()

	b, err := s.bookings.GetByCodeForUpdateTx(ctx, tx, code)
	if err != nil {
		return nil, err
	}
	switch {
	case b.Status == model.BookingConfirmed:
		seats, err := s.bookings.ListSeats(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		b.Seats = seats
		return &PaymentResult{Booking: b, AlreadyPaid: true}, nil
	case b.IsExpired(now):
		if _, _, err := s.expireLockedTx(ctx, tx, []model.Booking{*b}, now); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		committed = true
		return nil, ErrBookingExpired
	case b.Status != model.BookingPending:
		return nil, ErrBookingNotPending
	}

	if phone == "" {
		phone = b.PaymentPhone
	}
	txn := utils.NewMpesaTransactionID()
	ok, err := s.bookings.ConfirmPaymentTx(ctx, tx, b.ID, txn, phone, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBookingNotPending
	}
	if _, err := s.ledger.FinalizeBookingsTx(ctx, tx, []uint64{b.ID}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	b.Status = model.BookingConfirmed
	b.MpesaTransactionID = txn
	b.PaymentPhone = phone
	b.PaidAt = &now
	seats, err := s.bookings.ListSeats(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	b.Seats = seats
	s.Log.Info("payment confirmed", "booking_id", b.BookingID, "txn", txn, "total_cents", b.TotalAmountCents)
	s.publishConfirmed(ctx, b)
	return &PaymentResult{Booking: b}, nil
}

func (s *BookingService) publishConfirmed(ctx context.Context, b *model.Booking) {
	if s.pub == nil {
		return
	}
	ev := queue.BookingConfirmedEvent{
		ID:                 b.ID,
		BookingID:          b.BookingID,
		TripID:             b.TripID,
		PassengerName:      b.Passenger.Name,
		PassengerEmail:     b.Passenger.Email,
		Seats:              b.SeatNumbers(),
		TotalAmountCents:   b.TotalAmountCents,
		MpesaTransactionID: b.MpesaTransactionID,
	}
	if b.PaidAt != nil {
		ev.ConfirmedAt = b.PaidAt.UTC().Format(time.RFC3339)
	}
	if trip, err := s.trips.GetDetail(ctx, b.TripID); err == nil {
		ev.Origin, ev.Destination = trip.Origin, trip.Destination
		ev.CompanyName, ev.NumberPlate = trip.CompanyName, trip.NumberPlate
		ev.DepartureTime = trip.DepartureTime.UTC().Format(time.RFC3339)
	} else {
		s.Log.Warn("publish: trip lookup failed", "booking_id", b.BookingID, "err", err)
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.pub.PublishBookingConfirmed(pctx, ev); err != nil {
		s.Log.Warn("publish booking.confirmed failed", "booking_id", b.BookingID, "err", err)
	}
}

// Confirmation is a paid booking with its trip.
type Confirmation struct {
	Booking *model.Booking    `json:"booking"`
	Trip    *model.TripDetail `json:"trip"`
}

// Confirmation returns the data of the confirmation page and the receipt.
func (s *BookingService) Confirmation(ctx context.Context, code string) (*Confirmation, error) {
	b, err := s.GetBooking(ctx, code)
	if err != nil {
		return nil, err
	}
	if b.Status != model.BookingConfirmed {
		return nil, ErrNotConfirmed
	}
	trip, err := s.trips.GetDetail(ctx, b.TripID)
	if err != nil {
		return nil, err
	}
	return &Confirmation{Booking: b, Trip: trip}, nil
}

// ConfirmationByID is Confirmation keyed by the database id, used by the
// notifier.
func (s *BookingService) ConfirmationByID(ctx context.Context, id uint64) (*Confirmation, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Confirmation(ctx, b.BookingID)
}
