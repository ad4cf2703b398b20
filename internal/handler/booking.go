package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-ticket-booking/internal/config"
	"github.com/iliyamo/bus-ticket-booking/internal/model"
	"github.com/iliyamo/bus-ticket-booking/internal/receipt"
	"github.com/iliyamo/bus-ticket-booking/internal/service"
	"github.com/iliyamo/bus-ticket-booking/internal/utils"
)

// BookingHandler serves the guest checkout flow: hold seats, enter passenger
// details, pay, then view the confirmation and download the receipt.
type BookingHandler struct {
	Svc     *service.BookingService
	Company config.CompanyInfo
	Log     *slog.Logger
}

func NewBookingHandler(svc *service.BookingService, company config.CompanyInfo, log *slog.Logger) *BookingHandler {
	return &BookingHandler{Svc: svc, Company: company, Log: log}
}

type reserveReq struct {
	SeatIDs []uint64 `json:"seat_ids"`
}

// Reserve handles POST /v1/trips/:id/reserve.  When any seat is taken the
// whole request fails with 409 and the list of unavailable seat ids.
func (h *BookingHandler) Reserve(c echo.Context) error {
	tripID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid trip id")
	}
	var req reserveReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	hold, err := h.Svc.ReserveSeats(c.Request().Context(), tripID, req.SeatIDs)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"hold_token":      hold.Token,
		"trip_id":         hold.TripID,
		"expires_at":      hold.ExpiresAt,
		"seats":           hold.Seats,
		"total_cents":     hold.TotalCents,
		"total_formatted": utils.FormatMoney(h.Svc.Rules().Currency, hold.TotalCents),
	})
}

type checkoutReq struct {
	TripID            uint64          `json:"trip_id"`
	HoldToken         string          `json:"hold_token"`
	SeatIDs           []uint64        `json:"seat_ids"`
	Passenger         model.Passenger `json:"passenger"`
	PickupLocationID  *uint64         `json:"pickup_location_id"`
	DropoffLocationID *uint64         `json:"dropoff_location_id"`
	PaymentPhone      string          `json:"payment_phone"`
}

// Create handles POST /v1/bookings and answers 201 with the pending booking.
func (h *BookingHandler) Create(c echo.Context) error {
	var req checkoutReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.TripID == 0 {
		return badRequest(c, "trip_id required")
	}
	b, err := h.Svc.CreateBooking(c.Request().Context(), service.CheckoutRequest{
		TripID:            req.TripID,
		HoldToken:         strings.TrimSpace(req.HoldToken),
		SeatIDs:           req.SeatIDs,
		Passenger:         req.Passenger,
		PickupLocationID:  req.PickupLocationID,
		DropoffLocationID: req.DropoffLocationID,
		PaymentPhone:      req.PaymentPhone,
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, h.view(b))
}

// bookingView is a booking as the payment page shows it.
type bookingView struct {
	*model.Booking
	SecondsLeft    int64  `json:"seconds_left"`
	TotalFormatted string `json:"total_formatted"`
}

func (h *BookingHandler) view(b *model.Booking) bookingView {
	now := h.Svc.Now()
	b.Status = b.EffectiveStatus(now)
	return bookingView{
		Booking:        b,
		SecondsLeft:    b.SecondsLeft(now),
		TotalFormatted: utils.FormatMoney(h.Svc.Rules().Currency, b.TotalAmountCents),
	}
}

// Get handles GET /v1/bookings/:booking_id.  An overdue pending booking is
// expired in the same request.
func (h *BookingHandler) Get(c echo.Context) error {
	b, err := h.Svc.GetBooking(c.Request().Context(), c.Param("booking_id"))
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, h.view(b))
}

type payReq struct {
	Phone string `json:"phone"`
}

// Pay handles POST /v1/bookings/:booking_id/pay (mock M-Pesa).  Paying an
// already confirmed booking answers 200 with the stored transaction.
func (h *BookingHandler) Pay(c echo.Context) error {
	var req payReq
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "invalid body")
		}
	}
	res, err := h.Svc.ProcessPayment(c.Request().Context(), c.Param("booking_id"), req.Phone)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"booking":              h.view(res.Booking),
		"mpesa_transaction_id": res.Booking.MpesaTransactionID,
		"already_paid":         res.AlreadyPaid,
	})
}

// Confirmation handles GET /v1/bookings/:booking_id/confirmation.
func (h *BookingHandler) Confirmation(c echo.Context) error {
	conf, err := h.Svc.Confirmation(c.Request().Context(), c.Param("booking_id"))
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"booking": h.view(conf.Booking),
		"trip":    conf.Trip,
	})
}

// Receipt handles GET /v1/bookings/:booking_id/receipt.pdf.
func (h *BookingHandler) Receipt(c echo.Context) error {
	conf, err := h.Svc.Confirmation(c.Request().Context(), c.Param("booking_id"))
	if err != nil {
		return fail(c, h.Log, err)
	}
	pdf, err := receipt.Render(receipt.Data{
		Company:  h.Company,
		Currency: h.Svc.Rules().Currency,
		Location: h.Svc.Rules().Location(),
		Booking:  conf.Booking,
		Trip:     conf.Trip,
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+receipt.Filename(conf.Booking.BookingID)+`"`)
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.Blob(http.StatusOK, "application/pdf", pdf)
}
