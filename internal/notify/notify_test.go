package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/bus-ticket-booking/internal/config"
	"github.com/iliyamo/bus-ticket-booking/internal/mailer"
	"github.com/iliyamo/bus-ticket-booking/internal/model"
	"github.com/iliyamo/bus-ticket-booking/internal/queue"
	"github.com/iliyamo/bus-ticket-booking/internal/service"
)

type stubLoader struct {
	conf *service.Confirmation
	err  error
}

func (s stubLoader) ConfirmationByID(context.Context, uint64) (*service.Confirmation, error) {
	return s.conf, s.err
}

type recordingSender struct {
	sent []mailer.Envelope
	err  error
}

func (r *recordingSender) Send(_ context.Context, env mailer.Envelope) error {
	r.sent = append(r.sent, env)
	return r.err
}

func confirmation() *service.Confirmation {
	paid := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	return &service.Confirmation{
		Booking: &model.Booking{
			ID: 5, BookingID: "ABCDEF12-345", Status: model.BookingConfirmed,
			Passenger:          model.Passenger{Name: "Jane <b>W</b>", Email: "jane@example.com"},
			TotalAmountCents:   210000,
			MpesaTransactionID: "MPesa0123456789",
			PaidAt:             &paid,
			Seats:              []model.BookingSeat{{SeatNumber: "01A", PriceCents: 110000}, {SeatNumber: "01B", PriceCents: 100000}},
		},
		Trip: &model.TripDetail{
			Trip:   model.Trip{DepartureTime: paid.Add(24 * time.Hour), ArrivalTime: paid.Add(30 * time.Hour)},
			Origin: "Nairobi", Destination: "Mombasa", CompanyName: "Coast Express", NumberPlate: "KDA 123A",
		},
	}
}

func newNotifier(t *testing.T, loader ConfirmationLoader, mail mailer.Sender) *Notifier {
	n := New(loader, mail, config.LoadCompany(), config.BookingConfig{Timezone: "Africa/Nairobi", Currency: "KSh"})
	n.LogPath = filepath.Join(t.TempDir(), "logs", "booking.log")
	n.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	return n
}

func event() queue.BookingConfirmedEvent {
	return queue.BookingConfirmedEvent{
		ID: 5, BookingID: "ABCDEF12-345", TripID: 7, Origin: "Nairobi", Destination: "Mombasa",
		PassengerName: "Jane", Seats: []string{"01A", "01B"}, TotalAmountCents: 210000,
		MpesaTransactionID: "MPesa0123456789", ConfirmedAt: "2025-03-10T09:00:00Z",
	}
}

func TestHandleLogsAndEmails(t *testing.T) {
	mail := &recordingSender{}
	n := newNotifier(t, stubLoader{conf: confirmation()}, mail)

	require.NoError(t, n.Handle(context.Background(), event()))

	logged, err := os.ReadFile(n.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(logged), "booking_id=ABCDEF12-345")
	assert.Contains(t, string(logged), "total=KSh 2,100.00")
	assert.Contains(t, string(logged), "seats=[01A,01B]")

	require.Len(t, mail.sent, 1)
	env := mail.sent[0]
	assert.Equal(t, "jane@example.com", env.ToEmail)
	assert.Equal(t, "Booking Confirmed - ABCDEF12-345", env.Subject)
	assert.Contains(t, env.HTML, "Jane &lt;b&gt;W&lt;/b&gt;")
	assert.Contains(t, env.Text, "01A, 01B")
	require.Len(t, env.Attachments, 1)
	assert.Equal(t, "booking_ABCDEF12-345.pdf", env.Attachments[0].Filename)
	assert.Equal(t, "%PDF-", string(env.Attachments[0].Content[:5]))
}

func TestHandleFailures(t *testing.T) {
	n := newNotifier(t, stubLoader{err: errors.New("gone")}, &recordingSender{})
	assert.Error(t, n.Handle(context.Background(), event()))
	assert.Error(t, n.Handle(context.Background(), queue.BookingConfirmedEvent{}))

	n = newNotifier(t, stubLoader{conf: confirmation()}, &recordingSender{err: errors.New("rate limited")})
	assert.ErrorContains(t, n.Handle(context.Background(), event()), "rate limited")
}
