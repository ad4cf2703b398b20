// Package notify reacts to booking.confirmed events: it appends the booking
// log and emails the passenger a confirmation with the PDF receipt.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/iliyamo/bus-ticket-booking/internal/config"
	"github.com/iliyamo/bus-ticket-booking/internal/mailer"
	"github.com/iliyamo/bus-ticket-booking/internal/queue"
	"github.com/iliyamo/bus-ticket-booking/internal/receipt"
	"github.com/iliyamo/bus-ticket-booking/internal/service"
	"github.com/iliyamo/bus-ticket-booking/internal/utils"
)

// ConfirmationLoader loads a paid booking with its trip.
type ConfirmationLoader interface {
	ConfirmationByID(ctx context.Context, id uint64) (*service.Confirmation, error)
}

type Notifier struct {
	Loader  ConfirmationLoader
	Mail    mailer.Sender
	Company config.CompanyInfo
	Rules   config.BookingConfig
	LogPath string
	Log     *slog.Logger

	mu sync.Mutex
}

func New(loader ConfirmationLoader, mail mailer.Sender, company config.CompanyInfo, rules config.BookingConfig) *Notifier {
	return &Notifier{
		Loader:  loader,
		Mail:    mail,
		Company: company,
		Rules:   rules,
		LogPath: filepath.Join("logs", "booking.log"),
		Log:     slog.Default(),
	}
}

// Handle is the queue.HandlerFunc of the notifier.
func (n *Notifier) Handle(ctx context.Context, ev queue.BookingConfirmedEvent) error {
	if ev.ID == 0 || ev.BookingID == "" {
		return errors.New("event without booking id")
	}
	if err := n.appendLog(ev); err != nil {
		return err
	}
	conf, err := n.Loader.ConfirmationByID(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("load booking %s: %w", ev.BookingID, err)
	}
	env, err := n.Compose(conf)
	if err != nil {
		return err
	}
	if err := n.Mail.Send(ctx, env); err != nil {
		return err
	}
	n.Log.Info("confirmation sent", "booking_id", ev.BookingID, "to", env.ToEmail)
	return nil
}

// FormatLogLine renders the single booking.log line of an event.
func FormatLogLine(ev queue.BookingConfirmedEvent, currency string) string {
	return fmt.Sprintf("[%s] Booking confirmed | booking_id=%s | trip_id=%d | route=%q | company=%q | bus=%q | departure=%s | passenger=%q | total=%s | seats=[%s] | txn=%s\n",
		ev.ConfirmedAt, ev.BookingID, ev.TripID, ev.Origin+" -> "+ev.Destination, ev.CompanyName, ev.NumberPlate,
		ev.DepartureTime, ev.PassengerName, utils.FormatMoney(currency, ev.TotalAmountCents),
		strings.Join(ev.Seats, ","), ev.MpesaTransactionID)
}

func (n *Notifier) appendLog(ev queue.BookingConfirmedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(n.LogPath), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(n.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open booking log: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(FormatLogLine(ev, n.Rules.Currency)); err != nil {
		return fmt.Errorf("write booking log: %w", err)
	}
	return nil
}

var emailTmpl = template.Must(template.New("email").Parse(`<html><body style="font-family:Arial,sans-serif">
<h2>{{.Company}}</h2>
<p>Dear {{.Passenger}},</p>
<p>Your booking <strong>{{.BookingID}}</strong> is confirmed.</p>
<table cellpadding="4">
<tr><td>Route</td><td>{{.Route}}</td></tr>
<tr><td>Departure</td><td>{{.Departure}}</td></tr>
<tr><td>Bus</td><td>{{.Bus}}</td></tr>
<tr><td>Seats</td><td>{{.Seats}}</td></tr>
<tr><td>Total paid</td><td>{{.Total}}</td></tr>
<tr><td>M-Pesa transaction</td><td>{{.Txn}}</td></tr>
</table>
<p>Your receipt is attached. Please arrive 30 minutes before departure.</p>
<p>{{.Company}}<br>{{.Phone}}<br>{{.Email}}</p>
</body></html>`))

type emailView struct {
	Company, Phone, Email        string
	Passenger, BookingID         string
	Route, Departure, Bus, Seats string
	Total, Txn                   string
}

// Compose builds the confirmation email with the receipt attached.
func (n *Notifier) Compose(c *service.Confirmation) (mailer.Envelope, error) {
	b, t := c.Booking, c.Trip
	loc := n.Rules.Location()
	pdf, err := receipt.Render(receipt.Data{Company: n.Company, Currency: n.Rules.Currency, Location: loc, Booking: b, Trip: t})
	if err != nil {
		return mailer.Envelope{}, err
	}
	v := emailView{
		Company:   n.Company.Name,
		Phone:     n.Company.Phone,
		Email:     n.Company.Email,
		Passenger: b.Passenger.Name,
		BookingID: b.BookingID,
		Route:     t.Origin + " to " + t.Destination,
		Departure: t.DepartureTime.In(loc).Format("Mon 02 Jan 2006 15:04"),
		Bus:       t.CompanyName + " " + t.NumberPlate,
		Seats:     strings.Join(b.SeatNumbers(), ", "),
		Total:     utils.FormatMoney(n.Rules.Currency, b.TotalAmountCents),
		Txn:       b.MpesaTransactionID,
	}
	var html bytes.Buffer
	if err := emailTmpl.Execute(&html, v); err != nil {
		return mailer.Envelope{}, err
	}
	text := fmt.Sprintf("Dear %s,\n\nYour booking %s is confirmed.\nRoute: %s\nDeparture: %s\nSeats: %s\nTotal paid: %s\nM-Pesa transaction: %s\n\n%s\n",
		v.Passenger, v.BookingID, v.Route, v.Departure, v.Seats, v.Total, v.Txn, v.Company)
	return mailer.Envelope{
		ToEmail:     b.Passenger.Email,
		ToName:      b.Passenger.Name,
		Subject:     fmt.Sprintf("Booking Confirmed - %s", b.BookingID),
		HTML:        html.String(),
		Text:        text,
		Attachments: []mailer.Attachment{{Filename: receipt.Filename(b.BookingID), Content: pdf}},
	}, nil
}
