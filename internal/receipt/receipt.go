// Package receipt renders the PDF receipt of a paid booking.
package receipt

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"

	"github.com/iliyamo/bus-ticket-booking/internal/config"
	"github.com/iliyamo/bus-ticket-booking/internal/model"
	"github.com/iliyamo/bus-ticket-booking/internal/utils"
)

// Data is everything printed on a receipt.
type Data struct {
	Company  config.CompanyInfo
	Currency string
	Location *time.Location
	Booking  *model.Booking
	Trip     *model.TripDetail
}

// Filename is the download name of a booking's receipt.
func Filename(bookingID string) string {
	return "booking_" + bookingID + ".pdf"
}

// Render builds the A4 receipt and returns the PDF bytes.
func Render(d Data) ([]byte, error) {
	if d.Booking == nil || d.Trip == nil {
		return nil, fmt.Errorf("receipt: booking and trip are required")
	}
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	money := func(c uint64) string { return utils.FormatMoney(d.Currency, c) }
	b, t := d.Booking, d.Trip

	pdf := gofpdf.New("P", "mm", "A4", "")
	// Core fonts are cp1252; names and addresses arrive as UTF-8.
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Booking Receipt "+b.BookingID, true)
	pdf.SetAuthor(d.Company.Name, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, tr(d.Company.Name))
	pdf.Ln(9)
	pdf.SetFont("Helvetica", "", 10)
	for _, line := range []string{d.Company.Address, d.Company.Phone, d.Company.Email} {
		pdf.Cell(0, 5, tr(line))
		pdf.Ln(5)
	}
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, "BOOKING RECEIPT")
	pdf.Ln(10)

	section := func(title string, rows [][2]string) {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.SetFillColor(235, 235, 235)
		pdf.CellFormat(0, 7, tr(title), "", 1, "L", true, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		for _, r := range rows {
			pdf.CellFormat(55, 6, tr(r[0]), "", 0, "L", false, 0, "")
			pdf.CellFormat(0, 6, tr(r[1]), "", 1, "L", false, 0, "")
		}
		pdf.Ln(3)
	}

	paidAt := "-"
	if b.PaidAt != nil {
		paidAt = b.PaidAt.In(loc).Format("02 Jan 2006 15:04")
	}
	section("Booking", [][2]string{
		{"Booking ID", b.BookingID},
		{"Status", b.Status},
		{"Booked on", b.CreatedAt.In(loc).Format("02 Jan 2006 15:04")},
	})
	section("Trip", [][2]string{
		{"Route", t.Origin + " to " + t.Destination},
		{"Operator", t.CompanyName},
		{"Bus", fmt.Sprintf("%s (%s)", t.NumberPlate, t.BusType)},
		{"Departure", t.DepartureTime.In(loc).Format("Mon 02 Jan 2006 15:04")},
		{"Arrival", t.ArrivalTime.In(loc).Format("Mon 02 Jan 2006 15:04")},
	})
	nationality := "Non-Kenyan"
	if b.Passenger.IsKenyan {
		nationality = "Kenyan"
	}
	section("Passenger", [][2]string{
		{"Name", b.Passenger.Name},
		{"Email", b.Passenger.Email},
		{"Phone", b.Passenger.Phone},
		{"ID number", b.Passenger.IDNumber},
		{"Age", fmt.Sprint(b.Passenger.Age)},
		{"Nationality", nationality},
	})

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 7, "Seats", "", 1, "L", true, 0, "")
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(40, 6, "Seat", "B", 0, "L", false, 0, "")
	pdf.CellFormat(50, 6, "Class", "B", 0, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Price", "B", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, s := range b.Seats {
		pdf.CellFormat(40, 6, tr(s.SeatNumber), "", 0, "L", false, 0, "")
		pdf.CellFormat(50, 6, classLabel(s.SeatClass), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, tr(money(s.PriceCents)), "", 1, "R", false, 0, "")
	}
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(90, 7, "Total", "T", 0, "L", false, 0, "")
	pdf.CellFormat(0, 7, tr(money(b.TotalAmountCents)), "T", 1, "R", false, 0, "")
	pdf.Ln(4)

	section("Payment", [][2]string{
		{"Method", "M-Pesa"},
		{"Transaction ID", orDash(b.MpesaTransactionID)},
		{"Phone", orDash(b.PaymentPhone)},
		{"Paid at", paidAt},
		{"Amount", money(b.TotalAmountCents)},
	})

	pdf.SetFont("Helvetica", "I", 9)
	pdf.MultiCell(0, 5, tr("Please arrive at the boarding point 30 minutes before departure and carry a valid ID. "+
		"Thank you for travelling with "+d.Company.Name+"."), "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("receipt: %w", err)
	}
	return buf.Bytes(), nil
}

func classLabel(c string) string {
	if c == "" {
		return "-"
	}
	return c[:1] + strings.ToLower(c[1:])
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
