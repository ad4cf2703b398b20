// Package queue carries booking events over RabbitMQ.
package queue

// BookingConfirmedQueue is the durable queue that receives an event for every
// paid booking.
const BookingConfirmedQueue = "booking.confirmed"

// BookingConfirmedEvent is published once a booking has been paid.  It holds
// enough for the log line; the notifier reloads the booking for the email.
type BookingConfirmedEvent struct {
	ID                 uint64   `json:"id"`
	BookingID          string   `json:"booking_id"`
	TripID             uint64   `json:"trip_id"`
	Origin             string   `json:"origin"`
	Destination        string   `json:"destination"`
	CompanyName        string   `json:"company_name"`
	NumberPlate        string   `json:"number_plate"`
	DepartureTime      string   `json:"departure_time"`
	PassengerName      string   `json:"passenger_name"`
	PassengerEmail     string   `json:"passenger_email"`
	Seats              []string `json:"seats"`
	TotalAmountCents   uint64   `json:"total_amount_cents"`
	MpesaTransactionID string   `json:"mpesa_transaction_id"`
	ConfirmedAt        string   `json:"confirmed_at"`
}
