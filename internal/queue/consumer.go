package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// HandlerFunc processes one decoded event.  A returned error rejects the
// message without requeue.
type HandlerFunc func(ctx context.Context, ev BookingConfirmedEvent) error

// Consumer reads booking.confirmed with manual acks and reconnects with
// exponential backoff until its context is cancelled.
type Consumer struct {
	URL      string
	Prefetch int
	Handle   HandlerFunc
	Log      *slog.Logger
}

func NewConsumer(url string, h HandlerFunc) *Consumer {
	return &Consumer{URL: url, Prefetch: 50, Handle: h, Log: slog.Default()}
}

// Run blocks until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.Warn("booking consumer: dial failed", "err", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.Warn("booking consumer: loop ended, reconnecting", "err", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.Prefetch, 0, false); err != nil {
		c.Log.Warn("booking consumer: set qos failed", "err", err)
	}
	if _, err := ch.QueueDeclare(BookingConfirmedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(BookingConfirmedQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.Log.Info("booking consumer: listening", "queue", BookingConfirmedQueue)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.Deliver(ctx, d)
		}
	}
}

// Deliver decodes and handles one delivery, then acks or nacks it.
func (c *Consumer) Deliver(ctx context.Context, d amqp.Delivery) {
	var ev BookingConfirmedEvent
	err := json.Unmarshal(d.Body, &ev)
	if err != nil {
		err = fmt.Errorf("unmarshal: %w", err)
	} else {
		err = c.Handle(ctx, ev)
	}
	if err != nil {
		c.Log.Error("booking consumer: handle failed", "booking_id", ev.BookingID, "err", err)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
