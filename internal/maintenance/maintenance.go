// Package maintenance stores the site-wide maintenance switch in Redis so the
// CLI can flip it while every server instance reads it.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	KeyMode    = "maintenance_mode"
	KeyMessage = "maintenance_message"
	KeyETA     = "maintenance_eta"
	KeyStart   = "maintenance_start_time"
	KeyEnd     = "maintenance_end_time"

	DefaultMessage  = "We are performing scheduled maintenance to improve your experience."
	DefaultDuration = 30 * time.Minute
)

var allKeys = []string{KeyMode, KeyMessage, KeyETA, KeyStart, KeyEnd}

// Status is the current maintenance window.
type Status struct {
	Enabled   bool       `json:"enabled"`
	Message   string     `json:"message,omitempty"`
	ETA       string     `json:"eta,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndsAt    *time.Time `json:"ends_at,omitempty"`
}

// Options configure Enable.  A zero Duration keeps maintenance on until it
// is switched off.
type Options struct {
	Duration time.Duration
	Message  string
	ETA      string
}

type Store struct {
	rdb *redis.Client
	Now func() time.Time
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, Now: func() time.Time { return time.Now().UTC() }}
}

// Enable turns maintenance on.  With a duration every key expires at the
// scheduled end, so the site reopens by itself.
func (s *Store) Enable(ctx context.Context, o Options) (Status, error) {
	if s.rdb == nil {
		return Status{}, errors.New("maintenance: redis unavailable")
	}
	if o.Message == "" {
		o.Message = DefaultMessage
	}
	if o.ETA == "" {
		mins := int(o.Duration / time.Minute)
		if mins <= 0 {
			mins = int(DefaultDuration / time.Minute)
		}
		o.ETA = fmt.Sprintf("%d minutes", mins)
	}
	now := s.Now()
	st := Status{Enabled: true, Message: o.Message, ETA: o.ETA, StartedAt: &now}
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, KeyEnd)
		p.Set(ctx, KeyMode, "1", o.Duration)
		p.Set(ctx, KeyMessage, o.Message, o.Duration)
		p.Set(ctx, KeyETA, o.ETA, o.Duration)
		p.Set(ctx, KeyStart, now.Format(time.RFC3339), o.Duration)
		if o.Duration > 0 {
			end := now.Add(o.Duration)
			st.EndsAt = &end
			p.Set(ctx, KeyEnd, end.Format(time.RFC3339), o.Duration)
		}
		return nil
	})
	if err != nil {
		return Status{}, fmt.Errorf("maintenance: enable: %w", err)
	}
	return st, nil
}

// Disable clears every key.  It reports the status that was active before.
func (s *Store) Disable(ctx context.Context) (Status, error) {
	if s.rdb == nil {
		return Status{}, errors.New("maintenance: redis unavailable")
	}
	prev, err := s.Status(ctx)
	if err != nil {
		return Status{}, err
	}
	if err := s.rdb.Del(ctx, allKeys...).Err(); err != nil {
		return Status{}, fmt.Errorf("maintenance: disable: %w", err)
	}
	return prev, nil
}

// Status reads the flags.  A missing client reads as disabled.
func (s *Store) Status(ctx context.Context) (Status, error) {
	if s.rdb == nil {
		return Status{}, nil
	}
	vals, err := s.rdb.MGet(ctx, allKeys...).Result()
	if err != nil {
		return Status{}, fmt.Errorf("maintenance: status: %w", err)
	}
	str := func(i int) string {
		if v, ok := vals[i].(string); ok {
			return v
		}
		return ""
	}
	if str(0) == "" {
		return Status{}, nil
	}
	st := Status{Enabled: true, Message: str(1), ETA: str(2)}
	if st.Message == "" {
		st.Message = DefaultMessage
	}
	if st.ETA == "" {
		st.ETA = "30 minutes"
	}
	if t, err := time.Parse(time.RFC3339, str(3)); err == nil {
		st.StartedAt = &t
	}
	if t, err := time.Parse(time.RFC3339, str(4)); err == nil {
		st.EndsAt = &t
	}
	return st, nil
}

// Enabled is the fast check used by the middleware.
func (s *Store) Enabled(ctx context.Context) (bool, error) {
	if s.rdb == nil {
		return false, nil
	}
	n, err := s.rdb.Exists(ctx, KeyMode).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
