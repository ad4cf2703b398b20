package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadRateLimitConfigDefaults(t *testing.T) {
	cfg := LoadRateLimitConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 100, cfg.Capacity)
	assert.Equal(t, "ip", cfg.KeyStrategy)
	// 100 tokens refilled one every 600ms is 100 per minute.
	assert.Equal(t, time.Minute, time.Duration(cfg.Capacity)*cfg.RefillInterval)
}

func TestLoadRateLimitConfigPerMinute(t *testing.T) {
	t.Setenv("RATE_LIMIT_PER_MINUTE", "30")
	cfg := LoadRateLimitConfig()
	assert.Equal(t, 30, cfg.Capacity)
	assert.Equal(t, 2*time.Second, cfg.RefillInterval)
	assert.GreaterOrEqual(t, cfg.TTL, 10*time.Second)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_BOOL", "off")
	t.Setenv("X_INT", "nope")
	t.Setenv("X_DUR", "90s")
	assert.False(t, envBool("X_BOOL", true))
	assert.Equal(t, 7, envInt("X_INT", 7))
	assert.Equal(t, 90*time.Second, envDur("X_DUR", time.Second))
	assert.Equal(t, map[string]bool{"GET": true, "HEAD": true}, parseMethods(" get, HEAD ,"))
}

func TestLoadBookingDefaults(t *testing.T) {
	b := LoadBooking()
	assert.Equal(t, 5*time.Minute, b.HoldTTL)
	assert.Equal(t, 5*time.Minute, b.PaymentTTL)
	assert.Equal(t, "KSh", b.Currency)
	loc := b.Location()
	_, offset := time.Date(2025, 1, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, 3*60*60, offset)
}

func TestAMQPURLPrecedence(t *testing.T) {
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("AMQP_URL", "amqp://b")
	assert.Equal(t, "amqp://b", AMQPURL())
	t.Setenv("RABBITMQ_URL", "amqp://a")
	assert.Equal(t, "amqp://a", AMQPURL())
}
