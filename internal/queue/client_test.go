package queue

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{URL: "amqp://localhost"}.withDefaults()

	assert.Equal(t, "dropcall", cfg.Prefix)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.BackoffBase)

	assert.Equal(t, "dropcall.jobs", cfg.exchange())
	assert.Equal(t, "dropcall.jobs", cfg.mainQueue())
	assert.Equal(t, "dropcall.jobs.retry", cfg.retryQueue())
	assert.Equal(t, "dropcall.jobs.dead", cfg.deadQueue())
}

func TestAttemptsOf(t *testing.T) {
	assert.Equal(t, 0, attemptsOf(amqp.Delivery{}))
	assert.Equal(t, 2, attemptsOf(amqp.Delivery{Headers: amqp.Table{headerAttempts: int32(2)}}))
	assert.Equal(t, 5, attemptsOf(amqp.Delivery{Headers: amqp.Table{headerAttempts: int64(5)}}))
	assert.Equal(t, 0, attemptsOf(amqp.Delivery{Headers: amqp.Table{headerAttempts: "2"}}))
}

func TestJitterStaysNearBase(t *testing.T) {
	base := 4 * time.Second
	for i := 0; i < 100; i++ {
		wait := jitter(base)
		assert.GreaterOrEqual(t, wait, time.Duration(float64(base)*0.74))
		assert.LessOrEqual(t, wait, time.Duration(float64(base)*1.26))
	}
}
