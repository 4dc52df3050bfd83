package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrPoison marks a delivery whose body cannot be decoded; it goes straight
// to the dead queue instead of being retried.
var ErrPoison = errors.New("poison message")

// Config holds the broker connection and retry policy.
type Config struct {
	URL         string
	Prefix      string
	Concurrency int
	MaxAttempts int
	BackoffBase time.Duration

	// Dialer overrides the AMQP dial for tests.
	Dialer func(ctx context.Context, url string) (*amqp.Connection, error)
}

func (c Config) withDefaults() Config {
	if c.Prefix == "" {
		c.Prefix = "dropcall"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	return c
}

func (c Config) exchange() string   { return c.Prefix + ".jobs" }
func (c Config) mainQueue() string  { return c.Prefix + ".jobs" }
func (c Config) retryQueue() string { return c.Prefix + ".jobs.retry" }
func (c Config) deadQueue() string  { return c.Prefix + ".jobs.dead" }

const (
	routingKeyJobs  = "jobs"
	routingKeyRetry = "retry"
	routingKeyDead  = "dead"
	headerAttempts  = "x-attempts"
)

// Handler executes one job. A returned error means the whole job failed and
// will be retried; partially delivered message plans are redelivered in full.
type Handler func(ctx context.Context, job Job) error

// Client owns the AMQP connection, the publish channel pool and the consumer
// pool. Construct once, share by reference, Close on shutdown.
type Client struct {
	config Config
	logger *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	pool chan *amqp.Channel

	consumerWG sync.WaitGroup
}

func NewClient(ctx context.Context, config Config, logger *slog.Logger) (*Client, error) {
	config = config.withDefaults()
	if config.URL == "" {
		return nil, fmt.Errorf("queue URL is required")
	}

	c := &Client{config: config, logger: logger}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	logger.Info("queue client ready", slog.String("prefix", config.Prefix))
	return c, nil
}

func (c *Client) connect(ctx context.Context) error {
	dial := c.config.Dialer
	if dial == nil {
		dial = func(_ context.Context, u string) (*amqp.Connection, error) { return amqp.Dial(u) }
	}
	conn, err := dial(ctx, c.config.URL)
	if err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := c.declareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declare topology: %w", err)
	}
	_ = ch.Close()

	pool := make(chan *amqp.Channel, 8)
	for i := 0; i < cap(pool); i++ {
		pch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return fmt.Errorf("fill channel pool: %w", err)
		}
		pool <- pch
	}

	c.mu.Lock()
	c.conn = conn
	c.pool = pool
	c.mu.Unlock()
	return nil
}

// declareTopology sets up one durable work queue, a TTL-based retry queue
// that dead-letters back into the work queue, and a final dead queue.
func (c *Client) declareTopology(ch *amqp.Channel) error {
	cfg := c.config
	if err := ch.ExchangeDeclare(cfg.exchange(), "direct", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(cfg.mainQueue(), true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(cfg.mainQueue(), routingKeyJobs, cfg.exchange(), false, nil); err != nil {
		return err
	}
	retryArgs := amqp.Table{
		"x-dead-letter-exchange":    cfg.exchange(),
		"x-dead-letter-routing-key": routingKeyJobs,
	}
	if _, err := ch.QueueDeclare(cfg.retryQueue(), true, false, false, false, retryArgs); err != nil {
		return err
	}
	if err := ch.QueueBind(cfg.retryQueue(), routingKeyRetry, cfg.exchange(), false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(cfg.deadQueue(), true, false, false, false, nil); err != nil {
		return err
	}
	return ch.QueueBind(cfg.deadQueue(), routingKeyDead, cfg.exchange(), false, nil)
}

// Publish enqueues a job. The idempotency key rides as the broker message id
// so redeliveries of the same logical work are recognizable downstream.
func (c *Client) Publish(ctx context.Context, job Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	ch, err := c.borrow(ctx)
	if err != nil {
		return err
	}
	defer c.giveBack(ch)

	err = ch.PublishWithContext(ctx, c.config.exchange(), routingKeyJobs, false, false, amqp.Publishing{
		ContentType:   "application/json",
		Body:          body,
		DeliveryMode:  amqp.Persistent,
		MessageId:     job.Key,
		CorrelationId: job.ID,
		Type:          string(job.Kind),
		Timestamp:     job.EnqueuedAt,
	})
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

func (c *Client) borrow(ctx context.Context) (*amqp.Channel, error) {
	c.mu.Lock()
	pool := c.pool
	c.mu.Unlock()
	select {
	case ch := <-pool:
		return ch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) giveBack(ch *amqp.Channel) {
	c.mu.Lock()
	pool := c.pool
	c.mu.Unlock()
	select {
	case pool <- ch:
	default:
		_ = ch.Close()
	}
}

// Run consumes jobs with the configured concurrency until ctx is canceled,
// reconnecting with jittered backoff when the broker connection drops.
func (c *Client) Run(ctx context.Context, handler Handler) error {
	for {
		closed, err := c.startConsumers(ctx, handler)
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			c.logger.Error("broker connection lost, reconnecting", slog.Any("error", amqpErr))
		}

		backoff := time.Second
		for {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := c.connect(ctx); err == nil {
				break
			} else {
				wait := jitter(backoff)
				c.logger.Error("reconnect failed", slog.Any("error", err), slog.Duration("retry_in", wait))
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(wait):
				}
				if backoff < 30*time.Second {
					backoff *= 2
				}
			}
		}
	}
}

func (c *Client) startConsumers(ctx context.Context, handler Handler) (chan *amqp.Error, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consumer channel: %w", err)
	}
	if err := ch.Qos(c.config.Concurrency, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("set prefetch: %w", err)
	}
	deliveries, err := ch.Consume(c.config.mainQueue(), "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume: %w", err)
	}

	for i := 0; i < c.config.Concurrency; i++ {
		c.consumerWG.Add(1)
		go func() {
			defer c.consumerWG.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					c.handleDelivery(ctx, ch, d, handler)
				}
			}
		}()
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	return closed, nil
}

func (c *Client) handleDelivery(ctx context.Context, ch *amqp.Channel, d amqp.Delivery, handler Handler) {
	var job Job
	if err := json.Unmarshal(d.Body, &job); err != nil {
		c.logger.Error("poison job body, dead-lettering",
			slog.String("message_id", d.MessageId), slog.Any("error", err))
		_ = c.forward(ch, routingKeyDead, d, attemptsOf(d))
		_ = d.Ack(false)
		return
	}

	err := handler(ctx, job)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	attempts := attemptsOf(d) + 1
	if errors.Is(err, ErrPoison) || attempts >= c.config.MaxAttempts {
		c.logger.Error("job dead-lettered",
			slog.String("key", job.Key),
			slog.String("kind", string(job.Kind)),
			slog.Int("attempts", attempts),
			slog.Any("error", err))
		_ = c.forward(ch, routingKeyDead, d, attempts)
		_ = d.Ack(false)
		return
	}

	delay := c.config.BackoffBase << (attempts - 1)
	c.logger.Warn("job failed, scheduling retry",
		slog.String("key", job.Key),
		slog.String("kind", string(job.Kind)),
		slog.Int("attempt", attempts),
		slog.Duration("retry_in", delay),
		slog.Any("error", err))
	if err := c.retryLater(ch, d, attempts, delay); err != nil {
		c.logger.Error("retry publish failed, requeueing", slog.Any("error", err))
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// retryLater republishes the delivery onto the TTL retry queue with a
// per-message expiration, giving exponential backoff across attempts.
func (c *Client) retryLater(ch *amqp.Channel, d amqp.Delivery, attempts int, delay time.Duration) error {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[headerAttempts] = int32(attempts)
	return ch.PublishWithContext(context.Background(), c.config.exchange(), routingKeyRetry, false, false, amqp.Publishing{
		ContentType:   d.ContentType,
		Body:          d.Body,
		Headers:       headers,
		DeliveryMode:  amqp.Persistent,
		MessageId:     d.MessageId,
		CorrelationId: d.CorrelationId,
		Type:          d.Type,
		Expiration:    strconv.FormatInt(delay.Milliseconds(), 10),
		Timestamp:     time.Now().UTC(),
	})
}

func (c *Client) forward(ch *amqp.Channel, key string, d amqp.Delivery, attempts int) error {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[headerAttempts] = int32(attempts)
	return ch.PublishWithContext(context.Background(), c.config.exchange(), key, false, false, amqp.Publishing{
		ContentType:   d.ContentType,
		Body:          d.Body,
		Headers:       headers,
		DeliveryMode:  amqp.Persistent,
		MessageId:     d.MessageId,
		CorrelationId: d.CorrelationId,
		Type:          d.Type,
		Timestamp:     time.Now().UTC(),
	})
}

func attemptsOf(d amqp.Delivery) int {
	raw, ok := d.Headers[headerAttempts]
	if !ok {
		return 0
	}
	switch v := raw.(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func jitter(base time.Duration) time.Duration {
	delta := (rand.Float64()*2 - 1) * 0.25
	wait := time.Duration(float64(base) * (1 + delta))
	if wait <= 0 {
		wait = base
	}
	return wait
}

// Close drains consumers briefly and closes the connection.
func (c *Client) Close() {
	done := make(chan struct{})
	go func() {
		c.consumerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pool != nil {
	drain:
		for {
			select {
			case ch := <-c.pool:
				_ = ch.Close()
			default:
				break drain
			}
		}
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
