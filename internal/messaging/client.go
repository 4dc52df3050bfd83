// Package messaging talks to the WhatsApp-style outbound gateway.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/brunoxcamillo/drop-call-app/internal/phone"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	sendAttempts       = 3
	sendBackoffBase    = 600 * time.Millisecond
	maxErrorBodyBytes  = 1 << 16
)

// Config carries the gateway credentials. Instance and token are path
// segments; the account token travels as a header.
type Config struct {
	BaseURL      string
	Instance     string
	Token        string
	AccountToken string
}

type Option func(*Client)

// Client sends messages through the gateway with a bounded per-request
// timeout and inline retry on transient failures.
type Client struct {
	baseURL      string
	accountToken string
	httpClient   *http.Client
	logger       *slog.Logger
}

func NewClient(config Config, logger *slog.Logger, opts ...Option) *Client {
	base := strings.TrimRight(config.BaseURL, "/")
	c := &Client{
		baseURL:      fmt.Sprintf("%s/instances/%s/token/%s", base, config.Instance, config.Token),
		accountToken: config.AccountToken,
		httpClient:   &http.Client{Timeout: defaultHTTPTimeout},
		logger:       logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

type sendRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// SendText delivers one text message. 429/5xx and network errors are retried
// with exponential backoff before the error is surfaced to the caller.
func (c *Client) SendText(ctx context.Context, rawPhone, text string) error {
	normalized := phone.Normalize(rawPhone)
	if normalized == "" {
		return fmt.Errorf("invalid phone %q", rawPhone)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("empty message for phone %s", normalized)
	}

	body, err := json.Marshal(sendRequest{Phone: normalized, Message: text})
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < sendAttempts; attempt++ {
		if attempt > 0 {
			delay := sendBackoffBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		retryable, err := c.post(ctx, "/send-messages", body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			break
		}
		c.logger.Warn("gateway send failed",
			slog.String("phone", normalized),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err))
	}
	return lastErr
}

func (c *Client) post(ctx context.Context, path string, body []byte) (retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("client-token", c.accountToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true, fmt.Errorf("post gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return false, nil
	}

	errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	retryable = resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
	return retryable, fmt.Errorf("gateway status=%d body=%q", resp.StatusCode, string(errorBody))
}
