// Package webhook delivers signed run notifications over HTTP.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/pixelbatch/internal/domain"
)

const (
	HeaderSignature = "X-Pixelbatch-Signature"
	HeaderTimestamp = "X-Pixelbatch-Timestamp"
	HeaderEvent     = "X-Pixelbatch-Event"

	EventRunCompleted = "run.completed"

	signaturePrefix = "sha256="
)

type Config struct {
	SigningSecret  string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type Client struct {
	http        *http.Client
	secret      []byte
	attempts    int
	backoffBase time.Duration
	backoffCap  time.Duration
}

func NewClient(cfg Config) *Client {
	c := &Client{
		http:        &http.Client{Timeout: cfg.Timeout},
		secret:      []byte(cfg.SigningSecret),
		attempts:    max(cfg.MaxAttempts, 1),
		backoffBase: cfg.InitialBackoff,
		backoffCap:  cfg.MaxBackoff,
	}
	if c.http.Timeout <= 0 {
		c.http.Timeout = 10 * time.Second
	}
	if c.backoffBase <= 0 {
		c.backoffBase = time.Second
	}
	c.backoffCap = max(c.backoffCap, c.backoffBase)
	return c
}

// NotifyRunCompleted posts the run summary as a run.completed event.
func (c *Client) NotifyRunCompleted(ctx context.Context, endpoint string, summary domain.RunSummary) error {
	return c.Send(ctx, endpoint, EventRunCompleted, summary)
}

// Send POSTs payload as signed JSON. Transport errors, 429 and 5xx are
// retried with doubling backoff; any other non-2xx status ends delivery.
// An empty endpoint is a no-op.
func (c *Client) Send(ctx context.Context, endpoint, event string, payload any) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	signature := Sign(c.secret, timestamp, body)

	wait := c.backoffBase
	for attempt := 1; ; attempt++ {
		retry, err := c.deliver(ctx, endpoint, event, timestamp, signature, body)
		if err == nil {
			return nil
		}
		if !retry || attempt >= c.attempts {
			return fmt.Errorf("deliver %s to %s (attempt %d/%d): %w", event, endpoint, attempt, c.attempts, err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait = min(2*wait, c.backoffCap)
	}
}

// deliver makes one attempt and reports whether a failure is worth retrying.
func (c *Client) deliver(ctx context.Context, endpoint, event, timestamp, signature string, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, event)
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderSignature, signature)

	resp, err := c.http.Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	_ = resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return false, nil
	}
	retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	return retry, fmt.Errorf("unexpected status %d", resp.StatusCode)
}

// Sign returns the signature header value for body: HMAC-SHA256 over
// "<timestamp>.<body>", hex encoded with a sha256= prefix.
func Sign(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp + "."))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received signature header in constant time.
func Verify(secret []byte, timestamp string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, timestamp, body)), []byte(signature))
}
