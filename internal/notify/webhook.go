// Package notify delivers scan summaries to an external webhook.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/narworks/muhasebe-asistani-sub000/internal/models"
	"github.com/narworks/muhasebe-asistani-sub000/internal/version"
)

// Header names set on every delivery.
const (
	SignatureHeader = "X-Portalscan-Signature"
	TimestampHeader = "X-Portalscan-Timestamp"
	EventHeader     = "X-Portalscan-Event"
)

// EventScanFinished is the event name of terminal scan summaries.
const EventScanFinished = "scan.finished"

// Payload is the JSON body of a delivery.
type Payload struct {
	Event string              `json:"event"`
	Scan  models.ScanSnapshot `json:"scan"`
	Sent  time.Time           `json:"sent_at"`
}

// WebhookError represents a non-2xx answer from the receiver.
type WebhookError struct {
	StatusCode int
}

func (e *WebhookError) Error() string {
	return "webhook delivery failed with status: " + http.StatusText(e.StatusCode)
}

// Webhook posts signed scan summaries with retries.
type Webhook struct {
	url        string
	secret     string
	client     *http.Client
	maxRetries uint64
	logger     *slog.Logger

	newBackOff func() backoff.BackOff
}

// Option configures a Webhook.
type Option func(*Webhook)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(w *Webhook) { w.client = c }
}

// WithRetries sets how many times a failed delivery is retried.
func WithRetries(n uint64) Option {
	return func(w *Webhook) { w.maxRetries = n }
}

// WithBackOff replaces the retry schedule.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(w *Webhook) { w.newBackOff = f }
}

// NewWebhook creates a Webhook for url. When secret is set every body is
// signed with HMAC-SHA256 over "timestamp.body".
func NewWebhook(url, secret string, logger *slog.Logger, opts ...Option) *Webhook {
	w := &Webhook{
		url:        url,
		secret:     secret,
		client:     &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
		logger:     logger.With("component", "notify"),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxElapsedTime = 2 * time.Minute
			return b
		},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// NotifyScan delivers the terminal snapshot of a scan.
func (w *Webhook) NotifyScan(ctx context.Context, snap models.ScanSnapshot) error {
	body, err := json.Marshal(Payload{Event: EventScanFinished, Scan: snap, Sent: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	attempt := 0
	op := func() error {
		attempt++
		return w.deliver(ctx, body)
	}
	b := backoff.WithContext(backoff.WithMaxRetries(w.newBackOff(), w.maxRetries), ctx)
	err = backoff.RetryNotify(op, b, func(err error, next time.Duration) {
		w.logger.Warn("webhook delivery failed, retrying", "url", w.url, "attempt", attempt, "next", next, "error", err)
	})
	if err != nil {
		w.logger.Error("webhook delivery failed after retries", "url", w.url, "attempts", attempt, "error", err)
		return err
	}
	w.logger.Info("webhook delivered", "url", w.url, "scan_id", snap.ScanID, "state", snap.State)
	return nil
}

func (w *Webhook) deliver(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "portalscan-webhook/"+version.Get().Version)
	req.Header.Set(EventHeader, EventScanFinished)
	req.Header.Set(TimestampHeader, ts)
	if w.secret != "" {
		req.Header.Set(SignatureHeader, Sign(w.secret, ts, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return backoff.Permanent(&WebhookError{StatusCode: resp.StatusCode})
	}
	return &WebhookError{StatusCode: resp.StatusCode}
}

// Sign returns the hex HMAC-SHA256 of "timestamp.body" under secret.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
