package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gojek/heimdall/v7"
	"github.com/gojek/heimdall/v7/httpclient"
	"github.com/smallbiznis/referral/internal/notification/domain"
)

const (
	ChannelWebhook = "webhook"

	HeaderIdempotencyKey = "X-Idempotency-Key"
	HeaderEvent          = "X-Referral-Event"
)

type WebhookConfig struct {
	URL     string
	Timeout time.Duration
	Retries int
}

// Webhook POSTs the message as JSON. Receivers dedupe on the idempotency header.
type Webhook struct {
	url    string
	client heimdall.Doer
}

func NewWebhook(cfg WebhookConfig) *Webhook {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	retrier := heimdall.NewRetrier(heimdall.NewConstantBackoff(200*time.Millisecond, 100*time.Millisecond))
	return &Webhook{
		url: cfg.URL,
		client: httpclient.NewClient(
			httpclient.WithHTTPTimeout(timeout),
			httpclient.WithRetryCount(retries),
			httpclient.WithRetrier(retrier),
		),
	}
}

// NewWebhookWithClient is used by tests to inject a transport.
func NewWebhookWithClient(url string, client heimdall.Doer) *Webhook {
	return &Webhook{url: url, client: client}
}

func (w *Webhook) Channel() string {
	return ChannelWebhook
}

func (w *Webhook) Send(ctx context.Context, msg domain.RewardAwarded) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderIdempotencyKey, msg.DedupeKey)
	req.Header.Set(HeaderEvent, msg.Event)

	resp, err := w.client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	if err != nil {
		return fmt.Errorf("%w: webhook: %v", domain.ErrDeliveryFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: webhook status %d", domain.ErrDeliveryFailed, resp.StatusCode)
	}
	return nil
}
