package output

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/parley/pkg/ports"
	"github.com/go-resty/resty/v2"
)

// Webhook posts every output request as JSON to a URL.
type Webhook struct {
	id     string
	url    string
	client *resty.Client
}

// WebhookOption configures a Webhook.
type WebhookOption func(*Webhook)

// WithWebhookTimeout sets the per-request timeout.
func WithWebhookTimeout(d time.Duration) WebhookOption {
	return func(w *Webhook) {
		w.client.SetTimeout(d)
	}
}

// WithWebhookRetries sets how many times a failed delivery is retried.
func WithWebhookRetries(n int, wait time.Duration) WebhookOption {
	return func(w *Webhook) {
		w.client.SetRetryCount(n).SetRetryWaitTime(wait)
	}
}

// WithWebhookHeader adds a header to every request (e.g. an auth token).
func WithWebhookHeader(key, value string) WebhookOption {
	return func(w *Webhook) {
		w.client.SetHeader(key, value)
	}
}

// NewWebhook creates a webhook processor.
func NewWebhook(id, url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		id:  id,
		url: url,
		client: resty.New().
			SetTimeout(10 * time.Second).
			SetHeader("Content-Type", "application/json"),
	}
	for _, opt := range opts {
		opt(w)
	}
	// Retry on server errors too, not only on transport failures.
	w.client.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil || r.StatusCode() >= 500
	})
	return w
}

func (w *Webhook) ID() string { return w.id }

// Send posts the request.
func (w *Webhook) Send(ctx context.Context, req ports.OutputRequest) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(req).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook responded %d", resp.StatusCode())
	}
	return nil
}
