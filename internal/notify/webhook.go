package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// WebhookChannel POSTs notifications as JSON to a configured URL. The
// payload shape follows common chat-webhook conventions (a "text" field
// plus the structured data).
type WebhookChannel struct {
	client  *resty.Client
	url     string
	enabled bool
}

// NewWebhookChannel creates a webhook channel. An empty URL disables it.
func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{
		client:  resty.New().SetTimeout(10 * time.Second),
		url:     url,
		enabled: url != "",
	}
}

func (w *WebhookChannel) Name() string { return "webhook" }

func (w *WebhookChannel) IsEnabled() bool { return w.enabled }

// Send posts the notification. Non-2xx responses are errors.
func (w *WebhookChannel) Send(ctx context.Context, n Notification) error {
	payload := map[string]interface{}{
		"text":      fmt.Sprintf("%s: %s", n.Title, n.Message),
		"type":      string(n.Type),
		"timestamp": n.Timestamp.UTC().Format(time.RFC3339),
	}
	if len(n.Data) > 0 {
		payload["data"] = n.Data
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(w.url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned %d", resp.StatusCode())
	}
	return nil
}
