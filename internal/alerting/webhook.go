// internal/alerting/webhook.go
package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/OmkarPadhy/AQI-Dashboard/internal/data"
)

type webhookPayload struct {
	Alerts []data.Alert `json:"alerts"`
	SentAt time.Time    `json:"sent_at"`
}

// WebhookNotifier POSTs alert batches as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

func NewWebhookNotifier(url string, timeout time.Duration, logger *zap.Logger) *WebhookNotifier {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &WebhookNotifier{httpClient: client, url: url, logger: logger}
}

func (w *WebhookNotifier) Name() string { return "webhook" }

func (w *WebhookNotifier) Notify(ctx context.Context, alerts []data.Alert) error {
	resp, err := w.httpClient.R().
		SetContext(ctx).
		SetBody(webhookPayload{Alerts: alerts, SentAt: time.Now().UTC()}).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("failed to call webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}

	w.logger.Debug("Delivered alerts to webhook",
		zap.String("url", w.url),
		zap.Int("count", len(alerts)),
		zap.Int("status_code", resp.StatusCode()),
	)
	return nil
}
