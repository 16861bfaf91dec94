package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"lcr-engine/internal/lcr"
)

// Notification wraps one alert event with the snapshot context it refers to.
type Notification struct {
	Alert          lcr.Alert
	Ratio          string
	Classification string
	Currency       string
	Status         string
}

// Notifier delivers alert notifications to an external channel.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// WebhookNotifier posts alert events as JSON to an HTTP endpoint, typically
// the treasury desk's incident router.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewWebhookNotifier constructs an HTTP alert sink.
func NewWebhookNotifier(url string, timeout time.Duration, logger zerolog.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "alert_webhook").Logger(),
	}
}

type webhookPayload struct {
	AsOfDate       string `json:"as_of_date"`
	AlertType      string `json:"alert_type"`
	Severity       string `json:"severity"`
	Reason         string `json:"reason"`
	Value          string `json:"value"`
	Threshold      string `json:"threshold"`
	Ratio          string `json:"ratio,omitempty"`
	Classification string `json:"classification,omitempty"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
}

// Notify posts one alert event.
func (n *WebhookNotifier) Notify(ctx context.Context, note Notification) error {
	payload := webhookPayload{
		AsOfDate:       note.Alert.AsOfDate.UTC().Format("2006-01-02"),
		AlertType:      string(note.Alert.Type),
		Severity:       string(note.Alert.Severity),
		Reason:         note.Alert.Reason,
		Value:          note.Alert.Value.String(),
		Threshold:      note.Alert.Threshold.String(),
		Ratio:          note.Ratio,
		Classification: note.Classification,
		Currency:       note.Currency,
		Status:         note.Status,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	n.logger.Info().
		Time("as_of_date", note.Alert.AsOfDate).
		Str("alert_type", string(note.Alert.Type)).
		Str("severity", string(note.Alert.Severity)).
		Msg("alert dispatched")
	return nil
}

var _ Notifier = (*WebhookNotifier)(nil)
