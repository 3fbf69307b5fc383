package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// WebhookNotifier posts alerts as JSON to an HTTP endpoint
type WebhookNotifier struct {
	url     string
	enabled bool
	client  *http.Client
	logger  *logrus.Logger
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier(url string, enabled bool, logger *logrus.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:     url,
		enabled: enabled,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// SendAlert implements Notifier interface - posts the alert with
// retries and backoff.
func (wn *WebhookNotifier) SendAlert(alert Alert) error {
	if !wn.enabled || wn.url == "" {
		wn.logger.Debug("Webhook notifier is disabled, skipping alert")
		return nil
	}

	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	maxRetries := 3
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		resp, err := wn.client.Post(wn.url, "application/json", bytes.NewReader(body))
		if err != nil {
			lastErr = err
			wn.logger.Warnf("Webhook post failed (attempt %d/%d): %v", attempt, maxRetries, err)
			time.Sleep(time.Duration(attempt) * time.Second)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook returned status %d", resp.StatusCode)
		wn.logger.Warnf("Webhook post rejected (attempt %d/%d): %v", attempt, maxRetries, lastErr)
		time.Sleep(time.Duration(attempt) * time.Second)
	}

	return fmt.Errorf("webhook delivery failed after %d attempts: %w", maxRetries, lastErr)
}
