// Package notify delivers human-readable alerts to operators. Delivery is
// fire-and-forget: failures are logged and never escalated to the caller.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Sink receives alert strings from the risk manager, recovery coordinator
// and monitor.
type Sink interface {
	SendAlert(ctx context.Context, message string)
}

// LogSink writes alerts to the structured log only. Used when no webhook is
// configured.
type LogSink struct{}

func (LogSink) SendAlert(_ context.Context, message string) {
	log.Warn().Str("alert", message).Msg("Alert")
}

// WebhookSink posts alerts as JSON to a chat webhook (Slack-compatible
// payload: {"text": "..."}).
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink creates a sink posting to url.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *WebhookSink) SendAlert(ctx context.Context, message string) {
	log.Warn().Str("alert", message).Msg("Alert")

	payload, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode alert payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		log.Error().Err(err).Msg("Failed to build alert request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		log.Error().Err(err).Msg("Failed to send alert")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Error().Err(fmt.Errorf("webhook returned %s", resp.Status)).Msg("Failed to send alert")
	}
}
