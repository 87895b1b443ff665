// Package webhook delivers lifecycle events to the platform callback URL.
// Delivery is best-effort: failures are logged and counted, never surfaced.
package webhook

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/timour/ucp-merchant/common/metrics"
	"github.com/timour/ucp-merchant/models"
)

const deliveryTimeout = 5 * time.Second

// Notifier posts event payloads with its own HTTP client, independent of any
// caller deadline.
type Notifier struct {
	client  *http.Client
	logger  *slog.Logger
	metrics *metrics.BusinessMetrics
}

// NewNotifier creates a webhook notifier.
func NewNotifier(logger *slog.Logger, business *metrics.BusinessMetrics) *Notifier {
	return &Notifier{
		client:  &http.Client{Timeout: deliveryTimeout},
		logger:  logger,
		metrics: business,
	}
}

type eventPayload struct {
	EventType  string        `json:"event_type"`
	CheckoutID string        `json:"checkout_id"`
	Order      *models.Order `json:"order"`
}

// Notify posts {event_type, checkout_id, order} to the webhook URL. Network
// errors, timeouts, and non-2xx responses are logged and swallowed.
func (n *Notifier) Notify(webhookURL, eventType, checkoutID string, order *models.Order) {
	body, err := json.Marshal(eventPayload{
		EventType:  eventType,
		CheckoutID: checkoutID,
		Order:      order,
	})
	if err != nil {
		n.logger.Error("failed to encode webhook payload", "event_type", eventType, "error", err)
		n.metrics.WebhookFailures.Inc()
		return
	}

	resp, err := n.client.Post(webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("webhook delivery failed",
			"event_type", eventType, "checkout_id", checkoutID, "url", webhookURL, "error", err)
		n.metrics.WebhookFailures.Inc()
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		n.logger.Warn("webhook delivery rejected",
			"event_type", eventType, "checkout_id", checkoutID, "url", webhookURL, "status", resp.StatusCode)
		n.metrics.WebhookFailures.Inc()
		return
	}
	n.logger.Info("webhook delivered",
		"event_type", eventType, "checkout_id", checkoutID, "status", resp.StatusCode)
}
