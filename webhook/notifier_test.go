package webhook

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/timour/ucp-merchant/common/metrics"
	"github.com/timour/ucp-merchant/models"
)

var (
	metricsOnce  sync.Once
	testBusiness *metrics.BusinessMetrics
)

func business() *metrics.BusinessMetrics {
	metricsOnce.Do(func() {
		testBusiness = metrics.NewBusinessMetrics("webhook_test")
	})
	return testBusiness
}

func TestNotifyPostsEventPayload(t *testing.T) {
	var (
		mu   sync.Mutex
		body []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		body = b
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewNotifier(slog.New(slog.DiscardHandler), business())
	n.Notify(server.URL, "order_placed", "checkout_1", &models.Order{ID: "order_1", CheckoutID: "checkout_1"})

	mu.Lock()
	defer mu.Unlock()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload))
	require.Equal(t, "order_placed", payload["event_type"])
	require.Equal(t, "checkout_1", payload["checkout_id"])
	order, ok := payload["order"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "order_1", order["id"])
}

func TestNotifySwallowsDeliveryFailures(t *testing.T) {
	n := NewNotifier(slog.New(slog.DiscardHandler), business())

	// Unreachable endpoint: must not panic or block beyond the timeout.
	n.Notify("http://127.0.0.1:1/webhook", "order_placed", "checkout_1", nil)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()
	n.Notify(server.URL, "order_shipped", "checkout_1", nil)
}
