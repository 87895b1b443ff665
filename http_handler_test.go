package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/timour/ucp-merchant/checkout"
	"github.com/timour/ucp-merchant/common/metrics"
	"github.com/timour/ucp-merchant/fulfillment"
	"github.com/timour/ucp-merchant/models"
	"github.com/timour/ucp-merchant/store"
	"github.com/timour/ucp-merchant/webhook"
)

var (
	metricsOnce  sync.Once
	testBusiness *metrics.BusinessMetrics
)

func business() *metrics.BusinessMetrics {
	metricsOnce.Do(func() {
		testBusiness = metrics.NewBusinessMetrics("main_test")
	})
	return testBusiness
}

type testServer struct {
	mux      *http.ServeMux
	stores   *store.Stores
	profile  *httptest.Server
	webhooks chan string
	requests int
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	stores, err := store.Open(filepath.Join(dir, "catalog.db"), filepath.Join(dir, "transactions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	_, err = stores.CatalogDB().Exec(
		`INSERT INTO products (id, title, price, image_url) VALUES ('rose', 'Red Rose', 1000, NULL)`)
	require.NoError(t, err)
	_, err = stores.TransactionsDB().Exec(`
		INSERT INTO inventory (product_id, quantity) VALUES ('rose', 5);
		INSERT INTO shipping_rates (id, country_code, service_level, price, title)
			VALUES ('std-ship', 'default', 'standard', 500, 'Standard Shipping');`)
	require.NoError(t, err)

	webhooks := make(chan string, 8)
	webhookServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			EventType string `json:"event_type"`
		}
		json.NewDecoder(r.Body).Decode(&payload)
		webhooks <- payload.EventType
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(webhookServer.Close)

	profileServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"webhook_url": webhookServer.URL})
	}))
	t.Cleanup(profileServer.Close)

	logger := slog.New(slog.DiscardHandler)
	notifier := webhook.NewNotifier(logger, business())
	engine := checkout.NewService(
		stores.Catalog,
		transactorAdapter{stores.Transactions},
		fulfillment.NewService(stores.Catalog, logger),
		notifier,
		"http://merchant.test",
		logger,
		business(),
	)

	cfg := Config{ServiceName: "ucp-merchant", BaseURL: "http://merchant.test", ShopID: "test-shop", SimulationSecret: "hush"}
	h := newHandler(engine, stores.Transactions, newProfileResolver(logger), newDiscoveryDocument(cfg.BaseURL, cfg.ShopID), cfg, logger)
	mux := http.NewServeMux()
	h.registerRoutes(mux)

	return &testServer{mux: mux, stores: stores, profile: profileServer, webhooks: webhooks}
}

func (s *testServer) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	s.requests++
	req.Header.Set("UCP-Agent", fmt.Sprintf(`profile=%q; version="2026-01-11"`, s.profile.URL))
	req.Header.Set("Request-Signature", "test")
	req.Header.Set("Idempotency-Key", fmt.Sprintf("key-%d", s.requests))
	req.Header.Set("Request-Id", fmt.Sprintf("req-%d", s.requests))

	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func createBody() map[string]any {
	return map[string]any{
		"currency": "USD",
		"line_items": []map[string]any{
			{"item": map[string]any{"id": "rose", "title": "Red Rose"}, "quantity": 2},
		},
		"fulfillment": map[string]any{
			"methods": []map[string]any{{
				"type":                    "shipping",
				"destinations":            []map[string]any{{"id": "dest_1", "address_country": "US"}},
				"selected_destination_id": "dest_1",
				"groups":                  []map[string]any{{"selected_option_id": "std-ship"}},
			}},
		},
		"payment": map[string]any{
			"handlers": []map[string]any{{"id": "mock_payment_handler"}},
		},
	}
}

func completeBody(token string) map[string]any {
	return map[string]any{
		"payment_data": map[string]any{
			"instruments": []map[string]any{{
				"id":         "inst_1",
				"handler_id": "mock_payment_handler",
				"credential": map[string]any{"type": "token", "token": token},
			}},
			"selected_instrument_id": "inst_1",
		},
		"risk_signals": map[string]any{},
	}
}

func TestMissingHeadersRejected(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/checkout-sessions", bytes.NewBufferString("{}"))
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var envelope map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, "INVALID_REQUEST", envelope["code"])
}

func TestFutureAgentVersionRejected(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/checkout-sessions", bytes.NewBufferString("{}"))
	req.Header.Set("UCP-Agent", `profile="https://agent.example/profile.json"; version="2099-01-01"`)
	req.Header.Set("Request-Signature", "test")
	req.Header.Set("Idempotency-Key", "key-version")
	req.Header.Set("Request-Id", "req-version")
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "VERSION_UNSUPPORTED", body["code"])
	require.Equal(t, "critical", body["severity"])
	require.Contains(t, body["message"], "2099-01-01")
	require.Contains(t, body["message"], checkout.ServerVersion)
}

func TestCheckoutLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rec := s.request(t, http.MethodPost, "/checkout-sessions", createBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created models.Checkout
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, models.CheckoutStatusReadyForComplete, created.Status)
	require.Equal(t, 2500, created.Totals[len(created.Totals)-1].Amount)
	require.NotNil(t, created.Platform)

	rec = s.request(t, http.MethodGet, "/checkout-sessions/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.request(t, http.MethodPost, "/checkout-sessions/"+created.ID+"/complete", completeBody("success_token"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var completed models.Checkout
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &completed))
	require.Equal(t, models.CheckoutStatusCompleted, completed.Status)
	require.NotNil(t, completed.Order)

	select {
	case event := <-s.webhooks:
		require.Equal(t, "order_placed", event)
	case <-time.After(3 * time.Second):
		t.Fatal("order_placed webhook was not delivered")
	}

	rec = s.request(t, http.MethodGet, "/orders/"+completed.Order.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Simulated shipping requires the shared secret.
	req := httptest.NewRequest(http.MethodPost, "/testing/simulate-shipping/"+completed.Order.ID, nil)
	recorder := httptest.NewRecorder()
	s.mux.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusForbidden, recorder.Code)

	req = httptest.NewRequest(http.MethodPost, "/testing/simulate-shipping/"+completed.Order.ID, nil)
	req.Header.Set("Simulation-Secret", "hush")
	recorder = httptest.NewRecorder()
	s.mux.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.JSONEq(t, `{"status":"shipped"}`, recorder.Body.String())

	select {
	case event := <-s.webhooks:
		require.Equal(t, "order_shipped", event)
	case <-time.After(3 * time.Second):
		t.Fatal("order_shipped webhook was not delivered")
	}
}

func TestPaymentDeclinedOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rec := s.request(t, http.MethodPost, "/checkout-sessions", createBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Checkout
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = s.request(t, http.MethodPost, "/checkout-sessions/"+created.ID+"/complete", completeBody("fail_token"))
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	var envelope map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, "INSUFFICIENT_FUNDS", envelope["code"])
	require.NotEmpty(t, envelope["detail"])
}

func TestInboundOrderEventOverwrites(t *testing.T) {
	s := newTestServer(t)

	order := models.Order{ID: "order_ext", CheckoutID: "checkout_ext", PermalinkURL: "http://partner.test/orders/order_ext"}
	rec := s.request(t, http.MethodPost, "/webhooks/partners/platform-1/events/order", order)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.request(t, http.MethodGet, "/orders/order_ext", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	require.Equal(t, "checkout_ext", fetched.CheckoutID)
}

func TestDiscoveryDocumentSubstitution(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/ucp", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.NotContains(t, rec.Body.String(), "{{ENDPOINT}}")
	require.NotContains(t, rec.Body.String(), "{{SHOP_ID}}")
	require.Contains(t, rec.Body.String(), "http://merchant.test")
	require.Contains(t, rec.Body.String(), "test-shop")
}

func TestSimulationSecretDefaultsToRandom(t *testing.T) {
	require.Equal(t, "hush", simulationSecret("hush"))

	generated := simulationSecret("")
	require.NotEmpty(t, generated)
	require.NotEqual(t, generated, simulationSecret(""))
}

func TestParseAgentVersion(t *testing.T) {
	require.Equal(t, "2026-01-11",
		parseAgentVersion(`profile="https://agent.example/p.json"; version="2026-01-11"`))
	require.Equal(t, "", parseAgentVersion("profile=\"x\""))
	require.Equal(t, "", parseAgentVersion(""))
}
