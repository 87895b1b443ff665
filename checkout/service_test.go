package checkout

import (
	"context"
	"log/slog"
	"maps"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/timour/ucp-merchant/common/metrics"
	"github.com/timour/ucp-merchant/fulfillment"
	"github.com/timour/ucp-merchant/models"
	"github.com/timour/ucp-merchant/store"
	"github.com/timour/ucp-merchant/ucperr"
)

var (
	testMetricsOnce sync.Once
	testMetrics     *metrics.BusinessMetrics
)

// businessMetrics returns process-wide metrics; promauto registers globally,
// so the test binary must create them exactly once.
func businessMetrics() *metrics.BusinessMetrics {
	testMetricsOnce.Do(func() {
		testMetrics = metrics.NewBusinessMetrics("checkout_test")
	})
	return testMetrics
}

type fakeCatalog struct {
	products   map[string]store.Product
	promotions []store.Promotion
	rates      []store.ShippingRate
	discounts  map[string]store.Discount
}

func (f *fakeCatalog) GetProduct(_ context.Context, id string) (*store.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeCatalog) ActivePromotions(context.Context) ([]store.Promotion, error) {
	return f.promotions, nil
}

func (f *fakeCatalog) ShippingRates(_ context.Context, countryCode string) ([]store.ShippingRate, error) {
	var rates []store.ShippingRate
	for _, r := range f.rates {
		if r.CountryCode == countryCode || r.CountryCode == "default" {
			rates = append(rates, r)
		}
	}
	return rates, nil
}

func (f *fakeCatalog) DiscountsByCodes(_ context.Context, codes []string) ([]store.Discount, error) {
	var out []store.Discount
	for _, code := range codes {
		if d, ok := f.discounts[code]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// fakeStore is an in-memory transaction store with snapshot transactions:
// every Begin copies state, Commit swaps it back in.
type fakeStore struct {
	mu          sync.Mutex
	inventory   map[string]int
	checkouts   map[string]store.CheckoutRecord
	orders      map[string][]byte
	idempotency map[string]store.IdempotencyRecord
	addresses   map[string][]store.CustomerAddress
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		inventory:   map[string]int{},
		checkouts:   map[string]store.CheckoutRecord{},
		orders:      map[string][]byte{},
		idempotency: map[string]store.IdempotencyRecord{},
		addresses:   map[string][]store.CustomerAddress{},
	}
}

func (s *fakeStore) Begin(context.Context) (Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &fakeTx{
		store:       s,
		inventory:   maps.Clone(s.inventory),
		checkouts:   maps.Clone(s.checkouts),
		orders:      maps.Clone(s.orders),
		idempotency: maps.Clone(s.idempotency),
		addresses:   maps.Clone(s.addresses),
	}, nil
}

type fakeTx struct {
	store       *fakeStore
	inventory   map[string]int
	checkouts   map[string]store.CheckoutRecord
	orders      map[string][]byte
	idempotency map[string]store.IdempotencyRecord
	addresses   map[string][]store.CustomerAddress
}

func (t *fakeTx) Commit() error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.inventory = t.inventory
	t.store.checkouts = t.checkouts
	t.store.orders = t.orders
	t.store.idempotency = t.idempotency
	t.store.addresses = t.addresses
	return nil
}

func (t *fakeTx) Rollback() error { return nil }

func (t *fakeTx) Inventory(_ context.Context, productID string) (int, bool, error) {
	q, ok := t.inventory[productID]
	return q, ok, nil
}

func (t *fakeTx) ReserveStock(_ context.Context, productID string, quantity int) (bool, error) {
	q, ok := t.inventory[productID]
	if !ok || q < quantity {
		return false, nil
	}
	t.inventory[productID] = q - quantity
	return true, nil
}

func (t *fakeTx) GetCheckout(_ context.Context, id string) (*store.CheckoutRecord, error) {
	rec, ok := t.checkouts[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (t *fakeTx) SaveCheckout(_ context.Context, rec store.CheckoutRecord) error {
	t.checkouts[rec.ID] = rec
	return nil
}

func (t *fakeTx) GetOrder(_ context.Context, id string) ([]byte, error) {
	return t.orders[id], nil
}

func (t *fakeTx) SaveOrder(_ context.Context, id string, data []byte) error {
	t.orders[id] = data
	return nil
}

func (t *fakeTx) GetIdempotencyRecord(_ context.Context, key string) (*store.IdempotencyRecord, error) {
	rec, ok := t.idempotency[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (t *fakeTx) SaveIdempotencyRecord(_ context.Context, rec store.IdempotencyRecord) error {
	t.idempotency[rec.Key] = rec
	return nil
}

func (t *fakeTx) SavePaymentInstrument(context.Context, string, string, string, string, string, string) error {
	return nil
}

func (t *fakeTx) CustomerAddresses(_ context.Context, email string) ([]store.CustomerAddress, error) {
	return t.addresses[email], nil
}

func (t *fakeTx) SaveCustomerAddress(_ context.Context, email, _ string, addr store.CustomerAddress) error {
	for _, existing := range t.addresses[email] {
		if existing.StreetAddress == addr.StreetAddress && existing.City == addr.City &&
			existing.State == addr.State && existing.PostalCode == addr.PostalCode &&
			existing.Country == addr.Country {
			return nil
		}
	}
	addr.ID = "addr_" + newID()
	t.addresses[email] = append(t.addresses[email], addr)
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) Notify(_, eventType, _ string, _ *models.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, eventType)
}

func newTestService(t *testing.T) (*Service, *fakeStore, *fakeCatalog) {
	t.Helper()
	catalog := &fakeCatalog{
		products: map[string]store.Product{
			"rose":  {ID: "rose", Title: "Red Rose", Price: 1000},
			"tulip": {ID: "tulip", Title: "Yellow Tulip", Price: 750},
		},
		rates: []store.ShippingRate{
			{ID: "std-ship", CountryCode: "default", ServiceLevel: "standard", Price: 500, Title: "Standard Shipping"},
		},
		discounts: map[string]store.Discount{
			"10OFF": {Code: "10OFF", Type: "percentage", Value: 10, Description: "10% off"},
		},
	}
	st := newFakeStore()
	st.inventory["rose"] = 5
	st.inventory["tulip"] = 2

	logger := slog.New(slog.DiscardHandler)
	svc := NewService(
		catalog,
		st,
		fulfillment.NewService(catalog, logger),
		&fakeNotifier{},
		"http://merchant.test",
		logger,
		businessMetrics(),
	)
	return svc, st, catalog
}

func createRequest() models.CheckoutCreateRequest {
	return models.CheckoutCreateRequest{
		Currency: "USD",
		LineItems: []models.LineItemRequest{
			{Item: models.Item{ID: "rose", Title: "client title ignored"}, Quantity: 2},
		},
		Fulfillment: &models.FulfillmentRequest{
			Methods: []models.FulfillmentMethodRequest{{
				Type: models.MethodTypeShipping,
				Destinations: []models.ShippingDestination{
					{ID: "dest_1", AddressCountry: "US"},
				},
				SelectedDestinationID: "dest_1",
				Groups: []models.FulfillmentGroupRequest{
					{SelectedOptionID: "std-ship"},
				},
			}},
		},
		Payment: models.PaymentCreateRequest{
			Handlers: []models.PaymentHandler{{ID: HandlerMock}},
		},
	}
}

func completeRequest(token string) models.CompleteRequest {
	return models.CompleteRequest{
		PaymentData: models.PaymentCreateRequest{
			Instruments: []models.PaymentInstrument{{
				ID:         "inst_1",
				HandlerID:  HandlerMock,
				Credential: &models.PaymentCredential{Type: "token", Token: token},
			}},
			SelectedInstrumentID: "inst_1",
		},
		RiskSignals: map[string]any{"session_score": 0.1},
	}
}

func trailingTotal(t *testing.T, totals []models.Total) int {
	t.Helper()
	require.NotEmpty(t, totals)
	last := totals[len(totals)-1]
	require.Equal(t, models.TotalTypeTotal, last.Type)
	return last.Amount
}

func TestCreateRecomputesAuthoritativeTotals(t *testing.T) {
	svc, _, _ := newTestService(t)

	c, err := svc.Create(context.Background(), "key-create", createRequest(), nil)
	require.NoError(t, err)

	require.Equal(t, models.CheckoutStatusReadyForComplete, c.Status)
	require.Equal(t, "Red Rose", c.LineItems[0].Item.Title)
	require.Equal(t, 1000, c.LineItems[0].Item.Price)
	require.Equal(t, 2000, c.LineItems[0].Totals[0].Amount)
	require.Equal(t, 2500, trailingTotal(t, c.Totals))

	group := c.Fulfillment.Methods[0].Groups[0]
	require.Equal(t, "std-ship", group.SelectedOptionID)
	require.NotNil(t, group.SelectedOption())
}

func TestCreateUnknownProduct(t *testing.T) {
	svc, _, _ := newTestService(t)

	req := createRequest()
	req.LineItems[0].Item.ID = "cactus"
	_, err := svc.Create(context.Background(), "key", req, nil)

	ue, ok := ucperr.As(err)
	require.True(t, ok)
	require.Equal(t, "INVALID_REQUEST", ue.Code)
	require.Equal(t, http.StatusBadRequest, ue.Status)
}

func TestCreateInsufficientInventory(t *testing.T) {
	svc, _, _ := newTestService(t)

	req := createRequest()
	req.LineItems[0].Quantity = 6
	_, err := svc.Create(context.Background(), "key", req, nil)

	ue, ok := ucperr.As(err)
	require.True(t, ok)
	require.Equal(t, "OUT_OF_STOCK", ue.Code)
	require.Equal(t, http.StatusBadRequest, ue.Status)
}

func TestCompleteDecrementsInventoryAndMaterialisesOrder(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, "key-create", createRequest(), nil)
	require.NoError(t, err)

	done, err := svc.Complete(ctx, "key-complete", c.ID, completeRequest("success_token"))
	require.NoError(t, err)

	require.Equal(t, models.CheckoutStatusCompleted, done.Status)
	require.NotNil(t, done.Order)
	require.Contains(t, done.Order.PermalinkURL, "/orders/"+done.Order.ID)
	require.Equal(t, 3, st.inventory["rose"])

	order, err := svc.GetOrder(ctx, done.Order.ID)
	require.NoError(t, err)
	require.Equal(t, c.ID, order.CheckoutID)
	require.Len(t, order.LineItems, 1)
	require.Equal(t, 2, order.LineItems[0].Quantity.Total)
	require.Equal(t, 0, order.LineItems[0].Quantity.Fulfilled)
	require.Equal(t, models.OrderLineItemStatusProcessing, order.LineItems[0].Status)
	require.Len(t, order.Fulfillment.Expectations, 1)
	require.Equal(t, "US", order.Fulfillment.Expectations[0].Destination.AddressCountry)
	require.Empty(t, order.Fulfillment.Events)
}

func TestCompletePaymentDeclined(t *testing.T) {
	cases := []struct {
		token  string
		code   string
		status int
	}{
		{"fail_token", "INSUFFICIENT_FUNDS", http.StatusPaymentRequired},
		{"fraud_token", "FRAUD_DETECTED", http.StatusForbidden},
		{"garbage", "UNKNOWN_TOKEN", http.StatusPaymentRequired},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			svc, st, _ := newTestService(t)
			ctx := context.Background()

			c, err := svc.Create(ctx, "key-create", createRequest(), nil)
			require.NoError(t, err)

			_, err = svc.Complete(ctx, "key-complete", c.ID, completeRequest(tc.token))
			ue, ok := ucperr.As(err)
			require.True(t, ok)
			require.Equal(t, tc.code, ue.Code)
			require.Equal(t, tc.status, ue.Status)

			// Session stays retryable, stock untouched.
			require.Equal(t, "ready_for_complete", st.checkouts[c.ID].Status)
			require.Equal(t, 5, st.inventory["rose"])
		})
	}
}

func TestCompleteUnknownHandler(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, "key-create", createRequest(), nil)
	require.NoError(t, err)

	req := completeRequest("success_token")
	req.PaymentData.Instruments[0].HandlerID = "carrier_pigeon"
	_, err = svc.Complete(ctx, "key-complete", c.ID, req)

	ue, ok := ucperr.As(err)
	require.True(t, ok)
	require.Equal(t, "INVALID_REQUEST", ue.Code)
}

func TestCompleteLostInventoryRace(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, "key-create", createRequest(), nil)
	require.NoError(t, err)

	// Another order drained the stock between create and complete.
	st.inventory["rose"] = 1

	_, err = svc.Complete(ctx, "key-complete", c.ID, completeRequest("success_token"))
	ue, ok := ucperr.As(err)
	require.True(t, ok)
	require.Equal(t, "OUT_OF_STOCK", ue.Code)
	require.Equal(t, http.StatusConflict, ue.Status)

	// The whole transaction rolled back.
	require.Equal(t, 1, st.inventory["rose"])
	require.Equal(t, "ready_for_complete", st.checkouts[c.ID].Status)
	require.Empty(t, st.orders)
}

func TestCompleteRequiresFulfillmentSelection(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	req := createRequest()
	req.Fulfillment.Methods[0].Groups = nil
	c, err := svc.Create(ctx, "key-create", req, nil)
	require.NoError(t, err)

	_, err = svc.Complete(ctx, "key-complete", c.ID, completeRequest("success_token"))
	ue, ok := ucperr.As(err)
	require.True(t, ok)
	require.Equal(t, "INVALID_REQUEST", ue.Code)
}

func TestIdempotentReplayAndConflict(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, "key-A", createRequest(), nil)
	require.NoError(t, err)

	replay, err := svc.Create(ctx, "key-A", createRequest(), nil)
	require.NoError(t, err)
	require.Equal(t, first, replay)

	altered := createRequest()
	altered.LineItems[0].Quantity = 3
	_, err = svc.Create(ctx, "key-A", altered, nil)
	ue, ok := ucperr.As(err)
	require.True(t, ok)
	require.Equal(t, "IDEMPOTENCY_CONFLICT", ue.Code)
	require.Equal(t, http.StatusConflict, ue.Status)
}

func TestDiscountApplication(t *testing.T) {
	_, _, catalog := newTestService(t)
	catalog.products["deluxe"] = store.Product{ID: "deluxe", Title: "Deluxe Arrangement", Price: 10000}

	storeFake := newFakeStore()
	storeFake.inventory["deluxe"] = 3
	logger := slog.New(slog.DiscardHandler)
	engine := NewService(catalog, storeFake, fulfillment.NewService(catalog, logger), &fakeNotifier{}, "http://merchant.test", logger, businessMetrics())

	c, err := engine.Create(context.Background(), "key", models.CheckoutCreateRequest{
		Currency:  "USD",
		LineItems: []models.LineItemRequest{{Item: models.Item{ID: "deluxe"}, Quantity: 1}},
		Discounts: &models.Discounts{Codes: []string{"10OFF", "NOSUCH"}},
	}, nil)
	require.NoError(t, err)

	require.Len(t, c.Discounts.Applied, 1)
	require.Equal(t, "10OFF", c.Discounts.Applied[0].Code)
	require.Equal(t, 1000, c.Discounts.Applied[0].Amount)
	require.Equal(t, models.SubtotalAllocationPath, c.Discounts.Applied[0].Allocations[0].Path)
	require.Equal(t, 9000, trailingTotal(t, c.Totals))
}

func TestTerminalStateRejectsMutation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, "key-create", createRequest(), nil)
	require.NoError(t, err)
	_, err = svc.Complete(ctx, "key-complete", c.ID, completeRequest("success_token"))
	require.NoError(t, err)

	_, err = svc.Update(ctx, "key-update", c.ID, models.CheckoutUpdateRequest{Currency: "EUR"})
	ue, ok := ucperr.As(err)
	require.True(t, ok)
	require.Equal(t, "CHECKOUT_NOT_MODIFIABLE", ue.Code)
	require.Equal(t, http.StatusConflict, ue.Status)

	_, err = svc.Cancel(ctx, "key-cancel", c.ID)
	ue, ok = ucperr.As(err)
	require.True(t, ok)
	require.Equal(t, "CHECKOUT_NOT_MODIFIABLE", ue.Code)

	_, err = svc.Complete(ctx, "key-complete-2", c.ID, completeRequest("success_token"))
	ue, ok = ucperr.As(err)
	require.True(t, ok)
	require.Equal(t, "Cannot complete checkout in state 'completed'", ue.Message)
}

func TestCancel(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, "key-create", createRequest(), nil)
	require.NoError(t, err)

	canceled, err := svc.Cancel(ctx, "key-cancel", c.ID)
	require.NoError(t, err)
	require.Equal(t, models.CheckoutStatusCanceled, canceled.Status)
	require.Equal(t, "canceled", st.checkouts[c.ID].Status)

	// The empty cancel body makes the key alone the deduplication token.
	replay, err := svc.Cancel(ctx, "key-cancel", c.ID)
	require.NoError(t, err)
	require.Equal(t, canceled, replay)
}

func TestUpdateMergesFulfillmentByPosition(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	req := createRequest()
	req.Fulfillment.Methods[0].SelectedDestinationID = ""
	req.Fulfillment.Methods[0].Groups = nil
	c, err := svc.Create(ctx, "key-create", req, nil)
	require.NoError(t, err)
	require.Empty(t, c.Fulfillment.Methods[0].Groups)

	// No method id: merges into the sole stored method, keeping destinations.
	updated, err := svc.Update(ctx, "key-update", c.ID, models.CheckoutUpdateRequest{
		Fulfillment: &models.FulfillmentRequest{
			Methods: []models.FulfillmentMethodRequest{{
				SelectedDestinationID: "dest_1",
			}},
		},
	})
	require.NoError(t, err)
	require.Len(t, updated.Fulfillment.Methods, 1)
	method := updated.Fulfillment.Methods[0]
	require.Equal(t, "dest_1", method.SelectedDestinationID)
	require.Len(t, method.Destinations, 1)
	require.NotEmpty(t, method.Groups)
	require.NotEmpty(t, method.Groups[0].Options)

	// Select the cheapest option by id on the synthesised group.
	selected, err := svc.Update(ctx, "key-update-2", c.ID, models.CheckoutUpdateRequest{
		Fulfillment: &models.FulfillmentRequest{
			Methods: []models.FulfillmentMethodRequest{{
				ID: method.ID,
				Groups: []models.FulfillmentGroupRequest{{
					ID:               method.Groups[0].ID,
					SelectedOptionID: "std-ship",
				}},
			}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, models.CheckoutStatusReadyForComplete, selected.Status)
	require.Equal(t, 2500, trailingTotal(t, selected.Totals))
}

func TestUpdateReplacesLineItems(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, "key-create", createRequest(), nil)
	require.NoError(t, err)

	updated, err := svc.Update(ctx, "key-update", c.ID, models.CheckoutUpdateRequest{
		LineItems: []models.LineItemRequest{
			{Item: models.Item{ID: "tulip"}, Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.Len(t, updated.LineItems, 1)
	require.Equal(t, "Yellow Tulip", updated.LineItems[0].Item.Title)
	require.Equal(t, 750+500, trailingTotal(t, updated.Totals))
}

func TestUpdateRejectsUnknownLineItemRef(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, "key-create", createRequest(), nil)
	require.NoError(t, err)

	_, err = svc.Update(ctx, "key-update", c.ID, models.CheckoutUpdateRequest{
		Fulfillment: &models.FulfillmentRequest{
			Methods: []models.FulfillmentMethodRequest{{
				LineItemIDs: []string{"li_bogus"},
			}},
		},
	})
	ue, ok := ucperr.As(err)
	require.True(t, ok)
	require.Equal(t, "INVALID_REQUEST", ue.Code)
	require.Equal(t, http.StatusBadRequest, ue.Status)
	require.Contains(t, ue.Message, "li_bogus")

	_, err = svc.Update(ctx, "key-update-2", c.ID, models.CheckoutUpdateRequest{
		Fulfillment: &models.FulfillmentRequest{
			Methods: []models.FulfillmentMethodRequest{{
				Groups: []models.FulfillmentGroupRequest{{
					LineItemIDs: []string{"li_bogus"},
				}},
			}},
		},
	})
	ue, ok = ucperr.As(err)
	require.True(t, ok)
	require.Equal(t, "INVALID_REQUEST", ue.Code)
}

func TestUpdateUnknownCheckout(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Update(context.Background(), "key", "checkout_missing", models.CheckoutUpdateRequest{})
	ue, ok := ucperr.As(err)
	require.True(t, ok)
	require.Equal(t, "RESOURCE_NOT_FOUND", ue.Code)
	require.Equal(t, http.StatusNotFound, ue.Status)
}

func TestShipOrderAppendsEvents(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, "key-create", createRequest(), nil)
	require.NoError(t, err)
	done, err := svc.Complete(ctx, "key-complete", c.ID, completeRequest("success_token"))
	require.NoError(t, err)

	shipped, err := svc.ShipOrder(ctx, done.Order.ID)
	require.NoError(t, err)
	require.Len(t, shipped.Fulfillment.Events, 1)
	require.Equal(t, "shipped", shipped.Fulfillment.Events[0].Type)

	// Shipping is not idempotency-guarded: a second call appends again.
	again, err := svc.ShipOrder(ctx, done.Order.ID)
	require.NoError(t, err)
	require.Len(t, again.Fulfillment.Events, 2)
}

func TestStoredAddressesOfferedAsDestinations(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	st.addresses["jamie@example.com"] = []store.CustomerAddress{
		{ID: "addr_1", StreetAddress: "123 Garden Way", City: "Portland", State: "OR", PostalCode: "97201", Country: "US"},
	}

	req := createRequest()
	req.Buyer = &models.Buyer{Email: "jamie@example.com", FullName: "Jamie Rivera"}
	req.Fulfillment.Methods[0].Destinations = nil
	req.Fulfillment.Methods[0].SelectedDestinationID = "addr_1"

	c, err := svc.Create(ctx, "key-create", req, nil)
	require.NoError(t, err)
	require.Len(t, c.Fulfillment.Methods[0].Destinations, 1)
	require.Equal(t, "US", c.Fulfillment.Methods[0].Destinations[0].AddressCountry)
	require.NotEmpty(t, c.Fulfillment.Methods[0].Groups)
}
