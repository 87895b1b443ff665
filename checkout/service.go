// Package checkout implements the checkout engine: the session state machine,
// authoritative totals recomputation, idempotent command processing, atomic
// inventory reservation, and order materialisation.
package checkout

import (
	"context"
	"log/slog"

	"github.com/timour/ucp-merchant/common/metrics"
	"github.com/timour/ucp-merchant/models"
	"github.com/timour/ucp-merchant/store"
)

// Capability names and the protocol version this server implements.
const (
	ServerVersion      = "2026-01-11"
	CheckoutCapability = "dev.ucp.shopping.checkout"
	OrderCapability    = "dev.ucp.shopping.order"
)

// Catalog is the read side the engine needs from the catalog store.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (*store.Product, error)
	DiscountsByCodes(ctx context.Context, codes []string) ([]store.Discount, error)
}

// Tx is one command-scoped transaction over the transaction store. All writes
// of a command go through one Tx and commit together.
type Tx interface {
	Inventory(ctx context.Context, productID string) (int, bool, error)
	ReserveStock(ctx context.Context, productID string, quantity int) (bool, error)
	GetCheckout(ctx context.Context, id string) (*store.CheckoutRecord, error)
	SaveCheckout(ctx context.Context, rec store.CheckoutRecord) error
	GetOrder(ctx context.Context, id string) ([]byte, error)
	SaveOrder(ctx context.Context, id string, data []byte) error
	GetIdempotencyRecord(ctx context.Context, key string) (*store.IdempotencyRecord, error)
	SaveIdempotencyRecord(ctx context.Context, rec store.IdempotencyRecord) error
	SavePaymentInstrument(ctx context.Context, id, instrumentType, brand, lastDigits, token, handlerID string) error
	CustomerAddresses(ctx context.Context, email string) ([]store.CustomerAddress, error)
	SaveCustomerAddress(ctx context.Context, email, name string, addr store.CustomerAddress) error
	Commit() error
	Rollback() error
}

// Transactor opens command transactions.
type Transactor interface {
	Begin(ctx context.Context) (Tx, error)
}

// Evaluator recomputes fulfillment groups and options on a session.
type Evaluator interface {
	Evaluate(ctx context.Context, checkout *models.Checkout, subtotal int) error
}

// Notifier delivers lifecycle events to the platform webhook. Implementations
// must swallow delivery errors; the engine never waits on the result.
type Notifier interface {
	Notify(webhookURL, eventType, checkoutID string, order *models.Order)
}

// Service is the checkout engine.
type Service struct {
	catalog     Catalog
	store       Transactor
	fulfillment Evaluator
	notifier    Notifier
	baseURL     string
	logger      *slog.Logger
	metrics     *metrics.BusinessMetrics
}

// NewService creates the checkout engine.
func NewService(
	catalog Catalog,
	transactor Transactor,
	evaluator Evaluator,
	notifier Notifier,
	baseURL string,
	logger *slog.Logger,
	business *metrics.BusinessMetrics,
) *Service {
	return &Service{
		catalog:     catalog,
		store:       transactor,
		fulfillment: evaluator,
		notifier:    notifier,
		baseURL:     baseURL,
		logger:      logger,
		metrics:     business,
	}
}

func responseMeta(capability string) models.ResponseMeta {
	return models.ResponseMeta{
		Version: ServerVersion,
		Capabilities: []models.Capability{
			{Name: capability, Version: ServerVersion},
		},
	}
}

func (s *Service) checkoutLinks(id string) []models.Link {
	return []models.Link{
		{Type: "permalink", URL: s.baseURL + "/checkout-sessions/" + id},
	}
}

// webhookURL extracts the platform callback of a session, if configured.
func webhookURL(c *models.Checkout) string {
	if c.Platform == nil {
		return ""
	}
	return c.Platform.WebhookURL
}
