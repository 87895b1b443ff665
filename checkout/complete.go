package checkout

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/timour/ucp-merchant/models"
	"github.com/timour/ucp-merchant/ucperr"
)

// Complete converts a session into an order: authorize payment, verify the
// fulfillment selection, atomically reserve inventory, materialise the order,
// and commit everything in one transaction. The webhook fires only after
// commit.
func (s *Service) Complete(ctx context.Context, key, id string, req models.CompleteRequest) (*models.Checkout, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// The fingerprint covers everything that influences the charge attempt.
	fingerprint := struct {
		Payment     models.PaymentCreateRequest `json:"payment"`
		RiskSignals map[string]any              `json:"risk_signals,omitempty"`
		AP2         map[string]any              `json:"ap2,omitempty"`
	}{req.PaymentData, req.RiskSignals, req.AP2}

	cached, hash, err := replayGuard(ctx, tx, key, fingerprint)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		s.logger.Info("replaying cached complete", "checkout_id", id, "idempotency_key", key)
		return cached, nil
	}

	c, err := loadSession(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if c.Status.Terminal() {
		return nil, ucperr.NotModifiable("Cannot complete checkout in state '%s'", c.Status)
	}
	c.Status = models.CheckoutStatusCompleteInProgress

	if err := s.recompute(ctx, c); err != nil {
		return nil, err
	}

	instrument, err := s.authorizePayment(c.ID, req.PaymentData)
	if err != nil {
		// The stored session keeps its prior status so the client can retry
		// with a different instrument under a fresh key.
		return nil, err
	}
	c.Payment.Instruments = req.PaymentData.Instruments
	c.Payment.SelectedInstrumentID = instrument.ID

	if err := verifyFulfillmentSelection(c); err != nil {
		return nil, err
	}

	for i := range c.LineItems {
		line := &c.LineItems[i]
		reserved, err := tx.ReserveStock(ctx, line.Item.ID, line.Quantity)
		if err != nil {
			return nil, err
		}
		if !reserved {
			return nil, ucperr.OutOfStock(http.StatusConflict,
				"Insufficient inventory for product %s", line.Item.ID)
		}
	}

	order := s.buildOrder(c)
	orderData, err := json.Marshal(order)
	if err != nil {
		return nil, err
	}
	if err := tx.SaveOrder(ctx, order.ID, orderData); err != nil {
		return nil, err
	}

	c.Status = models.CheckoutStatusCompleted
	c.Order = &models.OrderConfirmation{ID: order.ID, PermalinkURL: order.PermalinkURL}

	if err := s.savePaymentInstrument(ctx, tx, instrument); err != nil {
		return nil, err
	}
	data, err := persistSession(ctx, tx, c)
	if err != nil {
		return nil, err
	}
	if err := recordCommand(ctx, tx, key, hash, http.StatusOK, data); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.metrics.CheckoutsCompleted.Inc()
	s.logger.Info("checkout completed", "checkout_id", c.ID, "order_id", order.ID)

	if url := webhookURL(c); url != "" {
		go s.notifier.Notify(url, "order_placed", c.ID, order)
	}
	return c, nil
}

// Cancel moves a non-terminal session to canceled. The command body is empty,
// so the idempotency key alone is the deduplication token.
func (s *Service) Cancel(ctx context.Context, key, id string) (*models.Checkout, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	cached, hash, err := replayGuard(ctx, tx, key, struct{}{})
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}

	c, err := loadSession(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if c.Status.Terminal() {
		return nil, ucperr.NotModifiable("Cannot cancel checkout in state '%s'", c.Status)
	}
	c.Status = models.CheckoutStatusCanceled

	data, err := persistSession(ctx, tx, c)
	if err != nil {
		return nil, err
	}
	if err := recordCommand(ctx, tx, key, hash, http.StatusOK, data); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.metrics.CheckoutsCanceled.Inc()
	s.logger.Info("checkout canceled", "checkout_id", c.ID)
	return c, nil
}

// verifyFulfillmentSelection enforces the completion precondition: at least
// one shipping method with a selected destination whose groups carry at least
// one selected option.
func verifyFulfillmentSelection(c *models.Checkout) error {
	if c.Fulfillment == nil {
		return ucperr.InvalidRequest("Checkout has no fulfillment selection")
	}
	for i := range c.Fulfillment.Methods {
		method := &c.Fulfillment.Methods[i]
		if method.Type != models.MethodTypeShipping || method.SelectedDestinationID == "" {
			continue
		}
		for j := range method.Groups {
			if method.Groups[j].SelectedOption() != nil {
				return nil
			}
		}
	}
	return ucperr.InvalidRequest("Checkout requires a selected shipping destination and option")
}

func (s *Service) savePaymentInstrument(ctx context.Context, tx Tx, instrument *models.PaymentInstrument) error {
	id := instrument.ID
	if id == "" {
		id = "pi_" + newID()
	}
	var lastDigits, token string
	if instrument.Credential != nil {
		token = instrument.Credential.Token
		if instrument.Credential.IsCard() {
			lastDigits = instrument.Credential.LastDigits()
		}
	}
	return tx.SavePaymentInstrument(ctx, id, instrument.Type, instrument.Brand, lastDigits, token, instrument.HandlerID)
}
