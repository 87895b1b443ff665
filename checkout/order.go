package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/timour/ucp-merchant/models"
	"github.com/timour/ucp-merchant/ucperr"
)

// buildOrder materialises the immutable order record from a session that is
// about to complete.
func (s *Service) buildOrder(c *models.Checkout) *models.Order {
	id := "order_" + newID()
	order := &models.Order{
		UCP:          responseMeta(OrderCapability),
		ID:           id,
		CheckoutID:   c.ID,
		PermalinkURL: s.baseURL + "/orders/" + id,
		Currency:     c.Currency,
		Totals:       c.Totals,
		Fulfillment: models.OrderFulfillment{
			Events: []models.FulfillmentEvent{},
		},
	}

	quantities := make(map[string]int, len(c.LineItems))
	for i := range c.LineItems {
		line := &c.LineItems[i]
		quantities[line.ID] = line.Quantity
		order.LineItems = append(order.LineItems, models.OrderLineItem{
			ID:   line.ID,
			Item: line.Item,
			Quantity: models.OrderLineItemQuantity{
				Total:     line.Quantity,
				Fulfilled: 0,
			},
			Totals:   line.Totals,
			Status:   models.OrderLineItemStatusProcessing,
			ParentID: line.ParentID,
		})
	}

	if c.Fulfillment == nil {
		return order
	}
	for i := range c.Fulfillment.Methods {
		method := &c.Fulfillment.Methods[i]
		var destination *models.PostalAddress
		if dest := method.SelectedDestination(); dest != nil {
			addr := dest.Address()
			destination = &addr
		}
		for j := range method.Groups {
			group := &method.Groups[j]
			option := group.SelectedOption()
			if option == nil {
				continue
			}
			expectation := models.Expectation{
				ID:          "exp_" + newID(),
				MethodType:  method.Type,
				Destination: destination,
				Description: option.Title,
			}
			for _, lineID := range group.LineItemIDs {
				if quantity, ok := quantities[lineID]; ok {
					expectation.LineItems = append(expectation.LineItems, models.ExpectationLineItem{
						ID:       lineID,
						Quantity: quantity,
					})
				}
			}
			order.Fulfillment.Expectations = append(order.Fulfillment.Expectations, expectation)
		}
	}
	return order
}

// GetOrder loads an order by id.
func (s *Service) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	return loadOrder(ctx, tx, id)
}

// UpdateOrder replaces the stored order body after verifying existence.
func (s *Service) UpdateOrder(ctx context.Context, id string, order models.Order) (*models.Order, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := loadOrder(ctx, tx, id); err != nil {
		return nil, err
	}
	order.ID = id
	if err := saveOrder(ctx, tx, &order); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.logger.Info("order updated", "order_id", id)
	return &order, nil
}

// SaveInboundOrder stores an order delivered by a partner webhook. Concurrent
// deliveries resolve last-writer-wins.
func (s *Service) SaveInboundOrder(ctx context.Context, order models.Order) error {
	if order.ID == "" {
		return ucperr.InvalidRequest("order id is required")
	}
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := saveOrder(ctx, tx, &order); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Info("inbound order event stored", "order_id", order.ID)
	return nil
}

// ShipOrder appends a shipped event to the order's event stream and notifies
// the platform webhook. Deliberately not idempotency-guarded: repeated calls
// append further events.
func (s *Service) ShipOrder(ctx context.Context, id string) (*models.Order, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	order, err := loadOrder(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	order.Fulfillment.Events = append(order.Fulfillment.Events, models.FulfillmentEvent{
		ID:        "evt_" + newID(),
		Type:      "shipped",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err := saveOrder(ctx, tx, order); err != nil {
		return nil, err
	}

	var url string
	if rec, err := tx.GetCheckout(ctx, order.CheckoutID); err != nil {
		return nil, err
	} else if rec != nil {
		var c models.Checkout
		if err := json.Unmarshal(rec.Data, &c); err == nil {
			url = webhookURL(&c)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.metrics.OrdersShipped.Inc()
	s.logger.Info("order shipped", "order_id", id)
	if url != "" {
		go s.notifier.Notify(url, "order_shipped", order.CheckoutID, order)
	}
	return order, nil
}

func loadOrder(ctx context.Context, tx Tx, id string) (*models.Order, error) {
	data, err := tx.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ucperr.NotFound("Order %s not found", id)
	}
	var order models.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("failed to decode order %s: %w", id, err)
	}
	return &order, nil
}

func saveOrder(ctx context.Context, tx Tx, order *models.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to serialise order %s: %w", order.ID, err)
	}
	return tx.SaveOrder(ctx, order.ID, data)
}
