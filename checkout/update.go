package checkout

import (
	"context"
	"net/http"

	"github.com/timour/ucp-merchant/models"
	"github.com/timour/ucp-merchant/ucperr"
)

// Update applies a partial update to a session: nil request fields preserve
// stored values, the fulfillment tree merges per method and group, and the
// whole session is recomputed and revalidated before persisting.
func (s *Service) Update(ctx context.Context, key, id string, req models.CheckoutUpdateRequest) (*models.Checkout, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	cached, hash, err := replayGuard(ctx, tx, key, req)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		s.logger.Info("replaying cached update", "checkout_id", id, "idempotency_key", key)
		return cached, nil
	}

	c, err := loadSession(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if c.Status.Terminal() {
		return nil, ucperr.NotModifiable("Cannot update checkout in state '%s'", c.Status)
	}
	c.Status = models.CheckoutStatusIncomplete

	if req.LineItems != nil {
		c.LineItems = buildLineItems(req.LineItems)
	}
	if req.Currency != "" {
		c.Currency = req.Currency
	}
	if req.Buyer != nil {
		c.Buyer = req.Buyer
	}
	if req.Discounts != nil {
		c.Discounts = req.Discounts
	}
	if req.Payment != nil {
		if req.Payment.Handlers != nil {
			c.Payment.Handlers = req.Payment.Handlers
		}
		if req.Payment.Instruments != nil {
			c.Payment.Instruments = req.Payment.Instruments
		}
		if req.Payment.SelectedInstrumentID != "" {
			c.Payment.SelectedInstrumentID = req.Payment.SelectedInstrumentID
		}
	}
	if req.Fulfillment != nil {
		if err := validateLineItemRefs(c, req.Fulfillment); err != nil {
			return nil, err
		}
		mergeFulfillment(c, req.Fulfillment)
	}

	if err := s.offerStoredDestinations(ctx, tx, c); err != nil {
		return nil, err
	}
	if err := s.recompute(ctx, c); err != nil {
		return nil, err
	}
	if err := s.validateInventory(ctx, tx, c); err != nil {
		return nil, err
	}
	c.Status = models.CheckoutStatusReadyForComplete

	if err := s.persistSelectedDestinations(ctx, tx, c); err != nil {
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

	s.logger.Info("checkout updated", "checkout_id", c.ID, "status", c.Status)
	return c, nil
}

// mergeFulfillment folds a partial fulfillment tree into the stored one.
// A method request without an id matches the sole stored method by position;
// omitted destinations and groups keep their prior values, while explicit
// empty lists replace them. Unmatched requests become new methods.
func mergeFulfillment(c *models.Checkout, req *models.FulfillmentRequest) {
	if c.Fulfillment == nil {
		c.Fulfillment = buildFulfillment(req)
		return
	}
	if req.Methods != nil && len(req.Methods) == 0 {
		c.Fulfillment.Methods = nil
		return
	}

	for _, incoming := range req.Methods {
		target := matchMethod(c.Fulfillment, incoming)
		if target == nil {
			built := buildFulfillment(&models.FulfillmentRequest{
				Methods: []models.FulfillmentMethodRequest{incoming},
			})
			c.Fulfillment.Methods = append(c.Fulfillment.Methods, built.Methods[0])
			continue
		}
		mergeMethod(target, incoming)
	}
}

// validateLineItemRefs rejects an incoming fulfillment tree whose methods or
// groups reference line items the session does not hold.
func validateLineItemRefs(c *models.Checkout, req *models.FulfillmentRequest) error {
	for _, method := range req.Methods {
		for _, id := range method.LineItemIDs {
			if !c.LineItemID(id) {
				return ucperr.InvalidRequest("Unknown line item: %s", id)
			}
		}
		for _, group := range method.Groups {
			for _, id := range group.LineItemIDs {
				if !c.LineItemID(id) {
					return ucperr.InvalidRequest("Unknown line item: %s", id)
				}
			}
		}
	}
	return nil
}

func matchMethod(f *models.FulfillmentResponse, incoming models.FulfillmentMethodRequest) *models.FulfillmentMethod {
	if incoming.ID == "" {
		if len(f.Methods) == 1 {
			return &f.Methods[0]
		}
		return nil
	}
	for i := range f.Methods {
		if f.Methods[i].ID == incoming.ID {
			return &f.Methods[i]
		}
	}
	return nil
}

func mergeMethod(target *models.FulfillmentMethod, incoming models.FulfillmentMethodRequest) {
	if incoming.Type != "" {
		target.Type = incoming.Type
	}
	if incoming.LineItemIDs != nil {
		target.LineItemIDs = incoming.LineItemIDs
	}
	if incoming.Destinations != nil {
		target.Destinations = incoming.Destinations
		for i := range target.Destinations {
			if target.Destinations[i].ID == "" {
				target.Destinations[i].ID = "dest_" + newID()
			}
		}
	}
	if incoming.SelectedDestinationID != "" {
		target.SelectedDestinationID = incoming.SelectedDestinationID
	}
	if incoming.Groups != nil {
		mergeGroups(target, incoming.Groups)
	}
}

func mergeGroups(target *models.FulfillmentMethod, incoming []models.FulfillmentGroupRequest) {
	if len(incoming) == 0 {
		target.Groups = nil
		return
	}
	for _, g := range incoming {
		var existing *models.FulfillmentGroup
		if g.ID == "" && len(target.Groups) == 1 {
			existing = &target.Groups[0]
		} else {
			for i := range target.Groups {
				if target.Groups[i].ID == g.ID {
					existing = &target.Groups[i]
					break
				}
			}
		}
		if existing == nil {
			id := g.ID
			if id == "" {
				id = "fg_" + newID()
			}
			target.Groups = append(target.Groups, models.FulfillmentGroup{
				ID:               id,
				LineItemIDs:      g.LineItemIDs,
				SelectedOptionID: g.SelectedOptionID,
			})
			continue
		}
		if g.LineItemIDs != nil {
			existing.LineItemIDs = g.LineItemIDs
		}
		if g.SelectedOptionID != "" {
			existing.SelectedOptionID = g.SelectedOptionID
		}
	}
}
