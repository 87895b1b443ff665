package checkout

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/timour/ucp-merchant/models"
	"github.com/timour/ucp-merchant/ucperr"
)

// Create opens a new checkout session. The session is recomputed and
// inventory-validated before persisting; success leaves it in
// ready_for_complete.
func (s *Service) Create(ctx context.Context, key string, req models.CheckoutCreateRequest, platform *models.PlatformConfig) (*models.Checkout, error) {
	if len(req.LineItems) == 0 {
		return nil, ucperr.InvalidRequest("line_items must not be empty")
	}
	if req.Currency == "" {
		return nil, ucperr.InvalidRequest("currency is required")
	}

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
		s.logger.Info("replaying cached create", "checkout_id", cached.ID, "idempotency_key", key)
		return cached, nil
	}

	id := req.ID
	if id == "" {
		id = "checkout_" + uuid.NewString()
	}

	c := &models.Checkout{
		UCP:         responseMeta(CheckoutCapability),
		ID:          id,
		Status:      models.CheckoutStatusIncomplete,
		Currency:    req.Currency,
		LineItems:   buildLineItems(req.LineItems),
		Buyer:       req.Buyer,
		Fulfillment: buildFulfillment(req.Fulfillment),
		Discounts:   req.Discounts,
		Payment: models.PaymentResponse{
			Handlers:             req.Payment.Handlers,
			Instruments:          req.Payment.Instruments,
			SelectedInstrumentID: req.Payment.SelectedInstrumentID,
		},
		Links:    s.checkoutLinks(id),
		Platform: platform,
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
	if err := recordCommand(ctx, tx, key, hash, http.StatusCreated, data); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.metrics.CheckoutsCreated.Inc()
	s.logger.Info("checkout created", "checkout_id", c.ID, "status", c.Status, "line_items", len(c.LineItems))
	return c, nil
}

// Get loads a session without mutating it. Not idempotency-guarded.
func (s *Service) Get(ctx context.Context, id string) (*models.Checkout, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	return loadSession(ctx, tx, id)
}

func newID() string { return uuid.NewString() }

// buildLineItems assigns server identifiers to incoming line items. Prices
// and titles are placeholders until the first recompute.
func buildLineItems(reqs []models.LineItemRequest) []models.LineItemResponse {
	lines := make([]models.LineItemResponse, len(reqs))
	for i, req := range reqs {
		id := req.ID
		if id == "" {
			id = "li_" + uuid.NewString()
		}
		lines[i] = models.LineItemResponse{
			ID: id,
			Item: models.ItemResponse{
				ID:    req.Item.ID,
				Title: req.Item.Title,
			},
			Quantity: req.Quantity,
			ParentID: req.ParentID,
		}
	}
	return lines
}

// buildFulfillment converts the requested fulfillment tree into stored form,
// assigning identifiers where the client omitted them.
func buildFulfillment(req *models.FulfillmentRequest) *models.FulfillmentResponse {
	if req == nil {
		return nil
	}
	resp := &models.FulfillmentResponse{
		Methods: make([]models.FulfillmentMethod, len(req.Methods)),
	}
	for i, m := range req.Methods {
		method := models.FulfillmentMethod{
			ID:                    m.ID,
			Type:                  m.Type,
			LineItemIDs:           m.LineItemIDs,
			Destinations:          m.Destinations,
			SelectedDestinationID: m.SelectedDestinationID,
		}
		if method.ID == "" {
			method.ID = "fm_" + uuid.NewString()
		}
		for j := range method.Destinations {
			if method.Destinations[j].ID == "" {
				method.Destinations[j].ID = "dest_" + uuid.NewString()
			}
		}
		for _, g := range m.Groups {
			group := models.FulfillmentGroup{
				ID:               g.ID,
				LineItemIDs:      g.LineItemIDs,
				SelectedOptionID: g.SelectedOptionID,
			}
			if group.ID == "" {
				group.ID = "fg_" + uuid.NewString()
			}
			method.Groups = append(method.Groups, group)
		}
		resp.Methods[i] = method
	}
	return resp
}
