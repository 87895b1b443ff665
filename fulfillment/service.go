// Package fulfillment evaluates delivery options for checkout sessions from
// the configured shipping rates and active promotions.
package fulfillment

import (
	"context"
	"log/slog"
	"sort"

	"github.com/timour/ucp-merchant/models"
	"github.com/timour/ucp-merchant/store"
)

// Catalog is the slice of reference data the evaluator reads.
type Catalog interface {
	ShippingRates(ctx context.Context, countryCode string) ([]store.ShippingRate, error)
	ActivePromotions(ctx context.Context) ([]store.Promotion, error)
}

// Service derives fulfillment groups and options for a session.
type Service struct {
	catalog Catalog
	logger  *slog.Logger
}

// NewService creates a fulfillment evaluator.
func NewService(catalog Catalog, logger *slog.Logger) *Service {
	return &Service{catalog: catalog, logger: logger}
}

// Evaluate recomputes the groups and options of every shipping method in the
// session in place. A method without a selected destination (or one whose
// destination carries no country) is left untouched; option selections
// survive re-evaluation when the selected option still exists.
func (s *Service) Evaluate(ctx context.Context, checkout *models.Checkout, subtotal int) error {
	if checkout.Fulfillment == nil {
		return nil
	}

	promotions, err := s.catalog.ActivePromotions(ctx)
	if err != nil {
		return err
	}

	for i := range checkout.Fulfillment.Methods {
		method := &checkout.Fulfillment.Methods[i]
		if method.Type != models.MethodTypeShipping {
			continue
		}

		destination := method.SelectedDestination()
		if destination == nil || destination.AddressCountry == "" {
			continue
		}

		freeShipping := s.freeShippingEligible(checkout, method, promotions, subtotal)
		options, err := s.optionsForCountry(ctx, destination.AddressCountry, freeShipping)
		if err != nil {
			return err
		}

		if len(method.Groups) == 0 {
			group := models.FulfillmentGroup{
				ID:          "fg_" + method.ID,
				LineItemIDs: method.LineItemIDs,
				Options:     options,
			}
			if len(group.LineItemIDs) == 0 {
				group.LineItemIDs = checkout.LineItemIDs()
			}
			method.Groups = []models.FulfillmentGroup{group}
			continue
		}
		for j := range method.Groups {
			group := &method.Groups[j]
			group.Options = options
			if len(group.LineItemIDs) == 0 {
				group.LineItemIDs = method.LineItemIDs
				if len(group.LineItemIDs) == 0 {
					group.LineItemIDs = checkout.LineItemIDs()
				}
			}
		}
	}
	return nil
}

// optionsForCountry builds the priced option list for one destination
// country. Country-specific rates shadow the default rate at the same
// service level; results keep the rates' own price order even when the
// standard level is later discounted to zero.
func (s *Service) optionsForCountry(ctx context.Context, countryCode string, freeShipping bool) ([]models.FulfillmentOption, error) {
	rates, err := s.catalog.ShippingRates(ctx, countryCode)
	if err != nil {
		return nil, err
	}

	byLevel := make(map[string]store.ShippingRate)
	for _, rate := range rates {
		existing, ok := byLevel[rate.ServiceLevel]
		if !ok || (existing.CountryCode == "default" && rate.CountryCode != "default") {
			byLevel[rate.ServiceLevel] = rate
		}
	}

	chosen := make([]store.ShippingRate, 0, len(byLevel))
	for _, rate := range byLevel {
		chosen = append(chosen, rate)
	}
	sort.Slice(chosen, func(i, j int) bool {
		if chosen[i].Price != chosen[j].Price {
			return chosen[i].Price < chosen[j].Price
		}
		return chosen[i].ID < chosen[j].ID
	})

	options := make([]models.FulfillmentOption, 0, len(chosen))
	for _, rate := range chosen {
		price := rate.Price
		title := rate.Title
		if freeShipping && rate.ServiceLevel == "standard" {
			price = 0
			title += " (Free)"
		}
		options = append(options, models.FulfillmentOption{
			ID:    rate.ID,
			Title: title,
			Totals: []models.Total{
				{Type: models.TotalTypeSubtotal, Amount: price},
				{Type: models.TotalTypeTotal, Amount: price},
			},
		})
	}
	return options, nil
}

// freeShippingEligible reports whether a free_shipping promotion covers the
// items the method ships: either the session subtotal clears the promotion
// threshold or the method carries an eligible item. A method without explicit
// line item ids spans the whole cart.
func (s *Service) freeShippingEligible(checkout *models.Checkout, method *models.FulfillmentMethod, promotions []store.Promotion, subtotal int) bool {
	productIDs := methodProductIDs(checkout, method)
	for _, promo := range promotions {
		if promo.Type != "free_shipping" {
			continue
		}
		if promo.MinSubtotal > 0 && subtotal >= promo.MinSubtotal {
			s.logger.Debug("free shipping promotion applies", "promotion_id", promo.ID, "subtotal", subtotal)
			return true
		}
		for _, eligible := range promo.EligibleItemIDs {
			for _, id := range productIDs {
				if id == eligible {
					s.logger.Debug("free shipping promotion applies", "promotion_id", promo.ID, "item_id", eligible)
					return true
				}
			}
		}
	}
	return false
}

// methodProductIDs resolves a method's line item ids to the product ids it
// ships, falling back to every line item when the method names none.
func methodProductIDs(checkout *models.Checkout, method *models.FulfillmentMethod) []string {
	if len(method.LineItemIDs) == 0 {
		ids := make([]string, len(checkout.LineItems))
		for i := range checkout.LineItems {
			ids[i] = checkout.LineItems[i].Item.ID
		}
		return ids
	}
	var ids []string
	for _, lineID := range method.LineItemIDs {
		for i := range checkout.LineItems {
			if checkout.LineItems[i].ID == lineID {
				ids = append(ids, checkout.LineItems[i].Item.ID)
			}
		}
	}
	return ids
}
