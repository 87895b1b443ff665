package checkout

import (
	"context"
	"net/http"

	"github.com/timour/ucp-merchant/models"
	"github.com/timour/ucp-merchant/ucperr"
)

// recompute rebuilds the session's line items, fulfillment options, applied
// discounts, and totals from authoritative data. Client-supplied prices and
// titles are always overwritten from the catalog. Runs on create, update,
// and at the start of complete.
func (s *Service) recompute(ctx context.Context, c *models.Checkout) error {
	subtotal := 0
	for i := range c.LineItems {
		line := &c.LineItems[i]
		product, err := s.catalog.GetProduct(ctx, line.Item.ID)
		if err != nil {
			return err
		}
		if product == nil {
			return ucperr.InvalidRequest("Unknown product: %s", line.Item.ID)
		}
		line.Item.Title = product.Title
		line.Item.Price = product.Price
		line.Item.ImageURL = product.ImageURL

		lineSubtotal := product.Price * line.Quantity
		line.Totals = []models.Total{
			{Type: models.TotalTypeSubtotal, Amount: lineSubtotal},
			{Type: models.TotalTypeTotal, Amount: lineSubtotal},
		}
		subtotal += lineSubtotal
	}

	c.Totals = []models.Total{{Type: models.TotalTypeSubtotal, Amount: subtotal}}
	grandTotal := subtotal

	if err := s.fulfillment.Evaluate(ctx, c, subtotal); err != nil {
		return err
	}
	if c.Fulfillment != nil {
		for i := range c.Fulfillment.Methods {
			method := &c.Fulfillment.Methods[i]
			for j := range method.Groups {
				option := method.Groups[j].SelectedOption()
				if option == nil {
					continue
				}
				grandTotal += option.Total()
				c.Totals = append(c.Totals, models.Total{
					Type:   models.TotalTypeFulfillment,
					Amount: option.Total(),
				})
			}
		}
	}

	if c.Discounts != nil {
		c.Discounts.Applied = nil
		if err := s.applyDiscounts(ctx, c, &grandTotal); err != nil {
			return err
		}
	}

	c.Totals = append(c.Totals, models.Total{Type: models.TotalTypeTotal, Amount: grandTotal})
	return nil
}

// applyDiscounts walks discount codes in stored order. Codes without a
// catalog definition are skipped without error.
func (s *Service) applyDiscounts(ctx context.Context, c *models.Checkout, grandTotal *int) error {
	if len(c.Discounts.Codes) == 0 {
		return nil
	}
	definitions, err := s.catalog.DiscountsByCodes(ctx, c.Discounts.Codes)
	if err != nil {
		return err
	}
	byCode := make(map[string]int, len(definitions))
	for i := range definitions {
		byCode[definitions[i].Code] = i
	}

	for _, code := range c.Discounts.Codes {
		idx, ok := byCode[code]
		if !ok {
			s.logger.Warn("ignoring unknown discount code", "code", code, "checkout_id", c.ID)
			continue
		}
		def := definitions[idx]

		var amount int
		switch def.Type {
		case "percentage":
			amount = *grandTotal * def.Value / 100
		case "fixed_amount":
			amount = def.Value
		default:
			s.logger.Warn("ignoring discount with unknown type", "code", code, "type", def.Type)
			continue
		}
		if amount <= 0 {
			continue
		}

		*grandTotal -= amount
		c.Discounts.Applied = append(c.Discounts.Applied, models.AppliedDiscount{
			Code:   code,
			Title:  def.Description,
			Amount: amount,
			Allocations: []models.Allocation{
				{Path: models.SubtotalAllocationPath, Amount: amount},
			},
		})
		c.Totals = append(c.Totals, models.Total{Type: models.TotalTypeDiscount, Amount: amount})
	}
	return nil
}

// validateInventory checks every line item against current stock. Advisory:
// the authoritative check is the atomic reserve during complete.
func (s *Service) validateInventory(ctx context.Context, tx Tx, c *models.Checkout) error {
	for i := range c.LineItems {
		line := &c.LineItems[i]
		quantity, ok, err := tx.Inventory(ctx, line.Item.ID)
		if err != nil {
			return err
		}
		if !ok || quantity < line.Quantity {
			return ucperr.OutOfStock(http.StatusBadRequest,
				"Insufficient inventory for product %s", line.Item.ID)
		}
	}
	return nil
}
