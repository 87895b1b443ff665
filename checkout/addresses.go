package checkout

import (
	"context"
	"strings"

	"github.com/timour/ucp-merchant/models"
	"github.com/timour/ucp-merchant/store"
)

// offerStoredDestinations adds the buyer's saved addresses as candidate
// destinations to shipping methods that arrived without any, so a returning
// customer can select an address by reference.
func (s *Service) offerStoredDestinations(ctx context.Context, tx Tx, c *models.Checkout) error {
	if c.Fulfillment == nil || c.Buyer == nil || c.Buyer.Email == "" {
		return nil
	}

	var saved []store.CustomerAddress
	loaded := false
	for i := range c.Fulfillment.Methods {
		method := &c.Fulfillment.Methods[i]
		if method.Type != models.MethodTypeShipping || len(method.Destinations) > 0 {
			continue
		}
		if !loaded {
			var err error
			saved, err = tx.CustomerAddresses(ctx, c.Buyer.Email)
			if err != nil {
				return err
			}
			loaded = true
		}
		for _, addr := range saved {
			method.Destinations = append(method.Destinations, models.ShippingDestination{
				ID:              addr.ID,
				StreetAddress:   addr.StreetAddress,
				AddressLocality: addr.City,
				AddressRegion:   addr.State,
				PostalCode:      addr.PostalCode,
				AddressCountry:  addr.Country,
			})
		}
	}
	return nil
}

// persistSelectedDestinations saves each selected shipping destination to the
// buyer's address book. The store de-duplicates field-for-field.
func (s *Service) persistSelectedDestinations(ctx context.Context, tx Tx, c *models.Checkout) error {
	if c.Fulfillment == nil || c.Buyer == nil || c.Buyer.Email == "" {
		return nil
	}
	for i := range c.Fulfillment.Methods {
		method := &c.Fulfillment.Methods[i]
		if method.Type != models.MethodTypeShipping {
			continue
		}
		dest := method.SelectedDestination()
		if dest == nil {
			continue
		}
		err := tx.SaveCustomerAddress(ctx, c.Buyer.Email, buyerName(c.Buyer), store.CustomerAddress{
			StreetAddress: dest.StreetAddress,
			City:          dest.AddressLocality,
			State:         dest.AddressRegion,
			PostalCode:    dest.PostalCode,
			Country:       dest.AddressCountry,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func buyerName(b *models.Buyer) string {
	if b.FullName != "" {
		return b.FullName
	}
	return strings.TrimSpace(b.FirstName + " " + b.LastName)
}
