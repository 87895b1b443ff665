package models

// MethodType is the delivery channel of a fulfillment method.
type MethodType string

const (
	MethodTypeShipping MethodType = "shipping"
	MethodTypePickup   MethodType = "pickup"
	MethodTypeDigital  MethodType = "digital"
)

// ShippingDestination is a candidate delivery address attached to a method.
// Selection is by id reference, never by embedding.
type ShippingDestination struct {
	ID              string `json:"id,omitempty"`
	StreetAddress   string `json:"street_address,omitempty"`
	AddressLocality string `json:"address_locality,omitempty"`
	AddressRegion   string `json:"address_region,omitempty"`
	PostalCode      string `json:"postal_code,omitempty"`
	AddressCountry  string `json:"address_country,omitempty"`
}

// Address converts the destination into a resolved postal address.
func (d ShippingDestination) Address() PostalAddress {
	return PostalAddress{
		StreetAddress:   d.StreetAddress,
		AddressLocality: d.AddressLocality,
		AddressRegion:   d.AddressRegion,
		PostalCode:      d.PostalCode,
		AddressCountry:  d.AddressCountry,
	}
}

// FulfillmentRequest is the client-supplied fulfillment tree on create and
// update. Omitted fields merge against the stored tree.
type FulfillmentRequest struct {
	Methods []FulfillmentMethodRequest `json:"methods,omitempty"`
}

type FulfillmentMethodRequest struct {
	ID                    string                    `json:"id,omitempty"`
	Type                  MethodType                `json:"type,omitempty"`
	LineItemIDs           []string                  `json:"line_item_ids,omitempty"`
	Destinations          []ShippingDestination     `json:"destinations,omitempty"`
	SelectedDestinationID string                    `json:"selected_destination_id,omitempty"`
	Groups                []FulfillmentGroupRequest `json:"groups,omitempty"`
}

type FulfillmentGroupRequest struct {
	ID               string   `json:"id,omitempty"`
	LineItemIDs      []string `json:"line_item_ids,omitempty"`
	SelectedOptionID string   `json:"selected_option_id,omitempty"`
}

// FulfillmentResponse is the stored fulfillment tree of a session.
type FulfillmentResponse struct {
	Methods []FulfillmentMethod `json:"methods,omitempty"`
}

// FulfillmentMethod is a delivery channel spanning a subset of line items.
type FulfillmentMethod struct {
	ID                    string                `json:"id"`
	Type                  MethodType            `json:"type"`
	LineItemIDs           []string              `json:"line_item_ids,omitempty"`
	Destinations          []ShippingDestination `json:"destinations,omitempty"`
	SelectedDestinationID string                `json:"selected_destination_id,omitempty"`
	Groups                []FulfillmentGroup    `json:"groups,omitempty"`
}

// SelectedDestination resolves the selected destination id to its child
// destination, or nil when unselected or dangling.
func (m *FulfillmentMethod) SelectedDestination() *ShippingDestination {
	if m.SelectedDestinationID == "" {
		return nil
	}
	for i := range m.Destinations {
		if m.Destinations[i].ID == m.SelectedDestinationID {
			return &m.Destinations[i]
		}
	}
	return nil
}

// FulfillmentGroup bundles line items sharing one delivery option.
type FulfillmentGroup struct {
	ID               string              `json:"id"`
	LineItemIDs      []string            `json:"line_item_ids,omitempty"`
	Options          []FulfillmentOption `json:"options,omitempty"`
	SelectedOptionID string              `json:"selected_option_id,omitempty"`
}

// SelectedOption resolves the selected option id to one of the group's
// options, or nil when unselected or dangling.
func (g *FulfillmentGroup) SelectedOption() *FulfillmentOption {
	if g.SelectedOptionID == "" {
		return nil
	}
	for i := range g.Options {
		if g.Options[i].ID == g.SelectedOptionID {
			return &g.Options[i]
		}
	}
	return nil
}

// FulfillmentOption is a priced delivery choice available to a group.
type FulfillmentOption struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Totals []Total `json:"totals"`
}

// Total returns the option's trailing total amount.
func (o *FulfillmentOption) Total() int {
	for _, t := range o.Totals {
		if t.Type == TotalTypeTotal {
			return t.Amount
		}
	}
	return 0
}
