// Package models defines the wire types of the UCP shopping capability as
// served by this merchant implementation: checkout sessions, orders,
// fulfillment trees, payments, and discounts. All monetary amounts are
// integers in minor currency units.
package models

// TotalType classifies an entry in a totals breakdown.
type TotalType string

const (
	TotalTypeSubtotal    TotalType = "subtotal"
	TotalTypeFulfillment TotalType = "fulfillment"
	TotalTypeDiscount    TotalType = "discount"
	TotalTypeTax         TotalType = "tax"
	TotalTypeTotal       TotalType = "total"
)

// Total is one entry of a totals breakdown. The last entry of a session's
// totals always has type "total".
type Total struct {
	Type   TotalType `json:"type"`
	Amount int       `json:"amount"`
}

// Item is the product reference carried by a line item request.
type Item struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// ItemResponse is the authoritative product data on a line item. Price and
// title always come from the catalog, never from the client.
type ItemResponse struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Price    int    `json:"price"`
	ImageURL string `json:"image_url,omitempty"`
}

// LineItemRequest is a line item as submitted on create or update. ID is
// empty for new items; on update a present ID keeps the server-assigned
// identifier stable.
type LineItemRequest struct {
	ID       string `json:"id,omitempty"`
	Item     Item   `json:"item"`
	Quantity int    `json:"quantity"`
	ParentID string `json:"parent_id,omitempty"`
}

// LineItemResponse is a line item as stored on a session.
type LineItemResponse struct {
	ID       string       `json:"id"`
	Item     ItemResponse `json:"item"`
	Quantity int          `json:"quantity"`
	Totals   []Total      `json:"totals"`
	ParentID string       `json:"parent_id,omitempty"`
}

// Buyer identifies the purchasing party.
type Buyer struct {
	Email     string `json:"email,omitempty"`
	FullName  string `json:"full_name,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Link is a URL the platform may surface to the shopper.
type Link struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Capability names one protocol capability and its version.
type Capability struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ResponseMeta is the "ucp" envelope attached to checkout and order
// responses: the protocol version the server speaks plus the capabilities
// exercised by the response.
type ResponseMeta struct {
	Version      string       `json:"version"`
	Capabilities []Capability `json:"capabilities,omitempty"`
}

// PlatformConfig carries platform-side configuration captured from the agent
// profile at create/update time.
type PlatformConfig struct {
	WebhookURL string `json:"webhook_url,omitempty"`
}

// PostalAddress is a resolved delivery address.
type PostalAddress struct {
	StreetAddress   string `json:"street_address,omitempty"`
	AddressLocality string `json:"address_locality,omitempty"`
	AddressRegion   string `json:"address_region,omitempty"`
	PostalCode      string `json:"postal_code,omitempty"`
	AddressCountry  string `json:"address_country,omitempty"`
}
