package models

// OrderLineItemStatus is the fulfillment status of an order line item.
type OrderLineItemStatus string

const (
	OrderLineItemStatusProcessing OrderLineItemStatus = "processing"
	OrderLineItemStatusPartial    OrderLineItemStatus = "partial"
	OrderLineItemStatusFulfilled  OrderLineItemStatus = "fulfilled"
)

// OrderLineItemQuantity tracks requested versus fulfilled quantities.
type OrderLineItemQuantity struct {
	Total     int `json:"total"`
	Fulfilled int `json:"fulfilled"`
}

// OrderLineItem is an immutable line item materialised from the session.
type OrderLineItem struct {
	ID       string                `json:"id"`
	Item     ItemResponse          `json:"item"`
	Quantity OrderLineItemQuantity `json:"quantity"`
	Totals   []Total               `json:"totals"`
	Status   OrderLineItemStatus   `json:"status"`
	ParentID string                `json:"parent_id,omitempty"`
}

// ExpectationLineItem references a session line item inside an expectation.
type ExpectationLineItem struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

// Expectation is a buyer-facing delivery promise: which line items arrive by
// which method at which destination.
type Expectation struct {
	ID          string                `json:"id"`
	LineItems   []ExpectationLineItem `json:"line_items"`
	MethodType  MethodType            `json:"method_type"`
	Destination *PostalAddress        `json:"destination,omitempty"`
	Description string                `json:"description,omitempty"`
}

// FulfillmentEvent is one append-only entry of the order's event stream.
type FulfillmentEvent struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// OrderFulfillment holds the order's expectations and its event stream.
type OrderFulfillment struct {
	Expectations []Expectation      `json:"expectations,omitempty"`
	Events       []FulfillmentEvent `json:"events"`
}

// Order is the post-checkout record. It is created at the completed
// transition and lives independently of the session afterwards.
type Order struct {
	UCP          ResponseMeta     `json:"ucp"`
	ID           string           `json:"id"`
	CheckoutID   string           `json:"checkout_id"`
	PermalinkURL string           `json:"permalink_url"`
	LineItems    []OrderLineItem  `json:"line_items"`
	Totals       []Total          `json:"totals"`
	Currency     string           `json:"currency,omitempty"`
	Fulfillment  OrderFulfillment `json:"fulfillment"`
}
