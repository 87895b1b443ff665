package models

// CheckoutStatus is the lifecycle state of a checkout session.
type CheckoutStatus string

const (
	CheckoutStatusIncomplete         CheckoutStatus = "incomplete"
	CheckoutStatusRequiresEscalation CheckoutStatus = "requires_escalation"
	CheckoutStatusReadyForComplete   CheckoutStatus = "ready_for_complete"
	CheckoutStatusCompleteInProgress CheckoutStatus = "complete_in_progress"
	CheckoutStatusCompleted          CheckoutStatus = "completed"
	CheckoutStatusCanceled           CheckoutStatus = "canceled"
)

// Terminal reports whether the status admits no further mutation.
func (s CheckoutStatus) Terminal() bool {
	return s == CheckoutStatusCompleted || s == CheckoutStatusCanceled
}

// CheckoutCreateRequest creates a checkout session. The client may propose an
// id; the server assigns one when absent.
type CheckoutCreateRequest struct {
	ID          string               `json:"id,omitempty"`
	LineItems   []LineItemRequest    `json:"line_items"`
	Currency    string               `json:"currency"`
	Buyer       *Buyer               `json:"buyer,omitempty"`
	Fulfillment *FulfillmentRequest  `json:"fulfillment,omitempty"`
	Discounts   *Discounts           `json:"discounts,omitempty"`
	Payment     PaymentCreateRequest `json:"payment"`
}

// CheckoutUpdateRequest partially updates a session. Nil fields preserve the
// stored value; the fulfillment tree merges per field (see the engine).
type CheckoutUpdateRequest struct {
	LineItems   []LineItemRequest     `json:"line_items,omitempty"`
	Currency    string                `json:"currency,omitempty"`
	Buyer       *Buyer                `json:"buyer,omitempty"`
	Fulfillment *FulfillmentRequest   `json:"fulfillment,omitempty"`
	Discounts   *Discounts            `json:"discounts,omitempty"`
	Payment     *PaymentCreateRequest `json:"payment,omitempty"`
}

// Checkout is the central aggregate: a checkout session as stored and as
// returned from every session operation.
type Checkout struct {
	UCP         ResponseMeta         `json:"ucp"`
	ID          string               `json:"id"`
	Status      CheckoutStatus       `json:"status"`
	Currency    string               `json:"currency"`
	LineItems   []LineItemResponse   `json:"line_items"`
	Buyer       *Buyer               `json:"buyer,omitempty"`
	Fulfillment *FulfillmentResponse `json:"fulfillment,omitempty"`
	Discounts   *Discounts           `json:"discounts,omitempty"`
	Payment     PaymentResponse      `json:"payment"`
	Totals      []Total              `json:"totals"`
	Links       []Link               `json:"links"`
	Order       *OrderConfirmation   `json:"order,omitempty"`
	Platform    *PlatformConfig      `json:"platform,omitempty"`
}

// OrderConfirmation is attached to a session the moment it completes.
type OrderConfirmation struct {
	ID           string `json:"id"`
	PermalinkURL string `json:"permalink_url"`
}

// LineItemID reports whether id names one of the session's line items.
func (c *Checkout) LineItemID(id string) bool {
	for i := range c.LineItems {
		if c.LineItems[i].ID == id {
			return true
		}
	}
	return false
}

// LineItemIDs returns the ids of all line items in stored order.
func (c *Checkout) LineItemIDs() []string {
	ids := make([]string, len(c.LineItems))
	for i := range c.LineItems {
		ids[i] = c.LineItems[i].ID
	}
	return ids
}
