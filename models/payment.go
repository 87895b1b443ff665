package models

// PaymentHandler describes a payment strategy the merchant accepts.
type PaymentHandler struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// PaymentCredential is either a tokenized credential or raw card data. The
// server never inspects card numbers beyond logging the last four digits.
type PaymentCredential struct {
	Type   string `json:"type,omitempty"`
	Token  string `json:"token,omitempty"`
	Number string `json:"number,omitempty"`
	Brand  string `json:"brand,omitempty"`
}

// IsCard reports whether the credential carries card data rather than a token.
func (c *PaymentCredential) IsCard() bool {
	return c != nil && c.Number != ""
}

// LastDigits returns the trailing four digits of a card number, for logging.
func (c *PaymentCredential) LastDigits() string {
	if c == nil || len(c.Number) < 4 {
		return "unknown"
	}
	return c.Number[len(c.Number)-4:]
}

// PaymentInstrument is one way the buyer can pay, bound to a handler.
type PaymentInstrument struct {
	ID         string             `json:"id"`
	HandlerID  string             `json:"handler_id,omitempty"`
	Type       string             `json:"type,omitempty"`
	Brand      string             `json:"brand,omitempty"`
	Credential *PaymentCredential `json:"credential,omitempty"`
}

// PaymentCreateRequest is the payment section of a create/update request and
// the instrument set submitted on complete.
type PaymentCreateRequest struct {
	Handlers             []PaymentHandler    `json:"handlers,omitempty"`
	Instruments          []PaymentInstrument `json:"instruments,omitempty"`
	SelectedInstrumentID string              `json:"selected_instrument_id,omitempty"`
}

// SelectedInstrument resolves the selected instrument id, falling back to a
// sole instrument when no selection was made. Nil when unresolvable.
func (r *PaymentCreateRequest) SelectedInstrument() *PaymentInstrument {
	if r.SelectedInstrumentID == "" {
		if len(r.Instruments) == 1 {
			return &r.Instruments[0]
		}
		return nil
	}
	for i := range r.Instruments {
		if r.Instruments[i].ID == r.SelectedInstrumentID {
			return &r.Instruments[i]
		}
	}
	return nil
}

// PaymentResponse is the payment state stored on a session.
type PaymentResponse struct {
	Handlers             []PaymentHandler    `json:"handlers"`
	Instruments          []PaymentInstrument `json:"instruments,omitempty"`
	SelectedInstrumentID string              `json:"selected_instrument_id,omitempty"`
}

// CompleteRequest is the body of POST /checkout-sessions/{id}/complete.
// PaymentData carries the instruments and selection for the charge attempt;
// RiskSignals and AP2 pass through into the idempotency fingerprint.
type CompleteRequest struct {
	PaymentData PaymentCreateRequest `json:"payment_data"`
	RiskSignals map[string]any       `json:"risk_signals"`
	AP2         map[string]any       `json:"ap2,omitempty"`
}
