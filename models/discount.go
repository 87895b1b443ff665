package models

// Discounts carries the codes requested by the client and the discounts the
// engine actually applied during the last recomputation.
type Discounts struct {
	Codes   []string          `json:"codes,omitempty"`
	Applied []AppliedDiscount `json:"applied,omitempty"`
}

// AppliedDiscount records one applied code with its allocation.
type AppliedDiscount struct {
	Code        string       `json:"code"`
	Title       string       `json:"title,omitempty"`
	Amount      int          `json:"amount"`
	Allocations []Allocation `json:"allocations,omitempty"`
}

// Allocation targets the portion of the totals a discount applies to, as a
// JSONPath-style selector.
type Allocation struct {
	Path   string `json:"path"`
	Amount int    `json:"amount"`
}

// SubtotalAllocationPath selects the subtotal entry of a totals breakdown.
const SubtotalAllocationPath = "$.totals[?(@.type=='subtotal')]"
