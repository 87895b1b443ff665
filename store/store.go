// Package store implements the two embedded SQLite databases of the merchant
// server: the catalog (products, promotions, shipping rates, discount codes;
// read-only to the engine) and the transaction store (inventory, checkouts,
// orders, idempotency records, request log, customers). Both run in WAL mode
// so concurrent readers never block the writer.
package store

// Product is an authoritative catalog product. Prices are minor currency
// units; the engine never trusts client-supplied prices.
type Product struct {
	ID       string
	Title    string
	Price    int
	ImageURL string
}

// Promotion is an active promotion. Type "free_shipping" promotions grant
// free standard shipping above MinSubtotal or for eligible items.
type Promotion struct {
	ID              string
	Type            string
	MinSubtotal     int
	EligibleItemIDs []string
	Description     string
}

// ShippingRate is one priced service level for a country. CountryCode
// "default" applies when no country-specific rate exists.
type ShippingRate struct {
	ID           string
	CountryCode  string
	ServiceLevel string
	Price        int
	Title        string
}

// Discount is a redeemable discount code definition.
type Discount struct {
	Code        string
	Type        string // "percentage" or "fixed_amount"
	Value       int
	Description string
}

// CustomerAddress is a stored address of a known customer.
type CustomerAddress struct {
	ID            string
	StreetAddress string
	City          string
	State         string
	PostalCode    string
	Country       string
}

// CheckoutRecord is a checkout session as persisted: status for cheap
// filtering, the full serialized body as data.
type CheckoutRecord struct {
	ID     string
	Status string
	Data   []byte
}

// IdempotencyRecord maps an idempotency key to the fingerprint and cached
// response of the command that first used it. Immutable after write.
type IdempotencyRecord struct {
	Key            string
	RequestHash    string
	ResponseStatus int
	ResponseBody   []byte
	CreatedAt      string
}
