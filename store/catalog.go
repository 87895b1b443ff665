package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Catalog is the read-only view of reference data. Products and promotions
// live in the catalog database; shipping rates and discount codes share the
// transactions database so operators can edit them without touching the
// catalog file.
type Catalog struct {
	catalog      *sql.DB
	transactions *sql.DB
}

// GetProduct retrieves a product by id, or nil when unknown.
func (c *Catalog) GetProduct(ctx context.Context, id string) (*Product, error) {
	var p Product
	var imageURL sql.NullString
	err := c.catalog.QueryRowContext(ctx,
		`SELECT id, title, price, image_url FROM products WHERE id = ?`, id,
	).Scan(&p.ID, &p.Title, &p.Price, &imageURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	p.ImageURL = imageURL.String
	return &p, nil
}

// ActivePromotions retrieves all promotions.
func (c *Catalog) ActivePromotions(ctx context.Context) ([]Promotion, error) {
	rows, err := c.catalog.QueryContext(ctx,
		`SELECT id, type, min_subtotal, eligible_item_ids, description FROM promotions ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query promotions: %w", err)
	}
	defer rows.Close()

	var promotions []Promotion
	for rows.Next() {
		var p Promotion
		var minSubtotal sql.NullInt64
		var eligible, description sql.NullString
		if err := rows.Scan(&p.ID, &p.Type, &minSubtotal, &eligible, &description); err != nil {
			return nil, fmt.Errorf("failed to scan promotion: %w", err)
		}
		p.MinSubtotal = int(minSubtotal.Int64)
		p.Description = description.String
		if eligible.Valid && eligible.String != "" {
			if err := json.Unmarshal([]byte(eligible.String), &p.EligibleItemIDs); err != nil {
				return nil, fmt.Errorf("failed to decode eligible_item_ids for promotion %s: %w", p.ID, err)
			}
		}
		promotions = append(promotions, p)
	}
	return promotions, rows.Err()
}

// ShippingRates retrieves rates for a country together with the "default"
// fallback rates.
func (c *Catalog) ShippingRates(ctx context.Context, countryCode string) ([]ShippingRate, error) {
	rows, err := c.transactions.QueryContext(ctx,
		`SELECT id, country_code, service_level, price, title
		 FROM shipping_rates WHERE country_code IN (?, 'default') ORDER BY id`,
		countryCode,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query shipping rates: %w", err)
	}
	defer rows.Close()

	var rates []ShippingRate
	for rows.Next() {
		var r ShippingRate
		if err := rows.Scan(&r.ID, &r.CountryCode, &r.ServiceLevel, &r.Price, &r.Title); err != nil {
			return nil, fmt.Errorf("failed to scan shipping rate: %w", err)
		}
		rates = append(rates, r)
	}
	return rates, rows.Err()
}

// DiscountsByCodes retrieves the discount definitions for a list of codes in
// a single query. Unknown codes are simply absent from the result.
func (c *Catalog) DiscountsByCodes(ctx context.Context, codes []string) ([]Discount, error) {
	if len(codes) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(codes))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(codes))
	for i, code := range codes {
		args[i] = code
	}

	rows, err := c.transactions.QueryContext(ctx,
		`SELECT code, type, value, description FROM discounts WHERE code IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query discounts: %w", err)
	}
	defer rows.Close()

	var discounts []Discount
	for rows.Next() {
		var d Discount
		var description sql.NullString
		if err := rows.Scan(&d.Code, &d.Type, &d.Value, &description); err != nil {
			return nil, fmt.Errorf("failed to scan discount: %w", err)
		}
		d.Description = description.String
		discounts = append(discounts, d)
	}
	return discounts, rows.Err()
}
