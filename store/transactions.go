package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Transactions is the mutable side of the merchant: inventory, checkout
// sessions, orders, idempotency records, customers, and the request log.
type Transactions struct {
	db *sql.DB
}

// Tx is a single command-scoped transaction. Every state transition of a
// checkout runs inside one Tx so reservation, session write, and order write
// commit or roll back together.
type Tx struct {
	tx *sql.Tx
}

// Begin starts a command transaction.
func (t *Transactions) Begin(ctx context.Context) (*Tx, error) {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback rolls the transaction back. Safe to defer after Commit.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// Inventory reports the on-hand quantity for a product. The second return is
// false when the product has no inventory row at all.
func (t *Tx) Inventory(ctx context.Context, productID string) (int, bool, error) {
	var quantity int
	err := t.tx.QueryRowContext(ctx,
		`SELECT quantity FROM inventory WHERE product_id = ?`, productID,
	).Scan(&quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get inventory: %w", err)
	}
	return quantity, true, nil
}

// ReserveStock atomically decrements on-hand stock for a product. The
// conditional update only succeeds when enough quantity remains, so a
// concurrent reservation can never drive stock negative. Returns false when
// the decrement did not apply.
func (t *Tx) ReserveStock(ctx context.Context, productID string, quantity int) (bool, error) {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE inventory SET quantity = quantity - ? WHERE product_id = ? AND quantity >= ?`,
		quantity, productID, quantity,
	)
	if err != nil {
		return false, fmt.Errorf("failed to reserve stock: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check reservation: %w", err)
	}
	return affected > 0, nil
}

// GetCheckout loads a checkout session, or nil when unknown.
func (t *Tx) GetCheckout(ctx context.Context, id string) (*CheckoutRecord, error) {
	var rec CheckoutRecord
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, status, data FROM checkouts WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Status, &rec.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkout: %w", err)
	}
	return &rec, nil
}

// SaveCheckout inserts or replaces a checkout session.
func (t *Tx) SaveCheckout(ctx context.Context, rec CheckoutRecord) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO checkouts (id, status, data) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET status = excluded.status, data = excluded.data`,
		rec.ID, rec.Status, rec.Data,
	)
	if err != nil {
		return fmt.Errorf("failed to save checkout: %w", err)
	}
	return nil
}

// GetOrder loads a serialized order, or nil when unknown.
func (t *Tx) GetOrder(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := t.tx.QueryRowContext(ctx,
		`SELECT data FROM orders WHERE id = ?`, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return data, nil
}

// SaveOrder inserts or replaces a serialized order.
func (t *Tx) SaveOrder(ctx context.Context, id string, data []byte) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO orders (id, data) VALUES (?, ?)
		 ON CONFLICT (id) DO UPDATE SET data = excluded.data`,
		id, data,
	)
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// GetIdempotencyRecord loads a prior command record for a key, or nil when
// the key has never been used.
func (t *Tx) GetIdempotencyRecord(ctx context.Context, key string) (*IdempotencyRecord, error) {
	var rec IdempotencyRecord
	err := t.tx.QueryRowContext(ctx,
		`SELECT key, request_hash, response_status, response_body, created_at
		 FROM idempotency_records WHERE key = ?`, key,
	).Scan(&rec.Key, &rec.RequestHash, &rec.ResponseStatus, &rec.ResponseBody, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency record: %w", err)
	}
	return &rec, nil
}

// SaveIdempotencyRecord stores the outcome of a command under its key.
// Records are write-once: when two commands race on the same key, the first
// committed record wins and the loser's write is a no-op.
func (t *Tx) SaveIdempotencyRecord(ctx context.Context, rec IdempotencyRecord) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO idempotency_records (key, request_hash, response_status, response_body, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (key) DO NOTHING`,
		rec.Key, rec.RequestHash, rec.ResponseStatus, rec.ResponseBody, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save idempotency record: %w", err)
	}
	return nil
}

// SavePaymentInstrument records a payment instrument seen during completion.
// Card numbers are never stored, only the last digits.
func (t *Tx) SavePaymentInstrument(ctx context.Context, id, instrumentType, brand, lastDigits, token, handlerID string) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO payment_instruments (id, type, brand, last_digits, token, handler_id)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			type = excluded.type, brand = excluded.brand, last_digits = excluded.last_digits,
			token = excluded.token, handler_id = excluded.handler_id`,
		id, instrumentType, brand, lastDigits, token, handlerID,
	)
	if err != nil {
		return fmt.Errorf("failed to save payment instrument: %w", err)
	}
	return nil
}

// CustomerAddresses returns the stored addresses of the customer with the
// given email, if any.
func (t *Tx) CustomerAddresses(ctx context.Context, email string) ([]CustomerAddress, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT a.id, a.street_address, a.city, a.state, a.postal_code, a.country
		 FROM customer_addresses a
		 JOIN customers c ON c.id = a.customer_id
		 WHERE c.email = ?
		 ORDER BY a.id`,
		email,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query customer addresses: %w", err)
	}
	defer rows.Close()

	var addresses []CustomerAddress
	for rows.Next() {
		var a CustomerAddress
		var street, city, state, postal, country sql.NullString
		if err := rows.Scan(&a.ID, &street, &city, &state, &postal, &country); err != nil {
			return nil, fmt.Errorf("failed to scan customer address: %w", err)
		}
		a.StreetAddress = street.String
		a.City = city.String
		a.State = state.String
		a.PostalCode = postal.String
		a.Country = country.String
		addresses = append(addresses, a)
	}
	return addresses, rows.Err()
}

// SaveCustomerAddress stores an address under the customer identified by
// email, creating the customer row on first contact. An address identical to
// one already on file is not duplicated.
func (t *Tx) SaveCustomerAddress(ctx context.Context, email, name string, addr CustomerAddress) error {
	var customerID string
	err := t.tx.QueryRowContext(ctx,
		`SELECT id FROM customers WHERE email = ?`, email,
	).Scan(&customerID)
	if errors.Is(err, sql.ErrNoRows) {
		customerID = "cust_" + uuid.NewString()
		if _, err := t.tx.ExecContext(ctx,
			`INSERT INTO customers (id, name, email) VALUES (?, ?, ?)`,
			customerID, name, email,
		); err != nil {
			return fmt.Errorf("failed to create customer: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to look up customer: %w", err)
	}

	existing, err := t.CustomerAddresses(ctx, email)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.StreetAddress == addr.StreetAddress && e.City == addr.City &&
			e.State == addr.State && e.PostalCode == addr.PostalCode && e.Country == addr.Country {
			return nil
		}
	}

	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO customer_addresses (id, customer_id, street_address, city, state, postal_code, country)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		"addr_"+uuid.NewString(), customerID,
		addr.StreetAddress, addr.City, addr.State, addr.PostalCode, addr.Country,
	)
	if err != nil {
		return fmt.Errorf("failed to save customer address: %w", err)
	}
	return nil
}

// LogRequest appends one inbound request to the request log. Runs outside
// any command transaction so a rolled-back command still leaves its trace.
func (t *Transactions) LogRequest(ctx context.Context, method, url, checkoutID string, payload []byte) error {
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO request_logs (timestamp, method, url, checkout_id, payload)
		 VALUES (?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339), method, url, checkoutID, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to log request: %w", err)
	}
	return nil
}
