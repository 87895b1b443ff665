package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/timour/ucp-merchant/models"
	"github.com/timour/ucp-merchant/store"
	"github.com/timour/ucp-merchant/ucperr"
)

// replayGuard checks the idempotency record for a key against the hash of the
// incoming body. Returns the cached session on an exact replay, an
// IDEMPOTENCY_CONFLICT error on key reuse with different parameters, and
// (nil, hash, nil) when the command should execute.
func replayGuard(ctx context.Context, tx Tx, key string, body any) (*models.Checkout, string, error) {
	hash, err := requestHash(body)
	if err != nil {
		return nil, "", err
	}
	if key == "" {
		return nil, hash, nil
	}

	rec, err := tx.GetIdempotencyRecord(ctx, key)
	if err != nil {
		return nil, "", err
	}
	if rec == nil {
		return nil, hash, nil
	}
	if rec.RequestHash != hash {
		return nil, "", ucperr.IdempotencyConflict(
			"Idempotency key %q was already used with a different request", key)
	}

	var cached models.Checkout
	if err := json.Unmarshal(rec.ResponseBody, &cached); err != nil {
		return nil, "", fmt.Errorf("failed to decode cached response for key %s: %w", key, err)
	}
	return &cached, hash, nil
}

// recordCommand persists the idempotency record of a just-executed command.
// No-op without a key.
func recordCommand(ctx context.Context, tx Tx, key, hash string, status int, body []byte) error {
	if key == "" {
		return nil
	}
	return tx.SaveIdempotencyRecord(ctx, store.IdempotencyRecord{
		Key:            key,
		RequestHash:    hash,
		ResponseStatus: status,
		ResponseBody:   body,
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
	})
}

// persistSession writes the session under its current status and returns the
// serialized body, which doubles as the cached idempotency response.
func persistSession(ctx context.Context, tx Tx, c *models.Checkout) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to serialise checkout %s: %w", c.ID, err)
	}
	if err := tx.SaveCheckout(ctx, store.CheckoutRecord{
		ID:     c.ID,
		Status: string(c.Status),
		Data:   data,
	}); err != nil {
		return nil, err
	}
	return data, nil
}

// loadSession loads and decodes a session, translating absence into
// RESOURCE_NOT_FOUND.
func loadSession(ctx context.Context, tx Tx, id string) (*models.Checkout, error) {
	rec, err := tx.GetCheckout(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ucperr.NotFound("Checkout %s not found", id)
	}
	var c models.Checkout
	if err := json.Unmarshal(rec.Data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode checkout %s: %w", id, err)
	}
	return &c, nil
}
