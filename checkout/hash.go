package checkout

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// requestHash fingerprints a command body for the idempotency guard:
// SHA-256 over canonical JSON. Canonical form sorts object keys
// lexicographically and suppresses null members, so two encodings of the
// same logical request hash identically.
func requestHash(body any) (string, error) {
	canonical, err := canonicalJSON(body)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalise request body: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func canonicalJSON(body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	// encoding/json emits map keys in sorted order, which gives the
	// lexicographic canonical form once nulls are stripped.
	return json.Marshal(stripNulls(decoded))
}

func stripNulls(v any) any {
	switch value := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(value))
		for k, member := range value {
			if member == nil {
				continue
			}
			out[k] = stripNulls(member)
		}
		return out
	case []any:
		out := make([]any, 0, len(value))
		for _, member := range value {
			out = append(out, stripNulls(member))
		}
		return out
	default:
		return v
	}
}
