package summarizer

import (
	"encoding/json"
	"fmt"

	"paydash_agent/pkg/logger"
)

// Field compression shrinks verbose per-item fields so that large record sets
// fit the generation service's input budget. Both tiers preserve record count
// exactly: no item is ever dropped, merged, or duplicated. Only field content
// inside each item is reduced.

// essentialFields are retained verbatim by the first compression tier.
var essentialFields = map[string]struct{}{
	"id":                {},
	"name":              {},
	"status":            {},
	"isActiveLogic":     {},
	"merchantAccountId": {},
	"priorityOrder":     {},
	"isDefault":         {},
}

// verboseFields are dropped entirely by the first tier: audit actor fields
// and free-form metadata/debug blobs that add tokens without analytical value.
var verboseFields = map[string]struct{}{
	"createdBy": {},
	"updatedBy": {},
	"metadata":  {},
	"debugInfo": {},
}

// dateFields keep only their date part (first 10 characters of an ISO stamp).
var dateFields = map[string]struct{}{
	"dateCreated": {},
	"lastUpdated": {},
}

// longTextField is the designated free-text field truncated by the first tier.
const (
	longTextField = "logicExpression"
	longTextLimit = 200
)

// criticalFields is the minimal allow-list the aggressive tier reduces to.
var criticalFields = []string{"id", "name", "status", "isActiveLogic", "merchantAccountId"}

// compressItem applies tier-1 compression to one item record.
func compressItem(item any) any {
	rec, ok := item.(map[string]any)
	if !ok {
		return item
	}
	compressed := make(map[string]any, len(rec))
	for key, value := range rec {
		if _, ok := dateFields[key]; ok {
			if s, ok := value.(string); ok && len(s) > 10 {
				compressed[key] = s[:10]
			} else {
				compressed[key] = value
			}
			continue
		}
		if _, ok := essentialFields[key]; ok {
			compressed[key] = value
			continue
		}
		if key == longTextField {
			if s, ok := value.(string); ok && len(s) > longTextLimit {
				compressed[key] = s[:longTextLimit] + "...[TRUNCATED]"
			} else {
				compressed[key] = value
			}
			continue
		}
		if _, ok := verboseFields[key]; ok {
			continue
		}
		compressed[key] = value
	}
	return compressed
}

// aggressiveCompressItem applies tier-2 compression: only the critical
// allow-list survives, and absent values are omitted.
func aggressiveCompressItem(item any) any {
	rec, ok := item.(map[string]any)
	if !ok {
		return item
	}
	compressed := make(map[string]any, len(criticalFields))
	for _, key := range criticalFields {
		if v, ok := rec[key]; ok && v != nil {
			compressed[key] = v
		}
	}
	return compressed
}

// compressValue walks a value, compressing every item of every list it finds.
// List lengths are never changed.
func compressValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		compressed := make(map[string]any, len(val))
		for key, value := range val {
			switch inner := value.(type) {
			case []any:
				items := make([]any, len(inner))
				for i, item := range inner {
					items[i] = compressItem(item)
				}
				compressed[key] = items
			case map[string]any:
				compressed[key] = compressValue(inner)
			default:
				compressed[key] = value
			}
		}
		return compressed
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = compressItem(item)
		}
		return items
	default:
		return v
	}
}

// Compress serializes the envelope to compact JSON that fits within maxTokens,
// escalating from field-level compression to the aggressive allow-list tier
// if needed. Record counts are preserved through both tiers; the caller must
// verify the count with CountItemsInJSON and treat a mismatch as fatal.
func Compress(env Envelope, maxTokens int, counter TokenCounter) (string, error) {
	compressed, ok := compressValue(map[string]any(env)).(map[string]any)
	if !ok {
		return "", fmt.Errorf("compress: unexpected envelope shape")
	}

	compact, err := json.Marshal(compressed)
	if err != nil {
		return "", fmt.Errorf("compress: marshal tier-1 output: %w", err)
	}
	tokens, err := counter(string(compact))
	if err != nil {
		return "", fmt.Errorf("compress: count tokens: %w", err)
	}
	if tokens <= maxTokens {
		return string(compact), nil
	}

	logger.Warnf("[Compress] data still large (%d tokens > %d budget), applying aggressive compression", tokens, maxTokens)
	for key, value := range compressed {
		if list, ok := value.([]any); ok {
			items := make([]any, len(list))
			for i, item := range list {
				items[i] = aggressiveCompressItem(item)
			}
			compressed[key] = items
		}
	}
	compact, err = json.Marshal(compressed)
	if err != nil {
		return "", fmt.Errorf("compress: marshal tier-2 output: %w", err)
	}
	return string(compact), nil
}

// CountItems counts the records across all list-valued top-level fields of an
// envelope. This is the quantity both compression and chunking must preserve.
func CountItems(env Envelope) int {
	total := 0
	for _, value := range env {
		if list, ok := value.([]any); ok {
			total += len(list)
		}
	}
	return total
}

// CountItemsInJSON parses compressed envelope text and counts the records in
// its list-valued top-level fields, for post-compression verification.
func CountItemsInJSON(text string) (int, error) {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return 0, fmt.Errorf("parse compressed data: %w", err)
	}
	return CountItems(Envelope(parsed)), nil
}
