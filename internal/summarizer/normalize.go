package summarizer

import (
	"encoding/json"
	"fmt"

	"paydash_agent/pkg/logger"
)

// Envelope is the canonical representation of one upstream API response:
// a mapping from field name to arbitrary values, where list-valued fields
// hold the item records the pipeline operates on.
//
// Envelopes are never mutated after creation; every transform yields a new one.
type Envelope map[string]any

// listKeyCandidates are the conventional field names searched, in priority
// order, for the primary record sequence of a structured response.
var listKeyCandidates = []string{"data", "records", "items", "results", "list_items"}

// inputShape classifies a raw response value into one of the recognized
// input variants. Each variant has a total conversion into an Envelope.
type inputShape int

const (
	shapeNil inputShape = iota
	shapeMapping
	shapeSequence
	shapeScalar
	shapeRecord
)

func classify(raw any) inputShape {
	switch raw.(type) {
	case nil:
		return shapeNil
	case map[string]any:
		return shapeMapping
	case []any:
		return shapeSequence
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return shapeScalar
	default:
		return shapeRecord
	}
}

// Normalize converts a response value of unknown shape into exactly one
// canonical Envelope. It never fails: unrepresentable inputs degrade to an
// error-wrapped form so the pipeline always has a valid envelope to proceed
// with.
func Normalize(raw any) Envelope {
	switch classify(raw) {
	case shapeNil:
		return Envelope{
			"raw_response": "",
			"error_detail": "nil response",
		}
	case shapeMapping:
		// Plain mappings pass through unchanged; the partitioner searches
		// them for a primary list itself.
		return Envelope(raw.(map[string]any))
	case shapeSequence:
		return Envelope{"data": safeSequence(raw.([]any))}
	case shapeScalar:
		return Envelope{
			"raw_response": fmt.Sprintf("%v", raw),
			"error_detail": fmt.Sprintf("unhandled type %T", raw),
		}
	default:
		return normalizeRecord(raw)
	}
}

// normalizeRecord handles structured records (typed structs, custom
// marshalers) by dumping them to their JSON representation and re-keying the
// primary sequence under "data".
func normalizeRecord(raw any) Envelope {
	dumped, err := dumpValue(raw)
	if err != nil {
		logger.Warnf("[Normalize] record dump failed (%T): %v", raw, err)
		return Envelope{
			"raw_response": fmt.Sprintf("%v", raw),
			"error_detail": err.Error(),
		}
	}

	switch v := dumped.(type) {
	case []any:
		// The record's underlying representation is itself a sequence.
		return Envelope{"data": v}
	case map[string]any:
		// Root-model pattern: the record nests one level through a wrapper key.
		if root, ok := v["root"]; ok {
			switch inner := root.(type) {
			case []any:
				return Envelope{"data": inner}
			case map[string]any:
				if env, ok := extractList(inner); ok {
					return env
				}
			}
		}
		if env, ok := extractList(v); ok {
			return env
		}
		// No recognizable list; pass the mapping through. Chunking degrades
		// to the single-chunk path downstream.
		return Envelope(v)
	default:
		return Envelope{
			"raw_response": fmt.Sprintf("%v", dumped),
			"error_detail": fmt.Sprintf("record dump gave non-mapping %T", dumped),
		}
	}
}

// extractList searches a mapping for a list under the conventional keys and,
// if found, re-keys it to "data".
func extractList(m map[string]any) (Envelope, bool) {
	for _, key := range listKeyCandidates {
		if list, ok := m[key].([]any); ok {
			return Envelope{"data": list}, true
		}
	}
	return nil, false
}

// safeSequence converts each element of a plain sequence to a representation
// that is guaranteed to serialize: structured sub-records are dumped to
// primitives, non-serializable values are stringified.
func safeSequence(seq []any) []any {
	out := make([]any, 0, len(seq))
	for _, item := range seq {
		switch classify(item) {
		case shapeRecord:
			dumped, err := dumpValue(item)
			if err != nil {
				out = append(out, fmt.Sprintf("%v", item))
				continue
			}
			out = append(out, dumped)
		case shapeMapping, shapeSequence:
			if _, err := json.Marshal(item); err != nil {
				out = append(out, fmt.Sprintf("%v", item))
				continue
			}
			out = append(out, item)
		default:
			out = append(out, item)
		}
	}
	return out
}

// dumpValue round-trips a value through JSON, yielding the generic
// map/slice/primitive form the rest of the pipeline understands.
func dumpValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal record dump: %w", err)
	}
	return out, nil
}
