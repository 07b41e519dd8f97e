package summarizer

import (
	"fmt"
	"sort"

	"paydash_agent/pkg/logger"
)

// Meta links a chunk back to the dataset it was sliced from.
type Meta struct {
	ChunkNumber        int `json:"chunk_number"`
	ItemsInChunk       int `json:"items_in_chunk"`
	TotalOriginalItems int `json:"total_original_items"`
}

// Chunk is an envelope restricted to a contiguous slice of the primary item
// sequence. Chunks are read-only after creation and consumed exactly once by
// the per-chunk summarizer.
//
// Single marks the degenerate case where the whole envelope fit in one chunk;
// such chunks carry no metadata and their summaries look identical to the
// direct (un-chunked) path.
type Chunk struct {
	Data   Envelope
	Meta   Meta
	Single bool
}

// singleChunk wraps a whole envelope as the only chunk.
func singleChunk(env Envelope) []Chunk {
	return []Chunk{{Data: env, Single: true}}
}

// primaryListKey picks the field holding the primary record sequence.
// Conventional keys win in priority order; otherwise the lexicographically
// smallest list-valued key is used so the choice is deterministic.
func primaryListKey(env Envelope) (string, []any, bool) {
	for _, key := range listKeyCandidates {
		if list, ok := env[key].([]any); ok && len(list) > 0 {
			return key, list, true
		}
	}
	keys := make([]string, 0, len(env))
	for key, value := range env {
		if list, ok := value.([]any); ok && len(list) > 0 {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return "", nil, false
	}
	sort.Strings(keys)
	key := keys[0]
	return key, env[key].([]any), true
}

// Split partitions the envelope's primary list into token-bounded chunks.
//
// Datasets at or below the no-chunk cutoff are returned as a single chunk:
// splitting small datasets risks count-reconciliation bugs downstream for
// negligible size benefit. Larger lists are sliced into at most
// ChunkItemsMax (at least ChunkItemsMin) items each, every slice annotated
// with its position and the original total.
//
// The sum of per-chunk item counts must equal the original list length;
// a violation aborts chunk creation with ErrIntegrity rather than returning
// partial chunks.
func Split(env Envelope, cfg *Config) ([]Chunk, error) {
	key, list, ok := primaryListKey(env)
	if !ok {
		// Nothing list-valued to split; degrade to the single-chunk path.
		return singleChunk(env), nil
	}

	total := len(list)
	if total <= cfg.GetNoChunkCutoff() {
		logger.Infof("[Split] no chunking: %d items <= %d cutoff, processing as single unit", total, cfg.GetNoChunkCutoff())
		return singleChunk(env), nil
	}

	itemsPerChunk := total / 3
	if itemsPerChunk < cfg.GetChunkItemsMin() {
		itemsPerChunk = cfg.GetChunkItemsMin()
	}
	if itemsPerChunk > cfg.GetChunkItemsMax() {
		itemsPerChunk = cfg.GetChunkItemsMax()
	}

	chunks := make([]Chunk, 0, total/itemsPerChunk+1)
	for start := 0; start < total; start += itemsPerChunk {
		end := start + itemsPerChunk
		if end > total {
			end = total
		}
		slice := list[start:end]

		// Fresh envelope per chunk: the primary field holds the slice,
		// every other top-level field passes through unchanged.
		data := make(Envelope, len(env))
		for k, v := range env {
			if k == key {
				continue
			}
			data[k] = v
		}
		data[key] = slice

		chunks = append(chunks, Chunk{
			Data: data,
			Meta: Meta{
				ChunkNumber:        len(chunks) + 1,
				ItemsInChunk:       len(slice),
				TotalOriginalItems: total,
			},
		})
	}

	itemsInChunks := 0
	for _, ch := range chunks {
		itemsInChunks += len(ch.Data[key].([]any))
	}
	if itemsInChunks != total {
		logger.Errorf("[Split] record loss: original %d items, chunks have %d", total, itemsInChunks)
		return nil, fmt.Errorf("%w: %d != %d", ErrIntegrity, total, itemsInChunks)
	}

	logger.Infof("[Split] created %d chunks for %d items under key %q", len(chunks), total, key)
	return chunks, nil
}
