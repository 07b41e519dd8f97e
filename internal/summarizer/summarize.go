package summarizer

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cenkalti/backoff/v4"

	"paydash_agent/pkg/logger"
)

// BreakdownDetail describes one list-valued field of a chunk.
type BreakdownDetail struct {
	Count       int    `json:"count"`
	Type        string `json:"type"`
	Description string `json:"description"`
	ActiveCount int    `json:"active_count,omitempty"`
}

// Validation is the structured block accompanying every chunk summary.
// It carries the deterministic counts computed before the generation call,
// so callers can reconcile totals without trusting the model's text.
type Validation struct {
	OriginalCounts       map[string]int             `json:"original_counts"`
	Breakdown            map[string]BreakdownDetail `json:"breakdown_details"`
	TotalOriginalItems   int                        `json:"total_original_items"`
	ActiveItems          int                        `json:"active_items"`
	PreservationVerified bool                       `json:"preservation_verified"`
	CountInResponse      bool                       `json:"count_in_response"`
	BreakdownMentioned   bool                       `json:"breakdown_mentioned"`
	IsChunk              bool                       `json:"is_chunk"`
	ChunkMeta            *Meta                      `json:"chunk_metadata,omitempty"`
}

// ChunkSummary is the result of summarizing one chunk (or, on the direct
// path, the whole envelope).
type ChunkSummary struct {
	SummaryText string     `json:"summary_text"`
	Validation  Validation `json:"data_validation"`
}

// chunkCounts holds the deterministic pre-call accounting for one chunk.
type chunkCounts struct {
	originalCounts map[string]int
	breakdown      map[string]BreakdownDetail
	totalItems     int
	activeItems    int
	activeDesc     string
}

// countChunk walks the chunk's list-valued fields, counting records per field
// and evaluating the query-derived predicate against each item record.
func countChunk(env Envelope, userQuery string) chunkCounts {
	match, description := PredicateFor(userQuery)

	cc := chunkCounts{
		originalCounts: make(map[string]int),
		breakdown:      make(map[string]BreakdownDetail),
	}
	for key, value := range env {
		list, ok := value.([]any)
		if !ok {
			continue
		}
		count := len(list)
		cc.originalCounts[key] = count
		cc.totalItems += count

		detail := BreakdownDetail{
			Count:       count,
			Type:        key,
			Description: fmt.Sprintf("%d %s", count, key),
		}
		for _, item := range list {
			rec, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if match(rec) {
				cc.activeItems++
				detail.ActiveCount++
			}
		}
		cc.breakdown[key] = detail
	}
	cc.activeDesc = fmt.Sprintf("%d %s", cc.activeItems, description)
	return cc
}

// breakdownText renders the per-field breakdown as bullet lines, in
// deterministic key order. Known field names get business labels.
func breakdownText(breakdown map[string]BreakdownDetail) string {
	keys := make([]string, 0, len(breakdown))
	for key := range breakdown {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		detail := breakdown[key]
		switch key {
		case "logics":
			lines = append(lines, fmt.Sprintf("• %d priority logic rules (%d active)", detail.Count, detail.ActiveCount))
		case "gateways":
			lines = append(lines, fmt.Sprintf("• %d gateway configurations", detail.Count))
		default:
			lines = append(lines, fmt.Sprintf("• %d %s", detail.Count, key))
		}
	}
	return strings.Join(lines, "\n")
}

// summarizeChunk produces one ChunkSummary: it compresses the chunk's data,
// verifies no record was lost, builds a count-anchored prompt, and calls the
// generation service with bounded retries.
func (s *Summarizer) summarizeChunk(ctx context.Context, ch Chunk, userQuery string) (*ChunkSummary, error) {
	cc := countChunk(ch.Data, userQuery)
	logger.Infof("[Summarize] before compression: %d total items, %d matching (%s)", cc.totalItems, cc.activeItems, cc.activeDesc)

	compact, err := Compress(ch.Data, s.cfg.GetCompressionBudget(), s.counter)
	if err != nil {
		return nil, err
	}

	// A record lost by compression is a compressor defect, not a recoverable
	// condition. Abort rather than summarize partial data.
	compressedCount, err := CountItemsInJSON(compact)
	if err != nil {
		return nil, fmt.Errorf("compression verification failed: %w", err)
	}
	if compressedCount != cc.totalItems {
		logger.Errorf("[Summarize] compression record loss: original %d, compressed %d", cc.totalItems, compressedCount)
		return nil, fmt.Errorf("%w: compression lost records, %d -> %d", ErrIntegrity, cc.totalItems, compressedCount)
	}

	var promptText string
	if !ch.Single && ch.Meta.TotalOriginalItems > 0 {
		promptText = fmt.Sprintf(chunkPromptTemplate,
			compact, userQuery,
			cc.totalItems, cc.totalItems, ch.Meta.TotalOriginalItems, cc.totalItems)
	} else {
		bd := breakdownText(cc.breakdown)
		promptText = fmt.Sprintf(directPromptTemplate,
			compact, userQuery,
			cc.totalItems, cc.totalItems, bd, cc.activeDesc,
			cc.totalItems, bd, cc.activeDesc, cc.totalItems, cc.activeDesc)
	}

	// Hard input ceiling: above it the generation service must not be called.
	promptTokens, err := s.counter(promptText)
	if err != nil {
		return nil, fmt.Errorf("count prompt tokens: %w", err)
	}
	if promptTokens > s.cfg.GetMaxInputTokens() {
		return nil, fmt.Errorf("%w: input tokens (%d) exceed limit (%d)", ErrInputTooLarge, promptTokens, s.cfg.GetMaxInputTokens())
	}
	logger.Infof("[Summarize] generation call: %d input tokens, %d items, budget %d output tokens", promptTokens, cc.totalItems, s.cfg.GetMaxOutputTokens())

	response, err := s.generateWithRetry(ctx, promptText)
	if err != nil {
		return nil, err
	}

	// Soft validation: the response should mention the stated count and at
	// least one breakdown figure. Misses degrade quality but do not block.
	countInResponse := strings.Contains(response, strconv.Itoa(cc.totalItems))
	if !countInResponse {
		logger.Warnf("[Summarize] response missing total count %d: %s", cc.totalItems, truncateSample(response, 100))
	}
	breakdownMentioned := false
	for _, detail := range cc.breakdown {
		if strings.Contains(response, strconv.Itoa(detail.Count)) {
			breakdownMentioned = true
			break
		}
	}
	if !breakdownMentioned {
		logger.Warnf("[Summarize] response missing breakdown details")
	}

	totalOriginal := cc.totalItems
	var meta *Meta
	if !ch.Single {
		totalOriginal = ch.Meta.TotalOriginalItems
		m := ch.Meta
		meta = &m
	}

	return &ChunkSummary{
		SummaryText: response,
		Validation: Validation{
			OriginalCounts:       cc.originalCounts,
			Breakdown:            cc.breakdown,
			TotalOriginalItems:   totalOriginal,
			ActiveItems:          cc.activeItems,
			PreservationVerified: true,
			CountInResponse:      countInResponse,
			BreakdownMentioned:   breakdownMentioned,
			IsChunk:              !ch.Single,
			ChunkMeta:            meta,
		},
	}, nil
}

// generateWithRetry calls the generation service with capped exponential
// backoff. Only generic service failures are retried; content mismatches in
// the returned text never trigger a retry.
func (s *Summarizer) generateWithRetry(ctx context.Context, promptText string) (string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.GetRetryBaseDelay()
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0

	attempt := 0
	return backoff.RetryWithData(func() (string, error) {
		attempt++
		out, err := s.gen.Generate(ctx, promptText, s.cfg.GetMaxOutputTokens())
		if err != nil {
			logger.Warnf("[Summarize] generation attempt %d/%d failed: %v", attempt, s.cfg.GetMaxRetries(), err)
			return "", err
		}
		return out, nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.cfg.GetMaxRetries()-1)), ctx))
}
