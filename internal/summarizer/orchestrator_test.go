package summarizer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"paydash_agent/internal/events"
)

func TestNewRequiresGenerator(t *testing.T) {
	_, err := New(nil)
	require.ErrorIs(t, err, ErrConfigNil)

	_, err = New(&Config{})
	require.ErrorIs(t, err, ErrGeneratorRequired)
}

func TestShouldSummarize(t *testing.T) {
	big := map[string]any{"logics": makeLogics(60)}

	// An empty query always passes the response through.
	need, _, _, err := ShouldSummarize(big, "", 10, charCounter)
	require.NoError(t, err)
	require.False(t, need)

	need, tokens, items, err := ShouldSummarize(big, "active rules", 10, charCounter)
	require.NoError(t, err)
	require.True(t, need)
	require.Greater(t, tokens, 10)
	require.Equal(t, 60, items)

	need, _, _, err = ShouldSummarize(map[string]any{"ok": true}, "active rules", 10000, charCounter)
	require.NoError(t, err)
	require.False(t, need)
}

func TestSummarizeEmptyQueryPassesThrough(t *testing.T) {
	s := newTestSummarizer(t, nopGenerator{}, nil)
	raw := map[string]any{"logics": makeLogics(3)}

	result, err := s.Summarize(context.Background(), raw, "")
	require.NoError(t, err)
	require.Equal(t, StrategyPassthrough, result.Strategy)
	require.Equal(t, raw, result.Raw)
	require.Nil(t, result.Summary)
	require.Nil(t, result.Failure)
}

func TestSummarizeDirectPath(t *testing.T) {
	gen := funcGenerator(func(_ context.Context, promptText string, _ int) (string, error) {
		return "Found 10 records total, consisting of: 10 logics. VERIFIED: 10 total records analyzed", nil
	})
	s := newTestSummarizer(t, gen, nil)

	result, err := s.Summarize(context.Background(), map[string]any{"logics": makeLogics(10)}, "active rules")
	require.NoError(t, err)
	require.Equal(t, StrategyDirect, result.Strategy)
	require.NotNil(t, result.Summary)
	require.Equal(t, 10, result.Summary.Validation.TotalOriginalItems)
	require.Nil(t, result.Combined)
}

func TestSummarizeChunkedEndToEnd(t *testing.T) {
	gen := funcGenerator(func(_ context.Context, promptText string, _ int) (string, error) {
		return "Found 20 records total in this view. Mostly approved rules. VERIFIED: 20 total records analyzed here.", nil
	})
	emitter := events.NewChannelEmitter(64)
	received := emitter.Subscribe()
	s := newTestSummarizer(t, gen, func(cfg *Config) {
		cfg.DirectTokenThreshold = 1
		cfg.Emitter = emitter
	})

	raw := map[string]any{
		"logics":   makeLogics(60),
		"metadata": map[string]any{"total_count": 60},
	}
	result, err := s.Summarize(context.Background(), raw, "how many active rules?")
	require.NoError(t, err)
	emitter.Close()

	require.Equal(t, StrategyChunked, result.Strategy)
	require.NotNil(t, result.Combined)
	require.Len(t, result.Intermediate, 3)

	v := result.Combined.Validation
	require.Equal(t, 3, v.TotalChunks)
	// The aggregate total is the dataset's original total, never the sum of
	// the chunk-local counts.
	require.Equal(t, 60, v.TotalOriginalItems)
	require.Equal(t, 45, v.ActiveItems)

	text := result.Combined.SummaryText
	require.Contains(t, text, "60 TOTAL PRIORITY LOGIC RULES")
	require.Contains(t, text, "**Chunk 3 Analysis:**")
	require.Contains(t, text, "VERIFIED**: 60 total priority logic rules analyzed across 3 processing chunks.")
	// Chunk-local count sentences are stripped from the spliced narrative.
	require.NotContains(t, text, "Found 20 records total")
	require.NotContains(t, text, "VERIFIED: 20 total records analyzed")

	types := map[string]int{}
	for evt := range received {
		types[evt.Type]++
	}
	require.Equal(t, 1, types[events.TypeSummarizeStarted])
	require.Equal(t, 1, types[events.TypeSummarizeChunking])
	require.Equal(t, 3, types[events.TypeChunkCompleted])
	require.Equal(t, 1, types[events.TypeSummarizeCombined])
	require.Equal(t, 1, types[events.TypeSummarizeCompleted])
}

func TestSummarizeChunkSizeOverrideForcesChunking(t *testing.T) {
	gen := funcGenerator(func(context.Context, string, int) (string, error) {
		return "60 records in scope.", nil
	})
	s := newTestSummarizer(t, gen, nil)
	raw := map[string]any{"logics": makeLogics(60)}

	// Under the default threshold this dataset fits in one direct call.
	result, err := s.Summarize(context.Background(), raw, "active rules")
	require.NoError(t, err)
	require.Equal(t, StrategyDirect, result.Strategy)

	result, err = s.Summarize(context.Background(), raw, "active rules", WithChunkSizeOverride(1))
	require.NoError(t, err)
	require.Equal(t, StrategyChunked, result.Strategy)
	require.Len(t, result.Intermediate, 3)
}

func TestSummarizeExtremeSizeForcesSmallerChunks(t *testing.T) {
	gen := funcGenerator(func(context.Context, string, int) (string, error) {
		return "20 records in this view.", nil
	})
	s := newTestSummarizer(t, gen, func(cfg *Config) {
		cfg.ExtremeTokenCeiling = 1
	})

	result, err := s.Summarize(context.Background(), map[string]any{"logics": makeLogics(300)}, "active rules")
	require.NoError(t, err)
	require.Equal(t, StrategyChunked, result.Strategy)
	// The normal clamp would give 12 chunks of 25; the forced path slices at
	// the lower clamp of 20.
	require.Len(t, result.Intermediate, 15)
	for _, cs := range result.Intermediate {
		require.LessOrEqual(t, cs.Validation.ChunkMeta.ItemsInChunk, 20)
	}
}

func TestSummarizeSoftApprovedLogicsEndToEnd(t *testing.T) {
	logics := make([]any, 43)
	for i := range logics {
		status := "APPROVED"
		if i%5 == 0 {
			status = "SOFT_APPROVED"
		}
		logics[i] = map[string]any{
			"id":     fmt.Sprintf("logic_%03d", i+1),
			"name":   fmt.Sprintf("Rule %d", i+1),
			"status": status,
		}
	}

	gen := funcGenerator(func(_ context.Context, promptText string, _ int) (string, error) {
		return "Subset reviewed; several soft approved rules present.", nil
	})
	s := newTestSummarizer(t, gen, func(cfg *Config) {
		cfg.DirectTokenThreshold = 1
		cfg.NoChunkCutoff = 40
		cfg.ChunkItemsMin = 25
		cfg.ChunkItemsMax = 25
	})

	result, err := s.Summarize(context.Background(), map[string]any{"logics": logics}, "how many are soft approved")
	require.NoError(t, err)
	require.Equal(t, StrategyChunked, result.Strategy)
	require.Len(t, result.Intermediate, 2)

	first, second := result.Intermediate[0], result.Intermediate[1]
	require.Equal(t, 25, first.Validation.ChunkMeta.ItemsInChunk)
	require.Equal(t, 18, second.Validation.ChunkMeta.ItemsInChunk)
	require.Equal(t, 43, first.Validation.TotalOriginalItems)
	require.Equal(t, 43, second.Validation.TotalOriginalItems)

	v := result.Combined.Validation
	require.Equal(t, 43, v.TotalOriginalItems)
	require.Equal(t, 9, v.ActiveItems)
	require.Equal(t, first.Validation.ActiveItems+second.Validation.ActiveItems, v.ActiveItems)
	require.Contains(t, result.Combined.SummaryText, "43 priority logic rules")
}

func TestSummarizeTimeoutReturnsNoPartials(t *testing.T) {
	started := make(chan struct{}, 8)
	gen := funcGenerator(func(ctx context.Context, _ string, _ int) (string, error) {
		started <- struct{}{}
		<-ctx.Done()
		return "", ctx.Err()
	})
	s := newTestSummarizer(t, gen, func(cfg *Config) {
		cfg.DirectTokenThreshold = 1
		cfg.GlobalTimeout = 50 * time.Millisecond
	})

	result, err := s.Summarize(context.Background(), map[string]any{"logics": makeLogics(60)}, "active rules")
	require.NoError(t, err)
	require.NotEmpty(t, started)

	require.Equal(t, StrategyTimedOut, result.Strategy)
	require.NotNil(t, result.Failure)
	require.Equal(t, "Summarization timed out", result.Failure.Error)
	require.Equal(t, "50ms", result.Failure.Timeout)
	require.Nil(t, result.Summary)
	require.Nil(t, result.Combined)
	require.Empty(t, result.Intermediate)
}

func TestSummarizeGenerationFailureYieldsErrorObject(t *testing.T) {
	gen := funcGenerator(func(context.Context, string, int) (string, error) {
		return "", errors.New("model unavailable")
	})
	s := newTestSummarizer(t, gen, func(cfg *Config) {
		cfg.MaxRetries = 1
	})

	raw := map[string]any{"logics": []any{
		map[string]any{"id": "l1", "isActiveLogic": true},
		map[string]any{"id": "l2", "isActiveLogic": false},
	}}
	result, err := s.Summarize(context.Background(), raw, "active rules")
	require.NoError(t, err)

	require.Equal(t, StrategyError, result.Strategy)
	require.NotNil(t, result.Failure)
	require.Contains(t, result.Failure.Error, "model unavailable")
	require.NotNil(t, result.Failure.CriticalData)
	require.Equal(t, 2, result.Failure.CriticalData.TotalItems)
	require.Equal(t, 1, result.Failure.CriticalData.ActiveItems)
	require.Equal(t, 2, result.Failure.CriticalData.OriginalCounts["logics"])
	require.NotEmpty(t, result.Failure.DataSample)
}

func TestSummarizeDirectInputCeilingFallsBackToChunking(t *testing.T) {
	var prompts []string
	gen := funcGenerator(func(_ context.Context, promptText string, _ int) (string, error) {
		prompts = append(prompts, promptText)
		return "60 records reviewed.", nil
	})
	s := newTestSummarizer(t, gen, func(cfg *Config) {
		cfg.DirectTokenThreshold = 1 << 20
		// The direct prompt for this dataset exceeds the ceiling, but the
		// smaller per-chunk prompts fit.
		cfg.MaxInputTokens = 5000
	})

	result, err := s.Summarize(context.Background(), map[string]any{"logics": makeLogics(120)}, "active rules")
	require.NoError(t, err)
	require.Equal(t, StrategyChunked, result.Strategy)
	require.Len(t, prompts, 5)
}

func TestSummarizeDeterministicResultIsIdempotent(t *testing.T) {
	gen := funcGenerator(func(context.Context, string, int) (string, error) {
		return "Found 5 records total. VERIFIED: 5 total records analyzed", nil
	})
	s := newTestSummarizer(t, gen, nil)
	raw := map[string]any{"logics": makeLogics(5)}

	first, err := s.SummarizeToText(context.Background(), raw, "active rules")
	require.NoError(t, err)
	second, err := s.SummarizeToText(context.Background(), raw, "active rules")
	require.NoError(t, err)
	require.JSONEq(t, first, second)
}

func TestCombineSummariesReconcilesTotalsByMax(t *testing.T) {
	mk := func(total, active int) *ChunkSummary {
		return &ChunkSummary{
			SummaryText: fmt.Sprintf("Found %d records total in this chunk. Detail follows.", active),
			Validation: Validation{
				Breakdown:          map[string]BreakdownDetail{"logics": {Count: active}},
				TotalOriginalItems: total,
				ActiveItems:        active,
			},
		}
	}
	// One chunk degraded to its local count; max reconciles to the true total.
	combined := combineSummaries([]*ChunkSummary{mk(43, 10), mk(20, 6), mk(43, 4)}, 2*time.Second)

	require.Equal(t, 43, combined.Validation.TotalOriginalItems)
	require.Equal(t, 20, combined.Validation.ActiveItems)
	require.Equal(t, 3, combined.Validation.TotalChunks)
	require.Equal(t, "2.00s", combined.Validation.ProcessingTime)
	require.Contains(t, combined.SummaryText, "43 priority logic rules total (20 active)")
	require.NotContains(t, combined.SummaryText, "Found 10 records total")
}

func TestResultTextRendersPayload(t *testing.T) {
	result := &Result{Strategy: StrategyPassthrough, Raw: map[string]any{"ok": true}}
	text, err := result.Text()
	require.NoError(t, err)
	require.JSONEq(t, `{"ok": true}`, text)

	result = &Result{
		Strategy: StrategyError,
		Failure:  &ErrorSummary{Error: "boom"},
	}
	text, err = result.Text()
	require.NoError(t, err)
	require.Contains(t, text, `"error": "boom"`)
}
