package summarizer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// nopGenerator satisfies Generator for configs where generation never runs.
type nopGenerator struct{}

func (nopGenerator) Generate(context.Context, string, int) (string, error) {
	return "", errors.New("nop generator invoked")
}

// funcGenerator adapts a function to the Generator interface.
type funcGenerator func(ctx context.Context, promptText string, maxOutputTokens int) (string, error)

func (f funcGenerator) Generate(ctx context.Context, promptText string, maxOutputTokens int) (string, error) {
	return f(ctx, promptText, maxOutputTokens)
}

func newTestSummarizer(t *testing.T, gen Generator, mutate func(*Config)) *Summarizer {
	t.Helper()
	cfg := &Config{
		Generator:      gen,
		Counter:        charCounter,
		RetryBaseDelay: time.Millisecond,
	}
	if mutate != nil {
		mutate(cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func TestCountChunkTracksPerFieldAndActiveCounts(t *testing.T) {
	env := Envelope{
		"logics": []any{
			map[string]any{"id": "l1", "status": "APPROVED", "isActiveLogic": true},
			map[string]any{"id": "l2", "status": "DRAFT", "isActiveLogic": false},
			map[string]any{"id": "l3", "status": "APPROVED", "isActiveLogic": true},
		},
		"gateways": []any{
			map[string]any{"id": "g1", "status": "APPROVED"},
		},
		"metadata": map[string]any{"total_count": 4},
	}

	cc := countChunk(env, "how many approved rules?")
	require.Equal(t, 4, cc.totalItems)
	require.Equal(t, 3, cc.originalCounts["logics"])
	require.Equal(t, 1, cc.originalCounts["gateways"])
	require.Equal(t, 3, cc.activeItems)
	require.Equal(t, "3 approved", cc.activeDesc)
	require.Equal(t, 2, cc.breakdown["logics"].ActiveCount)
}

func TestBreakdownTextLabelsKnownFields(t *testing.T) {
	text := breakdownText(map[string]BreakdownDetail{
		"logics":   {Count: 43, ActiveCount: 12},
		"gateways": {Count: 5},
		"webhooks": {Count: 2},
	})
	require.Contains(t, text, "• 43 priority logic rules (12 active)")
	require.Contains(t, text, "• 5 gateway configurations")
	require.Contains(t, text, "• 2 webhooks")
}

func TestSummarizeChunkDirectPathValidation(t *testing.T) {
	var gotPrompt string
	gen := funcGenerator(func(_ context.Context, promptText string, maxOutputTokens int) (string, error) {
		gotPrompt = promptText
		require.Equal(t, DefaultMaxOutputTokens, maxOutputTokens)
		return "Found 3 records total, consisting of: 3 logics. VERIFIED: 3 total records analyzed", nil
	})
	s := newTestSummarizer(t, gen, nil)

	env := Envelope{"logics": []any{
		map[string]any{"id": "l1", "isActiveLogic": true},
		map[string]any{"id": "l2", "isActiveLogic": true},
		map[string]any{"id": "l3", "isActiveLogic": false},
	}}
	summary, err := s.summarizeChunk(context.Background(), Chunk{Data: env, Single: true}, "active rules")
	require.NoError(t, err)

	require.Contains(t, gotPrompt, "There are 3 records total")
	require.Contains(t, gotPrompt, "active rules")

	v := summary.Validation
	require.Equal(t, 3, v.TotalOriginalItems)
	require.Equal(t, 2, v.ActiveItems)
	require.True(t, v.PreservationVerified)
	require.True(t, v.CountInResponse)
	require.True(t, v.BreakdownMentioned)
	require.False(t, v.IsChunk)
	require.Nil(t, v.ChunkMeta)
}

func TestSummarizeChunkSubsetPromptStatesOriginalTotal(t *testing.T) {
	var gotPrompt string
	gen := funcGenerator(func(_ context.Context, promptText string, _ int) (string, error) {
		gotPrompt = promptText
		return "Patterns in these 20 records: mostly approved.", nil
	})
	s := newTestSummarizer(t, gen, nil)

	ch := Chunk{
		Data: Envelope{"logics": makeLogics(20)},
		Meta: Meta{ChunkNumber: 2, ItemsInChunk: 20, TotalOriginalItems: 60},
	}
	summary, err := s.summarizeChunk(context.Background(), ch, "active rules")
	require.NoError(t, err)

	require.Contains(t, gotPrompt, "SUBSET")
	require.Contains(t, gotPrompt, "This subset contains 20 records")
	require.Contains(t, gotPrompt, "60 TOTAL records")

	v := summary.Validation
	require.True(t, v.IsChunk)
	require.Equal(t, 60, v.TotalOriginalItems)
	require.NotNil(t, v.ChunkMeta)
	require.Equal(t, 2, v.ChunkMeta.ChunkNumber)
}

func TestSummarizeChunkSoftValidationDoesNotFail(t *testing.T) {
	gen := funcGenerator(func(context.Context, string, int) (string, error) {
		return "A vague summary with no numbers at all.", nil
	})
	s := newTestSummarizer(t, gen, nil)

	env := Envelope{"logics": makeLogics(5)}
	summary, err := s.summarizeChunk(context.Background(), Chunk{Data: env, Single: true}, "active")
	require.NoError(t, err)
	require.False(t, summary.Validation.CountInResponse)
	require.False(t, summary.Validation.BreakdownMentioned)
}

func TestSummarizeChunkRejectsOversizedPrompt(t *testing.T) {
	s := newTestSummarizer(t, nopGenerator{}, func(cfg *Config) {
		cfg.MaxInputTokens = 10
	})
	env := Envelope{"logics": makeLogics(5)}
	_, err := s.summarizeChunk(context.Background(), Chunk{Data: env, Single: true}, "active")
	require.ErrorIs(t, err, ErrInputTooLarge)
}

func TestGenerateWithRetryRecoversFromTransientFailure(t *testing.T) {
	var calls atomic.Int32
	gen := funcGenerator(func(context.Context, string, int) (string, error) {
		if calls.Add(1) < 3 {
			return "", errors.New("upstream hiccup")
		}
		return "recovered", nil
	})
	s := newTestSummarizer(t, gen, nil)

	out, err := s.generateWithRetry(context.Background(), "prompt")
	require.NoError(t, err)
	require.Equal(t, "recovered", out)
	require.Equal(t, int32(3), calls.Load())
}

func TestGenerateWithRetryGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	gen := funcGenerator(func(context.Context, string, int) (string, error) {
		calls.Add(1)
		return "", fmt.Errorf("attempt %d failed", calls.Load())
	})
	s := newTestSummarizer(t, gen, func(cfg *Config) {
		cfg.MaxRetries = 3
	})

	_, err := s.generateWithRetry(context.Background(), "prompt")
	require.Error(t, err)
	require.Equal(t, int32(3), calls.Load())
}

func TestGenerateWithRetryStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	gen := funcGenerator(func(context.Context, string, int) (string, error) {
		calls.Add(1)
		cancel()
		return "", errors.New("fail while canceling")
	})
	s := newTestSummarizer(t, gen, nil)

	_, err := s.generateWithRetry(ctx, "prompt")
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load())
}
