package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/gopkg/util/gopool"

	"paydash_agent/internal/events"
	"paydash_agent/internal/history"
	"paydash_agent/pkg/logger"
)

// Strategy names the path a summarize run took.
type Strategy string

const (
	StrategyPassthrough Strategy = "passthrough"
	StrategyDirect      Strategy = "direct"
	StrategyChunked     Strategy = "chunked"
	StrategyTimedOut    Strategy = "timed_out"
	StrategyError       Strategy = "error"
)

// Pipeline states. SUMMARIZING can terminate in TIMED_OUT; every other path
// ends in DONE.
const (
	phaseNormalizing = "NORMALIZING"
	phaseSizing      = "SIZING"
	phaseDirect      = "DIRECT"
	phaseChunking    = "CHUNKING"
	phaseSummarizing = "SUMMARIZING"
	phaseCombining   = "COMBINING"
)

// AggregateValidation is the validation block of a combined summary. Its
// TotalOriginalItems is the source dataset's original total, not the sum of
// per-chunk local counts.
type AggregateValidation struct {
	TotalChunks        int    `json:"total_chunks"`
	TotalOriginalItems int    `json:"total_original_items"`
	ActiveItems        int    `json:"active_items"`
	ProcessingTime     string `json:"processing_time"`
	CombinationMethod  string `json:"combination_method"`
}

// CombinedSummary is the terminal artifact of a multi-chunk run.
type CombinedSummary struct {
	SummaryText string              `json:"summary_text"`
	Validation  AggregateValidation `json:"data_validation"`
}

// CriticalData preserves the deterministic counts when a run fails, so the
// failure can be triaged without re-running the pipeline.
type CriticalData struct {
	OriginalCounts map[string]int `json:"original_counts,omitempty"`
	TotalItems     int            `json:"total_items"`
	ActiveItems    int            `json:"active_items"`
}

// ErrorSummary is the explicit error object returned instead of a summary.
type ErrorSummary struct {
	Error        string        `json:"error"`
	Timeout      string        `json:"timeout,omitempty"`
	CriticalData *CriticalData `json:"critical_data,omitempty"`
	DataSample   string        `json:"data_sample,omitempty"`
}

// Result is the structured outcome of a summarize run. Exactly one of
// Summary, Combined, or Failure is set, except on the passthrough path where
// only Raw is set.
type Result struct {
	Strategy     Strategy
	Raw          any
	Summary      *ChunkSummary
	Combined     *CombinedSummary
	Failure      *ErrorSummary
	Intermediate []*ChunkSummary
	Duration     time.Duration
}

// payload returns the JSON-facing summary-or-error object.
func (r *Result) payload() any {
	switch {
	case r.Failure != nil:
		return r.Failure
	case r.Combined != nil:
		return r.Combined
	case r.Summary != nil:
		return r.Summary
	default:
		return r.Raw
	}
}

// Text renders the result as indented JSON, the form handed back to API
// wrapper callers.
func (r *Result) Text() (string, error) {
	out, err := json.MarshalIndent(r.payload(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("render result: %w", err)
	}
	return string(out), nil
}

// Option adjusts a single Summarize call.
type Option func(*callOptions)

type callOptions struct {
	chunkSizeOverride int
}

// WithChunkSizeOverride overrides the direct-summarization token threshold
// for one call.
func WithChunkSizeOverride(tokens int) Option {
	return func(o *callOptions) { o.chunkSizeOverride = tokens }
}

// Summarizer is the response-size governor: it decides between direct and
// chunked summarization, fans out per-chunk work under bounded concurrency
// and a global timeout, and folds partial results into one report whose
// record counts provably match the original dataset.
type Summarizer struct {
	cfg     *Config
	gen     Generator
	counter TokenCounter
	emitter events.Emitter
	history *history.Store
	pool    gopool.Pool
}

// New creates a Summarizer from the given config.
func New(cfg *Config) (*Summarizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	counter := cfg.Counter
	if counter == nil {
		counter = defaultTokenCounter
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	return &Summarizer{
		cfg:     cfg,
		gen:     cfg.Generator,
		counter: counter,
		emitter: emitter,
		history: cfg.History,
		pool:    gopool.NewPool("summarizer-chunks", int32(cfg.GetMaxConcurrentChunks()), gopool.NewConfig()),
	}, nil
}

// ShouldSummarize reports whether an API response is large enough to need
// summarization, along with its token and item counts. It works for any
// response shape. An empty user query always means no.
func ShouldSummarize(raw any, userQuery string, tokenThreshold int, counter TokenCounter) (bool, int, int, error) {
	if userQuery == "" {
		return false, 0, 0, nil
	}
	if counter == nil {
		counter = defaultTokenCounter
	}
	if tokenThreshold <= 0 {
		tokenThreshold = 25000
	}
	tokens, err := CountValue(counter, raw)
	if err != nil {
		return false, 0, 0, err
	}

	items := 0
	switch v := raw.(type) {
	case map[string]any:
		items = CountItems(Envelope(v))
	case []any:
		items = len(v)
	}
	return tokens >= tokenThreshold, tokens, items, nil
}

// SummarizeToText runs Summarize and renders the outcome as indented JSON.
// On the passthrough path the raw response is rendered unchanged.
func (s *Summarizer) SummarizeToText(ctx context.Context, raw any, userQuery string, opts ...Option) (string, error) {
	result, err := s.Summarize(ctx, raw, userQuery, opts...)
	if err != nil {
		return "", err
	}
	return result.Text()
}

// Summarize is the public entry point of the governor.
//
// An empty user query yields a no-op passthrough. Otherwise the raw response
// is normalized, sized, and summarized either directly or through
// token-bounded chunks. The returned Result always contains either a summary
// or an explicit error object; Summarize itself only errors on programming
// mistakes (nil receiver misuse, marshaling failures).
func (s *Summarizer) Summarize(ctx context.Context, raw any, userQuery string, opts ...Option) (*Result, error) {
	if userQuery == "" {
		logger.Infof("[Summarize] user query absent, passing response through")
		return &Result{Strategy: StrategyPassthrough, Raw: raw}, nil
	}

	var callOpts callOptions
	for _, opt := range opts {
		opt(&callOpts)
	}
	directThreshold := s.cfg.GetDirectTokenThreshold()
	if callOpts.chunkSizeOverride > 0 {
		directThreshold = callOpts.chunkSizeOverride
	}

	runID := fmt.Sprintf("run_%d", time.Now().UnixMilli())
	start := time.Now()
	s.emitter.Emit(events.NewEvent(events.TypeSummarizeStarted, runID, events.StartedData{Query: userQuery}))

	// NORMALIZING
	env := Normalize(raw)

	// SIZING
	tokens, err := CountValue(s.counter, env)
	if err != nil {
		return nil, fmt.Errorf("measure envelope: %w", err)
	}
	totalItems := CountItems(env)
	s.emitter.Emit(events.NewEvent(events.TypeSummarizeNormalized, runID, events.NormalizedData{Tokens: tokens, Items: totalItems}))
	logger.Infof("[Summarize] envelope measured: %d tokens, %d items", tokens, totalItems)

	var chunks []Chunk
	switch {
	case tokens > s.cfg.GetExtremeTokenCeiling():
		// Extremely large datasets chunk at the lower clamp so each
		// generation call stays well inside the input ceiling.
		logger.Warnf("[Summarize] dataset extremely large (%d tokens), forcing chunking", tokens)
		forced := *s.cfg
		forced.ChunkItemsMax = s.cfg.GetChunkItemsMin()
		chunks, err = Split(env, &forced)
		if err != nil {
			return s.finish(runID, start, userQuery, s.fatalResult(runID, phaseChunking, env, userQuery, err, start)), nil
		}
	case tokens <= directThreshold:
		// DIRECT: one call on the whole envelope. A hard input-ceiling
		// failure falls back to chunking instead of propagating.
		logger.Infof("[Summarize] direct summarization (%d tokens <= %d threshold)", tokens, directThreshold)
		s.emitter.Emit(events.NewEvent(events.TypeSummarizeDirect, runID, events.NormalizedData{Tokens: tokens, Items: totalItems}))

		summary, err := s.summarizeChunk(ctx, Chunk{Data: env, Single: true}, userQuery)
		if err == nil {
			return s.finish(runID, start, userQuery, &Result{
				Strategy: StrategyDirect,
				Summary:  summary,
				Duration: time.Since(start),
			}), nil
		}
		if !errors.Is(err, ErrInputTooLarge) {
			return s.finish(runID, start, userQuery, s.fatalResult(runID, phaseDirect, env, userQuery, err, start)), nil
		}
		logger.Warnf("[Summarize] direct summarization hit the input ceiling, falling back to chunking: %v", err)
		chunks, err = Split(env, s.cfg)
		if err != nil {
			return s.finish(runID, start, userQuery, s.fatalResult(runID, phaseChunking, env, userQuery, err, start)), nil
		}
	default:
		// CHUNKING
		logger.Infof("[Summarize] large dataset (%d tokens > %d threshold), chunking required", tokens, directThreshold)
		chunks, err = Split(env, s.cfg)
		if err != nil {
			return s.finish(runID, start, userQuery, s.fatalResult(runID, phaseChunking, env, userQuery, err, start)), nil
		}
	}
	s.emitter.Emit(events.NewEvent(events.TypeSummarizeChunking, runID, events.ChunkingData{Chunks: len(chunks), TotalItems: totalItems}))

	// SUMMARIZING: one concurrent task per chunk under one global timeout.
	summaries, timedOut, err := s.summarizeAll(ctx, runID, chunks, userQuery)
	if timedOut {
		logger.Errorf("[Summarize] chunk processing timed out after %s", s.cfg.GetGlobalTimeout())
		s.emitter.Emit(events.NewEvent(events.TypeSummarizeTimeout, runID, events.ErrorData{Phase: phaseSummarizing, Message: ErrTimedOut.Error()}))
		return s.finish(runID, start, userQuery, &Result{
			Strategy: StrategyTimedOut,
			Failure: &ErrorSummary{
				Error:   "Summarization timed out",
				Timeout: s.cfg.GetGlobalTimeout().String(),
			},
			Duration: time.Since(start),
		}), nil
	}
	if err != nil {
		return s.finish(runID, start, userQuery, s.fatalResult(runID, phaseSummarizing, env, userQuery, err, start)), nil
	}

	if len(summaries) == 1 {
		return s.finish(runID, start, userQuery, &Result{
			Strategy:     StrategyChunked,
			Summary:      summaries[0],
			Intermediate: summaries,
			Duration:     time.Since(start),
		}), nil
	}

	// COMBINING
	combined := combineSummaries(summaries, time.Since(start))
	s.emitter.Emit(events.NewEvent(events.TypeSummarizeCombined, runID, events.CompletedData{
		Strategy:    string(StrategyChunked),
		TotalItems:  combined.Validation.TotalOriginalItems,
		ActiveItems: combined.Validation.ActiveItems,
		Chunks:      combined.Validation.TotalChunks,
		DurationMs:  time.Since(start).Milliseconds(),
	}))

	return s.finish(runID, start, userQuery, &Result{
		Strategy:     StrategyChunked,
		Combined:     combined,
		Intermediate: summaries,
		Duration:     time.Since(start),
	}), nil
}

// summarizeAll fans chunk summarization out on the bounded worker pool and
// waits under the global timeout. On timeout all still-pending tasks are
// abandoned and no partial summaries are returned: the failure is atomic at
// the aggregate level.
func (s *Summarizer) summarizeAll(ctx context.Context, runID string, chunks []Chunk, userQuery string) ([]*ChunkSummary, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.GetGlobalTimeout())
	defer cancel()

	summaries := make([]*ChunkSummary, len(chunks))
	errs := make([]error, len(chunks))
	var wg sync.WaitGroup
	for i, ch := range chunks {
		wg.Add(1)
		i, ch := i, ch
		s.pool.CtxGo(ctx, func() {
			defer wg.Done()
			chunkStart := time.Now()
			summary, err := s.summarizeChunk(ctx, ch, userQuery)
			summaries[i], errs[i] = summary, err
			if err != nil {
				return
			}
			s.emitter.Emit(events.NewEvent(events.TypeChunkCompleted, runID, events.ChunkCompletedData{
				ChunkNumber:  ch.Meta.ChunkNumber,
				ItemsInChunk: summary.Validation.OriginalCountsTotal(),
				ActiveItems:  summary.Validation.ActiveItems,
				DurationMs:   time.Since(chunkStart).Milliseconds(),
			}))
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, true, nil
	}

	for _, err := range errs {
		if err != nil {
			return nil, false, err
		}
	}
	return summaries, false, nil
}

// Chunk-local count sentences are stripped before splicing so the combined
// narrative carries exactly one authoritative total.
var (
	reFoundTotal    = regexp.MustCompile(`Found \d+ records total[^.]*\.`)
	reVerifiedTotal = regexp.MustCompile(`VERIFIED: \d+ total records analyzed[^.]*\.`)
)

// combineSummaries folds per-chunk summaries into one report. The original
// total is the maximum of the totals echoed in each chunk's metadata — every
// chunk carries the same authoritative value from the partitioner, and the
// max reconciles any chunk that degraded to its local count. Active counts
// are disjoint per chunk and therefore sum.
func combineSummaries(summaries []*ChunkSummary, elapsed time.Duration) *CombinedSummary {
	originalTotal := 0
	totalActive := 0
	datasetType := "records"
	for _, cs := range summaries {
		if cs.Validation.TotalOriginalItems > originalTotal {
			originalTotal = cs.Validation.TotalOriginalItems
		}
		totalActive += cs.Validation.ActiveItems
		if _, ok := cs.Validation.Breakdown["logics"]; ok {
			datasetType = "priority logic rules"
		}
	}

	var sb strings.Builder
	if originalTotal > 0 {
		fmt.Fprintf(&sb, "COMBINED ANALYSIS OF %d TOTAL %s:\n\n", originalTotal, strings.ToUpper(datasetType))
		if totalActive > 0 {
			fmt.Fprintf(&sb, "Found %d %s total (%d active) across %d processing chunks.\n\n", originalTotal, datasetType, totalActive, len(summaries))
		} else {
			fmt.Fprintf(&sb, "Found %d %s total across %d processing chunks.\n\n", originalTotal, datasetType, len(summaries))
		}
	} else {
		fmt.Fprintf(&sb, "COMBINED SUMMARY OF %d CHUNKS:\n\n", len(summaries))
	}

	for i, cs := range summaries {
		text := reFoundTotal.ReplaceAllString(cs.SummaryText, "")
		text = reVerifiedTotal.ReplaceAllString(text, "")
		fmt.Fprintf(&sb, "**Chunk %d Analysis:**\n%s\n\n", i+1, strings.TrimSpace(text))
	}
	fmt.Fprintf(&sb, "**VERIFIED**: %d total %s analyzed across %d processing chunks.", originalTotal, datasetType, len(summaries))

	return &CombinedSummary{
		SummaryText: sb.String(),
		Validation: AggregateValidation{
			TotalChunks:        len(summaries),
			TotalOriginalItems: originalTotal,
			ActiveItems:        totalActive,
			ProcessingTime:     fmt.Sprintf("%.2fs", elapsed.Seconds()),
			CombinationMethod:  "enhanced_with_count_verification",
		},
	}
}

// fatalResult builds the explicit error object for a failed run, preserving
// the deterministic counts and a data sample for triage.
func (s *Summarizer) fatalResult(runID, phase string, env Envelope, userQuery string, err error, start time.Time) *Result {
	logger.Errorf("[Summarize] %s failed: %v", phase, err)
	cc := countChunk(env, userQuery)
	s.emitter.Emit(events.NewEvent(events.TypeSummarizeError, runID, events.ErrorData{Phase: phase, Message: err.Error()}))
	return &Result{
		Strategy: StrategyError,
		Failure: &ErrorSummary{
			Error: fmt.Sprintf("Summarization failed: %v", err),
			CriticalData: &CriticalData{
				OriginalCounts: cc.originalCounts,
				TotalItems:     cc.totalItems,
				ActiveItems:    cc.activeItems,
			},
			DataSample: truncateSample(fmt.Sprintf("%v", map[string]any(env)), 300),
		},
		Duration: time.Since(start),
	}
}

// finish emits the terminal event and records the run in history.
func (s *Summarizer) finish(runID string, start time.Time, userQuery string, result *Result) *Result {
	if result.Duration == 0 {
		result.Duration = time.Since(start)
	}

	totalItems, activeItems, chunkCount := 0, 0, 0
	summaryText := ""
	switch {
	case result.Combined != nil:
		totalItems = result.Combined.Validation.TotalOriginalItems
		activeItems = result.Combined.Validation.ActiveItems
		chunkCount = result.Combined.Validation.TotalChunks
		summaryText = result.Combined.SummaryText
	case result.Summary != nil:
		totalItems = result.Summary.Validation.TotalOriginalItems
		activeItems = result.Summary.Validation.ActiveItems
		chunkCount = len(result.Intermediate)
		summaryText = result.Summary.SummaryText
	case result.Failure != nil:
		summaryText = result.Failure.Error
	}

	s.emitter.Emit(events.NewEvent(events.TypeSummarizeCompleted, runID, events.CompletedData{
		Strategy:    string(result.Strategy),
		TotalItems:  totalItems,
		ActiveItems: activeItems,
		Chunks:      chunkCount,
		DurationMs:  result.Duration.Milliseconds(),
	}))
	logger.Infof("[Summarize] completed in %.2fs (strategy=%s)", result.Duration.Seconds(), result.Strategy)

	if s.history != nil {
		if _, err := s.history.RecordRun(history.Run{
			UserQuery:   userQuery,
			Strategy:    string(result.Strategy),
			ChunkCount:  chunkCount,
			TotalItems:  totalItems,
			ActiveItems: activeItems,
			DurationMs:  result.Duration.Milliseconds(),
			SummaryText: summaryText,
		}); err != nil {
			logger.Warnf("[Summarize] failed to record run history: %v", err)
		}
	}
	return result
}

// OriginalCountsTotal sums the per-field counts of a validation block.
func (v Validation) OriginalCountsTotal() int {
	total := 0
	for _, count := range v.OriginalCounts {
		total += count
	}
	return total
}
