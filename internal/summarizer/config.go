package summarizer

import (
	"time"

	"paydash_agent/internal/events"
	"paydash_agent/internal/history"
)

// Config defines parameters for the response-size governor.
//
// It controls when chunking is triggered, how chunks are sized, and how the
// text-generation service is invoked.
//
// Required fields:
//   - Generator: The text-generation backend used to produce summaries
//
// All thresholds have defaults matching the production dashboard values.
// Set a field to 0 (or zero duration) to use its default.
type Config struct {
	// Generator produces summary text from a prompt. Required.
	Generator Generator

	// Counter measures text in model tokens.
	//
	// Optional. If nil, the cl100k_base tiktoken encoding is used.
	Counter TokenCounter

	// Emitter receives pipeline progress events. Optional (defaults to no-op).
	Emitter events.Emitter

	// History persists completed runs. Optional.
	History *history.Store

	// DirectTokenThreshold is the token size at or below which the whole
	// envelope is summarized in one call, without chunking.
	//
	// Default: DefaultDirectTokenThreshold (20,000 tokens).
	DirectTokenThreshold int

	// ExtremeTokenCeiling is the token size above which chunking is forced
	// even before attempting compression.
	//
	// Default: DefaultExtremeTokenCeiling (1,000,000 tokens).
	ExtremeTokenCeiling int

	// MaxInputTokens is the hard input ceiling of the text-generation service.
	// Prompts above this size are rejected before the call is made.
	//
	// Default: DefaultMaxInputTokens (1,048,576 tokens).
	MaxInputTokens int

	// MaxOutputTokens is the output budget passed to the generation service.
	//
	// Default: DefaultMaxOutputTokens (1,000 tokens).
	MaxOutputTokens int

	// CompressionBudget is the token ceiling the field compressor targets
	// before escalating to the aggressive tier.
	//
	// Default: DefaultCompressionBudget (900,000 tokens).
	CompressionBudget int

	// NoChunkCutoff is the item count at or below which the partitioner
	// refuses to split. Small datasets are processed whole so that count
	// reconciliation bugs cannot lose records for negligible size benefit.
	//
	// Default: DefaultNoChunkCutoff (50 items). Empirically chosen, tunable.
	NoChunkCutoff int

	// ChunkItemsMin and ChunkItemsMax clamp the per-chunk item count.
	//
	// Defaults: DefaultChunkItemsMin (20), DefaultChunkItemsMax (25).
	ChunkItemsMin int
	ChunkItemsMax int

	// MaxRetries is the number of attempts per generation call.
	//
	// Default: DefaultMaxRetries (3).
	MaxRetries int

	// RetryBaseDelay is the initial backoff interval; it doubles per retry.
	//
	// Default: DefaultRetryBaseDelay (1s).
	RetryBaseDelay time.Duration

	// GlobalTimeout bounds the whole fan-out of chunk summarizations.
	// On expiry the run yields a timed-out result with no partial chunks.
	//
	// Default: DefaultGlobalTimeout (45s).
	GlobalTimeout time.Duration

	// MaxConcurrentChunks caps the worker pool for chunk summarization.
	//
	// Default: DefaultMaxConcurrentChunks (8).
	MaxConcurrentChunks int
}

// Defaults for the response-size governor. The thresholds mirror the
// production dashboard configuration.
const (
	DefaultDirectTokenThreshold = 20000
	DefaultExtremeTokenCeiling  = 1000000
	DefaultMaxInputTokens       = 1048576
	DefaultMaxOutputTokens      = 1000
	DefaultCompressionBudget    = 900000
	DefaultNoChunkCutoff        = 50
	DefaultChunkItemsMin        = 20
	DefaultChunkItemsMax        = 25
	DefaultMaxRetries           = 3
	DefaultRetryBaseDelay       = 1 * time.Second
	DefaultGlobalTimeout        = 45 * time.Second
	DefaultMaxConcurrentChunks  = 8
)

// Validate checks if the configuration is valid.
// Returns an error if required fields are missing.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}
	if c.Generator == nil {
		return ErrGeneratorRequired
	}
	return nil
}

// GetDirectTokenThreshold returns the effective direct threshold.
func (c *Config) GetDirectTokenThreshold() int {
	if c.DirectTokenThreshold <= 0 {
		return DefaultDirectTokenThreshold
	}
	return c.DirectTokenThreshold
}

// GetExtremeTokenCeiling returns the effective extreme-size ceiling.
func (c *Config) GetExtremeTokenCeiling() int {
	if c.ExtremeTokenCeiling <= 0 {
		return DefaultExtremeTokenCeiling
	}
	return c.ExtremeTokenCeiling
}

// GetMaxInputTokens returns the effective hard input ceiling.
func (c *Config) GetMaxInputTokens() int {
	if c.MaxInputTokens <= 0 {
		return DefaultMaxInputTokens
	}
	return c.MaxInputTokens
}

// GetMaxOutputTokens returns the effective output token budget.
func (c *Config) GetMaxOutputTokens() int {
	if c.MaxOutputTokens <= 0 {
		return DefaultMaxOutputTokens
	}
	return c.MaxOutputTokens
}

// GetCompressionBudget returns the effective compression ceiling.
func (c *Config) GetCompressionBudget() int {
	if c.CompressionBudget <= 0 {
		return DefaultCompressionBudget
	}
	return c.CompressionBudget
}

// GetNoChunkCutoff returns the effective small-dataset cutoff.
func (c *Config) GetNoChunkCutoff() int {
	if c.NoChunkCutoff <= 0 {
		return DefaultNoChunkCutoff
	}
	return c.NoChunkCutoff
}

// GetChunkItemsMin returns the effective lower chunk-size clamp.
func (c *Config) GetChunkItemsMin() int {
	if c.ChunkItemsMin <= 0 {
		return DefaultChunkItemsMin
	}
	return c.ChunkItemsMin
}

// GetChunkItemsMax returns the effective upper chunk-size clamp.
func (c *Config) GetChunkItemsMax() int {
	if c.ChunkItemsMax <= 0 {
		return DefaultChunkItemsMax
	}
	return c.ChunkItemsMax
}

// GetMaxRetries returns the effective per-call attempt count.
func (c *Config) GetMaxRetries() int {
	if c.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return c.MaxRetries
}

// GetRetryBaseDelay returns the effective initial backoff interval.
func (c *Config) GetRetryBaseDelay() time.Duration {
	if c.RetryBaseDelay <= 0 {
		return DefaultRetryBaseDelay
	}
	return c.RetryBaseDelay
}

// GetGlobalTimeout returns the effective aggregate timeout.
func (c *Config) GetGlobalTimeout() time.Duration {
	if c.GlobalTimeout <= 0 {
		return DefaultGlobalTimeout
	}
	return c.GlobalTimeout
}

// GetMaxConcurrentChunks returns the effective worker pool cap.
func (c *Config) GetMaxConcurrentChunks() int {
	if c.MaxConcurrentChunks <= 0 {
		return DefaultMaxConcurrentChunks
	}
	return c.MaxConcurrentChunks
}
