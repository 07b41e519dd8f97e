package summarizer

import "errors"

var (
	// ErrConfigNil is returned when the config is nil.
	ErrConfigNil = errors.New("config is nil")

	// ErrGeneratorRequired is returned when no Generator is provided in config.
	ErrGeneratorRequired = errors.New("generator is required in config")

	// ErrIntegrity is returned when compression or chunking would lose or
	// duplicate records. It is fatal for the whole summarize call: the
	// pipeline aborts rather than returning a partial answer.
	ErrIntegrity = errors.New("data integrity violation")

	// ErrInputTooLarge is returned when a prompt exceeds the generation
	// service's hard input ceiling even after maximal compression.
	ErrInputTooLarge = errors.New("input tokens exceed generation limit")

	// ErrTimedOut is returned when the chunk fan-out exceeds the global
	// timeout. No partial chunk summaries are incorporated.
	ErrTimedOut = errors.New("summarization timed out")
)

// truncateSample shortens diagnostic data samples embedded in error payloads.
func truncateSample(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
