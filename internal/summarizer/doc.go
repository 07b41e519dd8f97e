// Package summarizer turns oversized JSON API responses into compact,
// count-accurate natural-language reports using an LLM.
//
// Overview:
//
// Dashboard APIs routinely return thousands of records. Handing such a
// response straight to a language model either exceeds the model's input
// limit or produces summaries with hallucinated counts. This package
// measures responses in model tokens, decides between a single direct
// summarization call and a chunked fan-out, and verifies at every stage
// that no record was lost: the final report's record counts are computed
// deterministically in Go, never by the model.
//
// Key Features:
//
//   - Token-based routing: small responses are summarized in one call,
//     large ones are split into item-bounded chunks
//   - Count preservation: chunk partitioning is checked against the
//     original item total; a mismatch aborts the run
//   - Two-tier field compression: payloads are reduced to essential
//     fields, escalating to critical-only fields when still over budget
//   - Bounded concurrency with a global timeout: chunk calls run on a
//     worker pool and the whole fan-out is abandoned atomically on expiry
//   - Retry with exponential backoff on transient generation failures
//   - Explicit error objects: a failed run still reports the
//     deterministic counts so callers can triage without re-running
//
// Basic Usage:
//
//	gen, err := summarizer.NewChainGenerator(ctx, chatModel, "")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	s, err := summarizer.New(&summarizer.Config{Generator: gen})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	text, err := s.SummarizeToText(ctx, apiResponse, "how many rules are active?")
//
// How It Works:
//
// 1. Normalization: any response shape (object, array, scalar, nil) is
// coerced into a map envelope; the primary record list is found under
// well-known keys (data, records, items, results, list_items)
// 2. Sizing: the envelope is measured with the cl100k_base encoding and
// compared against the direct threshold and the extreme ceiling
// 3. Compression: record fields are reduced to an essential allow-list,
// long expressions truncated, verbose fields dropped
// 4. Chunking: the record list is split into chunks of 20-25 items, each
// carrying the authoritative original total in its metadata
// 5. Generation: each chunk prompt states its exact counts and forbids
// the model from re-deriving them; responses are soft-validated
// 6. Combination: per-chunk texts are spliced under a single verified
// total, with chunk-local count sentences stripped
//
// An empty user query bypasses the pipeline entirely and returns the raw
// response unchanged.
//
// Limitations:
//
//   - Count verification is lexical on the model output; a model that
//     paraphrases numbers may fail soft validation spuriously
//   - Field compression is tuned for payment-dashboard record shapes
//   - The global timeout discards all chunk work, including completed
//     chunks, to keep the failure atomic
package summarizer
