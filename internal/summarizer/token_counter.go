package summarizer

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter is a function type that measures text in model tokens.
//
// It must be deterministic and side-effect free. Empty text yields 0.
type TokenCounter func(text string) (int, error)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
	encodingErr  error
)

// defaultTokenCounter counts tokens using tiktoken's cl100k_base encoding.
//
// This encoding is compatible with OpenAI models and provides accurate token
// counts for JSON payloads and prompts alike. The encoding is loaded once and
// reused across calls.
func defaultTokenCounter(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	encodingOnce.Do(func() {
		encoding, encodingErr = tiktoken.GetEncoding("cl100k_base")
	})
	if encodingErr != nil {
		return 0, fmt.Errorf("get encoding failed, encoding=cl100k_base, err=%w", encodingErr)
	}
	return len(encoding.Encode(text, nil, nil)), nil
}

// CountValue measures any JSON-like value by serializing it to compact JSON
// and counting the resulting text. Values that cannot be serialized are
// stringified first, so the measurement never fails on shape alone.
func CountValue(counter TokenCounter, v any) (int, error) {
	if v == nil {
		return 0, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return counter(fmt.Sprintf("%v", v))
	}
	return counter(string(raw))
}
