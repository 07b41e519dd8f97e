package summarizer

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"paydash_agent/internal/prompts"
)

// Generator is the contract of the external text-generation service:
// prompt in, text out, under a bounded output-token budget. Implementations
// may fail transiently (network, quota); the per-chunk summarizer retries
// such failures with backoff.
type Generator interface {
	Generate(ctx context.Context, promptText string, maxOutputTokens int) (string, error)
}

// ChainGenerator backs Generator with a compiled eino chain:
// ChatTemplate(system prompt) -> ChatModel.
type ChainGenerator struct {
	runnable compose.Runnable[map[string]any, *schema.Message]
	handlers []callbacks.Handler
}

// NewChainGenerator builds a generator around the given chat model.
// If systemPrompt is empty, the embedded summarizer_system template is used.
// Handlers (e.g. logger.LoggerCallback) are attached to every invocation of
// the chain.
func NewChainGenerator(ctx context.Context, m model.BaseChatModel, systemPrompt string, handlers ...callbacks.Handler) (*ChainGenerator, error) {
	if m == nil {
		return nil, ErrGeneratorRequired
	}
	if systemPrompt == "" {
		sp, err := prompts.GetSinglePrompt("summarizer_system")
		if err != nil {
			return nil, fmt.Errorf("load system prompt: %w", err)
		}
		systemPrompt = sp
	}

	tpl := prompt.FromMessages(schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage("{analysis_request}"))

	runnable, err := compose.NewChain[map[string]any, *schema.Message]().
		AppendChatTemplate(tpl).
		AppendChatModel(m).
		Compile(ctx, compose.WithGraphName("ResponseSummarizer"))
	if err != nil {
		return nil, fmt.Errorf("compile summarizer chain failed, err=%w", err)
	}
	return &ChainGenerator{runnable: runnable, handlers: handlers}, nil
}

// Generate invokes the chain with the rendered prompt and output budget.
func (g *ChainGenerator) Generate(ctx context.Context, promptText string, maxOutputTokens int) (string, error) {
	opts := []compose.Option{
		compose.WithChatModelOption(model.WithMaxTokens(maxOutputTokens)),
	}
	if len(g.handlers) > 0 {
		opts = append(opts, compose.WithCallbacks(g.handlers...))
	}
	msg, err := g.runnable.Invoke(ctx, map[string]any{"analysis_request": promptText}, opts...)
	if err != nil {
		return "", fmt.Errorf("generate failed, err=%w", err)
	}
	return msg.Content, nil
}
