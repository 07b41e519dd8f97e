package summarizer

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"
)

// fakeChatModel records the rendered messages and replies with fixed text.
type fakeChatModel struct {
	lastInput []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.lastInput = input
	return schema.AssistantMessage("model output", nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// recordingHandler counts chain callback invocations.
type recordingHandler struct {
	starts atomic.Int32
	ends   atomic.Int32
}

func (h *recordingHandler) OnStart(ctx context.Context, _ *callbacks.RunInfo, _ callbacks.CallbackInput) context.Context {
	h.starts.Add(1)
	return ctx
}

func (h *recordingHandler) OnEnd(ctx context.Context, _ *callbacks.RunInfo, _ callbacks.CallbackOutput) context.Context {
	h.ends.Add(1)
	return ctx
}

func (h *recordingHandler) OnError(ctx context.Context, _ *callbacks.RunInfo, _ error) context.Context {
	return ctx
}

func (h *recordingHandler) OnStartWithStreamInput(ctx context.Context, _ *callbacks.RunInfo,
	input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	input.Close()
	return ctx
}

func (h *recordingHandler) OnEndWithStreamOutput(ctx context.Context, _ *callbacks.RunInfo,
	output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	output.Close()
	return ctx
}

func TestNewChainGeneratorRequiresModel(t *testing.T) {
	_, err := NewChainGenerator(context.Background(), nil, "")
	require.ErrorIs(t, err, ErrGeneratorRequired)
}

func TestChainGeneratorDefaultsToEmbeddedSystemPrompt(t *testing.T) {
	fake := &fakeChatModel{}
	gen, err := NewChainGenerator(context.Background(), fake, "")
	require.NoError(t, err)

	out, err := gen.Generate(context.Background(), "analyze these records", 500)
	require.NoError(t, err)
	require.Equal(t, "model output", out)

	require.Len(t, fake.lastInput, 2)
	require.Equal(t, schema.System, fake.lastInput[0].Role)
	require.Contains(t, fake.lastInput[0].Content, "payments operations analyst")
	require.Equal(t, schema.User, fake.lastInput[1].Role)
	require.Equal(t, "analyze these records", fake.lastInput[1].Content)
}

func TestChainGeneratorUsesSystemPromptOverride(t *testing.T) {
	fake := &fakeChatModel{}
	gen, err := NewChainGenerator(context.Background(), fake, "You are a terse auditor.")
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "prompt", 100)
	require.NoError(t, err)
	require.Equal(t, "You are a terse auditor.", fake.lastInput[0].Content)
}

func TestChainGeneratorInvokesAttachedHandlers(t *testing.T) {
	rec := &recordingHandler{}
	gen, err := NewChainGenerator(context.Background(), &fakeChatModel{}, "system", rec)
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "prompt", 100)
	require.NoError(t, err)
	require.Greater(t, rec.starts.Load(), int32(0))
	require.Equal(t, rec.starts.Load(), rec.ends.Load())
}
