package logger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/schema"
	"github.com/elastic/go-elasticsearch/v7"
)

// LoggerCallback mirrors chat-model chain inputs and outputs to stdout and,
// when an ES client is set, to the metrics index. Attach it with
// compose.WithCallbacks on the generation chain.
type LoggerCallback struct {
	Es *elasticsearch.Client
}

func (cb *LoggerCallback) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	if err := SendWrappedLog(cb.Es, MetricsIndex, "callback.start", input); err != nil {
		Warnf("[OnStart] ES write failed: %v", err)
	}
	inputStr, _ := json.MarshalIndent(input, "", "  ")
	fmt.Printf("[OnStart] %s: %s\n", info.Name, string(inputStr))
	return ctx
}

func (cb *LoggerCallback) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	if err := SendWrappedLog(cb.Es, MetricsIndex, "callback.end", output); err != nil {
		Warnf("[OnEnd] ES write failed: %v", err)
	}
	outputStr, _ := json.MarshalIndent(output, "", "  ")
	fmt.Printf("[OnEnd] %s: %s\n", info.Name, string(outputStr))
	return ctx
}

func (cb *LoggerCallback) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	if esErr := SendWrappedLog(cb.Es, MetricsIndex, "callback.error", err.Error()); esErr != nil {
		Warnf("[OnError] ES write failed: %v", esErr)
	}
	fmt.Printf("[OnError] %s: %v\n", info.Name, err)
	return ctx
}

func (cb *LoggerCallback) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo,
	output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {

	go func() {
		defer func() {
			if err := recover(); err != nil {
				fmt.Println("[OnEndStream] panic err:", err)
			}
		}()

		defer output.Close() // remember to close the stream in defer

		for {
			frame, err := output.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				fmt.Printf("internal error: %s\n", err)
				return
			}

			if msg, ok := frame.(*schema.Message); ok && msg.Content != "" {
				Tokenf("%s", msg.Content)
			}
		}
	}()
	return ctx
}

func (cb *LoggerCallback) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo,
	input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	defer input.Close()
	return ctx
}
