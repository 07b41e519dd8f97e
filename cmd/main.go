package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"paydash_agent/internal/events"
	"paydash_agent/internal/history"
	"paydash_agent/internal/prompts"
	"paydash_agent/internal/summarizer"
	"paydash_agent/pkg/logger"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/elastic/go-elasticsearch/v7"
)

func main() {

	ctx := context.Background()

	systemPrompt, err := prompts.GetSinglePrompt("summarizer_system")
	if err != nil {
		logger.Fatalf("failed to load prompts: %v", err)
	}

	// ES is optional: without ES_ADDR events stay on stdout only.
	var esClient *elasticsearch.Client
	if addr := os.Getenv("ES_ADDR"); addr != "" {
		cfg := elasticsearch.Config{
			Addresses: []string{addr},
			Username:  os.Getenv("ES_USERNAME"),
			Password:  os.Getenv("ES_PASSWORD"),
		}
		esClient, err = elasticsearch.NewClient(cfg)
		if err != nil {
			logger.Fatalf("failed to create ES client: %v", err)
		}
	}

	arkApiKey := os.Getenv("ARK_API_KEY")
	arkModelName := os.Getenv("ARK_MODEL_NAME")
	arkBaseUrl := os.Getenv("ARK_BASE_URL")

	config := &openai.ChatModelConfig{
		APIKey:  arkApiKey,
		Model:   arkModelName,
		BaseURL: arkBaseUrl,
	}
	arkModel, err := openai.NewChatModel(ctx, config)
	if err != nil {
		logger.Errorf("failed to create chat model: %v", err)
		return
	}

	gen, err := summarizer.NewChainGenerator(ctx, arkModel, systemPrompt, &logger.LoggerCallback{Es: esClient})
	if err != nil {
		logger.Fatalf("failed to build generator: %v", err)
	}

	emitter := events.NewChannelEmitter(256)
	defer emitter.Close()
	if esClient != nil {
		events.NewESConsumer(esClient, "").Start(emitter)
	}

	// Mirror pipeline events to stdout.
	go func() {
		for evt := range emitter.Subscribe() {
			logger.Infof("[event] %s %s %s", evt.Type, evt.RunID, string(evt.Data))
		}
	}()

	store, err := history.OpenStore("paydash_agent.db")
	if err != nil {
		logger.Fatalf("failed to open history store: %v", err)
	}
	defer store.Close()

	s, err := summarizer.New(&summarizer.Config{
		Generator: gen,
		Emitter:   emitter,
		History:   store,
	})
	if err != nil {
		logger.Fatalf("failed to create summarizer: %v", err)
	}

	raw, userQuery, err := loadInput()
	if err != nil {
		logger.Fatalf("failed to load input: %v", err)
	}

	need, tokens, items, err := summarizer.ShouldSummarize(raw, userQuery, 0, nil)
	if err != nil {
		logger.Fatalf("failed to size response: %v", err)
	}
	logger.Infof("response measured: %d tokens, %d items, summarize=%v", tokens, items, need)

	metrics := logger.NewMetrics(esClient)
	timer := logger.NewTimer()
	text, err := s.SummarizeToText(ctx, raw, userQuery)
	if err != nil {
		metrics.Emit(logger.MetricsEvent{
			Phase:      logger.PhaseSummarize,
			Event:      "failed",
			Error:      err.Error(),
			DurationMs: timer.ElapsedMs(),
		})
		logger.Errorf("summarization failed: %v", err)
		return
	}
	metrics.Emit(logger.MetricsEvent{
		LogType:    logger.LTCombinedOutput,
		Phase:      logger.PhaseCombine,
		Event:      "final",
		ItemCount:  items,
		TokenCount: tokens,
		DurationMs: timer.ElapsedMs(),
	})

	logger.Infof("\n\n===== result =====\n\n")
	logger.Infof("%s\n", text)
	time.Sleep(2 * time.Second)
}

// loadInput reads a JSON response from the file given as the first argument,
// with the user query as the second argument. With no arguments it runs a
// built-in demo dataset of priority logic rules.
func loadInput() (any, string, error) {
	if len(os.Args) >= 3 {
		body, err := os.ReadFile(os.Args[1])
		if err != nil {
			return nil, "", err
		}
		var raw any
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, "", fmt.Errorf("parse %s: %w", os.Args[1], err)
		}
		return raw, os.Args[2], nil
	}

	logics := make([]any, 0, 60)
	for i := 1; i <= 60; i++ {
		status := "APPROVED"
		if i%4 == 0 {
			status = "DRAFT"
		}
		logics = append(logics, map[string]any{
			"id":                fmt.Sprintf("logic_%03d", i),
			"name":              fmt.Sprintf("Routing rule %d", i),
			"status":            status,
			"isActiveLogic":     i%4 != 0,
			"merchantAccountId": "demo_merchant",
			"priorityOrder":     i,
			"logicExpression":   fmt.Sprintf("if order.amount > %d then route('gateway_%d')", i*100, i%5),
			"dateCreated":       "2026-01-15T10:00:00Z",
			"metadata":          map[string]any{"editor": "ops-console", "revision": i},
		})
	}
	raw := map[string]any{
		"logics":   logics,
		"metadata": map[string]any{"total_count": 60},
	}
	return raw, "how many routing rules are approved and active?", nil
}
