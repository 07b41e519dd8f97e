package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
)

type WrapperStruct struct {
	LogType   string      `json:"LOGTYPE"`
	Timestamp time.Time   `json:"@timestamp"`
	Data      interface{} `json:"data"`
}

// SendWrappedLog bulk-writes one wrapped log document to the given index.
// A nil client is a no-op so callers never have to guard ES availability.
func SendWrappedLog(client *elasticsearch.Client, streamName string, logType string, rawData interface{}) error {
	if client == nil {
		return nil
	}

	payload := WrapperStruct{
		LogType:   logType,
		Timestamp: time.Now(),
		Data:      rawData,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal log payload: %w", err)
	}

	var buf bytes.Buffer
	meta := fmt.Sprintf(`{"index":{"_index":"%s"}}`, streamName)
	buf.WriteString(meta)
	buf.WriteByte('\n')
	buf.Write(body)
	buf.WriteByte('\n')

	req := esapi.BulkRequest{
		Body: &buf,
	}

	res, err := req.Do(context.Background(), client)
	if err != nil {
		return fmt.Errorf("bulk request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk write failed: %s", res.String())
	}

	// Check item-level errors inside the bulk response.
	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []struct {
			Index struct {
				Error  json.RawMessage `json:"error,omitempty"`
				Status int             `json:"status"`
			} `json:"index"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		// Decode failure is non-blocking; just note it.
		Warnf("[SendWrappedLog] failed to parse bulk response: %v", err)
		return nil
	}
	if bulkResp.Errors {
		for _, item := range bulkResp.Items {
			if item.Index.Error != nil {
				return fmt.Errorf("bulk item write failed (status=%d): %s", item.Index.Status, string(item.Index.Error))
			}
		}
	}

	return nil
}
