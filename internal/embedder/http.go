// Package embedder provides implementations of the rag.Embedder interface
// that turn product and order narratives into dense vectors. Each backend
// (OpenAI, Azure OpenAI, Ollama) is spoken to over plain JSON/HTTP, and any
// of them can be wrapped in a persistent Cache.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// postJSON marshals body, POSTs it to url with the given headers and decodes
// the response into out. The HTTP status is returned so callers can format
// backend-specific error payloads that were decoded into out.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	return resp.StatusCode, nil
}

func statusOK(code int) bool { return code >= 200 && code < 300 }
