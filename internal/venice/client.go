// Package venice is a client for the Venice AI chat completions
// endpoint, an OpenAI-compatible API with a venice_parameters
// extension for web search and citation control.
package venice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client calls the completions endpoint.
type Client struct {
	apiBase    string
	apiKey     string
	httpClient *http.Client
	attempts   int
}

// NewClient builds a client. apiBase is typically
// "https://api.venice.ai/api/v1".
func NewClient(apiBase, apiKey string) *Client {
	return &Client{
		apiBase:    strings.TrimSuffix(apiBase, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		attempts:   3,
	}
}

// Complete runs one chat completion and returns the assistant text.
// Transient failures (429, 5xx) are retried with backoff.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if req.Model == "" {
		return "", fmt.Errorf("complete: model required")
	}
	body, err := json.Marshal(buildChatRequest(req))
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	var text string
	err = RetryDo(ctx, c.attempts, func() error {
		var doErr error
		text, doErr = c.doRequest(ctx, body)
		return doErr
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func buildChatRequest(req Request) chatRequest {
	var messages []chatMessage
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}

	switch {
	case len(req.ImageData) > 0:
		mime := req.ImageMime
		if mime == "" {
			mime = "image/jpeg"
		}
		dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(req.ImageData)
		messages = append(messages, chatMessage{Role: "user", Content: []contentPart{
			{Type: "text", Text: req.Prompt},
			{Type: "image_url", ImageURL: &imageRef{URL: dataURL}},
		}})
	case req.ImageURL != "":
		messages = append(messages, chatMessage{Role: "user", Content: []contentPart{
			{Type: "text", Text: req.Prompt},
			{Type: "image_url", ImageURL: &imageRef{URL: req.ImageURL}},
		}})
	default:
		messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})
	}

	return chatRequest{
		Model:            req.Model,
		Messages:         messages,
		VeniceParameters: req.Params,
	}
}

func (c *Client) doRequest(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiBase+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("venice request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := &HTTPError{
			Status:     resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
		if httpErr.Temporary() {
			slog.Warn("venice transient error", "status", httpErr.Status, "retry_after", httpErr.RetryAfter)
		}
		return "", httpErr
	}

	return parseResponse(data)
}

func parseResponse(data []byte) (string, error) {
	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("venice api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("venice response has no choices")
	}
	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("venice response is empty")
	}
	return text, nil
}
