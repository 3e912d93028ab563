package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// OpenAI-compatible chat-completions client.
//
// The LLM is an optional collaborator: a nil *Client is valid everywhere and
// every caller falls back to its rule path when a call fails. Calls are
// best-effort with a hard client timeout so a slow provider can never stall
// an unrelated request.

const defaultTimeout = 15 * time.Second

type Config struct {
	APIKey  string
	BaseURL string // e.g. https://api.openai.com/v1
	Model   string // e.g. gpt-4o-mini
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New returns a chat-completions client, or nil when no API key is
// configured so callers can treat the LLM as absent.
func New(cfg Config) *Client {
	if cfg.APIKey == "" {
		return nil
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends a system+user prompt pair and returns the raw assistant text.
func (c *Client) Complete(ctx context.Context, system, user string, temperature float64) (string, error) {
	reqBody := chatRequest{
		Model:       c.cfg.Model,
		Temperature: temperature,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %v", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("LLM provider returned status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %v", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("LLM provider error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("LLM provider returned no choices")
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// CompleteJSON runs a completion and unmarshals the reply into out. Models
// frequently wrap JSON in markdown fences, so those are stripped first.
func (c *Client) CompleteJSON(ctx context.Context, system, user string, out interface{}) error {
	raw, err := c.Complete(ctx, system, user, 0.1)
	if err != nil {
		return err
	}

	cleaned := stripJSONFences(raw)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		log.Printf("[LLM] Unparseable JSON reply (%d bytes): %v", len(cleaned), err)
		return fmt.Errorf("LLM reply was not valid JSON: %v", err)
	}
	return nil
}

// stripJSONFences removes ```json ... ``` wrappers and any prose before the
// first brace so json.Unmarshal sees a bare object.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	if start := strings.IndexAny(s, "{["); start > 0 {
		s = s[start:]
	}
	return s
}
