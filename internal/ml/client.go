package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// ML Probability Client
//
// Thin client for the external fraud-probability service
// (POST <url> -> {probability, indicators}). The service sits on the hot
// payment path, so the timeout is hard and short: default 150ms, capped at
// 180ms. Every failure mode (timeout, non-2xx, malformed body, probability
// out of range) returns nil so the pipeline degrades instead of stalling.

const (
	DefaultTimeout = 150 * time.Millisecond
	MaxTimeout     = 180 * time.Millisecond
)

// Request mirrors the features the model was trained on.
type Request struct {
	Text        string   `json:"text"`
	Amount      *float64 `json:"amount,omitempty"`
	ReceiverUPI string   `json:"receiverUPI,omitempty"`
	Description string   `json:"description,omitempty"`
	NewPayee    bool     `json:"newPayee,omitempty"`
}

// Prediction is the service's fraud probability with optional explanation.
type Prediction struct {
	Probability float64  `json:"probability"` // [0,1]
	Indicators  []string `json:"indicators,omitempty"`
}

type Client struct {
	url        string
	httpClient *http.Client
}

// New returns an ML client, or nil when no URL is configured. Timeouts
// above MaxTimeout are clamped.
func New(url string, timeout time.Duration) *Client {
	if url == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Predict returns the fraud probability, or nil on any failure. It never
// returns an error: ML is strictly advisory.
func (c *Client) Predict(ctx context.Context, req Request) *Prediction {
	if c == nil {
		return nil
	}

	payload, err := json.Marshal(req)
	if err != nil {
		log.Printf("[MLClient] Failed to marshal request: %v", err)
		return nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(payload))
	if err != nil {
		log.Printf("[MLClient] Failed to build request: %v", err)
		return nil
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Printf("[MLClient] Prediction unavailable: %v", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("[MLClient] Service returned status %d", resp.StatusCode)
		return nil
	}

	var prediction Prediction
	if err := json.NewDecoder(resp.Body).Decode(&prediction); err != nil {
		log.Printf("[MLClient] Malformed prediction body: %v", err)
		return nil
	}
	if prediction.Probability < 0 || prediction.Probability > 1 {
		log.Printf("[MLClient] Probability out of range: %f", prediction.Probability)
		return nil
	}
	return &prediction
}
