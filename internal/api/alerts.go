package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/rawblock/upi-fraud-engine/pkg/models"
)

// Alert & Webhook System
//
// Structured alert emission for fraud operations. Alerts are:
//   1. Broadcast via WebSocket to connected operator dashboards
//   2. Pushed to registered webhook endpoints (Slack, Discord, SIEM)
//   3. Stored in memory for recent alert history

// Alert represents one fraud alert emitted by the pipeline.
type Alert struct {
	ID        string              `json:"id"`
	Timestamp time.Time           `json:"timestamp"`
	Severity  string              `json:"severity"`  // HIGH or CRITICAL
	AlertType string              `json:"alertType"` // scan/validate-pay/chat/honeypot
	Title     string              `json:"title"`
	RefID     string              `json:"refId,omitempty"` // session or transaction reference
	Verdict   *models.RiskVerdict `json:"verdict,omitempty"`
}

// WebhookEndpoint is a registered webhook receiver
type WebhookEndpoint struct {
	Name    string            `json:"name"`
	URL     string            `json:"url"`
	Enabled bool              `json:"enabled"`
	Headers map[string]string `json:"headers,omitempty"`
}

// AlertCenter handles alert emission, history, and webhook delivery.
type AlertCenter struct {
	mu           sync.RWMutex
	webhooks     []WebhookEndpoint
	recentAlerts []Alert
	maxHistory   int
	httpClient   *http.Client
	hub          *Hub
}

func NewAlertCenter(hub *Hub) *AlertCenter {
	return &AlertCenter{
		webhooks:     make([]WebhookEndpoint, 0),
		recentAlerts: make([]Alert, 0),
		maxHistory:   1000,
		httpClient:   &http.Client{Timeout: 5 * time.Second},
		hub:          hub,
	}
}

// RegisterWebhook adds a webhook endpoint
func (ac *AlertCenter) RegisterWebhook(name, url string, headers map[string]string) {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	ac.webhooks = append(ac.webhooks, WebhookEndpoint{
		Name:    name,
		URL:     url,
		Enabled: true,
		Headers: headers,
	})

	log.Printf("[AlertCenter] Registered webhook: %s -> %s", name, url)
}

// Emit stores, broadcasts, and fans out one alert.
func (ac *AlertCenter) Emit(alert Alert) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	if alert.ID == "" {
		alert.ID = generateAlertID(alert)
	}

	ac.mu.Lock()
	ac.recentAlerts = append(ac.recentAlerts, alert)
	if len(ac.recentAlerts) > ac.maxHistory {
		ac.recentAlerts = ac.recentAlerts[len(ac.recentAlerts)-ac.maxHistory:]
	}
	webhooks := make([]WebhookEndpoint, len(ac.webhooks))
	copy(webhooks, ac.webhooks)
	ac.mu.Unlock()

	if ac.hub != nil {
		payload, _ := json.Marshal(map[string]any{"type": "fraud_alert", "alert": alert})
		ac.hub.Broadcast(payload)
	}

	for _, wh := range webhooks {
		if !wh.Enabled {
			continue
		}
		go ac.deliver(wh, alert)
	}

	log.Printf("[Alert] %s %s: %s (ref %s)", alert.Severity, alert.AlertType, alert.Title, alert.RefID)
}

// EmitVerdict wraps a pipeline verdict into an alert. Only HIGH and CRITICAL
// verdicts are emitted.
func (ac *AlertCenter) EmitVerdict(alertType, refID string, verdict models.RiskVerdict) {
	if verdict.RiskLevel != models.RiskHigh && verdict.RiskLevel != models.RiskCritical {
		return
	}
	title := fmt.Sprintf("Risk score %d", verdict.RiskScore)
	if verdict.FraudCategory != nil {
		title = fmt.Sprintf("%s suspected (score %d)", verdict.FraudCategory.Name, verdict.RiskScore)
	}
	v := verdict
	ac.Emit(Alert{
		Severity:  string(verdict.RiskLevel),
		AlertType: alertType,
		Title:     title,
		RefID:     refID,
		Verdict:   &v,
	})
}

// Recent returns up to limit alerts, newest first.
func (ac *AlertCenter) Recent(limit int) []Alert {
	ac.mu.RLock()
	defer ac.mu.RUnlock()

	if limit <= 0 || limit > len(ac.recentAlerts) {
		limit = len(ac.recentAlerts)
	}
	out := make([]Alert, 0, limit)
	for i := len(ac.recentAlerts) - 1; i >= len(ac.recentAlerts)-limit; i-- {
		out = append(out, ac.recentAlerts[i])
	}
	return out
}

func (ac *AlertCenter) deliver(wh WebhookEndpoint, alert Alert) {
	body, err := json.Marshal(alert)
	if err != nil {
		return
	}

	req, err := http.NewRequest(http.MethodPost, wh.URL, bytes.NewBuffer(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range wh.Headers {
		req.Header.Set(k, v)
	}

	resp, err := ac.httpClient.Do(req)
	if err != nil {
		log.Printf("[AlertCenter] Webhook %s delivery failed: %v", wh.Name, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		log.Printf("[AlertCenter] Webhook %s returned status %d", wh.Name, resp.StatusCode)
	}
}

func generateAlertID(alert Alert) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d",
		alert.AlertType, alert.RefID, alert.Title, alert.Timestamp.UnixNano())))
	return hex.EncodeToString(sum[:8])
}
