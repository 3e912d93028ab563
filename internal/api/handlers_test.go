package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rawblock/upi-fraud-engine/internal/chat"
	"github.com/rawblock/upi-fraud-engine/internal/extract"
	"github.com/rawblock/upi-fraud-engine/internal/honeypot"
	"github.com/rawblock/upi-fraud-engine/internal/ml"
	"github.com/rawblock/upi-fraud-engine/internal/risk"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestRouter wires a full router over in-memory stores with no DB, LLM
// or decoder configured.
func newTestRouter(t *testing.T, mlClient *ml.Client) (*gin.Engine, *chat.MemoryBlacklistStore) {
	t.Helper()

	extractor := extract.New(nil)
	classifier := risk.NewTextClassifier(nil, nil, risk.DefaultScamThreshold)
	rules := risk.NewRuleScorer(nil)
	generator := honeypot.NewGenerator(nil)

	blacklist := chat.NewMemoryBlacklistStore()
	orchestrator := chat.NewOrchestrator(chat.NewMemorySessionStore(), blacklist,
		extractor, classifier, rules, generator)

	engine := honeypot.NewEngine(honeypot.Config{}, extractor, classifier, generator)

	router := SetupRouter(Deps{
		Orchestrator: orchestrator,
		Honeypot:     engine,
		Extractor:    extractor,
		Classifier:   classifier,
		Rules:        rules,
		MLClient:     mlClient,
		Blacklist:    blacklist,
		Alerts:       NewAlertCenter(nil),
	}, NewHub())
	return router, blacklist
}

func postJSON(router *gin.Engine, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode response body: %v\n%s", err, w.Body.String())
	}
	return out
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["status"] != "operational" {
		t.Errorf("Unexpected status: %v", body["status"])
	}
	if body["dbConnected"] != false {
		t.Error("dbConnected must be false without a database")
	}
	caps := body["capabilities"].(map[string]interface{})
	if caps["qr_scan"] != false || caps["ml_fusion"] != false {
		t.Errorf("Optional capabilities should be off: %v", caps)
	}
}

func TestAuthMiddleware(t *testing.T) {
	t.Setenv("API_KEY", "secret-key")
	router, _ := newTestRouter(t, nil)

	scanBody := map[string]string{"message": "hello"}

	tests := []struct {
		name     string
		key      string
		expected int
	}{
		{"Missing key", "", http.StatusUnauthorized},
		{"Wrong key", "wrong", http.StatusForbidden},
		{"Correct key", "secret-key", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.key != "" {
				headers["x-api-key"] = tt.key
			}
			w := postJSON(router, "/api/upi/scan", scanBody, headers)
			if w.Code != tt.expected {
				t.Errorf("Expected %d, got %d: %s", tt.expected, w.Code, w.Body.String())
			}
		})
	}

	// Health stays public even with auth configured.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Health endpoint must not require auth, got %d", w.Code)
	}
}

func TestScanMessage(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	w := postJSON(router, "/api/upi/scan", map[string]string{
		"message": "URGENT: account blocked! Share OTP 482913 immediately. Pay to fraudster@ybl",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["status"] != "success" {
		t.Errorf("Expected status success, got %v", body["status"])
	}
	analysis := body["analysis"].(map[string]interface{})
	if analysis["riskScore"].(float64) < 70 {
		t.Errorf("Expected a high-risk verdict, got %v", analysis["riskScore"])
	}

	extracted := body["extracted"].(map[string]interface{})
	upis := extracted["allUpiIds"].([]interface{})
	if len(upis) != 1 || upis[0] != "fraudster@ybl" {
		t.Errorf("UPI not extracted: %v", upis)
	}
}

func TestScanMessage_BadRequests(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	w := postJSON(router, "/api/upi/scan", map[string]string{"message": "   "}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Blank message should be 400, got %d", w.Code)
	}
}

func TestScanQR_WithoutDecoder(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/upi/scan-qr", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without a decoder, got %d", w.Code)
	}
}

func TestValidateTransaction_MLFusionBlocks(t *testing.T) {
	mlService := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"probability": 0.95, "indicators": ["model: payee risk"]}`))
	}))
	defer mlService.Close()

	router, blacklist := newTestRouter(t, ml.New(mlService.URL, 0))

	w := postJSON(router, "/api/upi/validate-transaction", map[string]interface{}{
		"amount":      260000,
		"receiverUPI": "mule-account@ybl",
		"newPayee":    true,
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["shouldBlock"] != true {
		t.Errorf("A very-high-amount new payee with 0.95 ML probability must be blocked: %s", w.Body.String())
	}
	if body["blacklisted"] != false {
		t.Error("First sighting should not already be blacklisted")
	}
	if body["mlProbability"].(float64) != 0.95 {
		t.Errorf("ML probability missing from the response: %s", w.Body.String())
	}

	// The blocked payee lands on the blacklist for the next check.
	entry, err := blacklist.FindMatching(context.Background(), "x", []string{"mule-account@ybl"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil {
		t.Fatal("Blocked payee was not blacklisted")
	}
	if entry.Reason != "Flagged during pay validation" {
		t.Errorf("Unexpected reason %q", entry.Reason)
	}
}

func TestValidateTransaction_BlacklistedReceiver(t *testing.T) {
	router, blacklist := newTestRouter(t, nil)
	if err := blacklist.Upsert(context.Background(), "known", []string{"evil@ybl"}, nil, "Confirmed scam activity"); err != nil {
		t.Fatal(err)
	}

	w := postJSON(router, "/api/upi/validate-transaction", map[string]interface{}{
		"amount":      100,
		"receiverUPI": "evil@ybl",
	}, nil)
	body := decodeBody(t, w)
	if body["blacklisted"] != true || body["shouldBlock"] != true {
		t.Errorf("Blacklisted receiver must be blocked: %s", w.Body.String())
	}
	if body["riskScore"].(float64) != 100 || body["riskLevel"] != "CRITICAL" {
		t.Errorf("Blacklist hit must be 100/CRITICAL: %s", w.Body.String())
	}
}

func TestValidateTransaction_BadRequests(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	w := postJSON(router, "/api/upi/validate-transaction", map[string]interface{}{"amount": 100}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Missing receiverUPI should be 400, got %d", w.Code)
	}

	w = postJSON(router, "/api/upi/validate-transaction", map[string]interface{}{
		"amount": -5, "receiverUPI": "a@ybl",
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Negative amount should be 400, got %d", w.Code)
	}
}

func TestChatFlow(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	w := postJSON(router, "/api/chat/send", map[string]string{
		"sessionId": "s1",
		"scammerId": "scammer-1",
		"text":      "URGENT: account blocked! Share OTP immediately or pay the penalty fine.",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["diverted"] != true {
		t.Errorf("High-risk chat turn must divert: %s", w.Body.String())
	}
	if body["honeypotReply"] == nil || body["honeypotReply"] == "" {
		t.Error("Diverted turn must carry a honeypot reply")
	}

	// The victim is now fenced off.
	w = postJSON(router, "/api/chat/victim-reply", map[string]string{
		"sessionId": "s1", "text": "ok, sending the otp",
	}, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("Victim reply into a diverted session should be 403, got %d", w.Code)
	}

	// Session projection shows delivered messages.
	req := httptest.NewRequest(http.MethodGet, "/api/chat/session/s1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	view := decodeBody(t, rec)
	if view["isScamConfirmed"] != true {
		t.Errorf("Projection must confirm the scam: %s", rec.Body.String())
	}
}

func TestVictimReply_UnknownSession(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	w := postJSON(router, "/api/chat/victim-reply", map[string]string{
		"sessionId": "nope", "text": "hello",
	}, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for an unknown session, got %d", w.Code)
	}
}

func TestHoneypotEndpoints(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	w := postJSON(router, "/api/honeypot", map[string]interface{}{
		"sessionId": "hp1",
		"message": map[string]string{
			"sender": "scammer",
			"text":   "You won a lottery prize! Pay the claim fee urgently.",
		},
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	debug := body["debug"].(map[string]interface{})
	if debug["scamDetected"] != true {
		t.Errorf("Lottery bait should be flagged: %s", w.Body.String())
	}
	if body["reply"] == "" {
		t.Error("Honeypot must always reply")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/honeypot/session/hp1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Snapshot of a live session should be 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/honeypot/session/hp1", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Delete of a live session should be 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/honeypot/session/hp1", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Snapshot after delete should be 404, got %d", rec.Code)
	}
}

func TestPhishingDomainAdmin_WithoutDB(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	w := postJSON(router, "/api/admin/phishing-domains", map[string]string{"domain": "evil.example"}, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without a database, got %d", w.Code)
	}
}
