package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rawblock/upi-fraud-engine/internal/chat"
	"github.com/rawblock/upi-fraud-engine/internal/db"
	"github.com/rawblock/upi-fraud-engine/internal/extract"
	"github.com/rawblock/upi-fraud-engine/internal/honeypot"
	"github.com/rawblock/upi-fraud-engine/internal/ml"
	"github.com/rawblock/upi-fraud-engine/internal/risk"
	"github.com/rawblock/upi-fraud-engine/pkg/models"
)

// maxQRImageBytes caps the multipart upload for /upi/scan-qr.
const maxQRImageBytes = 5 << 20

// payValidationScammerID tags blacklist entries created by the validate-pay
// path, which has no chat scammer identity.
const payValidationScammerID = "pay-validation"

// QRDecoder turns an uploaded image into its embedded payload string. The
// engine does not decode images itself; an external decoder service is
// plugged in here.
type QRDecoder interface {
	Decode(ctx context.Context, image []byte) (string, error)
}

type APIHandler struct {
	dbStore      *db.PostgresStore
	orchestrator *chat.Orchestrator
	honeypot     *honeypot.Engine
	extractor    *extract.Extractor
	classifier   *risk.TextClassifier
	rules        *risk.RuleScorer
	mlClient     *ml.Client
	blacklist    chat.BlacklistStore
	events       chat.RiskEventRecorder
	alerts       *AlertCenter
	qrDecoder    QRDecoder
}

// handleHealth returns engine status and capabilities for service discovery
func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "operational",
		"engine": "RawBlock UPI Fraud Engine v1.0",
		"capabilities": gin.H{
			"message_scan":    true,
			"qr_scan":         h.qrDecoder != nil,
			"pay_validation":  true,
			"chat_guard":      true,
			"honeypot":        true,
			"ml_fusion":       h.mlClient != nil,
			"phishing_domain": h.dbStore != nil,
		},
		"dbConnected": h.dbStore != nil,
	})
}

// handleScanMessage analyzes a free-form message (SMS, WhatsApp, payment
// request text) and returns the fused verdict plus everything extracted.
// POST /api/upi/scan { "message": "..." }
func (h *APIHandler) handleScanMessage(c *gin.Context) {
	var req struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {message}"})
		return
	}

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Empty message"})
		return
	}
	if len(req.Message) > chat.MaxChatChars {
		req.Message = req.Message[:chat.MaxChatChars]
	}

	start := time.Now()
	ctx := c.Request.Context()

	extracted, err := h.extractor.Extract(ctx, req.Message)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	textResult := h.classifier.Classify(ctx, req.Message)

	tx := chat.TransactionFromExtraction(extracted)
	ruleResult := h.rules.ScoreWithAI(ctx, tx)

	var qrResult *risk.QRResult
	if payload, qrErr := risk.ParseQRPayload(req.Message); qrErr == nil {
		q := risk.ScoreQRPayload(payload, h.rules)
		qrResult = &q
	}

	verdict := risk.FuseSignals(&textResult, &ruleResult, qrResult)
	h.recordVerdict(ctx, "scan", "", verdict)

	c.JSON(http.StatusOK, gin.H{
		"status":         "success",
		"extracted":      extracted,
		"analysis":       verdict,
		"responseTimeMs": time.Since(start).Milliseconds(),
	})
}

// handleScanQR decodes an uploaded QR image and risk-scores its payload.
// POST /api/upi/scan-qr  multipart form, field "qrImage", max 5MB
func (h *APIHandler) handleScanQR(c *gin.Context) {
	if h.qrDecoder == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "QR decoder not configured"})
		return
	}

	file, header, err := c.Request.FormFile("qrImage")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing image upload. Expected multipart field: qrImage"})
		return
	}
	defer file.Close()

	if header.Size > maxQRImageBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Image exceeds 5MB limit"})
		return
	}

	image, err := io.ReadAll(io.LimitReader(file, maxQRImageBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read image upload"})
		return
	}
	if len(image) > maxQRImageBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Image exceeds 5MB limit"})
		return
	}

	ctx := c.Request.Context()
	payloadText, err := h.qrDecoder.Decode(ctx, image)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not decode a QR code from the image"})
		return
	}

	payload, err := risk.ParseQRPayload(payloadText)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "QR code does not contain a UPI payment payload", "payload": payloadText})
		return
	}

	result := risk.ScoreQRPayload(payload, h.rules)
	verdict := risk.FuseSignals(nil, nil, &result)
	h.recordVerdict(ctx, "scan-qr", payload.PayeeUPI, verdict)

	c.JSON(http.StatusOK, gin.H{
		"extracted": gin.H{
			"upiId":        payload.PayeeUPI,
			"merchantName": payload.PayeeName,
			"amount":       payload.Amount,
		},
		"analysis": verdict,
		"warning":  risk.QRWarning,
	})
}

// validatePayRequest is the pre-payment check input.
type validatePayRequest struct {
	Amount      float64 `json:"amount"`
	ReceiverUPI string  `json:"receiverUPI"`
	SenderUPI   string  `json:"senderUPI,omitempty"`
	Description string  `json:"description,omitempty"`
	NewPayee    bool    `json:"newPayee,omitempty"`
	Rapid       bool    `json:"rapid,omitempty"`
}

// handleValidateTransaction is the pre-payment gate: blacklist check, rule
// scoring, text classification over the assembled context, ML probability,
// and the advanced fusion. Confirmed-scam payees are blacklisted under the
// pay-validation identity.
// POST /api/upi/validate-transaction
func (h *APIHandler) handleValidateTransaction(c *gin.Context) {
	var req validatePayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {amount, receiverUPI, ...}"})
		return
	}
	if req.ReceiverUPI == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "receiverUPI is required"})
		return
	}
	if req.Amount < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be non-negative"})
		return
	}

	start := time.Now()
	ctx := c.Request.Context()

	isBlacklisted := false
	if h.blacklist != nil {
		entry, err := h.blacklist.FindMatching(ctx, req.ReceiverUPI, []string{req.ReceiverUPI}, nil)
		if err != nil {
			log.Printf("[ValidatePay] Blacklist lookup failed, continuing without: %v", err)
		}
		isBlacklisted = entry != nil
	}

	tx := models.Transaction{
		SenderUPI:   req.SenderUPI,
		ReceiverUPI: req.ReceiverUPI,
		Amount:      req.Amount,
		Type:        models.TxTypeP2P,
		Description: req.Description,
		Source:      models.SourceUserPay,
		IsNewPayee:  req.NewPayee,
		IsRapid:     req.Rapid,
		Timestamp:   time.Now(),
	}
	ruleResult := h.rules.ScoreWithAI(ctx, tx)

	// The classifier sees the same context a human reviewer would.
	textContext := strings.TrimSpace(fmt.Sprintf("%s %s %.0f", req.Description, req.ReceiverUPI, req.Amount))
	textResult := h.classifier.Classify(ctx, textContext)

	ruleSide := ruleResult.Score
	if textScore := int(math.Round(textResult.Confidence * 100)); textScore > ruleSide {
		ruleSide = textScore
	}

	mlProbability := 0.0
	var mlPrediction *ml.Prediction
	if h.mlClient != nil {
		mlPrediction = h.mlClient.Predict(ctx, ml.Request{
			Text:        textContext,
			Amount:      &req.Amount,
			ReceiverUPI: req.ReceiverUPI,
			Description: req.Description,
			NewPayee:    req.NewPayee,
		})
		if mlPrediction != nil {
			mlProbability = mlPrediction.Probability
		}
	}

	score, level := risk.FuseAdvanced(ruleSide, mlProbability, isBlacklisted)

	indicators := []string{}
	if isBlacklisted {
		indicators = append(indicators, "Receiver is on the scammer blacklist")
	}
	for _, ind := range ruleResult.Indicators {
		indicators = append(indicators, ind.Label)
	}
	indicators = append(indicators, textResult.Indicators...)
	if mlPrediction != nil {
		for _, ind := range mlPrediction.Indicators {
			indicators = append(indicators, "ML: "+ind)
		}
	}

	category := ruleResult.Category
	if category == nil && isBlacklisted {
		category = &models.FraudCategory{Name: "IMPERSONATION", Icon: "🎭"}
	}

	verdict := models.RiskVerdict{
		RiskScore:          score,
		RiskLevel:          level,
		FraudCategory:      category,
		Indicators:         indicators,
		RecommendedActions: risk.RecommendedActions(score, category),
		Reasoning:          ruleResult.Reasoning,
	}
	if mlPrediction != nil {
		verdict.MLProbability = &mlPrediction.Probability
	}

	if score >= 70 && !isBlacklisted && h.blacklist != nil {
		if err := h.blacklist.Upsert(ctx, payValidationScammerID,
			[]string{req.ReceiverUPI}, nil, "Flagged during pay validation"); err != nil {
			log.Printf("[ValidatePay] Blacklist upsert failed: %v", err)
		}
	}

	h.recordVerdict(ctx, "validate-pay", req.ReceiverUPI, verdict)

	shouldBlock := score >= 70
	var message string
	switch {
	case isBlacklisted:
		message = "This UPI ID is in our blacklist of known scammers. Do NOT proceed with this payment."
	case shouldBlock:
		message = "High fraud risk detected. This transaction should be blocked."
	case level == models.RiskMedium:
		message = "Some risk indicators present. Verify the payee before proceeding."
	default:
		message = "Transaction appears safe."
	}

	resp := gin.H{
		"riskScore":           score,
		"riskLevel":           level,
		"isFraud":             shouldBlock,
		"shouldBlock":         shouldBlock,
		"message":             message,
		"triggeredIndicators": indicators,
		"recommendations":     verdict.RecommendedActions,
		"blacklisted":         isBlacklisted,
		"responseTimeMs":      time.Since(start).Milliseconds(),
	}
	if mlPrediction != nil {
		resp["mlProbability"] = mlPrediction.Probability
	}
	c.JSON(http.StatusOK, resp)
}

// handleChatSend routes one scammer-side chat message through the
// orchestrator.
// POST /api/chat/send { sessionId, scammerId, victimId?, text }
func (h *APIHandler) handleChatSend(c *gin.Context) {
	var req struct {
		SessionID string `json:"sessionId"`
		ScammerID string `json:"scammerId"`
		VictimID  string `json:"victimId"`
		Text      string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {sessionId, scammerId, text}"})
		return
	}
	if req.SessionID == "" || req.ScammerID == "" || strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId, scammerId and text are required"})
		return
	}

	// Alerting happens inside the orchestrator so diverted turns are covered
	// regardless of the transport that carried them.
	outcome, err := h.orchestrator.HandleScammerTurn(c.Request.Context(), req.SessionID, req.ScammerID, req.VictimID, req.Text)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process message", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// handleVictimReply appends a victim message to a live session. Replies into
// a diverted session are refused.
// POST /api/chat/victim-reply { sessionId, text }
func (h *APIHandler) handleVictimReply(c *gin.Context) {
	var req struct {
		SessionID string `json:"sessionId"`
		Text      string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {sessionId, text}"})
		return
	}
	if req.SessionID == "" || strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId and text are required"})
		return
	}

	err := h.orchestrator.VictimReply(c.Request.Context(), req.SessionID, req.Text)
	switch {
	case errors.Is(err, chat.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
	case errors.Is(err, chat.ErrVictimBlocked):
		c.JSON(http.StatusForbidden, gin.H{"error": "This conversation has been flagged as a scam. Your reply was not delivered."})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save reply", "details": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	}
}

// handleChatSession returns the victim-safe projection of a session.
// GET /api/chat/session/:sessionId
func (h *APIHandler) handleChatSession(c *gin.Context) {
	view, err := h.orchestrator.Project(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, view)
}

// handleHoneypotMessage processes one turn through the standalone honeypot.
// POST /api/honeypot { sessionId, message: {sender, text, timestamp} }
func (h *APIHandler) handleHoneypotMessage(c *gin.Context) {
	var req struct {
		SessionID string            `json:"sessionId"`
		Message   honeypot.Message  `json:"message"`
		Metadata  map[string]string `json:"metadata,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {sessionId, message:{sender,text}}"})
		return
	}
	if req.Message.Sender == "" {
		req.Message.Sender = "scammer"
	}
	if req.Message.Timestamp.IsZero() {
		req.Message.Timestamp = time.Now()
	}
	if len(req.Message.Text) > chat.MaxChatChars {
		req.Message.Text = req.Message.Text[:chat.MaxChatChars]
	}

	start := time.Now()
	result, err := h.honeypot.HandleMessage(c.Request.Context(), req.SessionID, req.Message)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.alerts != nil && result.ScamDetected {
		score := int(math.Round(result.Confidence * 100))
		h.alerts.EmitVerdict("honeypot", req.SessionID, models.RiskVerdict{
			RiskScore: score,
			RiskLevel: models.BandForScore(score),
			Reasoning: "Honeypot conversation flagged as scam",
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"reply":     result.Reply,
		"agentNote": result.AgentNote,
		"debug": gin.H{
			"sessionId":             req.SessionID,
			"scamDetected":          result.ScamDetected,
			"confidence":            result.Confidence,
			"lastMessageConfidence": result.LastMessageConfidence,
			"messageCount":          result.MessageCount,
			"responseTimeMs":        time.Since(start).Milliseconds(),
			"callbackSent":          result.CallbackSent,
		},
	})
}

// handleHoneypotSession returns the full debug view of a honeypot session.
// GET /api/honeypot/session/:sessionId
func (h *APIHandler) handleHoneypotSession(c *gin.Context) {
	session, ok := h.honeypot.Snapshot(c.Param("sessionId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, session)
}

// handleHoneypotDelete evicts a honeypot session.
// DELETE /api/honeypot/session/:sessionId
func (h *APIHandler) handleHoneypotDelete(c *gin.Context) {
	if !h.honeypot.Delete(c.Param("sessionId")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// handleHoneypotCallback forces the intelligence callback for a flagged
// session.
// POST /api/honeypot/session/:sessionId/callback
func (h *APIHandler) handleHoneypotCallback(c *gin.Context) {
	if err := h.honeypot.ForceCallback(c.Request.Context(), c.Param("sessionId")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"callbackSent": true})
}

// handleAddPhishingDomain registers a known-bad host.
// POST /api/admin/phishing-domains { "domain": "evil.example" }
func (h *APIHandler) handleAddPhishingDomain(c *gin.Context) {
	if h.dbStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Database not connected"})
		return
	}

	var req struct {
		Domain string `json:"domain"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Domain) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {domain}"})
		return
	}

	if err := h.dbStore.AddPhishingDomain(c.Request.Context(), req.Domain); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register domain", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"registered": strings.ToLower(strings.TrimSpace(req.Domain))})
}

// handleListPhishingDomains lists registered hosts.
// GET /api/admin/phishing-domains
func (h *APIHandler) handleListPhishingDomains(c *gin.Context) {
	if h.dbStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Database not connected"})
		return
	}

	domains, err := h.dbStore.ListPhishingDomains(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list domains", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": domains, "count": len(domains)})
}

// handleRecentAlerts returns recent HIGH/CRITICAL alerts, newest first.
// GET /api/alerts/recent?limit=50
func (h *APIHandler) handleRecentAlerts(c *gin.Context) {
	if h.alerts == nil {
		c.JSON(http.StatusOK, gin.H{"data": []Alert{}})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	c.JSON(http.StatusOK, gin.H{"data": h.alerts.Recent(limit)})
}

// recordVerdict persists the verdict and emits an operator alert when it is
// HIGH or CRITICAL. Both paths are best-effort.
func (h *APIHandler) recordVerdict(ctx context.Context, source, refID string, verdict models.RiskVerdict) {
	if h.events != nil {
		if err := h.events.RecordRiskEvent(ctx, source, refID, verdict); err != nil {
			log.Printf("[API] Failed to record risk event: %v", err)
		}
	}
	if h.alerts != nil {
		h.alerts.EmitVerdict(source, refID, verdict)
	}
}
