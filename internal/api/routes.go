package api

import (
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rawblock/upi-fraud-engine/internal/chat"
	"github.com/rawblock/upi-fraud-engine/internal/db"
	"github.com/rawblock/upi-fraud-engine/internal/extract"
	"github.com/rawblock/upi-fraud-engine/internal/honeypot"
	"github.com/rawblock/upi-fraud-engine/internal/ml"
	"github.com/rawblock/upi-fraud-engine/internal/risk"
)

// Deps carries everything the router needs. Optional collaborators
// (dbStore, mlClient, qrDecoder, alerts) may be nil; the handlers degrade
// per endpoint.
type Deps struct {
	DBStore      *db.PostgresStore
	Orchestrator *chat.Orchestrator
	Honeypot     *honeypot.Engine
	Extractor    *extract.Extractor
	Classifier   *risk.TextClassifier
	Rules        *risk.RuleScorer
	MLClient     *ml.Client
	Blacklist    chat.BlacklistStore
	Events       chat.RiskEventRecorder
	Alerts       *AlertCenter
	QRDecoder    QRDecoder
	RateLimiter  *RateLimiter
}

func SetupRouter(deps Deps, wsHub *Hub) *gin.Engine {
	r := gin.Default()

	// Enable CORS — configurable via ALLOWED_ORIGINS env var
	// Production: ALLOWED_ORIGINS=https://rawblock.net,https://www.rawblock.net
	// Development: ALLOWED_ORIGINS=http://localhost:3000 (or leave empty for *)
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			// Check if the request origin is in the allowed list
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, x-api-key, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{
		dbStore:      deps.DBStore,
		orchestrator: deps.Orchestrator,
		honeypot:     deps.Honeypot,
		extractor:    deps.Extractor,
		classifier:   deps.Classifier,
		rules:        deps.Rules,
		mlClient:     deps.MLClient,
		blacklist:    deps.Blacklist,
		events:       deps.Events,
		alerts:       deps.Alerts,
		qrDecoder:    deps.QRDecoder,
	}

	// Public endpoints: liveness and the operator alert stream.
	r.GET("/api/health", handler.handleHealth)
	r.GET("/api/alerts/stream", wsHub.Subscribe)

	api := r.Group("/api")
	api.Use(AuthMiddleware())
	if deps.RateLimiter != nil {
		api.Use(deps.RateLimiter.Middleware())
	}
	{
		upi := api.Group("/upi")
		{
			upi.POST("/scan", handler.handleScanMessage)
			upi.POST("/scan-qr", handler.handleScanQR)
			upi.POST("/validate-transaction", handler.handleValidateTransaction)
		}

		chatGroup := api.Group("/chat")
		{
			chatGroup.POST("/send", handler.handleChatSend)
			chatGroup.POST("/victim-reply", handler.handleVictimReply)
			chatGroup.GET("/session/:sessionId", handler.handleChatSession)
		}

		hp := api.Group("/honeypot")
		{
			hp.POST("", handler.handleHoneypotMessage)
			hp.GET("/session/:sessionId", handler.handleHoneypotSession)
			hp.DELETE("/session/:sessionId", handler.handleHoneypotDelete)
			hp.POST("/session/:sessionId/callback", handler.handleHoneypotCallback)
		}

		api.GET("/alerts/recent", handler.handleRecentAlerts)

		admin := api.Group("/admin")
		{
			admin.POST("/phishing-domains", handler.handleAddPhishingDomain)
			admin.GET("/phishing-domains", handler.handleListPhishingDomains)
		}
	}

	return r
}
