package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rawblock/upi-fraud-engine/internal/api"
	"github.com/rawblock/upi-fraud-engine/internal/chat"
	"github.com/rawblock/upi-fraud-engine/internal/db"
	"github.com/rawblock/upi-fraud-engine/internal/extract"
	"github.com/rawblock/upi-fraud-engine/internal/honeypot"
	"github.com/rawblock/upi-fraud-engine/internal/llm"
	"github.com/rawblock/upi-fraud-engine/internal/ml"
	"github.com/rawblock/upi-fraud-engine/internal/risk"
)

func main() {
	log.Println("Starting RawBlock UPI Fraud Engine (Microservice: upi-fraud-defense)...")

	// Local development convenience; real deployments set the environment.
	_ = godotenv.Load()

	// ─── Environment Variables ──────────────────────────────────────────
	// All credentials MUST come from environment variables. No fallback
	// defaults for security-sensitive values. Use a .env file for local
	// development: cp .env.example .env && edit .env
	// ────────────────────────────────────────────────────────────────────

	var dbConn *db.PostgresStore
	if dbUrl := os.Getenv("DATABASE_URL"); dbUrl != "" {
		conn, err := db.Connect(dbUrl)
		if err != nil {
			log.Printf("Warning: Failed to connect to PostgreSQL, continuing with in-memory stores. Error: %v", err)
		} else {
			dbConn = conn
			defer dbConn.Close()
			if err := dbConn.InitSchema(); err != nil {
				log.Printf("Warning: DB schema init failed: %v", err)
			}
		}
	} else {
		log.Println("Warning: DATABASE_URL is not set. Sessions and blacklist live in memory only.")
	}

	// LLM collaborator is optional; every analyzer degrades to its rule path.
	llmClient := llm.New(llm.Config{
		APIKey:  os.Getenv("LLM_API_KEY"),
		BaseURL: os.Getenv("LLM_BASE_URL"),
		Model:   os.Getenv("LLM_MODEL"),
	})
	if llmClient == nil {
		log.Println("LLM_API_KEY not set. Running on rule-based analysis only.")
	}

	mlTimeout := time.Duration(getEnvInt("ML_TIMEOUT_MS", 0)) * time.Millisecond
	mlClient := ml.New(os.Getenv("ML_SERVICE_URL"), mlTimeout)
	if mlClient == nil {
		log.Println("ML_SERVICE_URL not set. Pay validation runs without the ML signal.")
	}

	var domains risk.DomainChecker
	if dbConn != nil {
		domains = dbConn
	}

	scamThreshold := getEnvFloat("SCAM_THRESHOLD", risk.DefaultScamThreshold)

	// A nil *llm.Client must stay a nil interface for the analyzers' guards.
	var aiExtractor extract.AIExtractor
	var scamJudge risk.ScamJudge
	var txAssessor risk.TransactionAssessor
	var replyModel honeypot.ReplyModel
	if llmClient != nil {
		aiExtractor = llmClient
		scamJudge = llmClient
		txAssessor = llmClient
		replyModel = llmClient
	}

	extractor := extract.New(aiExtractor)
	urlAnalyzer := risk.NewURLAnalyzer(domains)
	classifier := risk.NewTextClassifier(scamJudge, urlAnalyzer, scamThreshold)
	rules := risk.NewRuleScorer(txAssessor)
	generator := honeypot.NewGenerator(replyModel)

	honeypotEngine := honeypot.NewEngine(honeypot.Config{
		ScamThreshold:  scamThreshold,
		MinMessages:    getEnvInt("HONEYPOT_MIN_MESSAGES", honeypot.DefaultMinMessages),
		SessionTimeout: time.Duration(getEnvInt("SESSION_TIMEOUT_MIN", 30)) * time.Minute,
		CallbackURL:    os.Getenv("HONEYPOT_CALLBACK_URL"),
	}, extractor, classifier, generator)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go honeypotEngine.RunSweeper(ctx)

	// Stores: Postgres when connected, in-memory otherwise.
	var sessions chat.SessionStore
	var blacklist chat.BlacklistStore
	var events chat.RiskEventRecorder
	if dbConn != nil {
		sessions = dbConn
		blacklist = dbConn
		events = dbConn
	} else {
		sessions = chat.NewMemorySessionStore()
		blacklist = chat.NewMemoryBlacklistStore()
	}

	orchestrator := chat.NewOrchestrator(sessions, blacklist, extractor, classifier, rules, generator)
	orchestrator.Events = events

	// Setup WebSocket Hub and the alert fanout
	wsHub := api.NewHub()
	go wsHub.Run()

	alerts := api.NewAlertCenter(wsHub)
	if webhookURL := os.Getenv("ALERT_WEBHOOK_URL"); webhookURL != "" {
		alerts.RegisterWebhook("ops", webhookURL, nil)
	}
	orchestrator.Alert = alerts.EmitVerdict

	rateLimiter := api.NewRateLimiter(getEnvInt("RATE_LIMIT_PER_MIN", 120), getEnvInt("RATE_LIMIT_BURST", 30))

	r := api.SetupRouter(api.Deps{
		DBStore:      dbConn,
		Orchestrator: orchestrator,
		Honeypot:     honeypotEngine,
		Extractor:    extractor,
		Classifier:   classifier,
		Rules:        rules,
		MLClient:     mlClient,
		Blacklist:    blacklist,
		Events:       events,
		Alerts:       alerts,
		RateLimiter:  rateLimiter,
	}, wsHub)

	port := getEnvOrDefault("PORT", "5340")

	log.Printf("Engine running on :%s (API Node: upi-fraud-defense)\n", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
		log.Printf("Warning: %s is not a valid integer, using default %d", key, fallback)
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
		log.Printf("Warning: %s is not a valid number, using default %.2f", key, fallback)
	}
	return fallback
}
