package api

import (
	"crypto/subtle"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// ──────────────────────────────────────────────────────────────────
// API Key Authentication Middleware
//
// Reads API_KEY from environment. If set, all protected routes
// require: x-api-key: <key>
//
// Public endpoints (health, WebSocket stream) are excluded.
// ──────────────────────────────────────────────────────────────────

// AuthMiddleware returns a Gin middleware that validates the x-api-key
// header. If API_KEY is not set, all requests are allowed (dev mode).
// WARNING: In GIN_MODE=release, leaving API_KEY unset exposes all protected
// routes to the public internet. Always set a strong key in prod.
func AuthMiddleware() gin.HandlerFunc {
	key := os.Getenv("API_KEY")

	// Fail loudly in production if auth is not configured.
	if key == "" && os.Getenv("GIN_MODE") == "release" {
		log.Println("[SECURITY WARNING] API_KEY is not set in release mode. " +
			"All protected endpoints are publicly accessible. " +
			"Set API_KEY in your environment to enforce authentication.")
	}

	return func(c *gin.Context) {
		// If no key is configured, skip auth (development mode)
		if key == "" {
			c.Next()
			return
		}

		provided := c.GetHeader("x-api-key")
		if provided == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Missing x-api-key header",
			})
			c.Abort()
			return
		}

		// Use constant-time comparison to prevent timing-based key enumeration.
		if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Invalid API key",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
