package http

import (
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// createCORSMiddleware builds the CORS policy for browser-based verifiers that fetch
// capsules and public keys directly. Evidence producers call the API server to server, so
// CORS is off unless enabled. "*" allows every origin. A nil result means no CORS handling:
// disabled, no origins, or origins cors.Config rejects.
func createCORSMiddleware(enabled bool, allowOrigins string, logger *slog.Logger) gin.HandlerFunc {
	if !enabled {
		return nil
	}

	origins := parseOrigins(allowOrigins)
	if len(origins) == 0 {
		logger.Warn("CORS enabled but no origins configured - CORS will not be applied")
		return nil
	}

	config := cors.Config{
		// The ledger is append-only: there is nothing to update or delete.
		AllowMethods:  []string{"GET", "POST"},
		AllowHeaders:  []string{"Content-Type"},
		ExposeHeaders: []string{"X-Request-Id", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if slices.Contains(origins, "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}

	if err := config.Validate(); err != nil {
		logger.Error("invalid CORS configuration - CORS will not be applied", slog.Any("error", err))
		return nil
	}

	logger.Info("CORS enabled", slog.Any("origins", origins))
	return cors.New(config)
}

// parseOrigins splits a comma-separated list, dropping blanks and duplicates.
func parseOrigins(s string) []string {
	var origins []string
	for part := range strings.SplitSeq(s, ",") {
		origin := strings.TrimSpace(part)
		if origin != "" && !slices.Contains(origins, origin) {
			origins = append(origins, origin)
		}
	}
	return origins
}
