package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/allisson/identity/internal/config"
)

// The public routes are all GET or POST with a JSON body; browsers only need to read the
// request id and the recovery limiter's retry hint.
var (
	corsAllowMethods   = []string{http.MethodGet, http.MethodPost}
	corsAllowHeaders   = []string{"Content-Type", "X-Request-Id"}
	corsExposedHeaders = []string{"X-Request-Id", "Retry-After"}
)

// newCORSMiddleware lets the browser app that opens recovery links call the API from its own
// origin. Without CORS_ALLOW_ORIGINS the origin of PublicBaseURL is allowed, since that is
// where password reset and email verification links point. Returns nil when CORS is
// disabled or no valid origin remains.
func newCORSMiddleware(cfg *config.Config, logger *slog.Logger) gin.HandlerFunc {
	if !cfg.CORSEnabled {
		return nil
	}

	raw := cfg.CORSAllowOrigins
	if strings.TrimSpace(raw) == "" {
		raw = cfg.PublicBaseURL
	}

	origins, rejected := parseOrigins(raw)
	for _, origin := range rejected {
		logger.Warn("ignoring invalid CORS origin", slog.String("origin", origin))
	}
	if len(origins) == 0 {
		logger.Warn("CORS enabled but no valid origins configured - CORS will not be applied")
		return nil
	}

	logger.Info("CORS enabled",
		slog.Any("origins", origins),
		slog.Duration("max_age", cfg.CORSMaxAge),
	)

	return cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  corsAllowMethods,
		AllowHeaders:  corsAllowHeaders,
		ExposeHeaders: corsExposedHeaders,
		MaxAge:        cfg.CORSMaxAge,
	})
}

// parseOrigins splits a comma-separated list into scheme://host[:port] origins. A trailing
// slash is dropped. Entries with another scheme, a path, a query or no host are returned in
// rejected, because cors.New panics on them.
func parseOrigins(raw string) (origins, rejected []string) {
	for _, part := range strings.Split(raw, ",") {
		origin := strings.TrimSuffix(strings.TrimSpace(part), "/")
		if origin == "" {
			continue
		}

		u, err := url.Parse(origin)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" ||
			u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
			rejected = append(rejected, origin)
			continue
		}
		origins = append(origins, u.Scheme+"://"+u.Host)
	}
	return origins, rejected
}
