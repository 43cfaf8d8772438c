package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	filesHTTP "github.com/allisson/sealdrop/internal/files/http"
)

const corsMaxAge = 12 * time.Hour

// createCORSMiddleware returns the CORS middleware for browser clients served from another
// origin, or nil when CORS is disabled or no usable origin is configured.
//
// allowOriginsStr is a comma-separated origin list; "*" allows any origin. Credentials travel
// in a request header, never a cookie, so AllowCredentials stays off and "*" is safe to offer.
func createCORSMiddleware(enabled bool, allowOriginsStr string, logger *slog.Logger) gin.HandlerFunc {
	if !enabled {
		return nil
	}

	origins := parseOrigins(allowOriginsStr)
	if len(origins) == 0 {
		logger.Warn("CORS enabled but no valid origins configured, CORS will not be applied")
		return nil
	}

	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{
			"Content-Type",
			filesHTTP.CredentialHeader,
			filesHTTP.LegacyCredentialHeader,
		},
		ExposeHeaders: []string{
			"X-Request-Id",
			"Content-Disposition",
			filesHTTP.ExtensionHeader,
		},
		MaxAge: corsMaxAge,
	}

	allowed := make([]string, 0, len(origins))
	for _, origin := range origins {
		if origin == "*" {
			config.AllowAllOrigins = true
			continue
		}
		if !validOrigin(origin) {
			logger.Warn("ignoring invalid CORS origin", slog.String("origin", origin))
			continue
		}
		allowed = append(allowed, origin)
	}

	switch {
	case config.AllowAllOrigins:
		logger.Info("CORS enabled for any origin")
	case len(allowed) == 0:
		logger.Warn("CORS enabled but no valid origins configured, CORS will not be applied")
		return nil
	default:
		config.AllowOrigins = allowed
		logger.Info("CORS enabled", slog.Any("origins", allowed))
	}

	return cors.New(config)
}

// parseOrigins splits a comma-separated origin list, dropping blanks and trailing slashes.
func parseOrigins(originsStr string) []string {
	var origins []string
	for part := range strings.SplitSeq(originsStr, ",") {
		if origin := strings.TrimSuffix(strings.TrimSpace(part), "/"); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// validOrigin accepts scheme://host[:port] with an http or https scheme.
func validOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" && u.Path == "" &&
		u.RawQuery == "" && u.Fragment == ""
}
