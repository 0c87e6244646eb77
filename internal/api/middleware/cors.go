package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Origin, Content-Type, Accept"
	corsMaxAge       = "86400"
)

// corsPolicy is the parsed form of server.cors_allowed_origins.
type corsPolicy struct {
	any     bool
	origins map[string]struct{}
}

func parseCORSOrigins(list string) corsPolicy {
	p := corsPolicy{origins: map[string]struct{}{}}
	for _, o := range strings.Split(list, ",") {
		switch o = strings.TrimSpace(o); o {
		case "":
		case "*":
			p.any = true
		default:
			p.origins[o] = struct{}{}
		}
	}
	return p
}

// allow returns the Access-Control-Allow-Origin value for origin and whether
// credentials may be sent. An empty value means the origin is rejected.
func (p corsPolicy) allow(origin string) (string, bool) {
	if p.any {
		return "*", false
	}
	if _, ok := p.origins[origin]; ok {
		return origin, true
	}
	return "", false
}

// CORSMiddleware lets dashboards on other origins read device states.
// allowedOrigins is a comma-separated list, or "*" for any origin.
// Requests without an Origin header, or from an origin not listed, get no CORS headers.
func CORSMiddleware(allowedOrigins string) gin.HandlerFunc {
	policy := parseCORSOrigins(allowedOrigins)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		value, credentials := policy.allow(origin)
		if value == "" {
			c.Next()
			return
		}

		c.Header("Access-Control-Allow-Origin", value)
		if credentials {
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
		}

		if c.Request.Method != http.MethodOptions {
			c.Next()
			return
		}

		requested := c.GetHeader("Access-Control-Request-Headers")
		if requested == "" {
			requested = corsAllowHeaders
		}
		c.Header("Access-Control-Allow-Methods", corsAllowMethods)
		c.Header("Access-Control-Allow-Headers", requested)
		c.Header("Access-Control-Max-Age", corsMaxAge)
		c.AbortWithStatus(http.StatusNoContent)
	}
}
