package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
)

type SecurityConfig struct {
	HSTS       bool
	HSTSMaxAge int
	// NoStore forbids caching responses, which carry health data.
	NoStore       bool
	CSPDirectives []string
}

func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		HSTS:          true,
		HSTSMaxAge:    31536000,
		NoStore:       true,
		CSPDirectives: []string{"default-src 'none'", "frame-ancestors 'none'"},
	}
}

func SecurityHeaders(config SecurityConfig) gin.HandlerFunc {
	csp := strings.Join(config.CSPDirectives, "; ")
	return func(c *gin.Context) {
		if config.HSTS {
			c.Header("Strict-Transport-Security", fmt.Sprintf("max-age=%d; includeSubDomains", config.HSTSMaxAge))
		}
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "no-referrer")
		if csp != "" {
			c.Header("Content-Security-Policy", csp)
		}
		if config.NoStore {
			c.Header("Cache-Control", "no-store")
			c.Header("Pragma", "no-cache")
		}
		c.Next()
	}
}
