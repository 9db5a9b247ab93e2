package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsHeaders = "Content-Type, Authorization"
	// Document downloads and exports name their file in Content-Disposition.
	corsExposed = "Content-Disposition"
)

// wildcardOrigin is "https://*.example.com" split into "https://" and ".example.com".
type wildcardOrigin struct {
	prefix, suffix string
}

// corsPolicy matches request origins against exact entries and wildcard subdomain patterns.
type corsPolicy struct {
	any       bool
	exact     map[string]bool
	wildcards []wildcardOrigin
}

func newCORSPolicy(allowedOrigins string) corsPolicy {
	p := corsPolicy{exact: map[string]bool{}}
	for _, o := range strings.Split(allowedOrigins, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch {
		case o == "":
		case o == "*":
			p.any = true
		case strings.Contains(o, "://*."):
			scheme, host, _ := strings.Cut(o, "://*")
			p.wildcards = append(p.wildcards, wildcardOrigin{prefix: scheme + "://", suffix: host})
		default:
			p.exact[o] = true
		}
	}
	if len(p.exact) == 0 && len(p.wildcards) == 0 {
		p.any = true
	}
	return p
}

func (p corsPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if p.exact[origin] {
		return true
	}
	for _, w := range p.wildcards {
		if strings.HasPrefix(origin, w.prefix) && strings.HasSuffix(origin, w.suffix) &&
			len(origin) > len(w.prefix)+len(w.suffix) {
			return true
		}
	}
	return false
}

// CORS sets CORS headers for the staff console and owner portal. allowedOrigins is "*" or a
// comma-separated list whose entries may use a leading wildcard subdomain.
func CORS(allowedOrigins string) gin.HandlerFunc {
	policy := newCORSPolicy(allowedOrigins)
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case policy.any:
			c.Header("Access-Control-Allow-Origin", "*")
		case policy.allows(origin):
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		default:
			origin = ""
		}
		if policy.any || origin != "" {
			c.Header("Access-Control-Allow-Methods", corsMethods)
			c.Header("Access-Control-Allow-Headers", corsHeaders)
			c.Header("Access-Control-Expose-Headers", corsExposed)
			c.Header("Access-Control-Max-Age", "86400")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
