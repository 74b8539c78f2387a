package security

import (
	"fmt"
	"net/http"
	"strings"
)

// ScriptOrigins are the CDNs the dashboard loads htmx and Chart.js from.
var ScriptOrigins = []string{"https://unpkg.com", "https://cdn.jsdelivr.net"}

// HeadersConfig holds security headers configuration. Empty values are not sent.
type HeadersConfig struct {
	// ScriptOrigins are allowed in script-src next to 'self'.
	ScriptOrigins []string

	// HSTSMaxAge in seconds; sent only over TLS. Zero disables HSTS.
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool

	FrameOptions      string
	ReferrerPolicy    string
	PermissionsPolicy string
	CrossOriginOpener string
	// CrossOriginEmbedder stays unset by default: require-corp blocks the
	// CDN scripts.
	CrossOriginEmbedder string
}

// DefaultHeadersConfig returns the dashboard's policy.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		ScriptOrigins:         ScriptOrigins,
		HSTSMaxAge:            31536000, // 1 year
		HSTSIncludeSubdomains: true,
		FrameOptions:          "DENY",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		PermissionsPolicy:     "geolocation=(), microphone=(), camera=(), payment=()",
		CrossOriginOpener:     "same-origin",
	}
}

// ContentSecurityPolicy renders the CSP for c. Inline styles stay allowed
// because htmx injects its indicator styles.
func (c HeadersConfig) ContentSecurityPolicy() string {
	directives := [][2]string{
		{"default-src", "'self'"},
		{"script-src", strings.TrimSpace("'self' " + strings.Join(c.ScriptOrigins, " "))},
		{"style-src", "'self' 'unsafe-inline'"},
		{"img-src", "'self' data:"},
		{"connect-src", "'self'"},
		{"object-src", "'none'"},
		{"frame-ancestors", "'none'"},
		{"base-uri", "'self'"},
		{"form-action", "'self'"},
	}
	parts := make([]string, len(directives))
	for i, d := range directives {
		parts[i] = d[0] + " " + d[1]
	}
	return strings.Join(parts, "; ")
}

// HeadersMiddleware applies security headers to responses
type HeadersMiddleware struct {
	static http.Header
	hsts   string
}

// NewHeadersMiddleware renders the header set once.
func NewHeadersMiddleware(config HeadersConfig) *HeadersMiddleware {
	static := make(http.Header)
	set := func(name, value string) {
		if value != "" {
			static.Set(name, value)
		}
	}
	set("Content-Security-Policy", config.ContentSecurityPolicy())
	set("X-Content-Type-Options", "nosniff")
	set("X-Frame-Options", config.FrameOptions)
	set("Referrer-Policy", config.ReferrerPolicy)
	set("Permissions-Policy", config.PermissionsPolicy)
	set("Cross-Origin-Opener-Policy", config.CrossOriginOpener)
	set("Cross-Origin-Embedder-Policy", config.CrossOriginEmbedder)

	hsts := ""
	if config.HSTSMaxAge > 0 {
		hsts = fmt.Sprintf("max-age=%d", config.HSTSMaxAge)
		if config.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
	}
	return &HeadersMiddleware{static: static, hsts: hsts}
}

// Middleware returns the HTTP middleware function
func (h *HeadersMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		for name, values := range h.static {
			headers[name] = append([]string(nil), values...)
		}
		if r.TLS != nil && h.hsts != "" {
			headers.Set("Strict-Transport-Security", h.hsts)
		}
		next.ServeHTTP(w, r)
	})
}

// StaticAssetMiddleware lets browsers cache embedded assets for maxAge
// seconds. The files are not content-hashed, so they are not marked immutable.
func StaticAssetMiddleware(maxAge int) func(http.Handler) http.Handler {
	value := fmt.Sprintf("public, max-age=%d", maxAge)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxAge > 0 {
				w.Header().Set("Cache-Control", value)
			}
			next.ServeHTTP(w, r)
		})
	}
}
