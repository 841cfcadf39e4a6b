package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy defines the CORS headers to emit for matching origins.
// AllowedOrigins entries may be exact origins, "*", or a subdomain wildcard
// such as "https://*.example.com".
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

var (
	defaultCORSMethods = []string{http.MethodGet, http.MethodHead, http.MethodPost}
	// Headers this package itself sets on responses.
	defaultExposedHeaders = []string{RequestIDHeader, "Retry-After"}
)

type corsRules struct {
	origins     []string
	methods     map[string]bool
	allowMethod string
	allowHeader string
	expose      string
	maxAge      string
	credentials bool
}

func compileCORS(cfg CORSPolicy) corsRules {
	methods := normalizeList(cfg.AllowedMethods)
	if len(methods) == 0 {
		methods = append([]string(nil), defaultCORSMethods...)
	}
	rules := corsRules{
		origins:     normalizeList(cfg.AllowedOrigins),
		methods:     map[string]bool{http.MethodOptions: true},
		allowHeader: strings.Join(mergeHeaders(nil, cfg.AllowedHeaders), ", "),
		expose:      strings.Join(mergeHeaders(defaultExposedHeaders, cfg.ExposedHeaders), ", "),
		credentials: cfg.AllowCredentials,
	}
	for i, m := range methods {
		methods[i] = strings.ToUpper(m)
		rules.methods[methods[i]] = true
	}
	rules.allowMethod = strings.Join(methods, ", ")
	if secs := int(cfg.MaxAge.Seconds()); secs > 0 {
		rules.maxAge = strconv.Itoa(secs)
	}
	return rules
}

// WithCORS answers preflight requests and decorates responses for allowed
// origins. Preflights asking for a method outside the policy get 403.
// With no AllowedOrigins it is a no-op.
func WithCORS(cfg CORSPolicy) Middleware {
	if len(normalizeList(cfg.AllowedOrigins)) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	rules := compileCORS(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			headers := w.Header()
			headers.Add("Vary", "Origin")

			allowOrigin, ok := rules.match(origin)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			headers.Set("Access-Control-Allow-Origin", allowOrigin)
			if rules.credentials {
				headers.Set("Access-Control-Allow-Credentials", "true")
			}

			requested := r.Header.Get("Access-Control-Request-Method")
			if r.Method != http.MethodOptions || requested == "" {
				if rules.expose != "" {
					headers.Set("Access-Control-Expose-Headers", rules.expose)
				}
				next.ServeHTTP(w, r)
				return
			}

			headers.Add("Vary", "Access-Control-Request-Method")
			headers.Add("Vary", "Access-Control-Request-Headers")
			if !rules.methods[strings.ToUpper(requested)] {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			headers.Set("Access-Control-Allow-Methods", rules.allowMethod)
			if rules.allowHeader != "" {
				headers.Set("Access-Control-Allow-Headers", rules.allowHeader)
			}
			if rules.maxAge != "" {
				headers.Set("Access-Control-Max-Age", rules.maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func (c corsRules) match(origin string) (string, bool) {
	for _, candidate := range c.origins {
		switch {
		case candidate == "*":
			if c.credentials {
				return origin, true
			}
			return "*", true
		case strings.EqualFold(candidate, origin):
			return origin, true
		case strings.Contains(candidate, "://*."):
			scheme, suffix, _ := strings.Cut(candidate, "*")
			lower := strings.ToLower(origin)
			if strings.HasPrefix(lower, strings.ToLower(scheme)) &&
				strings.HasSuffix(lower, strings.ToLower(suffix)) &&
				len(lower) > len(scheme)+len(suffix) {
				return origin, true
			}
		}
	}
	return "", false
}

// mergeHeaders appends extra to base in canonical form, dropping duplicates.
func mergeHeaders(base, extra []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(base)+len(extra))
	for _, h := range append(append([]string{}, base...), normalizeList(extra)...) {
		canon := http.CanonicalHeaderKey(h)
		if seen[canon] {
			continue
		}
		seen[canon] = true
		out = append(out, canon)
	}
	return out
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
