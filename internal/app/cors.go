package app

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-contrib/cors"
)

// extractOriginHost returns the "host[:port]" portion of an origin URL.
func extractOriginHost(origin string) string {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return origin
	}
	return u.Host
}

// matchOriginPattern reports whether host matches the given wildcard pattern.
func matchOriginPattern(pattern, host string) bool {
	if pattern == host {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[1:]
		return strings.HasSuffix(host, suffix)
	}
	if strings.HasSuffix(pattern, ":*") {
		prefix := pattern[:len(pattern)-1]
		return strings.HasPrefix(host, prefix)
	}
	return false
}

// originMatcher allows every origin when patterns is empty.
func originMatcher(patterns []string) func(origin string) bool {
	if len(patterns) == 0 {
		return func(string) bool { return true }
	}
	return func(origin string) bool {
		host := extractOriginHost(origin)
		for _, pattern := range patterns {
			if matchOriginPattern(extractOriginHost(pattern), host) {
				return true
			}
		}
		return false
	}
}

func corsMiddlewareConfig(allow func(string) bool) cors.Config {
	return cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Last-Event-ID"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		AllowOriginFunc:  allow,
	}
}

// websocketOriginCheck applies the CORS origin list to WebSocket upgrades,
// which browsers do not preflight. Requests without Origin are non-browser
// clients and pass.
func websocketOriginCheck(allow func(string) bool) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allow(origin)
	}
}
