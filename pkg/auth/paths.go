package auth

import (
	"path"
	"strings"
)

var publicPaths = map[string]bool{
	"/login":                     true,
	"/auth/login":                true,
	"/auth/logout":               true,
	"/auth/check":                true,
	"/healthz":                   true,
	"/readyz":                    true,
	"/api/version":               true,
	"/api/contract":              true,
	"/tokens/register-with-code": true,
}

var publicPrefixes = []string{"/guest/", "/install/", "/swagger/"}

var staticSuffixes = map[string]bool{
	".js": true, ".css": true, ".png": true, ".jpg": true, ".jpeg": true,
	".gif": true, ".svg": true, ".ico": true, ".woff": true, ".woff2": true,
	".ttf": true, ".map": true, ".webp": true,
}

// apiPrefixes mark paths whose denials are answered with problem+json
// instead of a login redirect.
var apiPrefixes = []string{
	"/api/", "/sessions", "/events", "/tokens", "/admin/",
	"/guest-links", "/share-token", "/agents", "/metrics",
}

// IsPublicPath reports whether p needs no credential.
func IsPublicPath(p string) bool {
	if publicPaths[p] {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// IsStaticPath reports whether p names a static asset.
func IsStaticPath(p string) bool {
	return staticSuffixes[strings.ToLower(path.Ext(p))]
}

// IsAPIPath reports whether p belongs to the JSON API.
func IsAPIPath(p string) bool {
	for _, prefix := range apiPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}
