package ingest

import (
	"sort"
	"strings"
)

// GuessAuthMethod names the authentication scheme implied by the captured
// headers and cookies. Checks run most specific first; the result is a
// human-readable label stored on the credential record.
func GuessAuthMethod(authHeaders, cookies map[string]string) string {
	names := make([]string, 0, len(authHeaders))
	for name := range authHeaders {
		names = append(names, strings.ToLower(name))
	}
	sort.Strings(names)

	for _, v := range authHeaders {
		if strings.HasPrefix(strings.ToLower(v), "bearer ") {
			return "Bearer Token"
		}
	}

	if n := firstMatching(names, func(h string) bool {
		return strings.Contains(h, "api-key") || strings.Contains(h, "apikey") || h == "x-api-key" || h == "x-key"
	}); n != "" {
		return "API Key (" + n + ")"
	}

	if n := firstMatching(names, func(h string) bool {
		return strings.Contains(h, "jwt") || strings.Contains(h, "id-token") || strings.Contains(h, "id_token")
	}); n != "" {
		return "JWT (" + n + ")"
	}

	if v, ok := lookupFold(authHeaders, "authorization"); ok {
		lower := strings.ToLower(v)
		switch {
		case strings.HasPrefix(lower, "basic "):
			return "Basic Auth"
		case strings.HasPrefix(lower, "digest "):
			return "Digest Auth"
		}
		return "Authorization Header"
	}

	if n := firstMatching(names, func(h string) bool {
		return strings.Contains(h, "session") || strings.Contains(h, "csrf") || strings.Contains(h, "xsrf")
	}); n != "" {
		return "Session Token (" + n + ")"
	}

	if firstMatching(names, func(h string) bool { return strings.Contains(h, "amz") }) != "" {
		return "AWS Signature"
	}

	if n := firstMatching(names, func(h string) bool { return strings.Contains(h, "oauth") }); n != "" {
		return "OAuth (" + n + ")"
	}

	if n := firstMatching(names, func(h string) bool {
		return strings.Contains(h, "auth") || strings.Contains(h, "token")
	}); n != "" {
		return "Custom Token (" + n + ")"
	}

	if n := firstMatching(names, func(h string) bool { return strings.HasPrefix(h, "x-") }); n != "" {
		return "Custom Header (" + n + ")"
	}

	// Cookie-based auth: well-known names first, then anything auth-like.
	wellKnown := []string{
		"session", "sessionid", "token", "authtoken", "jwt", "auth",
		"access_token", "accesstoken", "id_token", "refresh_token",
	}
	cookieNames := make([]string, 0, len(cookies))
	for name := range cookies {
		cookieNames = append(cookieNames, name)
	}
	sort.Strings(cookieNames)

	for _, want := range wellKnown {
		for _, c := range cookieNames {
			if strings.ToLower(c) == want {
				return "Cookie-based (" + want + ")"
			}
		}
	}
	for _, c := range cookieNames {
		lower := strings.ToLower(c)
		if strings.Contains(lower, "auth") || strings.Contains(lower, "token") || strings.Contains(lower, "session") {
			return "Cookie-based (" + c + ")"
		}
	}

	return "Unknown (may need login)"
}

// CredentialRecord is the session-state record assembled from a capture and
// handed to the external credential store.
type CredentialRecord struct {
	Service    string            `json:"service"`
	BaseURL    string            `json:"baseUrl"`
	AuthMethod string            `json:"authMethod"`
	Headers    map[string]string `json:"headers,omitempty"`
	Cookies    map[string]string `json:"cookies,omitempty"`
	Context    map[string]string `json:"context,omitempty"`
}

// Auth cookie name patterns worth persisting; everything else is discarded
// so the stored record carries no tracking cookies.
var authCookiePatterns = []string{
	"session", "token", "auth", "jwt", "access", "refresh",
	"csrf", "xsrf", "sid", "id_token",
}

// BuildCredentialRecord assembles the persistable credential record from an
// ingestion result, splitting context identifiers out of the header map and
// dropping non-auth cookies.
func (r *Result) BuildCredentialRecord() CredentialRecord {
	rec := CredentialRecord{
		Service:    r.Service,
		BaseURL:    r.BaseURL,
		AuthMethod: r.AuthMethod,
		Headers:    make(map[string]string),
		Context:    make(map[string]string),
		Cookies:    make(map[string]string),
	}
	for k, v := range r.AuthHeaders {
		rec.Headers[k] = v
	}
	for k, v := range r.ContextHeaders {
		rec.Context[k] = v
	}
	for name, v := range r.Cookies {
		lower := strings.ToLower(name)
		for _, pat := range authCookiePatterns {
			if strings.Contains(lower, pat) {
				rec.Cookies[name] = v
				break
			}
		}
	}
	return rec
}

func firstMatching(names []string, match func(string) bool) string {
	for _, n := range names {
		if match(n) {
			return n
		}
	}
	return ""
}

func lookupFold(m map[string]string, key string) (string, bool) {
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}
