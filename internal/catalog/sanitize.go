package catalog

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/usestring/apilearn/internal/ingest"
)

var (
	bearerTokenPattern = regexp.MustCompile(`(?i)^bearer\s+\S+$`)
	longKeyPattern     = regexp.MustCompile(`^[A-Za-z0-9\-_\.]{20,}$`)

	// Query parameters whose values are secrets regardless of shape.
	secretQueryKeys = map[string]bool{
		"key":          true,
		"apikey":       true,
		"api_key":      true,
		"token":        true,
		"access_token": true,
		"auth":         true,
		"signature":    true,
		"sig":          true,
	}
)

// RedactValue replaces credential-shaped values with placeholders. Bearer
// values keep their scheme so the consumer knows what to substitute.
func RedactValue(v string) string {
	if bearerTokenPattern.MatchString(v) {
		return "Bearer ${TOKEN}"
	}
	if longKeyPattern.MatchString(v) {
		return "${API_KEY}"
	}
	return v
}

// SanitizeRecord returns a copy of rec with every header and cookie value
// redacted. Context headers are kept verbatim since they carry no secrets.
func SanitizeRecord(rec *ingest.CredentialRecord) *ingest.CredentialRecord {
	out := &ingest.CredentialRecord{
		Service:    rec.Service,
		BaseURL:    rec.BaseURL,
		AuthMethod: rec.AuthMethod,
		Headers:    make(map[string]string, len(rec.Headers)),
		Cookies:    make(map[string]string, len(rec.Cookies)),
		Context:    make(map[string]string, len(rec.Context)),
	}
	for k, v := range rec.Headers {
		out.Headers[k] = RedactValue(v)
	}
	for k := range rec.Cookies {
		out.Cookies[k] = "${COOKIE}"
	}
	for k, v := range rec.Context {
		out.Context[k] = v
	}
	return out
}

// SanitizeURL redacts secret-bearing query parameters from a concrete URL
// so example URLs are safe to publish.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	changed := false
	for k := range q {
		if secretQueryKeys[strings.ToLower(k)] {
			q.Set(k, "${"+k+"}")
			changed = true
		}
	}
	if !changed {
		return raw
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Sanitized returns a copy of the catalog with example URLs redacted.
// Schemas and templates carry no credential material and are shared as is.
func (c *Catalog) Sanitized() *Catalog {
	out := &Catalog{Service: c.Service, BaseURL: c.BaseURL, Groups: make([]*EndpointGroup, len(c.Groups))}
	for i, g := range c.Groups {
		cp := *g
		cp.ExampleURL = SanitizeURL(g.ExampleURL)
		out.Groups[i] = &cp
	}
	return out
}
