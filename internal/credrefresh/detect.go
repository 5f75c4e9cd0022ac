// Package credrefresh detects token-refresh endpoints in captured traffic
// and keeps managed credentials fresh on a background schedule.
package credrefresh

import (
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// Provider selects the refresh request shape. Firebase wants the API key in
// the URL and a form body; Google token endpoints are form-encoded; generic
// endpoints mirror whatever encoding the capture showed.
type Provider string

const (
	ProviderGeneric  Provider = "generic"
	ProviderGoogle   Provider = "google"
	ProviderFirebase Provider = "firebase"
)

// RefreshConfig describes how to replay a token refresh. Body values are a
// template: real tokens are masked as ${refreshToken} at detection time and
// substituted back at refresh time.
type RefreshConfig struct {
	Endpoint  string            `json:"endpoint"`
	Method    string            `json:"method"`
	Provider  Provider          `json:"provider"`
	Body      map[string]string `json:"body,omitempty"`
	JSONBody  bool              `json:"jsonBody,omitempty"`
	TokenPath string            `json:"tokenPath,omitempty"`
	ExpiresIn int64             `json:"expiresIn,omitempty"`
}

var refreshURLPatterns = []string{
	"/oauth/token",
	"/oauth2/v1/token",
	"/oauth2/v2/token",
	"/oauth2/v3/token",
	"/oauth2/v4/token",
	"/auth/refresh",
	"/auth/token/refresh",
	"/token/refresh",
	"/refresh",
	"/api/auth/refresh",
	"/api/token/refresh",
	"securetoken.googleapis.com",
	"/v1/token",
	"/v2/token",
}

// DetectRefreshEndpoint inspects one POST/PUT exchange. A match requires a
// refresh-looking URL or a refresh_token grant in the request body.
func DetectRefreshEndpoint(rawURL, method, requestBody, responseBody string) (*RefreshConfig, bool) {
	switch strings.ToUpper(method) {
	case "POST", "PUT":
	default:
		return nil, false
	}

	urlLower := strings.ToLower(rawURL)
	isRefreshURL := false
	for _, p := range refreshURLPatterns {
		if strings.Contains(urlLower, p) {
			isRefreshURL = true
			break
		}
	}

	bodyLower := strings.ToLower(requestBody)
	hasRefreshGrant := strings.Contains(bodyLower, "grant_type=refresh_token") ||
		strings.Contains(bodyLower, `"grant_type":"refresh_token"`) ||
		strings.Contains(bodyLower, "refresh_token=")

	if !isRefreshURL && !hasRefreshGrant {
		return nil, false
	}

	cfg := &RefreshConfig{
		Endpoint: rawURL,
		Method:   strings.ToUpper(method),
		Provider: inferProvider(rawURL),
	}
	cfg.TokenPath, cfg.ExpiresIn = tokenInfo(responseBody)
	cfg.Body, cfg.JSONBody = bodyTemplate(requestBody)
	return cfg, true
}

// DetectInitialGrant flags an authorization_code exchange so a refresh
// config can be seeded before any refresh call is observed. The seeded
// template swaps the grant for refresh_token.
func DetectInitialGrant(rawURL, method, requestBody, responseBody string) (*RefreshConfig, bool) {
	switch strings.ToUpper(method) {
	case "POST", "PUT":
	default:
		return nil, false
	}
	bodyLower := strings.ToLower(requestBody)
	if !strings.Contains(bodyLower, "grant_type=authorization_code") &&
		!strings.Contains(bodyLower, `"grant_type":"authorization_code"`) {
		return nil, false
	}

	cfg := &RefreshConfig{
		Endpoint: rawURL,
		Method:   strings.ToUpper(method),
		Provider: inferProvider(rawURL),
	}
	cfg.TokenPath, cfg.ExpiresIn = tokenInfo(responseBody)

	body, isJSON := bodyTemplate(requestBody)
	if body == nil {
		body = make(map[string]string)
	}
	body["grant_type"] = "refresh_token"
	body["refresh_token"] = "${refreshToken}"
	delete(body, "code")
	delete(body, "code_verifier")
	cfg.Body, cfg.JSONBody = body, isJSON
	return cfg, true
}

func inferProvider(rawURL string) Provider {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ProviderGeneric
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case strings.Contains(host, "securetoken.googleapis.com"),
		strings.Contains(host, "identitytoolkit.googleapis.com"):
		return ProviderFirebase
	case strings.Contains(host, "oauth2.googleapis.com"),
		strings.Contains(host, "accounts.google.com"):
		return ProviderGoogle
	}
	return ProviderGeneric
}

// tokenInfo locates the access token field and lifetime in a refresh
// response body.
func tokenInfo(responseBody string) (tokenPath string, expiresIn int64) {
	if responseBody == "" || !gjson.Valid(responseBody) {
		return "", 0
	}
	parsed := gjson.Parse(responseBody)
	for _, path := range []string{"access_token", "token", "id_token"} {
		if parsed.Get(path).Exists() {
			tokenPath = path
			break
		}
	}
	if v := parsed.Get("expires_in"); v.Exists() {
		expiresIn = v.Int()
	} else if v := parsed.Get("expiresIn"); v.Exists() {
		expiresIn = v.Int()
	}
	return tokenPath, expiresIn
}

// bodyTemplate converts the captured request body into a replayable
// template, masking token-bearing values.
func bodyTemplate(requestBody string) (map[string]string, bool) {
	if requestBody == "" {
		return nil, false
	}
	if strings.HasPrefix(strings.TrimSpace(requestBody), "{") {
		if !gjson.Valid(requestBody) {
			return nil, false
		}
		out := make(map[string]string)
		gjson.Parse(requestBody).ForEach(func(key, value gjson.Result) bool {
			k := key.String()
			if strings.Contains(strings.ToLower(k), "token") {
				out[k] = "${refreshToken}"
			} else {
				out[k] = value.String()
			}
			return true
		})
		return out, true
	}
	if !strings.Contains(requestBody, "=") {
		return nil, false
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(requestBody, "&") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(k), "token") {
			out[k] = "${refreshToken}"
		} else {
			out[k] = v
		}
	}
	return out, false
}

// ScanExchanges walks a capture batch front to back and returns the first
// refresh config found, preferring a real refresh call over a seeded
// initial-grant config.
func ScanExchanges(items []ScanItem) (*RefreshConfig, bool) {
	var seeded *RefreshConfig
	for _, it := range items {
		if cfg, ok := DetectRefreshEndpoint(it.URL, it.Method, it.RequestBody, it.ResponseBody); ok {
			return cfg, true
		}
		if seeded == nil {
			if cfg, ok := DetectInitialGrant(it.URL, it.Method, it.RequestBody, it.ResponseBody); ok {
				seeded = cfg
			}
		}
	}
	if seeded != nil {
		return seeded, true
	}
	return nil, false
}

// ScanItem is the minimal exchange slice the detector needs.
type ScanItem struct {
	URL          string
	Method       string
	RequestBody  string
	ResponseBody string
}
