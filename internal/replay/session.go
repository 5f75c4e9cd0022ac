// Package replay executes catalogued endpoints and planned chains against
// the live service, carrying session state between steps the way a browser
// would.
package replay

import (
	"net/http"
	"sort"
	"strings"
	"time"
)

// HeaderBag is a case-normalized header set with explicit merge precedence:
// template < endpoint override < auth < cookie. Names are lowercased.
type HeaderBag map[string]string

// NewHeaderBag copies src into a normalized bag.
func NewHeaderBag(src map[string]string) HeaderBag {
	b := make(HeaderBag, len(src))
	for k, v := range src {
		b[strings.ToLower(k)] = v
	}
	return b
}

// Overlay returns a copy with other's entries winning on conflict.
func (b HeaderBag) Overlay(other HeaderBag) HeaderBag {
	out := make(HeaderBag, len(b)+len(other))
	for k, v := range b {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Without returns a copy dropping the named headers.
func (b HeaderBag) Without(names ...string) HeaderBag {
	out := make(HeaderBag, len(b))
	for k, v := range b {
		out[k] = v
	}
	for _, n := range names {
		delete(out, strings.ToLower(n))
	}
	return out
}

// CookieJar maps cookie names to values for one session.
type CookieJar map[string]string

// Apply folds Set-Cookie values into the jar. Max-Age=0 and past Expires
// are deletions, matching browser behavior.
func (j CookieJar) Apply(setCookies []string, now time.Time) {
	for _, sc := range setCookies {
		name, value, attrs, ok := parseSetCookie(sc)
		if !ok {
			continue
		}
		if isDeletion(attrs, now) {
			delete(j, name)
			continue
		}
		j[name] = value
	}
}

// HeaderValue renders the jar as a single Cookie header, sorted for
// determinism.
func (j CookieJar) HeaderValue() string {
	if len(j) == 0 {
		return ""
	}
	names := make([]string, 0, len(j))
	for n := range j {
		names = append(names, n)
	}
	sort.Strings(names)
	var sb strings.Builder
	for i, n := range names {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(n)
		sb.WriteByte('=')
		sb.WriteString(j[n])
	}
	return sb.String()
}

func parseSetCookie(sc string) (name, value string, attrs map[string]string, ok bool) {
	parts := strings.Split(sc, ";")
	if len(parts) == 0 {
		return "", "", nil, false
	}
	name, value, ok = strings.Cut(strings.TrimSpace(parts[0]), "=")
	if !ok || name == "" {
		return "", "", nil, false
	}
	attrs = make(map[string]string)
	for _, p := range parts[1:] {
		k, v, _ := strings.Cut(strings.TrimSpace(p), "=")
		attrs[strings.ToLower(k)] = v
	}
	return name, value, attrs, true
}

func isDeletion(attrs map[string]string, now time.Time) bool {
	if ma, ok := attrs["max-age"]; ok {
		ma = strings.TrimSpace(ma)
		if ma == "0" || strings.HasPrefix(ma, "-") {
			return true
		}
	}
	if exp, ok := attrs["expires"]; ok {
		if t, err := http.ParseTime(strings.TrimSpace(exp)); err == nil && t.Before(now) {
			return true
		}
	}
	return false
}

// sessionResponseHeaders are promoted from responses into the running
// session and echoed back on subsequent requests in the same chain.
var sessionResponseHeaders = map[string]string{
	"x-csrf-token":     "x-csrf-token",
	"x-xsrf-token":     "x-xsrf-token",
	"csrf-token":       "csrf-token",
	"x-session-id":     "x-session-id",
	"x-session-token":  "x-session-token",
	"x-request-id":     "x-request-id",
	"x-correlation-id": "x-correlation-id",
}

// Session is the mutable state one chain execution owns. Concurrent chains
// must each work on their own Snapshot.
type Session struct {
	Headers HeaderBag
	Cookies CookieJar
}

func NewSession() *Session {
	return &Session{Headers: make(HeaderBag), Cookies: make(CookieJar)}
}

// Snapshot deep-copies the session so another chain can diverge safely.
func (s *Session) Snapshot() *Session {
	out := NewSession()
	for k, v := range s.Headers {
		out.Headers[k] = v
	}
	for k, v := range s.Cookies {
		out.Cookies[k] = v
	}
	return out
}

// Absorb captures a response's cookies and session-relevant headers.
func (s *Session) Absorb(respHeaders map[string]string, setCookies []string, now time.Time) {
	s.Cookies.Apply(setCookies, now)
	for name, value := range respHeaders {
		lower := strings.ToLower(name)
		if reqName, ok := sessionResponseHeaders[lower]; ok && value != "" {
			s.Headers[reqName] = value
		}
	}
}
