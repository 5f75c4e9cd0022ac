// Package trafficpolicy classifies captured traffic as API-relevant or noise.
//
// All filter data is immutable configuration compiled once into a Policy
// value; callers combine the predicates to decide what enters the catalog.
// Tests may construct a custom Policy to exercise different lists.
package trafficpolicy

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/usestring/apilearn/pkg/contenttype"
)

// Policy holds compiled filter configuration. The zero value is not usable;
// construct with Default or New.
type Policy struct {
	staticExts      map[string]bool
	skipPathPrefix  []string
	skipDomains     []string
	telemetrySubRes []*regexp.Regexp
	telemetryStems  []string
	telemetryRes    []*regexp.Regexp
	authHeaderNames map[string]bool
	authPatterns    []string
	standardHeaders map[string]bool
	contextHeaders  map[string]bool
}

// Options configures a Policy. Empty slices fall back to built-in defaults,
// so tests can override a single list without restating the rest.
type Options struct {
	StaticExtensions  []string
	SkipPathPrefixes  []string
	SkipDomains       []string
	TelemetryStems    []string
	TelemetryPatterns []string
}

// Default returns the built-in policy.
func Default() *Policy {
	return New(Options{})
}

// New compiles a Policy from options, filling gaps with defaults.
func New(opts Options) *Policy {
	exts := opts.StaticExtensions
	if len(exts) == 0 {
		exts = defaultStaticExts
	}
	extSet := make(map[string]bool, len(exts))
	for _, e := range exts {
		extSet[e] = true
	}

	prefixes := opts.SkipPathPrefixes
	if len(prefixes) == 0 {
		prefixes = defaultSkipPaths
	}

	domains := opts.SkipDomains
	if len(domains) == 0 {
		domains = defaultSkipDomains
	}

	stems := opts.TelemetryStems
	if len(stems) == 0 {
		stems = defaultTelemetryStems
	}

	patterns := opts.TelemetryPatterns
	if len(patterns) == 0 {
		patterns = defaultTelemetryPatterns
	}
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		res = append(res, regexp.MustCompile(p))
	}

	subRes := make([]*regexp.Regexp, 0, len(telemetrySubdomainPatterns))
	for _, p := range telemetrySubdomainPatterns {
		subRes = append(subRes, regexp.MustCompile(p))
	}

	return &Policy{
		staticExts:      extSet,
		skipPathPrefix:  prefixes,
		skipDomains:     domains,
		telemetrySubRes: subRes,
		telemetryStems:  stems,
		telemetryRes:    res,
		authHeaderNames: authHeaderNames,
		authPatterns:    authHeaderPatterns,
		standardHeaders: standardHeaders,
		contextHeaders:  contextHeaderNames,
	}
}

// IsStaticAsset reports whether a URL points at a static asset by extension
// or by a known framework path prefix.
func (p *Policy) IsStaticAsset(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	if dot := strings.LastIndex(path, "."); dot != -1 {
		if p.staticExts[path[dot:]] {
			return true
		}
	}
	for _, prefix := range p.skipPathPrefix {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// IsSkippedDomain reports whether a domain belongs to the analytics/ads/CDN
// blocklist or matches a telemetry subdomain pattern.
func (p *Policy) IsSkippedDomain(domain string) bool {
	lower := strings.ToLower(domain)
	for _, skip := range p.skipDomains {
		if strings.Contains(lower, skip) {
			return true
		}
	}
	for _, re := range p.telemetrySubRes {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// IsTelemetryPath reports whether a path looks like a tracking/telemetry
// collector: any segment containing a telemetry stem, or a vendor-specific
// batched-telemetry shape.
func (p *Policy) IsTelemetryPath(path string) bool {
	lower := strings.ToLower(path)
	for _, seg := range strings.Split(lower, "/") {
		if seg == "" {
			continue
		}
		for _, stem := range p.telemetryStems {
			if strings.Contains(seg, stem) {
				return true
			}
		}
	}
	for _, re := range p.telemetryRes {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// IsHTTP2PseudoHeader reports whether a header name is an HTTP/2 pseudo
// header (":method", ":path", ...).
func (p *Policy) IsHTTP2PseudoHeader(name string) bool {
	return strings.HasPrefix(name, ":")
}

// IsAPILike reports whether an exchange looks like an API call rather than a
// page or asset load: JSON content type, a known API path marker, a writing
// method, or an API-style host.
func (p *Policy) IsAPILike(rawURL, method, domain, contentType string) bool {
	if contentType != "" && contenttype.IsJSON(contentType) {
		return true
	}

	lower := strings.ToLower(rawURL)
	for _, marker := range apiPathMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}

	switch method {
	case "POST", "PUT", "DELETE", "PATCH":
		return true
	}

	return strings.Contains(domain, "api.") ||
		strings.Contains(domain, "service") ||
		strings.Contains(domain, "quote") ||
		strings.HasPrefix(domain, "dev-") ||
		strings.HasPrefix(domain, "staging-")
}

// IsAuthHeader reports whether a request header name carries credentials.
// Standard proxy/security headers are excluded even when they contain an
// auth-ish substring.
func (p *Policy) IsAuthHeader(name string) bool {
	lower := strings.ToLower(name)
	if p.standardHeaders[lower] {
		return false
	}
	if p.authHeaderNames[lower] {
		return true
	}
	for _, pat := range p.authPatterns {
		if strings.Contains(lower, pat) {
			return true
		}
	}
	return false
}

// IsContextHeader reports whether a header carries a business identifier
// (tenant/user/org IDs) worth keeping alongside credentials.
func (p *Policy) IsContextHeader(name string) bool {
	return p.contextHeaders[strings.ToLower(name)]
}

// IsStandardHeader reports whether a header is a standard browser/proxy
// header rather than a custom API header.
func (p *Policy) IsStandardHeader(name string) bool {
	return p.standardHeaders[strings.ToLower(name)]
}

// RootDomain returns the registrable suffix of a domain
// ("api.example.com" -> "example.com").
func RootDomain(domain string) string {
	parts := strings.Split(domain, ".")
	if len(parts) >= 2 {
		return strings.Join(parts[len(parts)-2:], ".")
	}
	return domain
}

// SameRootDomain reports whether two domains share a registrable root.
func SameRootDomain(a, b string) bool {
	return RootDomain(a) == RootDomain(b)
}

var serviceTLDPattern = regexp.MustCompile(`\.(com|org|net|co|io|ai|app|sg|dev|xyz|gg|fm|tv|me|so|to)\.?$`)

// ServiceName derives a short service identifier from a domain
// ("api.github.com" -> "github").
func ServiceName(domain string) string {
	name := domain
	for _, prefix := range []string{"www.", "api.", "app.", "m."} {
		name = strings.TrimPrefix(name, prefix)
	}
	name = serviceTLDPattern.ReplaceAllString(name, "")
	name = strings.ToLower(strings.ReplaceAll(name, ".", "-"))
	if name == "" {
		return "unknown-api"
	}
	return name
}

// IsHTMLContentType reports whether a content type is an HTML page.
func IsHTMLContentType(ct string) bool {
	return contenttype.Classify(ct) == contenttype.HTML
}
