// Package headerprofile aggregates the headers a site actually sends into a
// per-domain template, so replayed requests blend in with captured traffic.
package headerprofile

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/usestring/apilearn/internal/harlog"
	"github.com/usestring/apilearn/internal/trafficpolicy"
)

// Version tags the profile wire format.
const Version = 1

// HeaderCategory labels why a header is in the profile.
type HeaderCategory string

const (
	CategoryAuth     HeaderCategory = "auth"
	CategoryContext  HeaderCategory = "context"
	CategoryStandard HeaderCategory = "standard"
	CategoryCustom   HeaderCategory = "custom"
)

// HeaderInfo is one common header observed on a domain.
type HeaderInfo struct {
	Value     string         `json:"value"`
	Category  HeaderCategory `json:"category"`
	SeenCount int            `json:"seenCount"`
}

// DomainProfile is the per-domain header template.
type DomainProfile struct {
	CommonHeaders map[string]*HeaderInfo `json:"commonHeaders"`
	RequestCount  int                    `json:"requestCount"`
}

// Profile is the full export: domain templates plus per-endpoint overrides
// keyed as "METHOD /path".
type Profile struct {
	Version           int                          `json:"version"`
	Domains           map[string]*DomainProfile    `json:"domains"`
	EndpointOverrides map[string]map[string]string `json:"endpointOverrides,omitempty"`
}

// commonThreshold keeps a header only when at least this fraction of a
// domain's requests carried it.
const commonThreshold = 0.5

// Build aggregates request headers across a capture batch.
func Build(exchanges []harlog.Exchange, policy *trafficpolicy.Policy) *Profile {
	if policy == nil {
		policy = trafficpolicy.Default()
	}

	type counter struct {
		values map[string]int
		total  int
	}
	perDomain := make(map[string]map[string]*counter)
	requestCount := make(map[string]int)

	for i := range exchanges {
		ex := &exchanges[i]
		u, err := url.Parse(ex.URL)
		if err != nil {
			continue
		}
		domain := strings.ToLower(u.Hostname())
		if domain == "" {
			continue
		}
		requestCount[domain]++
		if perDomain[domain] == nil {
			perDomain[domain] = make(map[string]*counter)
		}
		for _, h := range ex.RequestHeaders {
			if policy.IsHTTP2PseudoHeader(h.Name) {
				continue
			}
			name := strings.ToLower(h.Name)
			if name == "cookie" || name == "content-length" || name == "host" {
				continue
			}
			c := perDomain[domain][name]
			if c == nil {
				c = &counter{values: make(map[string]int)}
				perDomain[domain][name] = c
			}
			c.values[h.Value]++
			c.total++
		}
	}

	p := &Profile{Version: Version, Domains: make(map[string]*DomainProfile)}
	for domain, headers := range perDomain {
		dp := &DomainProfile{
			CommonHeaders: make(map[string]*HeaderInfo),
			RequestCount:  requestCount[domain],
		}
		for name, c := range headers {
			if float64(c.total) < commonThreshold*float64(dp.RequestCount) {
				continue
			}
			dp.CommonHeaders[name] = &HeaderInfo{
				Value:     dominantValue(c.values),
				Category:  categorize(name, policy),
				SeenCount: c.total,
			}
		}
		p.Domains[domain] = dp
	}
	return p
}

func dominantValue(values map[string]int) string {
	keys := make([]string, 0, len(values))
	for v := range values {
		keys = append(keys, v)
	}
	sort.Slice(keys, func(i, j int) bool {
		if values[keys[i]] != values[keys[j]] {
			return values[keys[i]] > values[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

func categorize(name string, policy *trafficpolicy.Policy) HeaderCategory {
	switch {
	case policy.IsAuthHeader(name):
		return CategoryAuth
	case policy.IsContextHeader(name):
		return CategoryContext
	case policy.IsStandardHeader(name):
		return CategoryStandard
	}
	return CategoryCustom
}

// SetOverride records endpoint-specific headers under "METHOD /path".
func (p *Profile) SetOverride(method, path string, headers map[string]string) {
	if p.EndpointOverrides == nil {
		p.EndpointOverrides = make(map[string]map[string]string)
	}
	p.EndpointOverrides[method+" "+path] = headers
}

// HeadersFor resolves the template headers for one call: the domain's
// common headers overlaid with any endpoint override.
func (p *Profile) HeadersFor(domain, method, path string) map[string]string {
	out := make(map[string]string)
	if dp, ok := p.Domains[strings.ToLower(domain)]; ok {
		for name, info := range dp.CommonHeaders {
			out[name] = info.Value
		}
	}
	if override, ok := p.EndpointOverrides[method+" "+path]; ok {
		for name, v := range override {
			out[strings.ToLower(name)] = v
		}
	}
	return out
}

// Marshal renders the profile for persistence.
func (p *Profile) Marshal() ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

// Load parses and validates a persisted profile. Validation failures carry
// the instance paths that failed so a hand-edited profile is debuggable.
func Load(data []byte) (*Profile, error) {
	if errs := validateProfile(data); len(errs) > 0 {
		return nil, fmt.Errorf("header profile invalid: %s", strings.Join(errs, "; "))
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse header profile: %w", err)
	}
	if p.Version != Version {
		return nil, fmt.Errorf("header profile version %d not supported", p.Version)
	}
	return &p, nil
}
