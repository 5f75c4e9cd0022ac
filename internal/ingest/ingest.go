// Package ingest walks captured exchanges and builds the raw material for
// the endpoint catalog: surviving exchanges, auth/cookie signals, and
// per-fingerprint schema samples.
package ingest

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/usestring/apilearn/internal/harlog"
	"github.com/usestring/apilearn/internal/routes"
	"github.com/usestring/apilearn/internal/trafficpolicy"
	"github.com/usestring/apilearn/pkg/graphql"
	"github.com/usestring/apilearn/pkg/jsonschema"
)

// SchemaCapture accumulates structural samples for one fingerprint.
type SchemaCapture struct {
	Fingerprint   routes.Fingerprint
	QueryParams   map[string]routes.ParamType
	RequestShape  *jsonschema.Shape
	ResponseShape *jsonschema.Shape
	Examples      int
}

// Result is the output of one ingestion pass over a capture.
type Result struct {
	// Exchanges are the surviving entries, original capture indices intact.
	Exchanges []harlog.Exchange
	// EffectivePaths maps exchange index to the path used for grouping
	// (GraphQL operations get a "#operationName" suffix).
	EffectivePaths map[int]string
	// Fingerprints maps exchange index to its fingerprint key.
	Fingerprints map[int]routes.Fingerprint

	AuthHeaders    map[string]string
	ContextHeaders map[string]string
	Cookies        map[string]string
	// AuthInfo records provenance-keyed auth signals
	// ("request_header_authorization", "response_setcookie_session", ...).
	AuthInfo map[string]string

	Schemas map[string]*SchemaCapture

	Service    string
	BaseURL    string
	AuthMethod string
	Domains    []string
}

// Ingester filters captured exchanges and extracts auth and schema signals.
type Ingester struct {
	policy *trafficpolicy.Policy
	log    *slog.Logger
}

// New creates an Ingester with the given filter policy. A nil policy uses
// the built-in default.
func New(policy *trafficpolicy.Policy) *Ingester {
	if policy == nil {
		policy = trafficpolicy.Default()
	}
	return &Ingester{policy: policy, log: slog.Default()}
}

// Ingest runs the filter pipeline over exchanges. seedURL, when non-empty,
// anchors the target site: domains sharing its registrable root are kept
// even when they appear in the skip lists.
func (ing *Ingester) Ingest(exchanges []harlog.Exchange, seedURL string) *Result {
	res := &Result{
		EffectivePaths: make(map[int]string),
		Fingerprints:   make(map[int]routes.Fingerprint),
		AuthHeaders:    make(map[string]string),
		ContextHeaders: make(map[string]string),
		Cookies:        make(map[string]string),
		AuthInfo:       make(map[string]string),
		Schemas:        make(map[string]*SchemaCapture),
	}

	seedDomain := ""
	if seedURL != "" {
		if u, err := url.Parse(seedURL); err == nil {
			seedDomain = u.Hostname()
		}
	}

	domainCounts := make(map[string]int)

	for i := range exchanges {
		ex := &exchanges[i]
		if !ing.keep(ex, seedDomain) {
			continue
		}

		u, err := url.Parse(ex.URL)
		if err != nil {
			continue
		}
		domain := u.Hostname()
		domainCounts[domain]++

		ing.collectAuth(ex, res)

		effPath := effectivePath(u, ex.RequestBody)
		queryKeys := make([]string, 0, 4)
		queryVals := u.Query()
		for key := range queryVals {
			queryKeys = append(queryKeys, key)
		}
		fp := routes.ComputeParts(ex.Method, effPath, queryKeys, ex.RequestBody)

		res.Exchanges = append(res.Exchanges, *ex)
		res.EffectivePaths[ex.Index] = effPath
		res.Fingerprints[ex.Index] = fp

		ing.captureSchemas(res, fp, queryVals, ex)
	}

	for d := range domainCounts {
		res.Domains = append(res.Domains, d)
	}
	res.Service, res.BaseURL = electService(domainCounts, seedDomain, seedURL)
	res.AuthMethod = GuessAuthMethod(res.AuthHeaders, res.Cookies)

	ing.log.Debug("ingested capture",
		slog.Int("total", len(exchanges)),
		slog.Int("kept", len(res.Exchanges)),
		slog.String("service", res.Service),
	)
	return res
}

// keep applies the skip rules in cheap-to-expensive order.
func (ing *Ingester) keep(ex *harlog.Exchange, seedDomain string) bool {
	if strings.HasPrefix(ex.URL, "data:") || strings.HasPrefix(ex.URL, "blob:") {
		return false
	}
	if ex.Method == "OPTIONS" {
		return false
	}
	if ing.policy.IsStaticAsset(ex.URL) {
		return false
	}

	u, err := url.Parse(ex.URL)
	if err != nil || u.Hostname() == "" {
		return false
	}
	domain := u.Hostname()

	if ing.policy.IsSkippedDomain(domain) {
		// Seed-related domains survive the blocklist: a site may host its
		// API on a subdomain that pattern-matches a telemetry name.
		if seedDomain == "" || !trafficpolicy.SameRootDomain(domain, seedDomain) {
			return false
		}
	}

	if ing.policy.IsTelemetryPath(u.Path) {
		return false
	}

	// GET pages (HTML responses) are navigations, not API calls.
	if ex.Method == "GET" && trafficpolicy.IsHTMLContentType(ex.ContentType()) {
		return false
	}

	return true
}

// collectAuth pulls credential and context signals from one exchange into
// the running maps. Later exchanges overwrite earlier values: the freshest
// token wins.
func (ing *Ingester) collectAuth(ex *harlog.Exchange, res *Result) {
	for _, h := range ex.RequestHeaders {
		name := strings.ToLower(h.Name)
		if ing.policy.IsHTTP2PseudoHeader(name) {
			continue
		}
		switch {
		case ing.policy.IsContextHeader(name):
			res.ContextHeaders[name] = h.Value
			res.AuthInfo["request_header_"+name] = h.Value
		case ing.policy.IsAuthHeader(name):
			res.AuthHeaders[name] = h.Value
			res.AuthInfo["request_header_"+name] = h.Value
		case strings.HasPrefix(name, "x-") && !ing.policy.IsStandardHeader(name) && h.Value != "":
			if _, seen := res.AuthInfo["request_header_"+name]; !seen {
				res.AuthInfo["request_header_"+name] = h.Value
			}
		}
	}

	for _, c := range ex.RequestCookies {
		res.Cookies[c.Name] = c.Value
		res.AuthInfo["request_cookie_"+c.Name] = c.Value
	}

	// Set-Cookie values are never comma-split: expiry dates contain commas.
	for _, sc := range harlog.HeaderValues(ex.ResponseHeaders, "set-cookie") {
		name, value, ok := splitSetCookie(sc)
		if ok {
			res.AuthInfo["response_setcookie_"+name] = value
		}
	}
}

// splitSetCookie extracts the name and value from a Set-Cookie header.
func splitSetCookie(sc string) (name, value string, ok bool) {
	eq := strings.Index(sc, "=")
	if eq <= 0 {
		return "", "", false
	}
	name = strings.TrimSpace(sc[:eq])
	rest := sc[eq+1:]
	if semi := strings.Index(rest, ";"); semi != -1 {
		rest = rest[:semi]
	}
	value = strings.TrimSpace(rest)
	return name, value, name != "" && value != ""
}

func (ing *Ingester) captureSchemas(res *Result, fp routes.Fingerprint, query url.Values, ex *harlog.Exchange) {
	key := fp.String()
	cap, exists := res.Schemas[key]
	if !exists {
		cap = &SchemaCapture{
			Fingerprint: fp,
			QueryParams: make(map[string]routes.ParamType),
		}
		res.Schemas[key] = cap
	}
	cap.Examples++

	for name, vals := range query {
		if _, seen := cap.QueryParams[name]; !seen && len(vals) > 0 {
			cap.QueryParams[name] = routes.ClassifyValue(vals[0])
		}
	}

	if body := strings.TrimSpace(ex.RequestBody); body != "" {
		if shape := jsonschema.Infer([]byte(body)); shape != nil {
			cap.RequestShape = mergeShapes(cap.RequestShape, shape)
		}
	}
	if body := strings.TrimSpace(ex.ResponseBody); body != "" && gjson.Valid(body) {
		if shape := jsonschema.Infer([]byte(body)); shape != nil {
			cap.ResponseShape = mergeShapes(cap.ResponseShape, shape)
		}
	}
}

func mergeShapes(existing, next *jsonschema.Shape) *jsonschema.Shape {
	if existing == nil {
		return next
	}
	// Shape.Infer merges internally; re-merging via FromValue is not
	// possible without the raw value, so fold through Infer's merge rules.
	return jsonschema.Merge(existing, next)
}

// effectivePath returns the grouping path for an exchange. GraphQL-shaped
// calls get "#operationName" appended so distinct operations sharing one
// HTTP path do not collapse into a single group.
func effectivePath(u *url.URL, body string) string {
	path := u.Path
	op := graphqlOperation(u, body)
	if op != "" {
		return path + "#" + op
	}
	return path
}

func graphqlOperation(u *url.URL, body string) string {
	isGraphQL := strings.Contains(u.Path, "/graphql")
	isQueryPath := strings.HasSuffix(u.Path, "/query")
	if !isGraphQL && !isQueryPath {
		return ""
	}
	if op := u.Query().Get("operationName"); op != "" {
		return op
	}
	if body != "" {
		if op := gjson.Get(body, "operationName"); op.Exists() && op.String() != "" {
			return op.String()
		}
		// No explicit operationName. Parse the query text itself so that
		// unnamed-but-distinct operations still separate.
		if graphql.IsGraphQLBody([]byte(body)) {
			if parsed, err := graphql.ParseRequestBody([]byte(body)); err == nil && len(parsed.Operations) > 0 {
				first := parsed.Operations[0]
				if first.Name != "" && first.Name != "anonymous" {
					return first.Name
				}
			}
		}
	}
	// A bare GraphQL-ish path without a resolvable operation name stays
	// ungrouped by operation.
	return ""
}

// electService picks the service name and base URL from observed domains,
// preferring an API-styled domain that shares the seed's root.
func electService(domainCounts map[string]int, seedDomain, seedURL string) (string, string) {
	seedBase := ""
	if seedURL != "" {
		if u, err := url.Parse(seedURL); err == nil && u.Hostname() != "" {
			seedBase = u.Scheme + "://" + u.Hostname()
		}
	}

	bestAPI, bestCount := "", 0
	for d, n := range domainCounts {
		if strings.Contains(d, "api.") || strings.Contains(d, "quote") ||
			strings.Contains(d, "service") || strings.HasPrefix(d, "dev-") {
			if n > bestCount {
				bestAPI, bestCount = d, n
			}
		}
	}

	switch {
	case bestAPI != "" && seedDomain != "" && trafficpolicy.SameRootDomain(bestAPI, seedDomain):
		return trafficpolicy.ServiceName(seedDomain), "https://" + bestAPI
	case seedDomain != "" && seedBase != "":
		return trafficpolicy.ServiceName(seedDomain), seedBase
	}

	mainDomain, mainCount := "", 0
	for d, n := range domainCounts {
		if n > mainCount {
			mainDomain, mainCount = d, n
		}
	}
	if mainDomain != "" {
		return trafficpolicy.ServiceName(mainDomain), "https://" + mainDomain
	}
	return "unknown-api", "https://api.example.com"
}
