// Package rank orders catalogued endpoints against a natural-language
// intent, combining a BM25 relevance term with structural signals about
// how API-shaped and reliable an endpoint is.
package rank

import (
	"math"
	"net/url"
	"sort"
	"strings"

	"github.com/usestring/apilearn/internal/catalog"
	"github.com/usestring/apilearn/internal/trafficpolicy"
)

// BM25 parameters, standard Robertson defaults.
const (
	bm25K1 = 1.2
	bm25B  = 0.75

	// relevanceWeight scales the BM25 term so lexical matches dominate
	// the structural bonuses when the intent actually names the data.
	relevanceWeight = 20
)

// Result pairs an endpoint with its score breakdown.
type Result struct {
	Group      *catalog.EndpointGroup
	Score      float64
	Relevance  float64 // weighted BM25 component
	Structural float64 // bonuses minus penalties
}

// Options tunes ranking. The zero value is usable.
type Options struct {
	// Policy supplies the noise lists; nil uses the defaults.
	Policy *trafficpolicy.Policy
	// DOMCapable reports whether a browser extraction path exists for an
	// endpoint. Nil means no DOM capability at all.
	DOMCapable func(*catalog.EndpointGroup) bool
}

// Ranker scores endpoints for one capture batch. Build one per catalog so
// the corpus statistics match the endpoint set being ranked.
type Ranker struct {
	opts Options
}

func New(opts Options) *Ranker {
	if opts.Policy == nil {
		opts.Policy = trafficpolicy.Default()
	}
	return &Ranker{opts: opts}
}

// Noise hosts and path stems that never answer a data intent. Kept separate
// from the ingest-time skip lists: these endpoints are legitimately in the
// catalog, they are just never what the caller is asking for.
var noiseHostMarkers = []string{
	"doubleclick", "googletagmanager", "google-analytics", "googlesyndication",
	"consent", "cookielaw", "onetrust", "accounts.google", "recaptcha",
	"sentry", "datadoghq", "newrelic", "hotjar", "segment.io", "amplitude",
	"facebook", "adsystem", "adservice",
}

var metaPathMarkers = []string{
	"/support", "/help", "/legal", "/privacy", "/terms", "/about",
	"/status", "/health", "/healthz", "/ping", "/robots", "/sitemap",
	"/favicon", "/manifest", "/.well-known",
}

var currencyTimeMarkers = []string{
	"price", "prices", "rate", "rates", "quote", "quotes", "currency",
	"market", "ticker", "ohlc", "candle", "history", "historical",
	"time", "date", "schedule", "calendar",
}

// Rank scores the catalog's endpoints against intent. domain anchors the
// domain-affinity signals; pass the seed host the capture started from.
// Results come back sorted by descending score, noise filtered out.
func (r *Ranker) Rank(groups []*catalog.EndpointGroup, intent, domain string) []Result {
	kept := make([]*catalog.EndpointGroup, 0, len(groups))
	for _, g := range groups {
		if r.keep(g) {
			kept = append(kept, g)
		}
	}
	if len(kept) == 0 {
		return nil
	}

	docs := make([][]string, len(kept))
	totalLen := 0
	for i, g := range kept {
		docs[i] = endpointTokens(g)
		totalLen += len(docs[i])
	}
	avgLen := float64(totalLen) / float64(len(kept))

	// Corpus-level document frequencies for IDF.
	df := make(map[string]int)
	for _, doc := range docs {
		inDoc := make(map[string]bool)
		for _, t := range doc {
			if !inDoc[t] {
				inDoc[t] = true
				df[t]++
			}
		}
	}

	query := intentTokens(intent)

	results := make([]Result, len(kept))
	for i, g := range kept {
		rel := bm25(query, docs[i], df, len(kept), avgLen) * relevanceWeight
		str := r.structuralScore(g, domain)
		results[i] = Result{Group: g, Score: rel + str, Relevance: rel, Structural: str}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}

// keep is the hard pre-filter: non-data methods, disabled endpoints, static
// assets, and known-noise hosts and paths never make it to scoring.
func (r *Ranker) keep(g *catalog.EndpointGroup) bool {
	if g.Disabled {
		return false
	}
	switch g.Method {
	case "HEAD", "OPTIONS":
		return false
	}
	if r.opts.Policy.IsStaticAsset(g.ExampleURL) {
		return false
	}
	host := strings.ToLower(g.Domain)
	for _, m := range noiseHostMarkers {
		if strings.Contains(host, m) {
			return false
		}
	}
	if r.opts.Policy.IsTelemetryPath(g.NormalizedPath) {
		return false
	}
	return true
}

// endpointTokens builds the token document: stemmed path segments (version
// markers and placeholders excluded), meaningful hostname parts, query
// parameter names, and response-schema property names.
func endpointTokens(g *catalog.EndpointGroup) []string {
	var doc []string

	for _, seg := range strings.Split(g.NormalizedPath, "/") {
		if seg == "" || strings.HasPrefix(seg, "{") || versionMarker(seg) {
			continue
		}
		for _, w := range splitWords(seg) {
			doc = append(doc, stem(w))
		}
	}

	for _, part := range strings.Split(g.Domain, ".") {
		switch part {
		case "", "www", "com", "org", "net", "io", "co", "app":
			continue
		}
		doc = append(doc, stem(strings.ToLower(part)))
	}

	for name := range g.QueryParams {
		for _, w := range splitWords(name) {
			doc = append(doc, stem(w))
		}
	}

	for _, prop := range g.ProducedFields {
		for _, w := range splitWords(prop) {
			doc = append(doc, stem(w))
		}
	}

	return doc
}

func versionMarker(seg string) bool {
	if len(seg) < 2 || (seg[0] != 'v' && seg[0] != 'V') {
		return false
	}
	for _, r := range seg[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// bm25 scores one document against the query terms with real corpus IDF.
func bm25(query, doc []string, df map[string]int, n int, avgLen float64) float64 {
	if len(doc) == 0 || len(query) == 0 {
		return 0
	}
	tf := make(map[string]int, len(doc))
	for _, t := range doc {
		tf[t]++
	}
	dl := float64(len(doc))

	var score float64
	for _, q := range query {
		f := float64(tf[q])
		if f == 0 {
			continue
		}
		idf := math.Log(1 + (float64(n)-float64(df[q])+0.5)/(float64(df[q])+0.5))
		score += idf * f * (bm25K1 + 1) / (f + bm25K1*(1-bm25B+bm25B*dl/avgLen))
	}
	return score
}

func (r *Ranker) structuralScore(g *catalog.EndpointGroup, domain string) float64 {
	var s float64

	if r.opts.DOMCapable != nil && r.opts.DOMCapable(g) {
		s += 25
	}
	if g.Method == "GET" {
		s += 5
	}
	if g.ResponseBodySchema.IsArray() {
		s += 10
	}
	if g.ResponseBodySchema.IsObject() {
		bonus := 2 * float64(len(g.ResponseBodySchema.Fields))
		if bonus > 20 {
			bonus = 20
		}
		s += bonus
	}
	s += g.Reliability * 5

	host := strings.ToLower(g.Domain)
	if domain != "" {
		if trafficpolicy.SameRootDomain(host, domain) {
			s += 15
		} else {
			s -= 30
		}
	}
	if label, _, ok := strings.Cut(host, "."); ok {
		switch {
		case label == "api":
			s += 25
		case strings.Contains(label, "api"), label == "data", label == "rest",
			label == "graphql", label == "gateway", label == "services":
			s += 10
		}
	}

	lower := strings.ToLower(g.NormalizedPath)
	for _, m := range currencyTimeMarkers {
		if strings.Contains(lower, "/"+m) || strings.HasSuffix(lower, m) {
			s += 15
			break
		}
	}

	if meaningfulSegments(lower) <= 1 {
		s -= 10
	}
	if g.Method == "POST" && g.RequestBodySchema == nil && !apiShaped(g) {
		s -= 15
	}
	for _, m := range metaPathMarkers {
		if strings.Contains(lower, m) {
			s -= 15
			break
		}
	}

	return s
}

func meaningfulSegments(path string) int {
	n := 0
	for _, seg := range strings.Split(path, "/") {
		if seg != "" && !versionMarker(seg) {
			n++
		}
	}
	return n
}

func apiShaped(g *catalog.EndpointGroup) bool {
	if strings.Contains(g.NormalizedPath, "/api") || strings.Contains(g.NormalizedPath, "/graphql") {
		return true
	}
	if u, err := url.Parse(g.ExampleURL); err == nil {
		if strings.HasPrefix(strings.ToLower(u.Hostname()), "api.") {
			return true
		}
	}
	return g.ResponseBodySchema != nil
}
