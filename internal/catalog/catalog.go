// Package catalog merges captured exchanges into a deduplicated endpoint
// catalog, generalizing path parameters that only become visible when
// comparing multiple samples.
package catalog

import (
	"net/url"
	"sort"
	"strings"

	"github.com/usestring/apilearn/internal/harlog"
	"github.com/usestring/apilearn/internal/ingest"
	"github.com/usestring/apilearn/internal/routes"
	"github.com/usestring/apilearn/pkg/jsonschema"
	"github.com/usestring/apilearn/pkg/shape"
)

// Category buckets an endpoint by its dominant effect.
type Category string

const (
	CategoryRead   Category = "read"
	CategoryWrite  Category = "write"
	CategoryDelete Category = "delete"
	CategoryAuth   Category = "auth"
	CategoryOther  Category = "other"
)

// EndpointGroup aggregates all exchanges sharing one fingerprint.
type EndpointGroup struct {
	Method             string
	Domain             string
	NormalizedPath     string
	PathParams         []routes.PathParam
	QueryParams        map[string]routes.ParamType
	RequestBodySchema  *jsonschema.Shape
	ResponseBodySchema *jsonschema.Shape
	ExampleCount       int
	Category           Category
	// ProducedFields are field names this endpoint emits in responses;
	// ConsumedFields are names it expects in requests, path, or query.
	// The correlation builder matches producers to consumers by these.
	ProducedFields []string
	ConsumedFields []string
	// ExchangeIndices are the capture indices backing this group, ascending.
	ExchangeIndices []int
	// ExampleURL is a concrete URL from the first backing exchange.
	ExampleURL string
	// ContentSummary describes non-JSON response structure (XML, CSV,
	// HTML, form). Nil when responses were JSON or unparseable.
	ContentSummary *shape.Result
	// Reliability is the 2xx fraction across samples.
	Reliability float64
	Disabled    bool
}

// Key is the stable map key for the group (its fingerprint rendering).
func (g *EndpointGroup) Key() string {
	fp := routes.Fingerprint{Method: g.Method, NormalizedPath: g.NormalizedPath, QueryKeys: sortedKeys(g.QueryParams)}
	return fp.String()
}

// Catalog is the deduplicated endpoint set for one capture batch. Built
// once per batch; rebuild over a superset of exchanges to extend it.
type Catalog struct {
	Service string
	BaseURL string
	Groups  []*EndpointGroup
}

// Build groups the surviving exchanges of an ingestion result. The optional
// opts tune the generalization heuristics; zero opts use defaults.
func Build(res *ingest.Result, opts Options) *Catalog {
	opts = opts.withDefaults()

	entries := collectEntries(res)
	generalize(entries, opts)
	inlineConstants(entries, opts)

	groups := assemble(entries, res)

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].ExampleCount != groups[j].ExampleCount {
			return groups[i].ExampleCount > groups[j].ExampleCount
		}
		return groups[i].Key() < groups[j].Key()
	})

	return &Catalog{Service: res.Service, BaseURL: res.BaseURL, Groups: groups}
}

// entry carries one exchange's path state through the generalization passes.
type entry struct {
	ex       *harlog.Exchange
	domain   string
	rawSegs  []string // raw effective-path segments
	tmplSegs []string // template segments, updated by the passes
	params   []routes.PathParam
	fp       routes.Fingerprint
}

func collectEntries(res *ingest.Result) []*entry {
	entries := make([]*entry, 0, len(res.Exchanges))
	for i := range res.Exchanges {
		ex := &res.Exchanges[i]
		effPath := res.EffectivePaths[ex.Index]
		norm := routes.Normalize(effPath)

		domain := ""
		if u, err := url.Parse(ex.URL); err == nil {
			domain = u.Hostname()
		}

		entries = append(entries, &entry{
			ex:       ex,
			domain:   domain,
			rawSegs:  strings.Split(effPath, "/"),
			tmplSegs: strings.Split(norm.Path, "/"),
			params:   norm.Params,
			fp:       res.Fingerprints[ex.Index],
		})
	}
	return entries
}

// assemble folds entries into endpoint groups keyed by their (possibly
// generalized) fingerprint, then enriches each group from the ingester's
// schema capture table.
// shapeSampleCap bounds how many response bodies feed non-JSON shape analysis.
const shapeSampleCap = 5

func assemble(entries []*entry, res *ingest.Result) []*EndpointGroup {
	byKey := make(map[string]*EndpointGroup)
	successes := make(map[string]int)
	sampleBodies := make(map[string][][]byte)
	sampleTypes := make(map[string]string)

	for _, en := range entries {
		path := strings.Join(en.tmplSegs, "/")
		fp := routes.Fingerprint{
			Method:         en.fp.Method,
			NormalizedPath: path,
			QueryKeys:      en.fp.QueryKeys,
			BodySchema:     en.fp.BodySchema,
		}
		key := fp.String()

		g, ok := byKey[key]
		if !ok {
			g = &EndpointGroup{
				Method:         fp.Method,
				Domain:         en.domain,
				NormalizedPath: path,
				PathParams:     en.params,
				QueryParams:    make(map[string]routes.ParamType),
				ExampleURL:     en.ex.URL,
			}
			byKey[key] = g
		}
		g.ExampleCount++
		g.ExchangeIndices = append(g.ExchangeIndices, en.ex.Index)
		if en.ex.ResponseStatus >= 200 && en.ex.ResponseStatus < 300 {
			successes[key]++
		}
		if en.ex.ResponseBody != "" && len(sampleBodies[key]) < shapeSampleCap {
			sampleBodies[key] = append(sampleBodies[key], []byte(en.ex.ResponseBody))
			if sampleTypes[key] == "" {
				sampleTypes[key] = en.ex.ContentType()
			}
		}

		// Merge schema capture recorded under the pre-generalization key.
		if cap, ok := res.Schemas[en.fp.String()]; ok {
			for name, t := range cap.QueryParams {
				g.QueryParams[name] = t
			}
			g.RequestBodySchema = jsonschema.Merge(g.RequestBodySchema, cap.RequestShape)
			g.ResponseBodySchema = jsonschema.Merge(g.ResponseBodySchema, cap.ResponseShape)
		}
	}

	shaper := shape.NewEngine()
	groups := make([]*EndpointGroup, 0, len(byKey))
	for key, g := range byKey {
		sort.Ints(g.ExchangeIndices)
		g.Category = classify(g)
		g.Reliability = float64(successes[key]) / float64(g.ExampleCount)
		g.ProducedFields = g.ResponseBodySchema.PropertyNames(2)
		g.ConsumedFields = consumedFields(g)
		// JSON responses already carry a merged value shape. Everything
		// else gets a format-specific structural summary.
		if g.ResponseBodySchema == nil && len(sampleBodies[key]) > 0 {
			if sum, err := shaper.Analyze(sampleBodies[key], sampleTypes[key]); err == nil && !sum.Skipped {
				g.ContentSummary = sum
			}
		}
		groups = append(groups, g)
	}
	return groups
}

// consumedFields lists the names an endpoint expects as input: request body
// top-level fields, query parameter names, and path parameter names.
func consumedFields(g *EndpointGroup) []string {
	set := make(map[string]bool)
	for _, n := range g.RequestBodySchema.PropertyNames(1) {
		set[n] = true
	}
	for n := range g.QueryParams {
		set[n] = true
	}
	for _, p := range g.PathParams {
		set[p.Name] = true
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// classify buckets an endpoint by method and path keywords.
func classify(g *EndpointGroup) Category {
	lower := strings.ToLower(g.NormalizedPath)
	for _, marker := range []string{"/auth", "/login", "/logout", "/oauth", "/token", "/signin", "/signup", "/session"} {
		if strings.Contains(lower, marker) {
			return CategoryAuth
		}
	}
	switch g.Method {
	case "DELETE":
		return CategoryDelete
	case "POST", "PUT", "PATCH":
		return CategoryWrite
	case "GET", "HEAD":
		return CategoryRead
	}
	return CategoryOther
}

func sortedKeys(m map[string]routes.ParamType) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
