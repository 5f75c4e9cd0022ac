// Package correlation discovers data-flow dependencies between captured
// exchanges: a field value emitted in one response and reused in a later
// request links the two into a producer/consumer edge.
package correlation

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/usestring/apilearn/internal/cache"
	"github.com/usestring/apilearn/internal/harlog"
	"github.com/usestring/apilearn/internal/index"
)

// DefaultMinValueLength excludes trivial tokens ("1", "true", "ok") that
// would link nearly every exchange to every other.
const DefaultMinValueLength = 4

// Edge records that the producer's response field value reappeared in the
// consumer's request. From is always strictly less than To.
type Edge struct {
	From  int    `json:"from"`
	To    int    `json:"to"`
	Field string `json:"field"`
}

// Graph is the correlation result for one capture batch.
type Graph struct {
	Edges []Edge
	// Chains are the precomputed maximal producer-to-consumer paths,
	// each a strictly ascending list of capture indices.
	Chains [][]int

	producers map[int][]Edge // consumer index -> incoming edges
	byIndex   map[int]*harlog.Exchange
}

// Builder walks response bodies against later requests. The inverted index
// prunes the candidate set before the verbatim check; the body cache keeps
// repeated parses of the same response cheap.
type Builder struct {
	idx         *index.Index
	bodies      *cache.BodyCache
	minValueLen int
	log         *slog.Logger
}

func NewBuilder(idx *index.Index, bodies *cache.BodyCache, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{idx: idx, bodies: bodies, minValueLen: DefaultMinValueLength, log: log}
}

// SetMinValueLength overrides the trivial-token threshold.
func (b *Builder) SetMinValueLength(n int) { b.minValueLen = n }

// Build scans every exchange's response for scalar values that reappear in
// a later exchange's path, query, body, or headers.
func (b *Builder) Build(exchanges []harlog.Exchange) *Graph {
	g := &Graph{
		producers: make(map[int][]Edge),
		byIndex:   make(map[int]*harlog.Exchange, len(exchanges)),
	}
	for i := range exchanges {
		g.byIndex[exchanges[i].Index] = &exchanges[i]
	}

	seen := make(map[Edge]bool)

	for i := range exchanges {
		p := &exchanges[i]
		if p.ResponseBody == "" {
			continue
		}
		parsed := b.bodies.Parse(p.Index, p.ResponseBody)
		if !parsed.Exists() {
			continue
		}

		fields := make(map[string]string)
		collectScalars(parsed, "", b.minValueLen, fields)
		if len(fields) == 0 {
			continue
		}

		for field, value := range fields {
			candidates := b.idx.CandidatesContaining(value)
			if candidates == nil || candidates.IsEmpty() {
				continue
			}
			it := candidates.Iterator()
			for it.HasNext() {
				ci := int(it.Next())
				if ci <= p.Index {
					continue
				}
				c := g.byIndex[ci]
				if c == nil || !consumesValue(c, value) {
					continue
				}
				e := Edge{From: p.Index, To: ci, Field: field}
				if !seen[e] {
					seen[e] = true
					g.Edges = append(g.Edges, e)
					g.producers[ci] = append(g.producers[ci], e)
				}
			}
		}
	}

	g.Chains = g.maximalChains()
	b.log.Debug("correlation graph built",
		"exchanges", len(exchanges), "edges", len(g.Edges), "chains", len(g.Chains))
	return g
}

// collectScalars gathers string and number leaves as path -> rendered value.
// Booleans and nulls never carry identifiers and are skipped outright.
func collectScalars(v gjson.Result, path string, minLen int, out map[string]string) {
	switch v.Type {
	case gjson.JSON:
		v.ForEach(func(key, child gjson.Result) bool {
			childPath := key.String()
			if path != "" {
				childPath = path + "." + childPath
			}
			collectScalars(child, childPath, minLen, out)
			return true
		})
	case gjson.String, gjson.Number:
		s := v.String()
		if len(s) >= minLen && path != "" {
			out[path] = s
		}
	}
}

// consumesValue reports a verbatim appearance of value in the consumer's
// request surface. The index candidate set is token-based and therefore a
// superset; this check is the authoritative one.
func consumesValue(c *harlog.Exchange, value string) bool {
	if strings.Contains(c.URL, value) {
		return true
	}
	if strings.Contains(c.RequestBody, value) {
		return true
	}
	for _, h := range c.RequestHeaders {
		if strings.Contains(h.Value, value) {
			return true
		}
	}
	return false
}

// Producers returns the incoming edges for a consumer index.
func (g *Graph) Producers(consumer int) []Edge {
	return g.producers[consumer]
}

// maximalChains computes, per sink node, the longest producer path ending
// there. Edges always point forward in capture order so the graph is acyclic
// and a single ascending-order pass suffices.
func (g *Graph) maximalChains() [][]int {
	if len(g.Edges) == 0 {
		return nil
	}

	nodes := make([]int, 0, len(g.byIndex))
	hasOutgoing := make(map[int]bool)
	inChain := make(map[int]bool)
	for _, e := range g.Edges {
		hasOutgoing[e.From] = true
		inChain[e.From] = true
		inChain[e.To] = true
	}
	for n := range inChain {
		nodes = append(nodes, n)
	}
	sort.Ints(nodes)

	best := make(map[int][]int)
	for _, n := range nodes {
		longest := []int{n}
		for _, e := range g.producers[n] {
			if prefix := best[e.From]; len(prefix)+1 > len(longest) {
				longest = append(append([]int(nil), prefix...), n)
			}
		}
		best[n] = longest
	}

	var chains [][]int
	for _, n := range nodes {
		if !hasOutgoing[n] && len(best[n]) >= 2 {
			chains = append(chains, best[n])
		}
	}
	return chains
}
