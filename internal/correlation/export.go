package correlation

import (
	"encoding/json"
	"sort"

	"github.com/usestring/apilearn/internal/harlog"
)

// ExportVersion tags the export payload so readers can reject a format they
// do not understand.
const ExportVersion = 1

// RequestSummary is the per-exchange slice of the export: just enough for a
// reader to identify a chain step without the full capture.
type RequestSummary struct {
	Index  int    `json:"index"`
	Method string `json:"method"`
	URL    string `json:"url"`
	Status int    `json:"status"`
}

// Export is the wire form of a graph.
type Export struct {
	Version  int              `json:"version"`
	Links    []Edge           `json:"links"`
	Chains   [][]int          `json:"chains"`
	Requests []RequestSummary `json:"requests"`
}

// ToExport flattens the graph. Only exchanges that participate in at least
// one edge are summarized.
func (g *Graph) ToExport() Export {
	involved := make(map[int]bool)
	for _, e := range g.Edges {
		involved[e.From] = true
		involved[e.To] = true
	}

	reqs := make([]RequestSummary, 0, len(involved))
	for idx := range involved {
		if ex, ok := g.byIndex[idx]; ok {
			reqs = append(reqs, summarize(ex))
		}
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].Index < reqs[j].Index })

	return Export{
		Version:  ExportVersion,
		Links:    g.Edges,
		Chains:   g.Chains,
		Requests: reqs,
	}
}

// MarshalJSON renders the graph in its export form.
func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.ToExport())
}

func summarize(ex *harlog.Exchange) RequestSummary {
	return RequestSummary{
		Index:  ex.Index,
		Method: ex.Method,
		URL:    ex.URL,
		Status: ex.ResponseStatus,
	}
}
