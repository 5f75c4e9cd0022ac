package correlation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usestring/apilearn/internal/cache"
	"github.com/usestring/apilearn/internal/harlog"
	"github.com/usestring/apilearn/internal/index"
)

func buildGraph(t *testing.T, exchanges []harlog.Exchange) *Graph {
	t.Helper()
	bodies, err := cache.NewBodyCache(32)
	require.NoError(t, err)
	return NewBuilder(index.Build(exchanges), bodies, nil).Build(exchanges)
}

func TestBuildFindsProducerConsumerEdge(t *testing.T) {
	exchanges := []harlog.Exchange{
		{
			Index:          0,
			Method:         "POST",
			URL:            "https://api.example.com/auth/login",
			ResponseStatus: 200,
			ResponseBody:   `{"id":"abc123"}`,
		},
		{
			Index:          1,
			Method:         "GET",
			URL:            "https://api.example.com/orders/abc123",
			ResponseStatus: 200,
		},
	}

	g := buildGraph(t, exchanges)

	require.Len(t, g.Edges, 1)
	assert.Equal(t, Edge{From: 0, To: 1, Field: "id"}, g.Edges[0])
	assert.Equal(t, [][]int{{0, 1}}, g.Chains)
}

func TestBuildNestedFieldPath(t *testing.T) {
	exchanges := []harlog.Exchange{
		{
			Index:        0,
			Method:       "POST",
			URL:          "https://api.example.com/session",
			ResponseBody: `{"auth":{"token":"tok-9f8e7d6c"}}`,
		},
		{
			Index:  1,
			Method: "GET",
			URL:    "https://api.example.com/profile",
			RequestHeaders: []harlog.Header{
				{Name: "Authorization", Value: "Bearer tok-9f8e7d6c"},
			},
		},
	}

	g := buildGraph(t, exchanges)

	require.Len(t, g.Edges, 1)
	assert.Equal(t, "auth.token", g.Edges[0].Field)
}

func TestBuildIgnoresBackwardFlow(t *testing.T) {
	// The value appears in an EARLIER request: no edge, time only moves
	// forward.
	exchanges := []harlog.Exchange{
		{
			Index:  0,
			Method: "GET",
			URL:    "https://api.example.com/orders/xyz789",
		},
		{
			Index:        1,
			Method:       "POST",
			URL:          "https://api.example.com/checkout",
			ResponseBody: `{"orderId":"xyz789"}`,
		},
	}

	g := buildGraph(t, exchanges)
	assert.Empty(t, g.Edges)
}

func TestBuildSkipsShortValues(t *testing.T) {
	exchanges := []harlog.Exchange{
		{
			Index:        0,
			Method:       "GET",
			URL:          "https://api.example.com/flags",
			ResponseBody: `{"page":2,"on":true,"code":"ok"}`,
		},
		{
			Index:  1,
			Method: "GET",
			URL:    "https://api.example.com/items?page=2&ok=true",
		},
	}

	g := buildGraph(t, exchanges)
	assert.Empty(t, g.Edges, "values shorter than the threshold never correlate")
}

func TestSetMinValueLength(t *testing.T) {
	exchanges := []harlog.Exchange{
		{
			Index:        0,
			Method:       "GET",
			URL:          "https://api.example.com/tiny",
			ResponseBody: `{"ref":"ab1"}`,
		},
		{
			Index:  1,
			Method: "GET",
			URL:    "https://api.example.com/use/ab1",
		},
	}

	bodies, err := cache.NewBodyCache(8)
	require.NoError(t, err)
	b := NewBuilder(index.Build(exchanges), bodies, nil)
	b.SetMinValueLength(3)
	g := b.Build(exchanges)

	require.Len(t, g.Edges, 1)
	assert.Equal(t, "ref", g.Edges[0].Field)
}

func TestMaximalChains(t *testing.T) {
	// 0 -> 1 -> 2 is the longest path ending at sink 2.
	exchanges := []harlog.Exchange{
		{
			Index:        0,
			Method:       "POST",
			URL:          "https://api.example.com/login",
			ResponseBody: `{"session":"sess-11112222"}`,
		},
		{
			Index:          1,
			Method:         "GET",
			URL:            "https://api.example.com/accounts?session=sess-11112222",
			ResponseBody:   `{"accountId":"acct-33334444"}`,
			ResponseStatus: 200,
		},
		{
			Index:  2,
			Method: "GET",
			URL:    "https://api.example.com/accounts/acct-33334444/balance",
		},
	}

	g := buildGraph(t, exchanges)

	require.NotEmpty(t, g.Chains)
	assert.Contains(t, g.Chains, []int{0, 1, 2})
}

func TestProducers(t *testing.T) {
	exchanges := []harlog.Exchange{
		{
			Index:        0,
			Method:       "POST",
			URL:          "https://api.example.com/login",
			ResponseBody: `{"token":"tkn-55556666"}`,
		},
		{
			Index:       1,
			Method:      "POST",
			URL:         "https://api.example.com/graphql",
			RequestBody: `{"variables":{"token":"tkn-55556666"}}`,
		},
	}

	g := buildGraph(t, exchanges)

	edges := g.Producers(1)
	require.Len(t, edges, 1)
	assert.Equal(t, 0, edges[0].From)
	assert.Empty(t, g.Producers(0))
}

func TestPlanChainForTarget(t *testing.T) {
	exchanges := []harlog.Exchange{
		{
			Index:        0,
			Method:       "POST",
			URL:          "https://api.example.com/login",
			ResponseBody: `{"id":"abc123"}`,
		},
		{
			Index:  1,
			Method: "GET",
			URL:    "https://api.example.com/orders/abc123",
		},
		{
			Index:  2,
			Method: "GET",
			URL:    "https://api.example.com/unrelated",
		},
	}

	g := buildGraph(t, exchanges)

	assert.Equal(t, []int{0, 1}, PlanChainForTarget(g, 1))
	assert.Equal(t, []int{2}, PlanChainForTarget(g, 2), "no prerequisites means a single step")
}

func TestPlanChainTransitive(t *testing.T) {
	exchanges := []harlog.Exchange{
		{
			Index:        0,
			Method:       "POST",
			URL:          "https://api.example.com/login",
			ResponseBody: `{"session":"sess-11112222"}`,
		},
		{
			Index:        1,
			Method:       "GET",
			URL:          "https://api.example.com/accounts?session=sess-11112222",
			ResponseBody: `{"accountId":"acct-33334444"}`,
		},
		{
			Index:  2,
			Method: "GET",
			URL:    "https://api.example.com/accounts/acct-33334444/balance",
		},
	}

	g := buildGraph(t, exchanges)
	assert.Equal(t, []int{0, 1, 2}, PlanChainForTarget(g, 2))
}

func TestGraphExport(t *testing.T) {
	exchanges := []harlog.Exchange{
		{
			Index:          0,
			Method:         "POST",
			URL:            "https://api.example.com/login",
			ResponseStatus: 200,
			ResponseBody:   `{"id":"abc123"}`,
		},
		{
			Index:          1,
			Method:         "GET",
			URL:            "https://api.example.com/orders/abc123",
			ResponseStatus: 200,
		},
		{
			Index:          2,
			Method:         "GET",
			URL:            "https://api.example.com/unlinked",
			ResponseStatus: 200,
		},
	}

	g := buildGraph(t, exchanges)
	exp := g.ToExport()

	assert.Equal(t, ExportVersion, exp.Version)
	require.Len(t, exp.Links, 1)
	require.Len(t, exp.Requests, 2, "only edge-involved exchanges exported")
	assert.Equal(t, 0, exp.Requests[0].Index)
	assert.Equal(t, 1, exp.Requests[1].Index)
}
