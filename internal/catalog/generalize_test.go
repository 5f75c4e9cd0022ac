package catalog

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usestring/apilearn/internal/harlog"
	"github.com/usestring/apilearn/internal/ingest"
	"github.com/usestring/apilearn/internal/routes"
)

func jsonExchange(idx int, method, rawURL, reqBody, respBody string) harlog.Exchange {
	return harlog.Exchange{
		Index:           idx,
		Method:          method,
		URL:             rawURL,
		RequestBody:     reqBody,
		ResponseStatus:  200,
		ResponseHeaders: []harlog.Header{{Name: "Content-Type", Value: "application/json"}},
		ResponseBody:    respBody,
	}
}

func buildCatalog(t *testing.T, exchanges []harlog.Exchange, opts Options) *Catalog {
	t.Helper()
	res := ingest.New(nil).Ingest(exchanges, "https://api.example.com")
	require.NotEmpty(t, res.Exchanges, "ingest must keep the test exchanges")
	return Build(res, opts)
}

func groupByPath(c *Catalog, path string) *EndpointGroup {
	for _, g := range c.Groups {
		if g.NormalizedPath == path {
			return g
		}
	}
	return nil
}

func TestGeneralizeMergesVaryingSegment(t *testing.T) {
	// Single-exchange normalization cannot touch these: "red", "green",
	// and "blue" are plain words. Only cross-exchange comparison reveals
	// the varying position.
	cat := buildCatalog(t, []harlog.Exchange{
		jsonExchange(0, "GET", "https://api.example.com/colors/red", "", `{"hex":"#f00"}`),
		jsonExchange(1, "GET", "https://api.example.com/colors/green", "", `{"hex":"#0f0"}`),
		jsonExchange(2, "GET", "https://api.example.com/colors/blue", "", `{"hex":"#00f"}`),
	}, Options{})

	require.Len(t, cat.Groups, 1)
	g := cat.Groups[0]
	assert.Equal(t, "/colors/{colorId}", g.NormalizedPath)
	assert.Equal(t, 3, g.ExampleCount)
	require.Len(t, g.PathParams, 1)
	assert.Equal(t, "colorId", g.PathParams[0].Name)
}

func TestGeneralizeNumericIDs(t *testing.T) {
	cat := buildCatalog(t, []harlog.Exchange{
		jsonExchange(0, "GET", "https://api.example.com/items/1", "", `{"id":1}`),
		jsonExchange(1, "GET", "https://api.example.com/items/2", "", `{"id":2}`),
		jsonExchange(2, "GET", "https://api.example.com/items/3", "", `{"id":3}`),
	}, Options{})

	require.Len(t, cat.Groups, 1)
	g := cat.Groups[0]
	assert.Equal(t, "/items/{itemId}", g.NormalizedPath)
	assert.Equal(t, 3, g.ExampleCount)
	assert.Equal(t, []int{0, 1, 2}, g.ExchangeIndices)
}

func TestGeneralizeRequiresLiteralAnchor(t *testing.T) {
	// Same method, same segment count, but no shared literal segment.
	// Merging would invent "/{x}/{y}" which never existed.
	cat := buildCatalog(t, []harlog.Exchange{
		jsonExchange(0, "GET", "https://api.example.com/items/1", "", `{}`),
		jsonExchange(1, "GET", "https://api.example.com/other/2", "", `{}`),
	}, Options{})

	assert.Len(t, cat.Groups, 2)
	assert.NotNil(t, groupByPath(cat, "/items/{itemId}"))
	assert.NotNil(t, groupByPath(cat, "/other/{otherId}"))
}

func TestPersistedQueryGuard(t *testing.T) {
	cat := buildCatalog(t, []harlog.Exchange{
		jsonExchange(0, "GET", "https://api.example.com/graphql/HomeQuery?variables=%7B%7D&extensions=%7B%7D", "", `{"data":{}}`),
		jsonExchange(1, "GET", "https://api.example.com/graphql/UserQuery?variables=%7B%7D&extensions=%7B%7D", "", `{"data":{}}`),
	}, Options{})

	// The varying operation segment must NOT collapse into a parameter.
	for _, g := range cat.Groups {
		assert.NotContains(t, g.NormalizedPath, "{", "persisted query paths stay literal: %s", g.NormalizedPath)
	}
	assert.Len(t, cat.Groups, 2)
}

func TestDefaultPersistedQueryGuard(t *testing.T) {
	graphqlPaths := []string{"/graphql/A", "/graphql/B"}
	withKeys := [][]string{{"extensions", "variables"}, {"extensions", "variables"}}
	assert.True(t, DefaultPersistedQueryGuard(graphqlPaths, withKeys))

	// Below the half threshold.
	mixed := [][]string{{"extensions", "variables"}, {"page"}, {"page"}, {"page"}}
	mixedPaths := []string{"/graphql/A", "/graphql/B", "/graphql/C", "/graphql/D"}
	assert.False(t, DefaultPersistedQueryGuard(mixedPaths, mixed))

	// Plain REST paths never trigger the guard.
	rest := []string{"/colors/red", "/colors/blue"}
	assert.False(t, DefaultPersistedQueryGuard(rest, [][]string{{"extensions", "variables"}, {"extensions", "variables"}}))

	assert.False(t, DefaultPersistedQueryGuard(nil, nil))
}

func TestConstantInlining(t *testing.T) {
	// A 32+ char hex segment is parameterized by single-exchange rules,
	// but a single operation-unique value is a deployment constant.
	token := strings.Repeat("ab12", 8)
	cat := buildCatalog(t, []harlog.Exchange{
		jsonExchange(0, "GET", "https://api.example.com/feeds/"+token+"/posts?page=1", "", `{"posts":[]}`),
		jsonExchange(1, "GET", "https://api.example.com/feeds/"+token+"/posts?page=2", "", `{"posts":[]}`),
	}, Options{})

	require.Len(t, cat.Groups, 1)
	g := cat.Groups[0]
	assert.Equal(t, "/feeds/"+token+"/posts", g.NormalizedPath)
	assert.Empty(t, g.PathParams)
}

func TestConstantNotInlinedWhenShared(t *testing.T) {
	// The same hex value appearing in two different operations is a real
	// identifier, not a per-operation constant.
	token := strings.Repeat("cd34", 8)
	cat := buildCatalog(t, []harlog.Exchange{
		jsonExchange(0, "GET", "https://api.example.com/feeds/"+token+"/posts", "", `{}`),
		jsonExchange(1, "GET", "https://api.example.com/streams/"+token+"/events", "", `{}`),
	}, Options{})

	for _, g := range c2paths(cat) {
		assert.Contains(t, g, "{", "shared values stay parameterized: %s", g)
	}
}

func c2paths(c *Catalog) []string {
	out := make([]string, 0, len(c.Groups))
	for _, g := range c.Groups {
		out = append(out, g.NormalizedPath)
	}
	return out
}

func TestDefaultConstantInline(t *testing.T) {
	long := strings.Repeat("ef", 16)
	assert.True(t, DefaultConstantInline([]string{long}, false))
	assert.False(t, DefaultConstantInline([]string{long}, true), "shared elsewhere")
	assert.False(t, DefaultConstantInline([]string{long, long + "00"}, false), "multiple values")
	assert.False(t, DefaultConstantInline([]string{"abc123"}, false), "too short")
}

func TestCustomGuardOverride(t *testing.T) {
	neverInline := Options{
		ConstantInline: func([]string, bool) bool { return false },
	}
	token := strings.Repeat("ab12", 8)
	cat := buildCatalog(t, []harlog.Exchange{
		jsonExchange(0, "GET", "https://api.example.com/feeds/"+token+"/posts?page=1", "", `{}`),
		jsonExchange(1, "GET", "https://api.example.com/feeds/"+token+"/posts?page=2", "", `{}`),
	}, neverInline)

	require.Len(t, cat.Groups, 1)
	assert.Contains(t, cat.Groups[0].NormalizedPath, "{")
}

func TestBuildDeterministic(t *testing.T) {
	exchanges := []harlog.Exchange{
		jsonExchange(0, "GET", "https://api.example.com/items/1", "", `{"id":1}`),
		jsonExchange(1, "GET", "https://api.example.com/items/2", "", `{"id":2}`),
		jsonExchange(2, "POST", "https://api.example.com/orders", `{"sku":"a"}`, `{"ok":true}`),
	}
	first := fmt.Sprintf("%v", c2paths(buildCatalog(t, exchanges, Options{})))
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, fmt.Sprintf("%v", c2paths(buildCatalog(t, exchanges, Options{}))))
	}
}

func TestCategoryClassification(t *testing.T) {
	cat := buildCatalog(t, []harlog.Exchange{
		jsonExchange(0, "GET", "https://api.example.com/items/1", "", `{}`),
		jsonExchange(1, "POST", "https://api.example.com/orders", `{"sku":"a"}`, `{}`),
		jsonExchange(2, "DELETE", "https://api.example.com/orders/5", "", `{}`),
		jsonExchange(3, "POST", "https://api.example.com/auth/login", `{"user":"u"}`, `{}`),
	}, Options{})

	byCategory := map[Category]int{}
	for _, g := range cat.Groups {
		byCategory[g.Category]++
	}
	assert.Equal(t, 1, byCategory[CategoryRead])
	assert.Equal(t, 1, byCategory[CategoryWrite])
	assert.Equal(t, 1, byCategory[CategoryDelete])
	assert.Equal(t, 1, byCategory[CategoryAuth])
}

func TestProducedAndConsumedFields(t *testing.T) {
	cat := buildCatalog(t, []harlog.Exchange{
		jsonExchange(0, "POST", "https://api.example.com/orders?dryRun=1", `{"sku":"a-1"}`, `{"orderId":"x1","total":9}`),
	}, Options{})

	require.Len(t, cat.Groups, 1)
	g := cat.Groups[0]
	assert.Contains(t, g.ProducedFields, "orderId")
	assert.Contains(t, g.ProducedFields, "total")
	assert.Contains(t, g.ConsumedFields, "sku")
	assert.Contains(t, g.ConsumedFields, "dryRun")
}

func TestParamTypeOf(t *testing.T) {
	assert.Equal(t, routes.TypeInteger, paramTypeOf("42"))
	assert.Equal(t, routes.TypeString, paramTypeOf("plainword"))
}
