package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usestring/apilearn/internal/harlog"
	"github.com/usestring/apilearn/internal/routes"
)

func apiExchange(index int, method, url string) harlog.Exchange {
	return harlog.Exchange{
		Index:  index,
		Method: method,
		URL:    url,
		ResponseHeaders: []harlog.Header{
			{Name: "Content-Type", Value: "application/json"},
		},
		ResponseStatus: 200,
	}
}

func keptIndices(res *Result) []int {
	out := make([]int, 0, len(res.Exchanges))
	for _, ex := range res.Exchanges {
		out = append(out, ex.Index)
	}
	return out
}

func TestIngestFiltersNoise(t *testing.T) {
	htmlPage := apiExchange(2, "GET", "https://shop.example.com/products")
	htmlPage.ResponseHeaders = []harlog.Header{{Name: "Content-Type", Value: "text/html; charset=utf-8"}}

	exchanges := []harlog.Exchange{
		apiExchange(0, "GET", "https://api.example.com/v1/products"),
		apiExchange(1, "OPTIONS", "https://api.example.com/v1/products"),
		htmlPage,
		apiExchange(3, "GET", "https://cdn.example.com/bundle.js"),
		apiExchange(4, "POST", "https://www.google-analytics.com/collect"),
		apiExchange(5, "POST", "https://api.example.com/v1/telemetry/batch"),
		apiExchange(6, "GET", "data:text/plain;base64,aGk="),
		apiExchange(7, "POST", "https://api.example.com/v1/cart"),
	}

	res := New(nil).Ingest(exchanges, "https://shop.example.com")
	assert.Equal(t, []int{0, 7}, keptIndices(res))
}

func TestIngestSeedRootSurvivesBlocklist(t *testing.T) {
	// A first-party host that pattern-matches a telemetry subdomain name
	// is kept when it shares the seed's registrable root.
	ex := apiExchange(0, "POST", "https://metrics.example.com/v1/data")

	res := New(nil).Ingest([]harlog.Exchange{ex}, "https://example.com")
	require.Len(t, res.Exchanges, 1)

	res = New(nil).Ingest([]harlog.Exchange{ex}, "https://other.test")
	assert.Empty(t, res.Exchanges)
}

func TestIngestPostHTMLKept(t *testing.T) {
	// Only GET+HTML is a navigation; a POST returning HTML still matters.
	ex := apiExchange(0, "POST", "https://app.example.com/login")
	ex.ResponseHeaders = []harlog.Header{{Name: "Content-Type", Value: "text/html"}}

	res := New(nil).Ingest([]harlog.Exchange{ex}, "https://app.example.com")
	assert.Len(t, res.Exchanges, 1)
}

func TestIngestCollectsAuth(t *testing.T) {
	ex := apiExchange(0, "GET", "https://api.example.com/me")
	ex.RequestHeaders = []harlog.Header{
		{Name: ":method", Value: "GET"},
		{Name: "Authorization", Value: "Bearer tok-1"},
		{Name: "X-Tenant-Id", Value: "t-4"},
		{Name: "X-Device-Id", Value: "d-9"},
	}
	ex.RequestCookies = []harlog.Cookie{{Name: "session", Value: "s-1"}}
	ex.ResponseHeaders = append(ex.ResponseHeaders,
		harlog.Header{Name: "Set-Cookie", Value: "refresh=r-1; Path=/; HttpOnly, note"},
	)

	res := New(nil).Ingest([]harlog.Exchange{ex}, "")

	assert.Equal(t, "Bearer tok-1", res.AuthHeaders["authorization"])
	assert.Equal(t, "t-4", res.ContextHeaders["x-tenant-id"])
	assert.Equal(t, "s-1", res.Cookies["session"])

	assert.Equal(t, "Bearer tok-1", res.AuthInfo["request_header_authorization"])
	assert.Equal(t, "d-9", res.AuthInfo["request_header_x-device-id"])
	assert.Equal(t, "r-1", res.AuthInfo["response_setcookie_refresh"])
	assert.NotContains(t, res.AuthInfo, "request_header_:method")
}

func TestIngestFingerprintsAndSchemas(t *testing.T) {
	ex1 := apiExchange(0, "GET", "https://api.example.com/users/42?expand=profile")
	ex1.ResponseBody = `{"id":42,"name":"a"}`
	ex2 := apiExchange(1, "GET", "https://api.example.com/users/77?expand=profile")
	ex2.ResponseBody = `{"id":77,"email":"x@y.z"}`

	res := New(nil).Ingest([]harlog.Exchange{ex1, ex2}, "https://api.example.com")
	require.Len(t, res.Exchanges, 2)

	fp := res.Fingerprints[0]
	assert.Equal(t, "/users/{userId}", fp.NormalizedPath)
	assert.Equal(t, fp, res.Fingerprints[1], "both ids collapse to one fingerprint")

	cap := res.Schemas[fp.String()]
	require.NotNil(t, cap)
	assert.Equal(t, 2, cap.Examples)
	assert.Equal(t, routes.TypeString, cap.QueryParams["expand"])

	require.NotNil(t, cap.ResponseShape)
	assert.Contains(t, cap.ResponseShape.Fields, "name")
	assert.Contains(t, cap.ResponseShape.Fields, "email")
}

func TestEffectivePathGraphQL(t *testing.T) {
	ex := apiExchange(0, "POST", "https://api.example.com/graphql")
	ex.RequestBody = `{"operationName":"GetUser","query":"query GetUser { user { id } }"}`

	res := New(nil).Ingest([]harlog.Exchange{ex}, "")
	assert.Equal(t, "/graphql#GetUser", res.EffectivePaths[0])
}

func TestEffectivePathGraphQLParsedFallback(t *testing.T) {
	// No operationName field; the operation name comes from the query text.
	ex := apiExchange(0, "POST", "https://api.example.com/graphql")
	ex.RequestBody = `{"query":"query ListOrders { orders { id } }"}`

	res := New(nil).Ingest([]harlog.Exchange{ex}, "")
	assert.Equal(t, "/graphql#ListOrders", res.EffectivePaths[0])
}

func TestEffectivePathGraphQLAnonymous(t *testing.T) {
	ex := apiExchange(0, "POST", "https://api.example.com/graphql")
	ex.RequestBody = `{"query":"{ orders { id } }"}`

	res := New(nil).Ingest([]harlog.Exchange{ex}, "")
	assert.Equal(t, "/graphql", res.EffectivePaths[0])
}

func TestElectService(t *testing.T) {
	ex1 := apiExchange(0, "GET", "https://api.shop.example.com/v1/items")
	ex2 := apiExchange(1, "GET", "https://www.shop.example.com/v1/other")

	res := New(nil).Ingest([]harlog.Exchange{ex1, ex2}, "https://shop.example.com")
	assert.Equal(t, "https://api.shop.example.com", res.BaseURL)
	assert.NotEmpty(t, res.Service)
}

func TestElectServiceFallsBackToBusiestDomain(t *testing.T) {
	exchanges := []harlog.Exchange{
		apiExchange(0, "GET", "https://data.example.com/a"),
		apiExchange(1, "GET", "https://data.example.com/b"),
		apiExchange(2, "GET", "https://other.example.com/c"),
	}
	res := New(nil).Ingest(exchanges, "")
	assert.Equal(t, "https://data.example.com", res.BaseURL)
}
