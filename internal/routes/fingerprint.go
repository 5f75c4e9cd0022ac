package routes

import (
	"net/url"
	"sort"
	"strings"

	"github.com/usestring/apilearn/pkg/jsonschema"
)

// Fingerprint is a stable dedup key for a logical endpoint. Two exchanges
// with equal fingerprints are the same endpoint regardless of dynamic path
// values, query param values, or body field values.
type Fingerprint struct {
	Method         string
	NormalizedPath string
	QueryKeys      []string // sorted
	BodySchema     []string // sorted "."-joined key paths
}

// Compute fingerprints one exchange from its method, URL and request body.
func Compute(method, rawURL, body string) Fingerprint {
	path := rawURL
	var queryKeys []string
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
		for key := range u.Query() {
			queryKeys = append(queryKeys, key)
		}
	} else if q := strings.Index(rawURL, "?"); q != -1 {
		path = rawURL[:q]
	}
	return ComputeParts(method, path, queryKeys, body)
}

// ComputeParts fingerprints from pre-split parts. The ingester uses this to
// pass a GraphQL-suffixed effective path.
func ComputeParts(method, path string, queryKeys []string, body string) Fingerprint {
	keys := append([]string(nil), queryKeys...)
	sort.Strings(keys)

	schema := bodyShape(body)

	return Fingerprint{
		Method:         strings.ToUpper(method),
		NormalizedPath: Normalize(path).Path,
		QueryKeys:      keys,
		BodySchema:     schema,
	}
}

// bodyShape collects sorted key paths from a JSON body. Unparseable
// non-empty bodies collapse to the single marker "string_body"; empty
// bodies have no shape.
func bodyShape(body string) []string {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return nil
	}
	paths, ok := jsonschema.KeyPaths([]byte(trimmed))
	if !ok {
		return []string{"string_body"}
	}
	sort.Strings(paths)
	return paths
}

// String renders the fingerprint as a stable map key:
// "METHOD|path|query:k1,k2|body:a,b.c".
func (f Fingerprint) String() string {
	var b strings.Builder
	b.WriteString(f.Method)
	b.WriteString("|")
	b.WriteString(f.NormalizedPath)
	b.WriteString("|query:")
	b.WriteString(strings.Join(f.QueryKeys, ","))
	b.WriteString("|body:")
	b.WriteString(strings.Join(f.BodySchema, ","))
	return b.String()
}

// Equal reports whether two fingerprints identify the same endpoint.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.String() == other.String()
}
