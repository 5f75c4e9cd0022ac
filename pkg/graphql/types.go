// Package graphql provides lightweight GraphQL request body parsing.
// It extracts operation names, types, and top-level fields from GraphQL
// HTTP request bodies without a full AST parser.
package graphql

// ParsedOperation represents a single parsed GraphQL operation.
type ParsedOperation struct {
	Name          string   `json:"name"`                     // Operation name ("anonymous" if unnamed)
	Type          string   `json:"type"`                     // query, mutation, or subscription
	Fields        []string `json:"fields,omitempty"`         // Top-level field selections
	RawQuery      string   `json:"raw_query,omitempty"`      // Raw query string (if requested)
	Variables     any      `json:"variables,omitempty"`      // Variables object (raw)
	HasVariables  bool     `json:"has_variables"`            // Whether variables were present
	BatchIndex    int      `json:"batch_index,omitempty"`    // Index in batched request (0 for non-batched)
	ParseFailed   bool     `json:"parse_failed,omitempty"`   // True if query string could not be parsed
	OperationName string   `json:"operation_name,omitempty"` // Raw operationName from JSON body
}

// ParseResult contains the result of parsing a GraphQL request body.
type ParseResult struct {
	Operations []ParsedOperation `json:"operations"`
	IsBatched  bool              `json:"is_batched"` // True if the body was a JSON array
}

// Error represents a single GraphQL error from a response.
type Error struct {
	Message    string `json:"message"`
	Path       []any  `json:"path,omitempty"`
	Locations  []any  `json:"locations,omitempty"`
	Extensions any    `json:"extensions,omitempty"`
}

// FragmentInfo describes a named or inline fragment found in a GraphQL query.
type FragmentInfo struct {
	Name     string   `json:"name,omitempty"` // Fragment name (empty for inline fragments)
	OnType   string   `json:"on_type"`        // Type condition (e.g., "Human")
	Fields   []string `json:"fields,omitempty"`
	IsInline bool     `json:"is_inline"` // True for ... on Type { } fragments
}
