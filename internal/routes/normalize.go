// Package routes turns concrete URL paths into generalized endpoint
// templates and computes stable fingerprints for deduplication.
package routes

import (
	"fmt"
	"regexp"
	"strings"
)

// ParamType classifies a dynamic path segment.
type ParamType string

// Param types, most specific first. String is the mixed-alphanumeric
// fallback; Unknown is reserved for callers that record unclassified values.
const (
	TypeUUID         ParamType = "uuid"
	TypeEmail        ParamType = "email"
	TypeDate         ParamType = "date"
	TypeTimestamp    ParamType = "timestamp"
	TypeInteger      ParamType = "integer"
	TypeHex          ParamType = "hex"
	TypeSlug         ParamType = "slug"
	TypeBase64       ParamType = "base64"
	TypeAcademicYear ParamType = "academicYear"
	TypeString       ParamType = "string"
	TypeUnknown      ParamType = "unknown"
)

// PathParam is a classified dynamic path segment.
type PathParam struct {
	Name    string    `json:"name"`
	Type    ParamType `json:"type"`
	Example string    `json:"example"`
}

// NormalizedPath is the result of normalizing one concrete path.
type NormalizedPath struct {
	Path   string
	Params []PathParam
}

// Ordered pattern list for segment classification. Order matters: the first
// match wins, so the most specific patterns come first.
var (
	uuidPattern      = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	emailPattern     = regexp.MustCompile(`^[^@\s/]+@[^@\s/]+\.[^@\s/]+$`)
	datePattern      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timestampPattern = regexp.MustCompile(`^\d{10,13}$`)
	integerPattern   = regexp.MustCompile(`^\d+$`)
	hexPattern       = regexp.MustCompile(`^[0-9a-fA-F]{8,}$`)
	slugPattern      = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+){2,}$`)
	base64Pattern    = regexp.MustCompile(`^[A-Za-z0-9+/=_-]{16,}$`)
	academicPattern  = regexp.MustCompile(`^\d{4}-\d{4}$`)
	versionPattern   = regexp.MustCompile(`^v\d+$`)
	hasDigit         = regexp.MustCompile(`[0-9]`)
	hasLetter        = regexp.MustCompile(`[a-zA-Z]`)
	base64Signal     = regexp.MustCompile(`[0-9+/=]`)
)

// Segments that stay literal even when a pattern would match them.
var staticSegments = map[string]bool{
	"api": true, "rest": true, "admin": true, "search": true, "public": true,
	"internal": true, "static": true, "assets": true, "web": true, "app": true,
	"mobile": true, "data": true, "query": true, "auth": true, "login": true,
	"logout": true, "register": true, "oauth": true, "token": true,
	"refresh": true, "graphql": true, "health": true, "status": true,
	"config": true, "settings": true, "docs": true, "swagger": true,
	"metrics": true, "list": true, "all": true, "new": true, "current": true,
	"latest": true, "me": true, "self": true, "export": true, "import": true,
}

// Extensions stripped before classification and re-appended after.
var dataFileExts = map[string]bool{
	".json": true, ".xml": true, ".csv": true, ".txt": true,
	".yaml": true, ".yml": true,
}

// classifySegment returns the param type of a bare segment, or "" when the
// segment is static. The GraphQL operation fragment appended by the ingester
// ("#op") is never classified.
func classifySegment(seg string) ParamType {
	if seg == "" || strings.HasPrefix(seg, "#") {
		return ""
	}
	lower := strings.ToLower(seg)
	if staticSegments[lower] || versionPattern.MatchString(lower) {
		return ""
	}

	switch {
	case uuidPattern.MatchString(seg):
		return TypeUUID
	case emailPattern.MatchString(seg):
		return TypeEmail
	case datePattern.MatchString(seg):
		return TypeDate
	case timestampPattern.MatchString(seg):
		return TypeTimestamp
	case integerPattern.MatchString(seg):
		return TypeInteger
	case hexPattern.MatchString(seg):
		return TypeHex
	case academicPattern.MatchString(seg):
		return TypeAcademicYear
	case slugPattern.MatchString(seg):
		return TypeSlug
	// Base64 needs a digit or base64 punctuation so identifier-like words
	// ("configuration") are not misclassified.
	case base64Pattern.MatchString(seg) && base64Signal.MatchString(seg):
		return TypeBase64
	case hasDigit.MatchString(seg) && hasLetter.MatchString(seg):
		return TypeString
	}
	return ""
}

// fixedParamNames are types whose placeholder name does not derive from the
// preceding segment.
var fixedParamNames = map[ParamType]string{
	TypeEmail:        "email",
	TypeDate:         "date",
	TypeTimestamp:    "timestamp",
	TypeAcademicYear: "academicYear",
}

// Normalize generalizes a URL path into a template with typed placeholders.
// Deterministic: the same input always yields the same template.
func Normalize(path string) NormalizedPath {
	segments := strings.Split(path, "/")
	out := make([]string, len(segments))
	var params []PathParam
	used := make(map[string]int)
	prevStatic := ""

	for i, seg := range segments {
		bare := seg
		ext := ""
		if dot := strings.LastIndex(seg, "."); dot > 0 {
			if dataFileExts[strings.ToLower(seg[dot:])] {
				bare, ext = seg[:dot], seg[dot:]
			}
		}

		ptype := classifySegment(bare)
		if ptype == "" {
			out[i] = seg
			if bare != "" {
				prevStatic = bare
			}
			continue
		}

		name := fixedParamNames[ptype]
		if name == "" {
			name = DeriveParamName(prevStatic)
		}
		used[name]++
		if n := used[name]; n > 1 {
			name = fmt.Sprintf("%s%d", name, n)
		}

		params = append(params, PathParam{Name: name, Type: ptype, Example: bare})
		out[i] = "{" + name + "}" + ext
	}

	return NormalizedPath{Path: strings.Join(out, "/"), Params: params}
}

// ClassifyValue classifies a raw value (query param, path segment) against
// the same ordered pattern list used for path segments. Values that match
// nothing are Unknown.
func ClassifyValue(v string) ParamType {
	if t := classifySegment(v); t != "" {
		return t
	}
	return TypeUnknown
}

// DeriveParamName derives a placeholder name from the preceding static
// segment: "/users/123" -> "userId", "/modules/CS2030S" -> "moduleId".
func DeriveParamName(prevStatic string) string {
	if prevStatic == "" {
		return "id"
	}
	base := camelCase(singularize(strings.ToLower(prevStatic)))
	if base == "" {
		return "id"
	}
	return base + "Id"
}

func singularize(word string) string {
	switch {
	case strings.HasSuffix(word, "ies") && len(word) > 3:
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(word, "ses") && len(word) > 3:
		return word[:len(word)-2]
	case strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss") && len(word) > 1:
		return word[:len(word)-1]
	}
	return word
}

func camelCase(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '_' || r == '.'
	})
	if len(parts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}
