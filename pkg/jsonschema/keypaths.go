package jsonschema

import "encoding/json"

// KeyPaths collects "."-joined leaf key paths from a JSON document, used as
// a body-shape component of endpoint fingerprints. Arrays collapse to a
// single "[]" marker derived from the first element only, so documents that
// differ only in array length produce identical paths. The second return is
// false when the data is not valid JSON.
func KeyPaths(data []byte) ([]string, bool) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false
	}
	paths := make([]string, 0, 8)
	walkPaths(v, "", &paths)
	return paths, true
}

// KeyPathsFromShape collects the same leaf paths from an inferred Shape.
func KeyPathsFromShape(s *Shape) []string {
	paths := make([]string, 0, 8)
	walkShapePaths(s, "", &paths)
	return paths
}

func walkPaths(v any, prefix string, out *[]string) {
	switch val := v.(type) {
	case map[string]any:
		if len(val) == 0 {
			appendPath(prefix, out)
			return
		}
		for k, child := range val {
			walkPaths(child, joinPath(prefix, k), out)
		}
	case []any:
		if len(val) == 0 {
			appendPath(prefix+"[]", out)
			return
		}
		walkPaths(val[0], prefix+"[]", out)
	default:
		appendPath(prefix, out)
	}
}

func walkShapePaths(s *Shape, prefix string, out *[]string) {
	if s == nil {
		appendPath(prefix, out)
		return
	}
	switch s.Kind {
	case KindObject:
		if len(s.Fields) == 0 {
			appendPath(prefix, out)
			return
		}
		for k, child := range s.Fields {
			walkShapePaths(child, joinPath(prefix, k), out)
		}
	case KindArray:
		if s.Elem == nil {
			appendPath(prefix+"[]", out)
			return
		}
		walkShapePaths(s.Elem, prefix+"[]", out)
	default:
		appendPath(prefix, out)
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func appendPath(path string, out *[]string) {
	if path != "" {
		*out = append(*out, path)
	}
}
