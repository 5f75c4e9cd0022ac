// Package jsonschema infers lightweight structural schemas from JSON bodies.
//
// Unknown JSON is modeled as an explicit tagged union (Shape) rather than
// reflected dynamically; Shapes render to JSON Schema Draft 2020-12 via
// invopop/jsonschema when a full schema document is needed.
package jsonschema

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/invopop/jsonschema"
)

// Kind tags one node of an inferred shape.
type Kind string

const (
	KindNull    Kind = "null"
	KindBool    Kind = "boolean"
	KindInteger Kind = "integer"
	KindNumber  Kind = "number"
	KindString  Kind = "string"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
)

// Shape is the inferred structure of a JSON value. Object fields and the
// array element shape are recursive; scalar kinds are leaves.
type Shape struct {
	Kind   Kind
	Fields map[string]*Shape // populated for KindObject
	Elem   *Shape            // populated for KindArray when non-empty
}

// Infer builds a merged Shape from one or more JSON samples. Samples that do
// not parse are skipped; nil is returned when nothing parses.
func Infer(samples ...[]byte) *Shape {
	var merged *Shape
	for _, data := range samples {
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			continue
		}
		merged = merge(merged, FromValue(v))
	}
	return merged
}

// FromValue builds a Shape from an already-parsed JSON value.
func FromValue(v any) *Shape {
	switch val := v.(type) {
	case nil:
		return &Shape{Kind: KindNull}
	case bool:
		return &Shape{Kind: KindBool}
	case float64:
		if math.Trunc(val) == val && !math.IsInf(val, 0) {
			return &Shape{Kind: KindInteger}
		}
		return &Shape{Kind: KindNumber}
	case string:
		return &Shape{Kind: KindString}
	case []any:
		s := &Shape{Kind: KindArray}
		for _, item := range val {
			s.Elem = merge(s.Elem, FromValue(item))
		}
		return s
	case map[string]any:
		s := &Shape{Kind: KindObject, Fields: make(map[string]*Shape, len(val))}
		for k, item := range val {
			s.Fields[k] = FromValue(item)
		}
		return s
	default:
		return &Shape{Kind: KindString}
	}
}

// Merge combines two shapes under the widening rules used by Infer.
func Merge(a, b *Shape) *Shape {
	return merge(a, b)
}

// merge combines two shapes. Mismatched kinds widen toward the non-null,
// more structured side; integer+number widens to number.
func merge(a, b *Shape) *Shape {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.Kind == KindNull {
		return b
	}
	if b.Kind == KindNull {
		return a
	}

	if a.Kind != b.Kind {
		if (a.Kind == KindInteger && b.Kind == KindNumber) ||
			(a.Kind == KindNumber && b.Kind == KindInteger) {
			return &Shape{Kind: KindNumber}
		}
		// Structured wins over scalar so key paths survive mixed samples.
		if a.Kind == KindObject || a.Kind == KindArray {
			return a
		}
		return b
	}

	switch a.Kind {
	case KindObject:
		out := &Shape{Kind: KindObject, Fields: make(map[string]*Shape)}
		for k, s := range a.Fields {
			out.Fields[k] = s
		}
		for k, s := range b.Fields {
			out.Fields[k] = merge(out.Fields[k], s)
		}
		return out
	case KindArray:
		return &Shape{Kind: KindArray, Elem: merge(a.Elem, b.Elem)}
	default:
		return a
	}
}

// IsArray reports whether the shape's root is an array.
func (s *Shape) IsArray() bool { return s != nil && s.Kind == KindArray }

// IsObject reports whether the shape's root is an object.
func (s *Shape) IsObject() bool { return s != nil && s.Kind == KindObject }

// PropertyNames returns sorted field names down to the given nesting depth.
// Arrays are transparent: an array of objects contributes its element's
// fields. Depth 1 returns only top-level names.
func (s *Shape) PropertyNames(depth int) []string {
	set := make(map[string]bool)
	collectNames(s, depth, set)
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func collectNames(s *Shape, depth int, set map[string]bool) {
	if s == nil || depth <= 0 {
		return
	}
	switch s.Kind {
	case KindObject:
		for k, child := range s.Fields {
			set[k] = true
			collectNames(child, depth-1, set)
		}
	case KindArray:
		collectNames(s.Elem, depth, set)
	}
}

// Schema renders the shape as a JSON Schema document.
func (s *Shape) Schema() *jsonschema.Schema {
	if s == nil {
		return &jsonschema.Schema{}
	}
	switch s.Kind {
	case KindObject:
		out := &jsonschema.Schema{Type: "object", Properties: jsonschema.NewProperties()}
		keys := make([]string, 0, len(s.Fields))
		for k := range s.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out.Properties.Set(k, s.Fields[k].Schema())
		}
		return out
	case KindArray:
		out := &jsonschema.Schema{Type: "array"}
		if s.Elem != nil {
			out.Items = s.Elem.Schema()
		}
		return out
	default:
		return &jsonschema.Schema{Type: string(s.Kind)}
	}
}
