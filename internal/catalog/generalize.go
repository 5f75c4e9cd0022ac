package catalog

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/usestring/apilearn/internal/routes"
)

// Options holds the tunable generalization heuristics. Both guards are
// deliberately swappable policy functions: they misclassify on pathological
// captures and deployments may want different thresholds.
type Options struct {
	// PersistedQueryGuard reports whether a (method, segment-count) group
	// looks like GraphQL persisted queries, whose hashes are deterministic
	// constants that must not be collapsed into {id}.
	PersistedQueryGuard func(paths []string, queryKeySets [][]string) bool
	// ConstantInline reports whether an already-parameterized position
	// should be baked back into a literal. values are the distinct raw
	// values observed; sharedElsewhere is true when any value also appears
	// at a parameterized position of another group.
	ConstantInline func(values []string, sharedElsewhere bool) bool
}

func (o Options) withDefaults() Options {
	if o.PersistedQueryGuard == nil {
		o.PersistedQueryGuard = DefaultPersistedQueryGuard
	}
	if o.ConstantInline == nil {
		o.ConstantInline = DefaultConstantInline
	}
	return o
}

var apiVersionPathPattern = regexp.MustCompile(`^/api/v\d+(/|$)`)

// DefaultPersistedQueryGuard skips a group when at least half its exchanges
// carry both "variables" and "extensions" query keys on a /graphql or
// /api/v* path.
func DefaultPersistedQueryGuard(paths []string, queryKeySets [][]string) bool {
	if len(paths) == 0 {
		return false
	}
	matches := 0
	for i, p := range paths {
		if !strings.Contains(p, "/graphql") && !apiVersionPathPattern.MatchString(p) {
			continue
		}
		hasVariables, hasExtensions := false, false
		for _, k := range queryKeySets[i] {
			switch k {
			case "variables":
				hasVariables = true
			case "extensions":
				hasExtensions = true
			}
		}
		if hasVariables && hasExtensions {
			matches++
		}
	}
	return matches*2 >= len(paths)
}

var longHexPattern = regexp.MustCompile(`^[0-9a-fA-F]{32,}$`)

// DefaultConstantInline treats a position as a baked-in constant when every
// sample carries the same long hex token and no other operation uses it.
func DefaultConstantInline(values []string, sharedElsewhere bool) bool {
	if len(values) != 1 || sharedElsewhere {
		return false
	}
	return longHexPattern.MatchString(values[0])
}

// generalize is the cross-exchange pass: positions whose raw value varies
// across same-shaped paths become parameters, provided the group keeps at
// least one shared literal segment as an anchor.
func generalize(entries []*entry, opts Options) {
	groups := make(map[string][]*entry)
	for _, en := range entries {
		key := fmt.Sprintf("%s|%s|%d", en.fp.Method, en.domain, len(en.rawSegs))
		groups[key] = append(groups[key], en)
	}

	for _, group := range groups {
		if len(group) < 2 {
			continue
		}

		paths := make([]string, len(group))
		queryKeySets := make([][]string, len(group))
		for i, en := range group {
			paths[i] = strings.Join(en.rawSegs, "/")
			queryKeySets[i] = en.fp.QueryKeys
		}
		if opts.PersistedQueryGuard(paths, queryKeySets) {
			continue
		}

		segCount := len(group[0].rawSegs)
		varying := make([]bool, segCount)
		hasAnchor := false

		for pos := 0; pos < segCount; pos++ {
			distinct := make(map[string]bool)
			parameterized := false
			fragment := false
			for _, en := range group {
				raw := en.rawSegs[pos]
				distinct[raw] = true
				if strings.HasPrefix(en.tmplSegs[pos], "{") {
					parameterized = true
				}
				if strings.Contains(raw, "#") {
					fragment = true
				}
			}
			if len(distinct) > 1 && !parameterized && !fragment {
				varying[pos] = true
			}
			// A literal anchor: identical raw value everywhere, untouched
			// by single-exchange normalization.
			if len(distinct) == 1 && !parameterized && group[0].rawSegs[pos] != "" {
				hasAnchor = true
			}
		}

		anyVarying := false
		for _, v := range varying {
			anyVarying = v || anyVarying
		}
		if !anyVarying || !hasAnchor {
			// Without a shared literal the paths are unrelated; merging
			// them would invent an endpoint that never existed.
			continue
		}

		for pos := 0; pos < segCount; pos++ {
			if !varying[pos] {
				continue
			}
			prev := ""
			if pos > 0 {
				prev = group[0].rawSegs[pos-1]
			}
			name := deriveParamName(prev, group[0])
			for _, en := range group {
				raw := en.rawSegs[pos]
				en.tmplSegs[pos] = "{" + name + "}"
				en.params = append(en.params, routes.PathParam{
					Name:    name,
					Type:    paramTypeOf(raw),
					Example: raw,
				})
			}
		}
	}
}

// deriveParamName mirrors the single-exchange naming rule, with a numeric
// suffix when the name is already taken within the path.
func deriveParamName(prevStatic string, en *entry) string {
	base := routes.DeriveParamName(prevStatic)
	name := base
	for n := 2; ; n++ {
		taken := false
		for _, p := range en.params {
			if p.Name == name {
				taken = true
				break
			}
		}
		if !taken {
			return name
		}
		name = fmt.Sprintf("%s%d", base, n)
	}
}

func paramTypeOf(raw string) routes.ParamType {
	if t := routes.ClassifyValue(raw); t != routes.TypeUnknown {
		return t
	}
	return routes.TypeString
}

// inlineConstants is the producer-confirmed constant pass: a parameterized
// position whose only observed value is an operation-unique long hex token
// is folded back into the template as a literal.
func inlineConstants(entries []*entry, opts Options) {
	// Group by final template so values are collected per logical endpoint.
	groups := make(map[string][]*entry)
	for _, en := range entries {
		key := en.fp.Method + "|" + en.domain + "|" + strings.Join(en.tmplSegs, "/")
		groups[key] = append(groups[key], en)
	}

	// Count, per raw value, how many distinct groups observe it at a
	// parameterized position.
	valueGroups := make(map[string]map[string]bool)
	for key, group := range groups {
		for _, en := range group {
			for pos, seg := range en.tmplSegs {
				if strings.HasPrefix(seg, "{") {
					raw := en.rawSegs[pos]
					if valueGroups[raw] == nil {
						valueGroups[raw] = make(map[string]bool)
					}
					valueGroups[raw][key] = true
				}
			}
		}
	}

	for _, group := range groups {
		segCount := len(group[0].tmplSegs)
		for pos := 0; pos < segCount; pos++ {
			if !strings.HasPrefix(group[0].tmplSegs[pos], "{") {
				continue
			}
			distinct := make(map[string]bool)
			for _, en := range group {
				distinct[en.rawSegs[pos]] = true
			}
			values := make([]string, 0, len(distinct))
			shared := false
			for v := range distinct {
				values = append(values, v)
				if len(valueGroups[v]) > 1 {
					shared = true
				}
			}
			if !opts.ConstantInline(values, shared) {
				continue
			}
			literal := values[0]
			paramName := strings.Trim(group[0].tmplSegs[pos], "{}")
			for _, en := range group {
				en.tmplSegs[pos] = literal
				en.params = removeParam(en.params, paramName)
			}
		}
	}
}

func removeParam(params []routes.PathParam, name string) []routes.PathParam {
	out := params[:0]
	for _, p := range params {
		if p.Name != name {
			out = append(out, p)
		}
	}
	return out
}
