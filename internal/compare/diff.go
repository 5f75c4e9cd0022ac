// Package compare detects drift between a captured response and its live
// replay. Replays rot as APIs evolve; the diff surfaces what moved so the
// catalog can be re-learned before chains start failing silently.
package compare

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/usestring/apilearn/pkg/contenttype"
	"github.com/usestring/apilearn/pkg/jsonschema"
)

// Response is the format-independent view of one HTTP response.
type Response struct {
	Status      int
	ContentType string
	Headers     map[string]string
	Body        []byte
}

// DifferenceKind labels one category of drift.
type DifferenceKind string

const (
	DiffStatus      DifferenceKind = "status"
	DiffContentType DifferenceKind = "content_type"
	DiffMissingPath DifferenceKind = "missing_path"
	DiffNewPath     DifferenceKind = "new_path"
	DiffHeader      DifferenceKind = "header"
)

// Difference records one observed divergence.
type Difference struct {
	Kind     DifferenceKind `json:"kind"`
	Field    string         `json:"field,omitempty"`
	Captured string         `json:"captured,omitempty"`
	Live     string         `json:"live,omitempty"`
}

// Report is the outcome of one captured-vs-live comparison.
type Report struct {
	Same        bool         `json:"same"`
	Differences []Difference `json:"differences,omitempty"`
}

// Options tunes which dimensions are compared.
type Options struct {
	// IgnoreHeaders lists lowercase header names excluded from the
	// header comparison. Nil means DefaultIgnoreHeaders.
	IgnoreHeaders []string
	// CompareHeaders enables response header value comparison. Off by
	// default; header noise usually drowns the signal.
	CompareHeaders bool
}

// Diff compares a captured response against a live one. Body comparison is
// structural: JSON bodies diff by key path, so value churn (new IDs, fresh
// timestamps) does not count as drift.
func Diff(captured, live Response, opts *Options) *Report {
	if opts == nil {
		opts = &Options{}
	}

	var diffs []Difference

	if captured.Status != live.Status {
		diffs = append(diffs, Difference{
			Kind:     DiffStatus,
			Captured: strconv.Itoa(captured.Status),
			Live:     strconv.Itoa(live.Status),
		})
	}

	capCT := contenttype.Classify(captured.ContentType)
	liveCT := contenttype.Classify(live.ContentType)
	if capCT != liveCT {
		diffs = append(diffs, Difference{
			Kind:     DiffContentType,
			Captured: string(capCT),
			Live:     string(liveCT),
		})
	}

	if capCT == contenttype.JSON && liveCT == contenttype.JSON {
		diffs = append(diffs, diffKeyPaths(captured.Body, live.Body)...)
	}

	if opts.CompareHeaders {
		diffs = append(diffs, diffHeaders(captured.Headers, live.Headers, opts.ignoreSet())...)
	}

	return &Report{Same: len(diffs) == 0, Differences: diffs}
}

// diffKeyPaths compares the JSON key-path sets of two bodies.
func diffKeyPaths(captured, live []byte) []Difference {
	capPaths, capOK := jsonschema.KeyPaths(captured)
	livePaths, liveOK := jsonschema.KeyPaths(live)
	if !capOK || !liveOK {
		return nil
	}

	capSet := toSet(capPaths)
	liveSet := toSet(livePaths)

	var diffs []Difference
	for _, p := range capPaths {
		if !liveSet[p] {
			diffs = append(diffs, Difference{Kind: DiffMissingPath, Field: p})
		}
	}
	for _, p := range livePaths {
		if !capSet[p] {
			diffs = append(diffs, Difference{Kind: DiffNewPath, Field: p})
		}
	}
	return diffs
}

func diffHeaders(captured, live map[string]string, ignore map[string]bool) []Difference {
	var diffs []Difference
	names := make([]string, 0, len(captured))
	for name := range captured {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		lower := strings.ToLower(name)
		if ignore[lower] {
			continue
		}
		capVal := captured[name]
		liveVal, ok := live[lower]
		if !ok {
			liveVal = live[name]
		}
		if capVal != liveVal {
			diffs = append(diffs, Difference{
				Kind:     DiffHeader,
				Field:    lower,
				Captured: capVal,
				Live:     liveVal,
			})
		}
	}
	return diffs
}

// SameRequestURL reports whether two request URLs target the same resource,
// ignoring cache-buster query parameters and key order.
func SameRequestURL(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return a == b
	}
	if ua.Host != ub.Host || ua.Path != ub.Path {
		return false
	}
	return canonicalQuery(ua) == canonicalQuery(ub)
}

func canonicalQuery(u *url.URL) string {
	ignore := toSet(DefaultIgnoreQueryKeys)
	q := u.Query()
	keys := make([]string, 0, len(q))
	for k := range q {
		if ignore[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vals := append([]string(nil), q[k]...)
		sort.Strings(vals)
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(strings.Join(vals, ","))
		b.WriteString("&")
	}
	return b.String()
}

func (o *Options) ignoreSet() map[string]bool {
	list := o.IgnoreHeaders
	if list == nil {
		list = DefaultIgnoreHeaders
	}
	return toSet(list)
}

func toSet(list []string) map[string]bool {
	set := make(map[string]bool, len(list))
	for _, item := range list {
		set[item] = true
	}
	return set
}

