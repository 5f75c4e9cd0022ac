package rank

import (
	"strings"
	"unicode"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "for": true,
	"to": true, "in": true, "on": true, "at": true, "with": true,
	"and": true, "or": true, "is": true, "are": true, "was": true,
	"get": true, "show": true, "find": true, "fetch": true, "give": true,
	"me": true, "my": true, "all": true, "some": true, "any": true,
	"what": true, "which": true, "from": true, "list": true, "current": true,
	"latest": true, "please": true,
}

// synonyms widens intent tokens toward the vocabulary APIs actually use.
// Keys and values are post-stemming forms.
var synonyms = map[string][]string{
	"price":    {"cost", "quote", "rate", "market", "ticker"},
	"cost":     {"price", "quote", "rate"},
	"search":   {"query", "lookup", "suggest"},
	"user":     {"account", "profile", "member"},
	"account":  {"user", "profile"},
	"order":    {"purchase", "transaction", "trade"},
	"product":  {"item", "listing", "sku"},
	"item":     {"product", "listing"},
	"message":  {"comment", "post", "thread"},
	"weather":  {"forecast", "condition"},
	"schedule": {"timetable", "calendar", "event"},
	"stat":     {"metric", "summary", "analytic"},
	"news":     {"article", "feed", "story"},
}

// stem applies cheap suffix stripping. Enough to line up "prices" with
// "price" and "trading" with "trade"; anything smarter is overkill for
// path-segment vocabularies.
func stem(w string) string {
	switch {
	case strings.HasSuffix(w, "ies") && len(w) > 4:
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "ing") && len(w) > 5:
		return w[:len(w)-3]
	case strings.HasSuffix(w, "es") && len(w) > 4:
		return w[:len(w)-2]
	case strings.HasSuffix(w, "ed") && len(w) > 4:
		return w[:len(w)-2]
	case strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") && len(w) > 3:
		return w[:len(w)-1]
	}
	return w
}

// splitWords breaks an identifier or phrase on non-alphanumerics and
// camelCase boundaries, lowercasing each word.
func splitWords(s string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 1 {
			words = append(words, strings.ToLower(cur.String()))
		}
		cur.Reset()
	}
	var prev rune
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			if unicode.IsUpper(r) && unicode.IsLower(prev) {
				flush()
			}
			cur.WriteRune(r)
		case unicode.IsDigit(r):
			cur.WriteRune(r)
		default:
			flush()
		}
		prev = r
	}
	flush()
	return words
}

// intentTokens tokenizes a natural-language intent: stopword-filtered,
// stemmed, and synonym-expanded.
func intentTokens(intent string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, w := range splitWords(intent) {
		if stopwords[w] {
			continue
		}
		t := stem(w)
		add(t)
		for _, syn := range synonyms[t] {
			add(syn)
		}
	}
	return out
}
