package replay

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// csrfMetaNames are <meta> names that carry an anti-forgery token. The
// matching request header is derived from the meta name itself when it
// already looks like a header, otherwise x-csrf-token is used.
var csrfMetaNames = map[string]string{
	"csrf-token":   "x-csrf-token",
	"csrf_token":   "x-csrf-token",
	"xsrf-token":   "x-xsrf-token",
	"x-csrf-token": "x-csrf-token",
	"_token":       "x-csrf-token",
}

// csrfInputNames are hidden form input names that carry an anti-forgery
// token worth replaying as a header.
var csrfInputNames = map[string]string{
	"csrf_token":          "x-csrf-token",
	"csrfmiddlewaretoken": "x-csrftoken",
	"_token":              "x-csrf-token",
	"__requestverificationtoken": "requestverificationtoken",
	"authenticity_token":  "x-csrf-token",
}

// HarvestHTML scans an HTML response for anti-forgery tokens in meta tags
// and hidden form inputs and folds them into the session headers. Many
// services mint these tokens on page load and reject API calls without
// them, so an HTML prerequisite step is often the only source.
func HarvestHTML(sess *Session, body string) int {
	if sess == nil || body == "" {
		return 0
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(body)))
	if err != nil {
		return 0
	}

	found := 0
	doc.Find("meta[name][content]").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		header, ok := csrfMetaNames[strings.ToLower(name)]
		if !ok {
			return
		}
		content, _ := s.Attr("content")
		if content == "" {
			return
		}
		sess.Headers[header] = content
		found++
	})

	doc.Find(`input[type="hidden"][name][value]`).Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		header, ok := csrfInputNames[strings.ToLower(name)]
		if !ok {
			return
		}
		value, _ := s.Attr("value")
		if value == "" {
			return
		}
		// A meta tag wins over a form input for the same header.
		if _, exists := sess.Headers[header]; exists {
			return
		}
		sess.Headers[header] = value
		found++
	})

	return found
}
