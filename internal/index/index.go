// Package index maintains inverted bitmap indexes over captured exchanges.
//
// Doc IDs are capture indices, so bitmap results translate directly into
// exchange positions. The request-token index lets the correlation builder
// narrow candidate consumers before doing verbatim value matching.
package index

import (
	"net/url"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/usestring/apilearn/internal/harlog"
)

// Index holds inverted indexes over a capture. Safe for concurrent reads
// after Build.
type Index struct {
	mu sync.RWMutex

	all         *roaring.Bitmap
	idxHost     map[string]*roaring.Bitmap
	idxMethod   map[string]*roaring.Bitmap
	idxStatus   map[int]*roaring.Bitmap
	idxReqToken map[string]*roaring.Bitmap
}

// Build indexes a slice of exchanges by host, method, status, and request
// tokens (URL, request body, request header values).
func Build(exchanges []harlog.Exchange) *Index {
	ix := &Index{
		all:         roaring.New(),
		idxHost:     make(map[string]*roaring.Bitmap),
		idxMethod:   make(map[string]*roaring.Bitmap),
		idxStatus:   make(map[int]*roaring.Bitmap),
		idxReqToken: make(map[string]*roaring.Bitmap),
	}

	for i := range exchanges {
		ex := &exchanges[i]
		docID := uint32(ex.Index)
		ix.all.Add(docID)

		if u, err := url.Parse(ex.URL); err == nil && u.Hostname() != "" {
			addTo(ix.idxHost, strings.ToLower(u.Hostname()), docID)
		}
		addTo(ix.idxMethod, ex.Method, docID)
		if ex.ResponseStatus != 0 {
			bm, ok := ix.idxStatus[ex.ResponseStatus]
			if !ok {
				bm = roaring.New()
				ix.idxStatus[ex.ResponseStatus] = bm
			}
			bm.Add(docID)
		}

		for _, token := range Tokenize(ex.URL) {
			addTo(ix.idxReqToken, token, docID)
		}
		for _, token := range Tokenize(ex.RequestBody) {
			addTo(ix.idxReqToken, token, docID)
		}
		for _, h := range ex.RequestHeaders {
			for _, token := range Tokenize(h.Value) {
				addTo(ix.idxReqToken, token, docID)
			}
		}
	}

	return ix
}

func addTo(m map[string]*roaring.Bitmap, key string, docID uint32) {
	bm, ok := m[key]
	if !ok {
		bm = roaring.New()
		m[key] = bm
	}
	bm.Add(docID)
}

// All returns a copy of the full doc-ID bitmap.
func (ix *Index) All() *roaring.Bitmap {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.all.Clone()
}

// ForHost returns the bitmap for an exact lowercase host, or nil.
func (ix *Index) ForHost(host string) *roaring.Bitmap {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.idxHost[strings.ToLower(host)]
}

// ForMethod returns the bitmap for an HTTP method, or nil.
func (ix *Index) ForMethod(method string) *roaring.Bitmap {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.idxMethod[strings.ToUpper(method)]
}

// ForStatus returns the bitmap for a response status, or nil.
func (ix *Index) ForStatus(status int) *roaring.Bitmap {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.idxStatus[status]
}

// CandidatesContaining returns exchanges whose request side contains every
// token of value. This is a superset of verbatim matches: callers must
// still confirm the value appears literally. Returns an empty bitmap when
// the value produces no tokens.
func (ix *Index) CandidatesContaining(value string) *roaring.Bitmap {
	tokens := Tokenize(value)
	if len(tokens) == 0 {
		return roaring.New()
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var result *roaring.Bitmap
	for _, token := range tokens {
		bm, ok := ix.idxReqToken[token]
		if !ok {
			return roaring.New()
		}
		if result == nil {
			result = bm.Clone()
		} else {
			result.And(bm)
		}
		if result.IsEmpty() {
			return result
		}
	}
	return result
}

// tokenDelimiters separate tokens in URLs, bodies, and header values.
const tokenDelimiters = "/?&=.,;:\"'{}[]() \t\r\n"

// Tokenize splits a string into lowercase tokens of at least two
// characters, splitting on URL and JSON punctuation.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return strings.ContainsRune(tokenDelimiters, r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}
