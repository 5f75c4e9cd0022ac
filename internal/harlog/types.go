// Package harlog decodes HAR-style capture files into exchanges.
package harlog

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// File is the top-level HAR document.
type File struct {
	Log Log `json:"log"`
}

// Log holds the captured entries.
type Log struct {
	Entries []Entry `json:"entries"`
}

// Entry is one captured request/response pair in HAR wire format.
type Entry struct {
	StartedDateTime string   `json:"startedDateTime"`
	Time            float64  `json:"time"`
	Request         Request  `json:"request"`
	Response        Response `json:"response"`
}

// Request is the HAR request record.
type Request struct {
	Method      string      `json:"method"`
	URL         string      `json:"url"`
	Headers     []Header    `json:"headers"`
	Cookies     []Cookie    `json:"cookies"`
	QueryString []QueryPair `json:"queryString"`
	PostData    *PostData   `json:"postData"`
}

// Response is the HAR response record.
type Response struct {
	Status  int      `json:"status"`
	Headers []Header `json:"headers"`
	Content *Content `json:"content"`
}

// Header is a single name/value header pair.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Cookie is a request cookie.
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// QueryPair is one query-string parameter.
type QueryPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PostData holds the request body.
type PostData struct {
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

// Content holds the response body.
type Content struct {
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

// Exchange is one captured request/response pair, normalized for analysis.
// Index is the stable position in the capture and is used as the node
// identity in the correlation graph. Exchanges are immutable once built.
type Exchange struct {
	Index           int
	Timestamp       time.Time
	Method          string
	URL             string
	RequestHeaders  []Header
	RequestCookies  []Cookie
	RequestBody     string
	ResponseStatus  int
	ResponseHeaders []Header
	ResponseBody    string
}

// HeaderValue returns the first value of a request header, case-insensitively.
func HeaderValue(headers []Header, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// HeaderValues returns all values of a header, case-insensitively.
// Needed for Set-Cookie, which legitimately repeats.
func HeaderValues(headers []Header, name string) []string {
	var out []string
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			out = append(out, h.Value)
		}
	}
	return out
}

// ContentType returns the response content type of an exchange.
func (e *Exchange) ContentType() string {
	return HeaderValue(e.ResponseHeaders, "content-type")
}

// Decode parses a HAR document and converts its entries to exchanges.
// Malformed entries (no method or URL) are skipped, never fatal; only a
// document that is not JSON at all produces an error.
func Decode(data []byte) ([]Exchange, error) {
	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decoding HAR: %w", err)
	}
	return FromEntries(file.Log.Entries), nil
}

// FromEntries converts HAR entries to exchanges, skipping malformed ones.
// Index reflects the position among surviving entries in capture order.
func FromEntries(entries []Entry) []Exchange {
	exchanges := make([]Exchange, 0, len(entries))
	for _, entry := range entries {
		if entry.Request.Method == "" || entry.Request.URL == "" {
			continue
		}

		ex := Exchange{
			Index:           len(exchanges),
			Method:          strings.ToUpper(entry.Request.Method),
			URL:             entry.Request.URL,
			RequestHeaders:  entry.Request.Headers,
			RequestCookies:  entry.Request.Cookies,
			ResponseStatus:  entry.Response.Status,
			ResponseHeaders: entry.Response.Headers,
		}
		if ts, err := time.Parse(time.RFC3339, entry.StartedDateTime); err == nil {
			ex.Timestamp = ts
		}
		if entry.Request.PostData != nil {
			ex.RequestBody = entry.Request.PostData.Text
		}
		if entry.Response.Content != nil {
			ex.ResponseBody = entry.Response.Content.Text
		}
		exchanges = append(exchanges, ex)
	}
	return exchanges
}
