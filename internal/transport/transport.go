// Package transport abstracts how a replayed request reaches the network:
// through a controlled browser page, an impersonating client with a real
// browser TLS fingerprint, or a plain HTTP client.
package transport

import (
	"context"
	"time"

	"github.com/usestring/apilearn/pkg/contenttype"
)

// DefaultTimeout bounds any single network call regardless of transport.
const DefaultTimeout = 30 * time.Second

// Request is the transport-independent call description. Headers are
// already fully merged by the caller.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
	// Timeout overrides DefaultTimeout when positive.
	Timeout time.Duration
	// MaxBodyBytes caps the response body; zero means no cap.
	MaxBodyBytes int64
}

// Response is the transport-independent result.
type Response struct {
	Status      int
	Headers     map[string]string
	// SetCookies holds every Set-Cookie value separately since the
	// flattened header map cannot represent repeats.
	SetCookies []string
	Body       string
	ContentType string
}

// IsHTML reports whether the response carried an HTML payload.
func (r *Response) IsHTML() bool {
	return contenttype.Classify(r.ContentType) == contenttype.HTML
}

// Transport issues one request. Implementations must honor ctx cancellation
// and their own bounded timeout.
type Transport interface {
	Name() string
	Available() bool
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Select returns the first available transport in preference order:
// browser first for its authentic fingerprint, then an impersonating
// client, then plain HTTP. Candidates may be nil.
func Select(candidates ...Transport) Transport {
	for _, t := range candidates {
		if t != nil && t.Available() {
			return t
		}
	}
	return nil
}

func (r *Request) timeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return DefaultTimeout
}
