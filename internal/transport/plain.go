package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// PlainTransport is the fallback: a regular net/http client. Always
// available, but its TLS fingerprint is distinguishable from a browser's,
// so callers should strip browser context headers before using it.
type PlainTransport struct {
	client *http.Client
}

func NewPlainTransport() *PlainTransport {
	return &PlainTransport{
		client: &http.Client{
			Timeout: DefaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
	}
}

func (t *PlainTransport) Name() string    { return "plain" }
func (t *PlainTransport) Available() bool { return true }

func (t *PlainTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, req.timeout())
	defer cancel()

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if req.MaxBodyBytes > 0 {
		reader = io.LimitReader(resp.Body, req.MaxBodyBytes)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	out := &Response{
		Status:      resp.StatusCode,
		Headers:     make(map[string]string, len(resp.Header)),
		Body:        string(data),
		ContentType: resp.Header.Get("Content-Type"),
		SetCookies:  resp.Header.Values("Set-Cookie"),
	}
	for k, vals := range resp.Header {
		if len(vals) > 0 {
			out.Headers[strings.ToLower(k)] = vals[0]
		}
	}
	return out, nil
}

// SetTimeout adjusts the client-level ceiling. Per-request timeouts still
// apply on top via context.
func (t *PlainTransport) SetTimeout(d time.Duration) { t.client.Timeout = d }
