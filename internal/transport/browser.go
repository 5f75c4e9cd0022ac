package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserTransport evaluates fetch calls inside a controlled browser page
// anchored on the target origin, so the request carries the page's real TLS
// fingerprint, cookies, and header order. Preferred whenever a browser is
// reachable.
type BrowserTransport struct {
	controlURL string

	mu      sync.Mutex
	browser *rod.Browser
	pages   map[string]*rod.Page // origin -> evaluation context
	failed  bool
}

// NewBrowserTransport attaches to an existing browser when controlURL is
// set, otherwise launches a headless instance on first use.
func NewBrowserTransport(controlURL string) *BrowserTransport {
	return &BrowserTransport{controlURL: controlURL, pages: make(map[string]*rod.Page)}
}

func (t *BrowserTransport) Name() string { return "browser" }

// Available reports whether a browser connection exists or can be
// established. A failed connect is remembered so selection falls through
// quickly on subsequent calls.
func (t *BrowserTransport) Available() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.browser != nil {
		return true
	}
	if t.failed {
		return false
	}
	if err := t.connectLocked(); err != nil {
		t.failed = true
		return false
	}
	return true
}

// Connect establishes the browser connection eagerly.
func (t *BrowserTransport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.browser != nil {
		return nil
	}
	return t.connectLocked()
}

func (t *BrowserTransport) connectLocked() error {
	controlURL := t.controlURL
	if controlURL == "" {
		u, err := launcher.New().Headless(true).Launch()
		if err != nil {
			return fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
	}
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("connect browser: %w", err)
	}
	t.browser = b
	return nil
}

// Close shuts down the browser and all evaluation pages.
func (t *BrowserTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.browser == nil {
		return nil
	}
	err := t.browser.Close()
	t.browser = nil
	t.pages = make(map[string]*rod.Page)
	return err
}

type fetchResult struct {
	Status      int               `json:"status"`
	Headers     map[string]string `json:"headers"`
	Body        string            `json:"body"`
	ContentType string            `json:"contentType"`
}

// fetchJS runs in page context. credentials:include rides the page's own
// cookie jar, which is exactly the point of this transport.
const fetchJS = `async (method, url, headers, body) => {
	const init = { method, headers, credentials: 'include' };
	if (body) init.body = body;
	const resp = await fetch(url, init);
	const text = await resp.text();
	const hdrs = {};
	resp.headers.forEach((v, k) => { hdrs[k] = v; });
	return {
		status: resp.status,
		headers: hdrs,
		body: text,
		contentType: resp.headers.get('content-type') || '',
	};
}`

func (t *BrowserTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, req.timeout())
	defer cancel()

	page, err := t.pageFor(req.URL)
	if err != nil {
		return nil, err
	}
	page = page.Context(ctx)

	var body any
	if req.Body != "" {
		body = req.Body
	}
	res, err := page.Eval(fetchJS, req.Method, req.URL, req.Headers, body)
	if err != nil {
		return nil, fmt.Errorf("browser fetch: %w", err)
	}

	raw, err := json.Marshal(res.Value.Val())
	if err != nil {
		return nil, fmt.Errorf("browser fetch: decode result: %w", err)
	}
	var fr fetchResult
	if err := json.Unmarshal(raw, &fr); err != nil {
		return nil, fmt.Errorf("browser fetch: decode result: %w", err)
	}

	bodyText := fr.Body
	if req.MaxBodyBytes > 0 && int64(len(bodyText)) > req.MaxBodyBytes {
		bodyText = bodyText[:req.MaxBodyBytes]
	}
	// fetch() cannot read Set-Cookie; the page jar absorbs it instead, so
	// nothing is surfaced here.
	return &Response{
		Status:      fr.Status,
		Headers:     fr.Headers,
		Body:        bodyText,
		ContentType: fr.ContentType,
	}, nil
}

// pageFor returns the evaluation page for the request's origin, creating
// and navigating one on first use so same-origin fetch rules apply.
func (t *BrowserTransport) pageFor(rawURL string) (*rod.Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	origin := u.Scheme + "://" + u.Host

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.browser == nil {
		if err := t.connectLocked(); err != nil {
			return nil, err
		}
	}
	if p, ok := t.pages[origin]; ok {
		return p, nil
	}

	page, err := t.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	if err := page.Navigate(origin + "/"); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("navigate %s: %w", origin, err)
	}
	_ = page.WaitLoad()

	t.pages[origin] = page
	return page, nil
}

// OriginOf is a helper for callers that want to pre-warm a page.
func OriginOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}
