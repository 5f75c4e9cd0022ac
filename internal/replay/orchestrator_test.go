package replay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usestring/apilearn/internal/credrefresh"
	"github.com/usestring/apilearn/internal/transport"
)

// fakeTransport replays scripted responses in order and records every
// request it saw.
type fakeTransport struct {
	name      string
	mu        sync.Mutex
	responses []*transport.Response
	errs      []error
	requests  []*transport.Request
}

func newFakeTransport(name string) *fakeTransport {
	return &fakeTransport{name: name}
}

func (f *fakeTransport) enqueue(resp *transport.Response, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, resp)
	f.errs = append(f.errs, err)
}

func (f *fakeTransport) Name() string    { return f.name }
func (f *fakeTransport) Available() bool { return true }

func (f *fakeTransport) Do(_ context.Context, req *transport.Request) (*transport.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.responses) == 0 {
		return &transport.Response{Status: 200, Headers: map[string]string{}}, nil
	}
	resp, err := f.responses[0], f.errs[0]
	f.responses, f.errs = f.responses[1:], f.errs[1:]
	return resp, err
}

func (f *fakeTransport) lastRequest() *transport.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

func jsonResponse(status int, body string) *transport.Response {
	return &transport.Response{
		Status:      status,
		Headers:     map[string]string{"content-type": "application/json"},
		Body:        body,
		ContentType: "application/json",
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestExecuteSuccess(t *testing.T) {
	tr := newFakeTransport("plain")
	tr.enqueue(jsonResponse(200, `{"ok":true}`), nil)

	o := NewOrchestrator(Options{Transports: []transport.Transport{tr}, Logger: testLogger()})
	res := o.Execute(context.Background(), Call{Method: "GET", URL: "https://api.example.com/items"}, NewSession())

	assert.Equal(t, StateSuccess, res.State)
	assert.True(t, res.Success())
	assert.Equal(t, 200, res.Status)
	assert.Equal(t, `{"ok":true}`, res.Body)
	assert.Equal(t, "plain", res.Transport)
	assert.False(t, res.Refreshed)
}

func TestExecuteStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		want   State
	}{
		{204, StateSuccess},
		{401, StateAuthFailure},
		{403, StateAuthFailure},
		{429, StateTransientFailure},
		{500, StateTransientFailure},
		{503, StateTransientFailure},
		{404, StateFatal},
		{400, StateFatal},
	}
	for _, tc := range cases {
		tr := newFakeTransport("plain")
		tr.enqueue(jsonResponse(tc.status, ""), nil)
		o := NewOrchestrator(Options{Transports: []transport.Transport{tr}, Logger: testLogger()})

		res := o.Execute(context.Background(), Call{Method: "GET", URL: "https://x.test/"}, NewSession())
		assert.Equal(t, tc.want, res.State, "status %d", tc.status)
	}
}

func TestExecuteNetworkErrorIsTransient(t *testing.T) {
	tr := newFakeTransport("plain")
	tr.enqueue(nil, errors.New("connection refused"))

	o := NewOrchestrator(Options{Transports: []transport.Transport{tr}, Logger: testLogger()})
	res := o.Execute(context.Background(), Call{Method: "GET", URL: "https://x.test/"}, NewSession())

	assert.Equal(t, StateTransientFailure, res.State)
	assert.Error(t, res.Err)
}

func newRefresher(t *testing.T, refreshTr transport.Transport) *credrefresh.Controller {
	t.Helper()
	store := credrefresh.NewMemoryStore()
	require.NoError(t, store.Store("svc", &credrefresh.Credential{RefreshToken: "rt-1"}))
	cfg := &credrefresh.RefreshConfig{
		Endpoint:  "https://auth.example.com/oauth/token",
		Method:    "POST",
		Provider:  credrefresh.ProviderGeneric,
		Body:      map[string]string{"grant_type": "refresh_token", "refresh_token": "${refreshToken}"},
		TokenPath: "access_token",
	}
	return credrefresh.NewController(cfg, store, "svc", refreshTr, testLogger())
}

func TestExecuteRefreshesOnAuthFailure(t *testing.T) {
	tr := newFakeTransport("plain")
	tr.enqueue(jsonResponse(401, ""), nil)
	tr.enqueue(jsonResponse(200, `{"data":1}`), nil)

	refreshTr := newFakeTransport("plain")
	refreshTr.enqueue(jsonResponse(200, `{"access_token":"fresh-token"}`), nil)

	o := NewOrchestrator(Options{
		Transports: []transport.Transport{tr},
		Refresher:  newRefresher(t, refreshTr),
		Logger:     testLogger(),
	})

	sess := NewSession()
	res := o.Execute(context.Background(), Call{Method: "GET", URL: "https://api.example.com/me"}, sess)

	assert.Equal(t, StateSuccess, res.State)
	assert.True(t, res.Refreshed)
	assert.Equal(t, "Bearer fresh-token", sess.Headers["authorization"])

	// The retried request carried the new token.
	assert.Equal(t, "Bearer fresh-token", tr.lastRequest().Headers["authorization"])
	// The refresh call substituted the stored refresh token.
	assert.Contains(t, refreshTr.lastRequest().Body, "refresh_token=rt-1")
}

func TestExecutePersistedAuthFailureIsFatal(t *testing.T) {
	tr := newFakeTransport("plain")
	tr.enqueue(jsonResponse(401, ""), nil)
	tr.enqueue(jsonResponse(401, ""), nil)

	refreshTr := newFakeTransport("plain")
	refreshTr.enqueue(jsonResponse(200, `{"access_token":"fresh-token"}`), nil)

	o := NewOrchestrator(Options{
		Transports: []transport.Transport{tr},
		Refresher:  newRefresher(t, refreshTr),
		Logger:     testLogger(),
	})

	res := o.Execute(context.Background(), Call{Method: "GET", URL: "https://api.example.com/me"}, NewSession())

	assert.Equal(t, StateFatal, res.State)
	assert.True(t, res.Refreshed)
	assert.Error(t, res.Err)
}

func TestExecuteRefreshFailureIsFatal(t *testing.T) {
	tr := newFakeTransport("plain")
	tr.enqueue(jsonResponse(401, ""), nil)

	refreshTr := newFakeTransport("plain")
	refreshTr.enqueue(jsonResponse(500, ""), nil)

	o := NewOrchestrator(Options{
		Transports: []transport.Transport{tr},
		Refresher:  newRefresher(t, refreshTr),
		Logger:     testLogger(),
	})

	res := o.Execute(context.Background(), Call{Method: "GET", URL: "https://api.example.com/me"}, NewSession())
	assert.Equal(t, StateFatal, res.State)
	// No second attempt against the endpoint.
	assert.Len(t, tr.requests, 1)
}

func TestExecuteNoRefresherLeavesAuthFailure(t *testing.T) {
	tr := newFakeTransport("plain")
	tr.enqueue(jsonResponse(403, ""), nil)

	o := NewOrchestrator(Options{Transports: []transport.Transport{tr}, Logger: testLogger()})
	res := o.Execute(context.Background(), Call{Method: "GET", URL: "https://x.test/"}, NewSession())
	assert.Equal(t, StateAuthFailure, res.State)
}

func TestResolveHeadersPrecedence(t *testing.T) {
	o := NewOrchestrator(Options{Logger: testLogger()})
	sess := NewSession()
	sess.Headers["x-csrf-token"] = "session-wins"
	sess.Cookies["sid"] = "abc"

	call := Call{
		URL:             "https://api.example.com/items",
		HeaderOverrides: map[string]string{"X-CSRF-Token": "override", "Content-Type": "application/json"},
	}
	headers := o.resolveHeaders(call, sess, "impersonate")

	assert.Equal(t, "session-wins", headers["x-csrf-token"])
	assert.Equal(t, "application/json", headers["content-type"])
	assert.Equal(t, "sid=abc", headers["cookie"])
}

func TestResolveHeadersDropsContextHeadersOnPlain(t *testing.T) {
	o := NewOrchestrator(Options{Logger: testLogger()})
	sess := NewSession()

	call := Call{
		URL: "https://api.example.com/items",
		HeaderOverrides: map[string]string{
			"User-Agent":      "Mozilla/5.0",
			"Sec-Fetch-Mode":  "cors",
			"X-Custom-Header": "kept",
		},
	}

	plain := o.resolveHeaders(call, sess, "plain")
	assert.NotContains(t, plain, "user-agent")
	assert.NotContains(t, plain, "sec-fetch-mode")
	assert.Equal(t, "kept", plain["x-custom-header"])

	imp := o.resolveHeaders(call, sess, "impersonate")
	assert.Equal(t, "Mozilla/5.0", imp["user-agent"])
}

func TestResolveHeadersBrowserSkipsCookieHeader(t *testing.T) {
	o := NewOrchestrator(Options{Logger: testLogger()})
	sess := NewSession()
	sess.Cookies["sid"] = "abc"

	headers := o.resolveHeaders(Call{URL: "https://x.test/"}, sess, "browser")
	assert.NotContains(t, headers, "cookie")
}

func TestBackoffFor(t *testing.T) {
	cases := []struct {
		name string
		resp *transport.Response
		want time.Duration
	}{
		{
			name: "retry-after seconds",
			resp: &transport.Response{Headers: map[string]string{"retry-after": "5"}},
			want: 5 * time.Second,
		},
		{
			name: "capped at max",
			resp: &transport.Response{Headers: map[string]string{"retry-after": "300"}},
			want: maxBackoff,
		},
		{
			name: "body hint",
			resp: &transport.Response{Headers: map[string]string{}, Body: `{"retry_after":3}`},
			want: 3 * time.Second,
		},
		{
			name: "larger of header and body",
			resp: &transport.Response{Headers: map[string]string{"retry-after": "2"}, Body: `{"backoff":8}`},
			want: 8 * time.Second,
		},
		{
			name: "no hints",
			resp: &transport.Response{Headers: map[string]string{}},
			want: 0,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, backoffFor(tc.resp))
		})
	}
}

func TestExecuteAbsorbsSessionState(t *testing.T) {
	tr := newFakeTransport("plain")
	tr.enqueue(&transport.Response{
		Status:     200,
		Headers:    map[string]string{"x-csrf-token": "minted"},
		SetCookies: []string{"sid=xyz; Path=/"},
	}, nil)

	o := NewOrchestrator(Options{Transports: []transport.Transport{tr}, Logger: testLogger()})
	sess := NewSession()
	o.Execute(context.Background(), Call{Method: "GET", URL: "https://x.test/"}, sess)

	assert.Equal(t, "minted", sess.Headers["x-csrf-token"])
	assert.Equal(t, "xyz", sess.Cookies["sid"])
}
