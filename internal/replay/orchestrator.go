package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/usestring/apilearn/internal/credrefresh"
	"github.com/usestring/apilearn/internal/headerprofile"
	"github.com/usestring/apilearn/internal/trafficpolicy"
	"github.com/usestring/apilearn/internal/transport"
)

// State traces where one call is in its lifecycle.
type State string

const (
	StateIdle             State = "idle"
	StateHeaderResolution State = "header_resolution"
	StateTransportSelect  State = "transport_select"
	StateExecuting        State = "executing"
	StateSuccess          State = "success"
	StateAuthFailure      State = "auth_failure"
	StateTransientFailure State = "transient_failure"
	StateFatal            State = "fatal"
)

// maxBackoff caps server-suggested waits; a hostile Retry-After must not
// stall a chain for minutes.
const maxBackoff = 30 * time.Second

// Call is one endpoint invocation request.
type Call struct {
	Method          string
	URL             string
	Body            string
	HeaderOverrides map[string]string
	Timeout         time.Duration
	MaxBodyBytes    int64
}

// StepResult is the outcome of one call.
type StepResult struct {
	Call        Call
	State       State
	Status      int
	Body        string
	ContentType string
	IsHTML      bool
	Transport   string
	Duration    time.Duration
	// RetryAfter is the capped server-suggested wait on transient failure.
	RetryAfter time.Duration
	Err        error
	Refreshed  bool
}

// Success reports whether the step landed a 2xx.
func (r *StepResult) Success() bool { return r.State == StateSuccess }

// Options wires the orchestrator's collaborators. Transports are tried in
// the order given; pass browser, impersonate, plain.
type Options struct {
	Transports []transport.Transport
	Profile    *headerprofile.Profile
	Refresher  *credrefresh.Controller
	Policy     *trafficpolicy.Policy
	// Rate bounds outgoing calls; nil means unlimited.
	Limiter *rate.Limiter
	Logger  *slog.Logger
}

// Orchestrator executes single calls through the header-resolution,
// transport-selection, and execution states, with one refresh-and-retry
// cycle on auth failure.
type Orchestrator struct {
	transports []transport.Transport
	profile    *headerprofile.Profile
	refresher  *credrefresh.Controller
	policy     *trafficpolicy.Policy
	limiter    *rate.Limiter
	log        *slog.Logger
}

func NewOrchestrator(opts Options) *Orchestrator {
	if opts.Policy == nil {
		opts.Policy = trafficpolicy.Default()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if len(opts.Transports) == 0 {
		opts.Transports = []transport.Transport{transport.NewPlainTransport()}
	}
	return &Orchestrator{
		transports: opts.Transports,
		profile:    opts.Profile,
		refresher:  opts.Refresher,
		policy:     opts.Policy,
		limiter:    opts.Limiter,
		log:        opts.Logger,
	}
}

// contextHeaders are browser-environment headers that betray a mismatch
// when sent over a plain client whose TLS fingerprint is not a browser's.
var contextHeaders = []string{
	"user-agent", "accept", "accept-language", "accept-encoding",
	"referer", "origin", "sec-ch-ua", "sec-ch-ua-mobile",
	"sec-ch-ua-platform", "sec-fetch-dest", "sec-fetch-mode",
	"sec-fetch-site", "sec-fetch-user",
}

// Execute runs one call against the session, mutating the session with any
// cookies or session headers the response sets.
func (o *Orchestrator) Execute(ctx context.Context, call Call, sess *Session) *StepResult {
	res := o.executeOnce(ctx, call, sess)
	if res.State != StateAuthFailure || o.refresher == nil {
		return res
	}

	// One refresh-and-retry cycle per run. A second 401/403 is terminal.
	cred, err := o.refresher.RefreshOnce(ctx)
	if err != nil {
		o.log.Warn("credential refresh failed", "url", call.URL, "error", err)
		res.State = StateFatal
		res.Err = fmt.Errorf("auth failure and refresh failed: %w", err)
		return res
	}
	applyCredential(sess, cred)

	retry := o.executeOnce(ctx, call, sess)
	retry.Refreshed = true
	if retry.State == StateAuthFailure {
		retry.State = StateFatal
		retry.Err = errors.New("auth failure persisted after refresh")
	}
	return retry
}

func (o *Orchestrator) executeOnce(ctx context.Context, call Call, sess *Session) *StepResult {
	res := &StepResult{Call: call, State: StateTransportSelect}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	tr := transport.Select(o.transports...)
	if tr == nil {
		res.State = StateFatal
		res.Err = errors.New("no transport available")
		return res
	}
	res.Transport = tr.Name()

	res.State = StateHeaderResolution
	headers := o.resolveHeaders(call, sess, tr.Name())

	res.State = StateExecuting
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			res.State = StateTransientFailure
			res.Err = err
			return res
		}
	}

	resp, err := tr.Do(ctx, &transport.Request{
		Method:       call.Method,
		URL:          call.URL,
		Headers:      headers,
		Body:         call.Body,
		Timeout:      call.Timeout,
		MaxBodyBytes: call.MaxBodyBytes,
	})
	if err != nil {
		// Timeouts and network errors are transient; the caller's retry
		// policy decides what to do with them.
		res.State = StateTransientFailure
		res.Err = err
		return res
	}

	res.Status = resp.Status
	res.Body = resp.Body
	res.ContentType = resp.ContentType
	res.IsHTML = resp.IsHTML()

	sess.Absorb(resp.Headers, resp.SetCookies, time.Now())

	switch {
	case resp.Status >= 200 && resp.Status < 300:
		res.State = StateSuccess
	case resp.Status == http.StatusUnauthorized || resp.Status == http.StatusForbidden:
		res.State = StateAuthFailure
		res.Err = fmt.Errorf("status %d", resp.Status)
	case resp.Status == http.StatusTooManyRequests || resp.Status >= 500:
		res.State = StateTransientFailure
		res.Err = fmt.Errorf("status %d", resp.Status)
		res.RetryAfter = backoffFor(resp)
	default:
		res.State = StateFatal
		res.Err = fmt.Errorf("status %d", resp.Status)
	}
	return res
}

// resolveHeaders layers headers in precedence order: domain template,
// endpoint overrides, session/auth headers, cookies last. Context headers
// are dropped for the plain transport.
func (o *Orchestrator) resolveHeaders(call Call, sess *Session, transportName string) map[string]string {
	bag := make(HeaderBag)

	if o.profile != nil {
		if u, err := url.Parse(call.URL); err == nil {
			bag = NewHeaderBag(o.profile.HeadersFor(u.Hostname(), call.Method, u.Path))
		}
	}
	bag = bag.Overlay(NewHeaderBag(call.HeaderOverrides))
	bag = bag.Overlay(sess.Headers)

	if transportName == "plain" {
		bag = bag.Without(contextHeaders...)
	}
	// The browser page supplies cookies from its own jar.
	if transportName != "browser" {
		if cookie := sess.Cookies.HeaderValue(); cookie != "" {
			bag["cookie"] = cookie
		}
	}
	return bag
}

func applyCredential(sess *Session, cred *credrefresh.Credential) {
	if cred == nil {
		return
	}
	for k, v := range cred.Headers {
		sess.Headers[strings.ToLower(k)] = v
	}
	if cred.Token != "" {
		sess.Headers["authorization"] = "Bearer " + cred.Token
	}
	for k, v := range cred.Cookies {
		sess.Cookies[k] = v
	}
}

// backoffFor computes min(30s, max(Retry-After, body backoff hint)).
func backoffFor(resp *transport.Response) time.Duration {
	var suggested time.Duration

	if ra := resp.Headers["retry-after"]; ra != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(ra)); err == nil {
			suggested = time.Duration(secs) * time.Second
		} else if t, err := http.ParseTime(ra); err == nil {
			suggested = time.Until(t)
		}
	}

	if gjson.Valid(resp.Body) {
		parsed := gjson.Parse(resp.Body)
		for _, path := range []string{"retry_after", "retryAfter", "retry_in", "backoff"} {
			if v := parsed.Get(path); v.Exists() {
				if d := time.Duration(v.Float() * float64(time.Second)); d > suggested {
					suggested = d
				}
			}
		}
	}

	if suggested <= 0 {
		return 0
	}
	if suggested > maxBackoff {
		return maxBackoff
	}
	return suggested
}
