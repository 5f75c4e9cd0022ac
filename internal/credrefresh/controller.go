package credrefresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/itchyny/gojq"
	"golang.org/x/sync/singleflight"

	"github.com/usestring/apilearn/internal/transport"
)

// Credential is the managed secret state for one service.
type Credential struct {
	Token           string            `json:"token"`
	RefreshToken    string            `json:"refreshToken"`
	ExpiresAt       time.Time         `json:"expiresAt"`
	LastRefreshedAt time.Time         `json:"lastRefreshedAt"`
	Headers         map[string]string `json:"headers,omitempty"`
	Cookies         map[string]string `json:"cookies,omitempty"`
}

// Store is the external credential persistence collaborator.
type Store interface {
	Get(key string) (*Credential, error)
	Store(key string, cred *Credential) error
	Delete(key string) error
}

// ErrAlreadyFailed is returned when a refresh was attempted this run and
// failed; callers must not retry within the same run.
var ErrAlreadyFailed = errors.New("credrefresh: refresh already failed this run")

type refreshState int

const (
	stateIdle refreshState = iota
	stateRefreshing
	stateDone
	stateFailed
)

// Controller performs at most one refresh per run regardless of how many
// calls fail with 401/403 concurrently. Concurrent callers collapse onto a
// single network attempt and all observe its outcome.
type Controller struct {
	cfg   *RefreshConfig
	store Store
	key   string
	tr    transport.Transport
	log   *slog.Logger

	group singleflight.Group

	mu      sync.Mutex
	state   refreshState
	lastErr error
}

func NewController(cfg *RefreshConfig, store Store, key string, tr transport.Transport, log *slog.Logger) *Controller {
	if tr == nil {
		tr = transport.NewPlainTransport()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Controller{cfg: cfg, store: store, key: key, tr: tr, log: log}
}

// ResetRun rearms the once-per-run latch. Called at the start of each
// orchestration run.
func (c *Controller) ResetRun() {
	c.mu.Lock()
	c.state = stateIdle
	c.lastErr = nil
	c.mu.Unlock()
}

// RefreshOnce refreshes the credential, collapsing concurrent callers and
// refusing a second attempt in the same run.
func (c *Controller) RefreshOnce(ctx context.Context) (*Credential, error) {
	c.mu.Lock()
	switch c.state {
	case stateDone:
		c.mu.Unlock()
		return c.store.Get(c.key)
	case stateFailed:
		err := c.lastErr
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrAlreadyFailed, err)
	}
	c.state = stateRefreshing
	c.mu.Unlock()

	v, err, _ := c.group.Do("refresh", func() (any, error) {
		return c.refresh(ctx)
	})

	c.mu.Lock()
	if err != nil {
		c.state = stateFailed
		c.lastErr = err
	} else {
		c.state = stateDone
	}
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return v.(*Credential), nil
}

// Refresh performs one refresh without the run latch; the scheduler uses
// this path since its interval is its own dedup mechanism.
func (c *Controller) Refresh(ctx context.Context) (*Credential, error) {
	v, err, _ := c.group.Do("refresh", func() (any, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Credential), nil
}

func (c *Controller) refresh(ctx context.Context) (*Credential, error) {
	if c.cfg == nil {
		return nil, errors.New("credrefresh: no refresh config")
	}
	cred, err := c.store.Get(c.key)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if cred == nil || cred.RefreshToken == "" {
		return nil, errors.New("credrefresh: no refresh token on record")
	}

	req, err := c.buildRequest(cred)
	if err != nil {
		return nil, err
	}
	resp, err := c.tr.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("refresh call: %w", err)
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, fmt.Errorf("refresh call: status %d", resp.Status)
	}

	token, err := extractToken(resp.Body, c.cfg.TokenPath)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	cred.Token = token
	cred.LastRefreshedAt = now
	if c.cfg.ExpiresIn > 0 {
		cred.ExpiresAt = now.Add(time.Duration(c.cfg.ExpiresIn) * time.Second)
	}
	// A rotated refresh token replaces the stored one.
	if rt, err := extractToken(resp.Body, "refresh_token"); err == nil && rt != "" {
		cred.RefreshToken = rt
	}

	if err := c.store.Store(c.key, cred); err != nil {
		return nil, fmt.Errorf("persist credential: %w", err)
	}
	c.log.Info("credential refreshed", "key", c.key, "expiresAt", cred.ExpiresAt)
	return cred, nil
}

// buildRequest renders the refresh template with the live refresh token,
// shaped per provider.
func (c *Controller) buildRequest(cred *Credential) (*transport.Request, error) {
	endpoint := c.cfg.Endpoint
	if c.cfg.Provider == ProviderFirebase {
		// Firebase carries the API key in the URL; the captured endpoint
		// already includes it, just verify it survived.
		if u, err := url.Parse(endpoint); err == nil && u.Query().Get("key") == "" {
			c.log.Warn("firebase refresh endpoint missing api key", "endpoint", endpoint)
		}
	}

	body := make(map[string]string, len(c.cfg.Body))
	for k, v := range c.cfg.Body {
		body[k] = strings.ReplaceAll(v, "${refreshToken}", cred.RefreshToken)
	}

	req := &transport.Request{
		Method:  c.cfg.Method,
		URL:     endpoint,
		Headers: map[string]string{},
	}
	if c.cfg.JSONBody && c.cfg.Provider == ProviderGeneric {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode refresh body: %w", err)
		}
		req.Body = string(data)
		req.Headers["Content-Type"] = "application/json"
	} else {
		form := url.Values{}
		for k, v := range body {
			form.Set(k, v)
		}
		req.Body = form.Encode()
		req.Headers["Content-Type"] = "application/x-www-form-urlencoded"
	}
	return req, nil
}

// extractToken evaluates the token path as a jq expression against the
// response body. Paths are plain field names or dotted chains.
func extractToken(body, path string) (string, error) {
	if path == "" {
		path = "access_token"
	}
	if !strings.HasPrefix(path, ".") {
		path = "." + path
	}
	q, err := gojq.Parse(path)
	if err != nil {
		return "", fmt.Errorf("token path %q: %w", path, err)
	}
	var input any
	if err := json.Unmarshal([]byte(body), &input); err != nil {
		return "", fmt.Errorf("refresh response not JSON: %w", err)
	}
	iter := q.Run(input)
	v, ok := iter.Next()
	if !ok || v == nil {
		return "", fmt.Errorf("token path %q: no value", path)
	}
	if err, isErr := v.(error); isErr {
		return "", fmt.Errorf("token path %q: %w", path, err)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("token path %q: not a string", path)
	}
	return s, nil
}
