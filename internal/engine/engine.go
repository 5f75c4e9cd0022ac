// Package engine wires the full pipeline: capture ingestion, endpoint
// cataloguing, correlation, ranking, and replay, behind one facade the CLI
// drives.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/usestring/apilearn/internal/cache"
	"github.com/usestring/apilearn/internal/catalog"
	"github.com/usestring/apilearn/internal/config"
	"github.com/usestring/apilearn/internal/correlation"
	"github.com/usestring/apilearn/internal/credrefresh"
	"github.com/usestring/apilearn/internal/harlog"
	"github.com/usestring/apilearn/internal/headerprofile"
	"github.com/usestring/apilearn/internal/index"
	"github.com/usestring/apilearn/internal/ingest"
	"github.com/usestring/apilearn/internal/rank"
	"github.com/usestring/apilearn/internal/replay"
	"github.com/usestring/apilearn/internal/trafficpolicy"
	"github.com/usestring/apilearn/internal/transport"
)

// Engine holds the learned model of one capture batch and the replay
// machinery built from it.
type Engine struct {
	cfg    *config.Config
	log    *slog.Logger
	policy *trafficpolicy.Policy

	exchanges []harlog.Exchange
	result    *ingest.Result
	cat       *catalog.Catalog
	idx       *index.Index
	bodies    *cache.BodyCache
	graph     *correlation.Graph
	ranker    *rank.Ranker
	profile   *headerprofile.Profile

	store     credrefresh.Store
	refresher *credrefresh.Controller
	scheduler *credrefresh.Scheduler

	browser *transport.BrowserTransport
	orch    *replay.Orchestrator
}

// New builds an engine from configuration. Nothing is learned until
// LearnHAR runs.
func New(cfg *config.Config, log *slog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.Load()
	}
	if log == nil {
		log = slog.Default()
	}
	bodies, err := cache.NewBodyCache(cfg.BodyCacheMaxItems)
	if err != nil {
		return nil, fmt.Errorf("body cache: %w", err)
	}

	var store credrefresh.Store
	if cfg.CredStorePath != "" {
		fs, err := credrefresh.NewFileStore(cfg.CredStorePath)
		if err != nil {
			return nil, err
		}
		store = fs
	} else {
		store = credrefresh.NewMemoryStore()
	}

	return &Engine{
		cfg:    cfg,
		log:    log,
		policy: trafficpolicy.Default(),
		bodies: bodies,
		store:  store,
	}, nil
}

// LearnHAR runs the full learning pipeline over raw HAR bytes. seedURL
// anchors domain filtering and service election.
func (e *Engine) LearnHAR(ctx context.Context, data []byte, seedURL string) error {
	exchanges, err := harlog.Decode(data)
	if err != nil {
		return fmt.Errorf("decode capture: %w", err)
	}
	e.exchanges = exchanges

	ing := ingest.New(e.policy)
	res := ing.Ingest(exchanges, seedURL)
	e.result = res

	e.cat = catalog.Build(res, catalog.Options{})
	e.idx = index.Build(res.Exchanges)

	builder := correlation.NewBuilder(e.idx, e.bodies, e.log)
	if e.cfg.MinCorrelationLen > 0 {
		builder.SetMinValueLength(e.cfg.MinCorrelationLen)
	}
	e.graph = builder.Build(res.Exchanges)

	e.ranker = rank.New(rank.Options{Policy: e.policy})
	e.profile = headerprofile.Build(res.Exchanges, e.policy)

	e.setupReplay(ctx)

	e.log.Info("capture learned",
		"exchanges", len(exchanges),
		"kept", len(res.Exchanges),
		"endpoints", len(e.cat.Groups),
		"edges", len(e.graph.Edges),
		"service", res.Service)
	return nil
}

func (e *Engine) setupReplay(ctx context.Context) {
	var transports []transport.Transport
	if !e.cfg.DisableBrowser {
		e.browser = transport.NewBrowserTransport(e.cfg.BrowserControlURL)
		transports = append(transports, e.browser)
	}
	if e.cfg.ImpersonateCmd != "" {
		transports = append(transports, transport.NewImpersonateTransport(e.cfg.ImpersonateCmd))
	}
	transports = append(transports, transport.NewPlainTransport())

	e.refresher = e.buildRefresher()

	var limiter *rate.Limiter
	if e.cfg.RateLimitPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(e.cfg.RateLimitPerSec), e.cfg.RateBurst)
	}

	e.orch = replay.NewOrchestrator(replay.Options{
		Transports: transports,
		Profile:    e.profile,
		Refresher:  e.refresher,
		Policy:     e.policy,
		Limiter:    limiter,
		Logger:     e.log,
	})

	mode := credrefresh.ModeNormal
	if e.cfg.DiagnosticMode {
		mode = credrefresh.ModeDiagnosticNoop
	}
	e.scheduler = credrefresh.NewScheduler(mode, e.cfg.RefreshInterval, e.cfg.RefreshBuffer, e.log)
	if e.refresher != nil {
		key := e.credentialKey()
		e.scheduler.Manage(key, &credrefresh.Scheduled{
			Controller: e.refresher,
			ExpiresAt: func() time.Time {
				cred, err := e.store.Get(key)
				if err != nil || cred == nil {
					return time.Time{}
				}
				return cred.ExpiresAt
			},
		})
	}
	e.scheduler.Start(ctx)
}

// buildRefresher scans the capture for a refresh endpoint and seeds the
// credential store from the observed auth state.
func (e *Engine) buildRefresher() *credrefresh.Controller {
	if e.result == nil {
		return nil
	}
	items := make([]credrefresh.ScanItem, 0, len(e.result.Exchanges))
	for i := range e.result.Exchanges {
		ex := &e.result.Exchanges[i]
		items = append(items, credrefresh.ScanItem{
			URL:          ex.URL,
			Method:       ex.Method,
			RequestBody:  ex.RequestBody,
			ResponseBody: ex.ResponseBody,
		})
	}
	cfg, ok := credrefresh.ScanExchanges(items)
	if !ok {
		return nil
	}

	key := e.credentialKey()
	cred := &credrefresh.Credential{
		Headers: e.result.AuthHeaders,
		Cookies: e.result.Cookies,
	}
	if rt, ok := e.result.Cookies["refresh_token"]; ok {
		cred.RefreshToken = rt
	}
	if err := e.store.Store(key, cred); err != nil {
		e.log.Warn("seed credential store", "error", err)
	}
	return credrefresh.NewController(cfg, e.store, key, transport.NewPlainTransport(), e.log)
}

func (e *Engine) credentialKey() string {
	if e.result != nil && e.result.Service != "" {
		return e.result.Service
	}
	return "default"
}

// Catalog returns the learned endpoint catalog.
func (e *Engine) Catalog() *catalog.Catalog { return e.cat }

// CredentialRecord builds the sanitize-ready auth summary.
func (e *Engine) CredentialRecord() *ingest.CredentialRecord {
	if e.result == nil {
		return nil
	}
	rec := e.result.BuildCredentialRecord()
	return &rec
}

// HeaderProfile returns the learned per-domain header template.
func (e *Engine) HeaderProfile() *headerprofile.Profile { return e.profile }

// GraphExport flattens the correlation graph for export.
func (e *Engine) GraphExport() correlation.Export {
	if e.graph == nil {
		return correlation.Export{Version: correlation.ExportVersion}
	}
	return e.graph.ToExport()
}

// Rank orders the catalog against an intent. Returns empty, never errors,
// when nothing is rankable.
func (e *Engine) Rank(intent, domain string) []rank.Result {
	if e.cat == nil || e.ranker == nil {
		return nil
	}
	if domain == "" && e.result != nil {
		if u, err := url.Parse(e.result.BaseURL); err == nil {
			domain = u.Hostname()
		}
	}
	return e.ranker.Rank(e.cat.Groups, intent, domain)
}

// Call replays a single catalogued exchange by capture index.
func (e *Engine) Call(ctx context.Context, captureIndex int) (*replay.StepResult, error) {
	ex := e.exchangeByIndex(captureIndex)
	if ex == nil {
		return nil, fmt.Errorf("no exchange with index %d", captureIndex)
	}
	if e.refresher != nil {
		e.refresher.ResetRun()
	}
	call := replay.Call{
		Method:       ex.Method,
		URL:          ex.URL,
		Body:         ex.RequestBody,
		Timeout:      e.cfg.RequestTimeout,
		MaxBodyBytes: int64(e.cfg.MaxBodyBytes),
	}
	sess := e.baseSession()
	return e.orch.ExecuteWithRetry(ctx, call, sess, replay.DefaultRetryConfig()), nil
}

// RunChain plans and executes the dependency chain for a target exchange.
func (e *Engine) RunChain(ctx context.Context, target int) (*replay.ChainResult, *replay.ExecutionTrace, error) {
	if e.graph == nil || e.orch == nil {
		return nil, nil, fmt.Errorf("no capture learned")
	}
	if e.refresher != nil {
		e.refresher.ResetRun()
	}
	exec := replay.NewChainExecutor(e.orch, e.graph, e.result.Exchanges)
	return exec.Run(ctx, target, e.baseSession())
}

// baseSession seeds a session with the captured auth headers and cookies.
func (e *Engine) baseSession() *replay.Session {
	sess := replay.NewSession()
	if e.result == nil {
		return sess
	}
	for k, v := range e.result.AuthHeaders {
		sess.Headers[strings.ToLower(k)] = v
	}
	for k, v := range e.result.Cookies {
		sess.Cookies[k] = v
	}
	return sess
}

func (e *Engine) exchangeByIndex(idx int) *harlog.Exchange {
	if e.result == nil {
		return nil
	}
	for i := range e.result.Exchanges {
		if e.result.Exchanges[i].Index == idx {
			return &e.result.Exchanges[i]
		}
	}
	return nil
}

// Close releases transport resources.
func (e *Engine) Close() error {
	if e.browser != nil {
		return e.browser.Close()
	}
	return nil
}
