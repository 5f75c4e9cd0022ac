package credrefresh

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SchedulerMode is decided by the caller at construction. DiagnosticNoop
// disables the background loop entirely so short-lived diagnostic
// invocations never block on it.
type SchedulerMode int

const (
	ModeNormal SchedulerMode = iota
	ModeDiagnosticNoop
)

const (
	// DefaultInterval is the tick period between refresh checks.
	DefaultInterval = 5 * time.Minute
	// DefaultBuffer refreshes this long before actual expiry.
	DefaultBuffer = 10 * time.Minute
	// initialDelay defers the first check past startup so the scheduler
	// never races process initialization or a quick one-shot run.
	initialDelay = 5 * time.Second
)

// Scheduler drives periodic refresh for a set of managed credentials.
// Failures are logged and retried on the next tick; they never stop the
// loop or the process.
type Scheduler struct {
	mode     SchedulerMode
	interval time.Duration
	buffer   time.Duration
	log      *slog.Logger
	clock    func() time.Time

	mu          sync.Mutex
	controllers map[string]*Scheduled
}

// Scheduled pairs a controller with the expiry lookup the tick uses.
type Scheduled struct {
	Controller *Controller
	// ExpiresAt returns the current credential expiry; zero time means
	// unknown and is treated as not yet due.
	ExpiresAt func() time.Time
}

// NewScheduler builds a scheduler; zero interval and buffer take defaults.
func NewScheduler(mode SchedulerMode, interval, buffer time.Duration, log *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		mode:        mode,
		interval:    interval,
		buffer:      buffer,
		log:         log,
		clock:       time.Now,
		controllers: make(map[string]*Scheduled),
	}
}

// Manage registers a credential for periodic refresh.
func (s *Scheduler) Manage(key string, sc *Scheduled) {
	s.mu.Lock()
	s.controllers[key] = sc
	s.mu.Unlock()
}

// Unmanage removes a credential from the schedule.
func (s *Scheduler) Unmanage(key string) {
	s.mu.Lock()
	delete(s.controllers, key)
	s.mu.Unlock()
}

// Start launches the background loop. It returns immediately; the loop
// stops when ctx is canceled. In DiagnosticNoop mode nothing runs at all.
func (s *Scheduler) Start(ctx context.Context) {
	if s.mode == ModeDiagnosticNoop {
		s.log.Debug("refresh scheduler disabled", "mode", "diagnostic-noop")
		return
	}
	go s.loop(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(initialDelay):
	}
	s.Tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one refresh check over every managed credential. Exported so
// tests and one-shot invocations can drive the schedule directly.
func (s *Scheduler) Tick(ctx context.Context) {
	s.mu.Lock()
	snapshot := make(map[string]*Scheduled, len(s.controllers))
	for k, v := range s.controllers {
		snapshot[k] = v
	}
	s.mu.Unlock()

	now := s.clock()
	for key, sc := range snapshot {
		expiresAt := sc.ExpiresAt()
		if expiresAt.IsZero() || now.Before(expiresAt.Add(-s.buffer)) {
			continue
		}
		// At most one attempt per tick per credential; Refresh itself
		// collapses any concurrent attempt from the orchestrator.
		if _, err := sc.Controller.Refresh(ctx); err != nil {
			s.log.Warn("scheduled refresh failed", "key", key, "error", err)
		}
	}
}
