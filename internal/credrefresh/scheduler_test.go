package credrefresh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usestring/apilearn/internal/transport"
)

func scheduledController(t *testing.T, tr transport.Transport, expiresAt time.Time) (*Controller, *Scheduled) {
	t.Helper()
	store := NewMemoryStore()
	require.NoError(t, store.Store("svc", &Credential{
		Token:        "old",
		RefreshToken: "rt-1",
		ExpiresAt:    expiresAt,
	}))
	c := NewController(genericConfig(), store, "svc", tr, quietLogger())
	sc := &Scheduled{
		Controller: c,
		ExpiresAt: func() time.Time {
			cred, _ := store.Get("svc")
			if cred == nil {
				return time.Time{}
			}
			return cred.ExpiresAt
		},
	}
	return c, sc
}

func TestTickRefreshesNearExpiry(t *testing.T) {
	tr := &scriptedTransport{response: &transport.Response{
		Status: 200,
		Body:   `{"access_token":"fresh"}`,
	}}
	now := time.Now()
	_, sc := scheduledController(t, tr, now.Add(5*time.Minute))

	s := NewScheduler(ModeNormal, time.Minute, 10*time.Minute, quietLogger())
	s.clock = func() time.Time { return now }
	s.Manage("svc", sc)

	s.Tick(context.Background())
	assert.EqualValues(t, 1, tr.calls.Load(), "expiry inside the buffer triggers refresh")
}

func TestTickAfterSuccessfulRefreshIsQuiet(t *testing.T) {
	tr := &scriptedTransport{response: &transport.Response{
		Status: 200,
		Body:   `{"access_token":"fresh"}`,
	}}
	now := time.Now()
	_, sc := scheduledController(t, tr, now.Add(5*time.Minute))

	s := NewScheduler(ModeNormal, time.Minute, 10*time.Minute, quietLogger())
	s.clock = func() time.Time { return now }
	s.Manage("svc", sc)

	// The refresh stores expires_in from the config, pushing expiry well
	// past the buffer, so the next tick has nothing to do.
	s.Tick(context.Background())
	s.Tick(context.Background())
	assert.EqualValues(t, 1, tr.calls.Load())
}

func TestTickSkipsDistantExpiry(t *testing.T) {
	tr := &scriptedTransport{}
	now := time.Now()
	_, sc := scheduledController(t, tr, now.Add(2*time.Hour))

	s := NewScheduler(ModeNormal, time.Minute, 10*time.Minute, quietLogger())
	s.clock = func() time.Time { return now }
	s.Manage("svc", sc)

	s.Tick(context.Background())
	assert.Zero(t, tr.calls.Load())
}

func TestTickSkipsUnknownExpiry(t *testing.T) {
	tr := &scriptedTransport{}
	_, sc := scheduledController(t, tr, time.Time{})

	s := NewScheduler(ModeNormal, 0, 0, quietLogger())
	s.Manage("svc", sc)

	s.Tick(context.Background())
	assert.Zero(t, tr.calls.Load())
}

func TestTickSurvivesRefreshFailure(t *testing.T) {
	tr := &scriptedTransport{response: &transport.Response{Status: 500}}
	now := time.Now()
	_, sc := scheduledController(t, tr, now.Add(time.Minute))

	s := NewScheduler(ModeNormal, time.Minute, 10*time.Minute, quietLogger())
	s.clock = func() time.Time { return now }
	s.Manage("svc", sc)

	s.Tick(context.Background())
	s.Tick(context.Background())
	assert.EqualValues(t, 2, tr.calls.Load(), "a failed refresh retries on the next tick")
}

func TestUnmanageStopsRefreshing(t *testing.T) {
	tr := &scriptedTransport{response: &transport.Response{Status: 200, Body: `{"access_token":"a"}`}}
	now := time.Now()
	_, sc := scheduledController(t, tr, now.Add(time.Minute))

	s := NewScheduler(ModeNormal, time.Minute, 10*time.Minute, quietLogger())
	s.clock = func() time.Time { return now }
	s.Manage("svc", sc)
	s.Unmanage("svc")

	s.Tick(context.Background())
	assert.Zero(t, tr.calls.Load())
}

func TestDiagnosticNoopNeverStarts(t *testing.T) {
	s := NewScheduler(ModeDiagnosticNoop, time.Millisecond, time.Millisecond, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start must return without launching the loop; nothing to observe
	// beyond it not panicking and not blocking.
	s.Start(ctx)
}

func TestNewSchedulerDefaults(t *testing.T) {
	s := NewScheduler(ModeNormal, 0, 0, nil)
	assert.Equal(t, DefaultInterval, s.interval)
	assert.Equal(t, DefaultBuffer, s.buffer)
}
