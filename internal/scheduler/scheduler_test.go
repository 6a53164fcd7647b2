package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"web-app-firewall-console/internal/core"
	"web-app-firewall-console/internal/logfeed"
	"web-app-firewall-console/internal/logger"
	"web-app-firewall-console/internal/metrics"
	"web-app-firewall-console/internal/notify"
)

func withStats(total, blocked, flagged int64) core.Domain {
	return core.Domain{Stats: &core.DomainStats{TotalRequests: total, BlockedRequests: blocked, FlaggedRequests: flagged}}
}

func TestTrafficTrackerDeltas(t *testing.T) {
	tr := NewTrafficTracker()
	at := time.Date(2024, 5, 1, 9, 4, 5, 0, time.UTC)

	first := tr.Observe([]core.Domain{withStats(60, 2, 1), withStats(40, 1, 1)}, at)
	assert.Equal(t, TrafficPoint{Time: "9:04:05"}, first)

	second := tr.Observe([]core.Domain{withStats(80, 2, 1), withStats(50, 1, 1)}, at.Add(5*time.Second))
	assert.Equal(t, int64(30), second.Total)
	assert.Equal(t, int64(0), second.Threats)
	assert.Equal(t, "9:04:10", second.Time)

	// Counters reset on the gateway: never negative.
	third := tr.Observe([]core.Domain{withStats(10, 0, 0)}, at.Add(10*time.Second))
	assert.Equal(t, int64(0), third.Total)
	assert.Equal(t, int64(0), third.Threats)

	assert.Len(t, tr.History(), 3)
}

func TestTrafficTrackerIgnoresMissingStats(t *testing.T) {
	tr := NewTrafficTracker()
	now := time.Now()
	tr.Observe([]core.Domain{{Name: "no-stats"}, withStats(5, 1, 0)}, now)
	p := tr.Observe([]core.Domain{{Name: "no-stats"}, withStats(7, 2, 0)}, now)
	assert.Equal(t, int64(2), p.Total)
	assert.Equal(t, int64(1), p.Threats)
}

func TestTrafficHistoryIsBounded(t *testing.T) {
	tr := NewTrafficTracker()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < HistorySize+5; i++ {
		tr.Observe([]core.Domain{withStats(int64(i*10), 0, 0)}, start.Add(time.Duration(i)*time.Second))
	}
	h := tr.History()
	require.Len(t, h, HistorySize)
	assert.Equal(t, "0:00:24", h[len(h)-1].Time)
	assert.Equal(t, "0:00:05", h[0].Time)
}

func TestPollerRunsOnStartAndOnTicks(t *testing.T) {
	var runs atomic.Int32
	m := metrics.New()
	p := NewPoller("test", 10*time.Millisecond, logger.NewNop(), m, Task{
		Name: "count",
		Run:  func(context.Context) error { runs.Add(1); return nil },
	})

	p.Start(context.Background())
	assert.Equal(t, int32(1), runs.Load(), "first run is synchronous")

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	p.Stop()
	p.Stop()

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.PollTicks.WithLabelValues("test", metrics.PollRan)), 3.0)
}

func TestPollerSkipsWhileHidden(t *testing.T) {
	var runs atomic.Int32
	m := metrics.New()
	p := NewPoller("hidden", 10*time.Millisecond, logger.NewNop(), m, Task{
		Name: "count",
		Run:  func(context.Context) error { runs.Add(1); return nil },
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.SetVisible(false)
	assert.True(t, p.Paused())
	p.Start(ctx)
	defer p.Stop()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.PollTicks.WithLabelValues("hidden", metrics.PollSkipped)) >= 2
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, runs.Load())

	p.SetVisible(true)
	assert.False(t, p.Paused())
	require.Eventually(t, func() bool { return runs.Load() >= 1 }, time.Second, time.Millisecond)
}

func TestRefreshNowIgnoresGates(t *testing.T) {
	var runs atomic.Int32
	boom := errors.New("boom")
	p := NewPoller("manual", time.Hour, logger.NewNop(), nil,
		Task{Name: "gated", Run: func(context.Context) error { runs.Add(1); return nil }, Enabled: func() bool { return false }},
		Task{Name: "failing", Run: func(context.Context) error { return boom }},
	)
	p.SetVisible(false)

	err := p.RefreshNow(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing")
	assert.Equal(t, int32(1), runs.Load())
}

type stubStatus struct{ err error }

func (s stubStatus) SystemStatus(context.Context) (*core.SystemStatus, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &core.SystemStatus{Gateway: core.ComponentStatus{Status: "online"}}, nil
}

type stubLogs struct {
	last atomic.Value
}

func (s *stubLogs) Logs(_ context.Context, q core.LogQuery) (*core.PaginatedLogs, error) {
	s.last.Store(q)
	return &core.PaginatedLogs{Data: []core.AttackLog{{ID: "l1"}}}, nil
}

func (s *stubLogs) StreamLogs(ctx context.Context, _ func(core.AttackLog)) error {
	<-ctx.Done()
	return nil
}

type stubDomains struct {
	domains [][]core.Domain
	calls   int
}

func (s *stubDomains) ListDomains(context.Context) ([]core.Domain, error) {
	d := s.domains[min(s.calls, len(s.domains)-1)]
	s.calls++
	return d, nil
}

func TestDashboardRefresh(t *testing.T) {
	logs := &stubLogs{}
	domains := &stubDomains{domains: [][]core.Domain{
		{withStats(100, 3, 2)},
		{withStats(130, 3, 2)},
	}}
	d := NewDashboard(stubStatus{}, logs, domains, logger.NewNop())
	ctx := context.Background()

	require.NoError(t, d.Refresh(ctx))
	require.NoError(t, d.Refresh(ctx))

	assert.Equal(t, core.LogQuery{Page: 1, Limit: RecentLogsLimit}, logs.last.Load())

	o := d.Overview()
	assert.Equal(t, "online", o.Status.Gateway.Status)
	assert.Len(t, o.RecentLogs, 1)
	require.Len(t, o.Traffic, 2)
	assert.Equal(t, int64(0), o.Traffic[0].Total)
	assert.Equal(t, int64(30), o.Traffic[1].Total)
	assert.Equal(t, int64(0), o.Traffic[1].Threats)
	assert.False(t, o.LastUpdated.IsZero())
}

func TestDashboardKeepsPartialResults(t *testing.T) {
	down := errors.New("status down")
	d := NewDashboard(stubStatus{err: down}, &stubLogs{}, &stubDomains{domains: [][]core.Domain{{withStats(1, 0, 0)}}}, logger.NewNop())

	err := d.Refresh(context.Background())
	assert.ErrorIs(t, err, down)

	o := d.Overview()
	assert.Nil(t, o.Status)
	assert.Len(t, o.Domains, 1)
	assert.Len(t, o.RecentLogs, 1)
}

// gatedDomains answers each ListDomains call from its own channel.
type gatedDomains struct {
	calls atomic.Int32
	gates []chan []core.Domain
}

func (g *gatedDomains) ListDomains(ctx context.Context) ([]core.Domain, error) {
	i := g.calls.Add(1) - 1
	select {
	case d := <-g.gates[i]:
		return d, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestDashboardDropsStaleRefresh(t *testing.T) {
	lister := &gatedDomains{gates: []chan []core.Domain{
		make(chan []core.Domain, 1), make(chan []core.Domain, 1), make(chan []core.Domain, 1),
	}}
	d := NewDashboard(stubStatus{}, &stubLogs{}, lister, logger.NewNop())
	ctx := context.Background()

	slow := make(chan error, 1)
	go func() { slow <- d.Refresh(ctx) }()
	require.Eventually(t, func() bool { return lister.calls.Load() == 1 }, time.Second, time.Millisecond)

	lister.gates[1] <- []core.Domain{withStats(130, 0, 0)}
	require.NoError(t, d.Refresh(ctx))

	lister.gates[0] <- []core.Domain{withStats(100, 0, 0)}
	require.NoError(t, <-slow)

	o := d.Overview()
	require.Len(t, o.Traffic, 1, "the older snapshot must not be observed")
	assert.Equal(t, int64(130), o.Domains[0].Stats.TotalRequests)

	lister.gates[2] <- []core.Domain{withStats(160, 0, 0)}
	require.NoError(t, d.Refresh(ctx))
	o = d.Overview()
	require.Len(t, o.Traffic, 2)
	assert.Equal(t, int64(30), o.Traffic[1].Total)
}

func TestPollerStartStopAreIdempotent(t *testing.T) {
	var runs atomic.Int32
	task := Task{Name: "count", Run: func(context.Context) error { runs.Add(1); return nil }}

	p := NewPoller("twice", time.Hour, logger.NewNop(), nil, task)
	p.Start(context.Background())
	p.Start(context.Background())
	assert.Equal(t, int32(1), runs.Load())
	p.Stop()

	early := NewPoller("early", time.Hour, logger.NewNop(), nil, task)
	stopped := make(chan struct{})
	go func() {
		early.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop before Start blocked")
	}
	early.Start(context.Background())
	assert.Equal(t, int32(1), runs.Load(), "a stopped poller does not start")
}

func TestFeedPollerGates(t *testing.T) {
	logs := &stubLogs{}
	feed := logfeed.New(logs, notify.Nop{}, logger.NewNop(), nil)
	m := metrics.New()
	p := NewFeedPoller(feed, time.Hour, logger.NewNop(), m)
	ctx := context.Background()

	p.tick(ctx)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PollTicks.WithLabelValues("logs", metrics.PollRan)))

	feed.SetPaused(true)
	p.tick(ctx)
	feed.SetPaused(false)
	require.NoError(t, feed.FetchPage(ctx, 3, 20, ""))
	p.tick(ctx)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PollTicks.WithLabelValues("logs", metrics.PollSkipped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PollTicks.WithLabelValues("logs", metrics.PollRan)))
}

func TestOnTickFollowsRanTicksOnly(t *testing.T) {
	var enabled atomic.Bool
	var ticks atomic.Int32
	p := NewPoller("hook", 10*time.Millisecond, logger.NewNop(), nil, Task{
		Name:    "gated",
		Run:     func(context.Context) error { return nil },
		Enabled: enabled.Load,
	})
	p.OnTick(func() { ticks.Add(1) })

	p.Start(context.Background())
	defer p.Stop()
	time.Sleep(40 * time.Millisecond)
	assert.Zero(t, ticks.Load())

	enabled.Store(true)
	require.Eventually(t, func() bool { return ticks.Load() >= 1 }, time.Second, 5*time.Millisecond)
}
