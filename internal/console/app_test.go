package console

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"web-app-firewall-console/internal/core"
	"web-app-firewall-console/internal/fakeapi"
	"web-app-firewall-console/internal/logger"
	"web-app-firewall-console/internal/notify"
	"web-app-firewall-console/internal/scheduler"
	"web-app-firewall-console/pkg/config"
)

const password = "secret123"

type harness struct {
	gw        *fakeapi.Server
	cfg       *config.Config
	tokenFile string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gw := fakeapi.New("test-secret")
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)

	cfg := config.Load()
	cfg.API.BaseURL = srv.URL
	cfg.Poll.Interval = 20 * time.Millisecond
	cfg.Metrics.Addr = ""
	cfg.Log.Level = "info"
	cfg.Logs.LiveTail = true

	return &harness{gw: gw, cfg: cfg, tokenFile: filepath.Join(t.TempDir(), "session")}
}

func (h *harness) app(t *testing.T) (*App, *notify.Recorder) {
	t.Helper()
	rec := &notify.Recorder{}
	a, err := New(h.cfg, logger.NewNop(), rec, WithTokenFile(h.tokenFile))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	require.NoError(t, a.Start(context.Background()))
	return a, rec
}

func (h *harness) signedIn(t *testing.T, email string) *App {
	t.Helper()
	_, err := h.gw.Register("Ada", email, password)
	require.NoError(t, err)
	a, _ := h.app(t)
	_, err = a.Login(context.Background(), email, password)
	require.NoError(t, err)
	return a
}

func activate(t *testing.T, a *App, name string) core.Domain {
	t.Helper()
	ctx := context.Background()
	d, err := a.Domains.AddDomain(ctx, name)
	require.NoError(t, err)
	_, err = a.Domains.VerifyDomain(ctx, d.ID)
	require.NoError(t, err)
	active, err := a.ResolveDomain(ctx, name)
	require.NoError(t, err)
	require.True(t, active.Active())
	return active
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Load()
	cfg.Poll.Interval = 0
	_, err := New(cfg, logger.NewNop(), notify.Nop{})
	assert.ErrorContains(t, err, "poll interval")
}

func TestSessionSurvivesRestart(t *testing.T) {
	h := newHarness(t)

	first, _ := h.app(t)
	_, err := first.RequireSession()
	assert.ErrorIs(t, err, ErrSignedOut)

	_, err = h.gw.Register("Ada", "ada@example.com", password)
	require.NoError(t, err)
	_, err = first.Login(context.Background(), "ada@example.com", password)
	require.NoError(t, err)

	second, _ := h.app(t)
	u, err := second.RequireSession()
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)

	require.NoError(t, second.Logout(context.Background()))
	third, _ := h.app(t)
	_, err = third.RequireSession()
	assert.ErrorIs(t, err, ErrSignedOut)
}

func TestResolveDomain(t *testing.T) {
	h := newHarness(t)
	a := h.signedIn(t, "ada@example.com")

	d, err := a.Domains.AddDomain(context.Background(), "example.com")
	require.NoError(t, err)

	fresh, _ := h.app(t)
	byName, err := fresh.ResolveDomain(context.Background(), "EXAMPLE.com")
	require.NoError(t, err)
	assert.Equal(t, d.ID, byName.ID)

	byID, err := fresh.ResolveDomain(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, "example.com", byID.Name)

	_, err = fresh.ResolveDomain(context.Background(), "nope.example")
	assert.ErrorContains(t, err, `unknown domain "nope.example"`)
}

func TestWatchDashboardRendersEveryTick(t *testing.T) {
	h := newHarness(t)
	a := h.signedIn(t, "ada@example.com")
	activate(t, a, "example.com")

	ctx, cancel := context.WithCancel(context.Background())
	var (
		mu    sync.Mutex
		views []scheduler.Overview
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.WatchDashboard(ctx, func(o scheduler.Overview) {
			mu.Lock()
			views = append(views, o)
			mu.Unlock()
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(views) >= 2
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	last := views[len(views)-1]
	require.NotNil(t, last.Status)
	assert.Equal(t, "Online", last.Status.Gateway.Status)
	require.Len(t, last.Domains, 1)
	assert.NotEmpty(t, last.Traffic)
}

func TestFollowLogs(t *testing.T) {
	for _, live := range []bool{true, false} {
		name := "polling"
		if live {
			name = "live tail"
		}
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.cfg.Logs.LiveTail = live
			a := h.signedIn(t, "ada@example.com")
			d := activate(t, a, "example.com")

			h.gw.Publish(core.AttackLog{DomainID: d.ID, IP: "198.51.100.1", Action: core.LogBlocked})

			ctx, cancel := context.WithCancel(context.Background())
			var (
				mu   sync.Mutex
				seen []string
			)
			ips := func() []string {
				mu.Lock()
				defer mu.Unlock()
				return append([]string(nil), seen...)
			}
			done := make(chan error, 1)
			go func() {
				done <- a.FollowLogs(ctx, 20, "", func(l core.AttackLog) {
					mu.Lock()
					seen = append(seen, l.IP)
					mu.Unlock()
				})
			}()

			require.Eventually(t, func() bool { return len(ips()) == 1 }, 2*time.Second, 5*time.Millisecond)
			if live {
				require.Eventually(t, func() bool { return h.gw.Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)
			}

			h.gw.Publish(core.AttackLog{DomainID: d.ID, IP: "198.51.100.2", Action: core.LogFlagged})
			require.Eventually(t, func() bool { return len(ips()) == 2 }, 2*time.Second, 5*time.Millisecond)

			// Later refreshes must not repeat what was already printed.
			time.Sleep(60 * time.Millisecond)
			cancel()
			require.NoError(t, <-done)
			assert.Equal(t, []string{"198.51.100.1", "198.51.100.2"}, ips())
			assert.False(t, a.Feed.Tailing())
		})
	}
}

func TestWatchDashboardPause(t *testing.T) {
	h := newHarness(t)
	a := h.signedIn(t, "ada@example.com")

	ctx, cancel := context.WithCancel(context.Background())
	var (
		mu    sync.Mutex
		views []scheduler.Overview
	)
	snapshot := func() []scheduler.Overview {
		mu.Lock()
		defer mu.Unlock()
		return append([]scheduler.Overview(nil), views...)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.WatchDashboard(ctx, func(o scheduler.Overview) {
			mu.Lock()
			views = append(views, o)
			mu.Unlock()
		})
	}()
	require.Eventually(t, func() bool { return len(snapshot()) >= 1 }, 2*time.Second, 5*time.Millisecond)

	a.TogglePause()
	require.Eventually(t, func() bool {
		v := snapshot()
		return v[len(v)-1].Paused
	}, 2*time.Second, 5*time.Millisecond)

	// Let a tick that was already running land first.
	time.Sleep(30 * time.Millisecond)
	frozen := len(snapshot())
	time.Sleep(80 * time.Millisecond)
	assert.Len(t, snapshot(), frozen, "no frames while paused")

	a.TogglePause()
	require.Eventually(t, func() bool {
		v := snapshot()
		return len(v) > frozen && !v[len(v)-1].Paused
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestFollowLogsPause(t *testing.T) {
	h := newHarness(t)
	h.cfg.Logs.LiveTail = false
	a := h.signedIn(t, "ada@example.com")
	d := activate(t, a, "example.com")

	ctx, cancel := context.WithCancel(context.Background())
	var (
		mu   sync.Mutex
		seen []string
	)
	ips := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), seen...)
	}
	done := make(chan error, 1)
	go func() {
		done <- a.FollowLogs(ctx, 20, "", func(l core.AttackLog) {
			mu.Lock()
			seen = append(seen, l.IP)
			mu.Unlock()
		})
	}()
	a.TogglePause()
	require.Eventually(t, a.Feed.Paused, 2*time.Second, 5*time.Millisecond)

	h.gw.Publish(core.AttackLog{DomainID: d.ID, IP: "198.51.100.7", Action: core.LogBlocked})
	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, ips(), "nothing is printed while paused")

	a.TogglePause()
	require.Eventually(t, func() bool { return len(ips()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "198.51.100.7", ips()[0])

	cancel()
	require.NoError(t, <-done)
}
