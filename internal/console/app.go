// Package console wires the gateway client, the stores, the log feed and the
// schedulers into one application that the CLI drives.
package console

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"web-app-firewall-console/internal/client"
	"web-app-firewall-console/internal/core"
	"web-app-firewall-console/internal/logfeed"
	"web-app-firewall-console/internal/logger"
	"web-app-firewall-console/internal/metrics"
	"web-app-firewall-console/internal/notify"
	"web-app-firewall-console/internal/scheduler"
	"web-app-firewall-console/internal/session"
	"web-app-firewall-console/internal/store"
	"web-app-firewall-console/pkg/config"
)

// ErrSignedOut is returned by commands that need a session when there is none.
var ErrSignedOut = errors.New("not signed in, run `wafconsole login` first")

type App struct {
	cfg        *config.Config
	logger     logger.Logger
	metrics    *metrics.Metrics
	api        *client.Client
	notifier   notify.Notifier
	tokenFile  string
	metricsSrv *http.Server
	pauses     chan struct{}

	Session   *session.Provider
	Domains   *store.DomainStore
	Rules     *store.RuleStore
	Feed      *logfeed.Controller
	Dashboard *scheduler.Dashboard
}

type Option func(*appOptions)

type appOptions struct {
	tokenFile  string
	clientOpts []client.Option
}

// WithTokenFile persists the session token at path between runs.
func WithTokenFile(path string) Option {
	return func(o *appOptions) { o.tokenFile = path }
}

// WithClientOptions is applied after the options derived from the config.
func WithClientOptions(opts ...client.Option) Option {
	return func(o *appOptions) { o.clientOpts = append(o.clientOpts, opts...) }
}

func New(cfg *config.Config, log logger.Logger, n notify.Notifier, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	m := metrics.New()
	clientOpts := append([]client.Option{
		client.WithTimeout(cfg.API.Timeout),
		client.WithNotifier(n),
		client.WithLogger(log.With(logger.String("component", "client"))),
		client.WithMetrics(m),
	}, o.clientOpts...)

	api, err := client.New(cfg.API.BaseURL, clientOpts...)
	if err != nil {
		return nil, err
	}

	sess, err := session.NewProvider(api, api.Jar(), api.BaseURL(), n, log.With(logger.String("component", "session")))
	if err != nil {
		return nil, err
	}

	domains := store.NewDomainStore(api, n, log.With(logger.String("component", "domains")), m)

	return &App{
		cfg:       cfg,
		logger:    log,
		metrics:   m,
		api:       api,
		notifier:  n,
		tokenFile: o.tokenFile,
		pauses:    make(chan struct{}, 1),
		Session:   sess,
		Domains:   domains,
		Rules:     store.NewRuleStore(api, n, log.With(logger.String("component", "rules"))),
		Feed:      logfeed.New(api, n, log.With(logger.String("component", "logfeed")), m),
		Dashboard: scheduler.NewDashboard(api, api, domains, log.With(logger.String("component", "dashboard"))),
	}, nil
}

func (a *App) Config() *config.Config { return a.cfg }

// Start exposes metrics when configured, restores a saved session and asks
// the gateway who is signed in. An unreachable gateway leaves the app signed
// out rather than failing here; the first real call reports it.
func (a *App) Start(ctx context.Context) error {
	if a.cfg.Metrics.Addr != "" {
		a.startMetrics()
	}
	if a.tokenFile != "" {
		if err := a.Session.Restore(a.tokenFile); err != nil {
			return err
		}
	}
	if err := a.Session.Init(client.WithoutErrorNotification(ctx)); err != nil {
		a.logger.Debug("session check failed", logger.Err(err))
	}
	return nil
}

func (a *App) startMetrics() {
	a.metricsSrv = &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           a.metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("metrics listening", logger.String("addr", a.cfg.Metrics.Addr))
		if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", logger.Err(err))
		}
	}()
}

// Close stops the live tail and the metrics listener.
func (a *App) Close(ctx context.Context) error {
	a.Feed.StopLiveTail()
	var err error
	if a.metricsSrv != nil {
		err = a.metricsSrv.Shutdown(ctx)
	}
	_ = a.logger.Sync()
	return err
}

// RequireSession fails with ErrSignedOut unless Start found a signed-in user.
func (a *App) RequireSession() (core.User, error) {
	u, ok := a.Session.User()
	if !ok {
		return core.User{}, ErrSignedOut
	}
	return u, nil
}

// Login signs in and saves the token for the next run.
func (a *App) Login(ctx context.Context, email, password string) (core.User, error) {
	u, err := a.Session.Login(ctx, email, password)
	if err != nil {
		return core.User{}, err
	}
	if a.tokenFile != "" {
		if err := a.Session.Save(a.tokenFile); err != nil {
			return u, err
		}
	}
	return u, nil
}

// Register creates an account. When the gateway signs the new user in, the
// token is saved like on Login.
func (a *App) Register(ctx context.Context, name, email, password string) (core.User, error) {
	u, err := a.Session.Register(ctx, name, email, password)
	if err != nil || u.ID == "" || a.tokenFile == "" {
		return u, err
	}
	return u, a.Session.Save(a.tokenFile)
}

// Logout signs out on the gateway and always drops the saved token.
func (a *App) Logout(ctx context.Context) error {
	err := a.Session.Logout(ctx)
	if a.tokenFile != "" {
		if ferr := session.Forget(a.tokenFile); ferr != nil {
			return errors.Join(err, ferr)
		}
	}
	return err
}

// ResolveDomain loads the domain list once and finds ref by id or name.
func (a *App) ResolveDomain(ctx context.Context, ref string) (core.Domain, error) {
	if d, ok := a.Domains.Domain(ref); ok {
		return d, nil
	}
	if _, err := a.Domains.ListDomains(ctx); err != nil {
		return core.Domain{}, err
	}
	if d, ok := a.Domains.Domain(ref); ok {
		return d, nil
	}
	return core.Domain{}, fmt.Errorf("unknown domain %q", ref)
}

// WatchDashboard refreshes the overview every poll interval and hands each
// result to render until ctx is done.
func (a *App) WatchDashboard(ctx context.Context, render func(scheduler.Overview)) {
	p := a.Dashboard.Poller(a.cfg.Poll.Interval, a.metrics)

	var mu sync.Mutex
	show := func() {
		mu.Lock()
		defer mu.Unlock()
		o := a.Dashboard.Overview()
		o.Paused = p.Paused()
		render(o)
	}
	p.OnTick(show)
	p.Start(ctx)
	defer p.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.pauses:
			// Resuming wakes the poller, which renders on its own.
			p.SetVisible(p.Paused())
			if p.Paused() {
				show()
			}
		}
	}
}

// TogglePause pauses or resumes the running WatchDashboard or FollowLogs.
func (a *App) TogglePause() {
	select {
	case a.pauses <- struct{}{}:
	default:
	}
}

// FollowLogs prints the current page of logs, then every entry that shows up
// afterwards, from the live stream when enabled and from the periodic
// refresh otherwise. Each entry is emitted once, oldest first within a batch.
func (a *App) FollowLogs(ctx context.Context, pageSize int, domainID string, emit func(core.AttackLog)) error {
	if err := a.Feed.FetchPage(ctx, 1, pageSize, domainID); err != nil {
		return err
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	emitNew := func(logs []core.AttackLog) {
		mu.Lock()
		defer mu.Unlock()
		fresh := make([]core.AttackLog, 0, len(logs))
		for _, l := range logs {
			if k := followKey(l); !seen[k] {
				seen[k] = true
				fresh = append(fresh, l)
			}
		}
		sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].Timestamp.Before(fresh[j].Timestamp) })
		for _, l := range fresh {
			emit(l)
		}
	}
	emitNew(a.Feed.Logs())

	a.Feed.OnMerge(func(entry core.AttackLog) { emitNew([]core.AttackLog{entry}) })
	if a.cfg.Logs.LiveTail {
		a.Feed.StartLiveTail(ctx)
	}

	p := scheduler.NewFeedPoller(a.Feed, a.cfg.Poll.Interval, a.logger, a.metrics)
	p.OnTick(func() { emitNew(a.Feed.Logs()) })
	p.Start(ctx)
	defer a.Feed.StopLiveTail()
	defer p.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.pauses:
		}

		if !a.Feed.Paused() {
			a.Feed.SetPaused(true)
			a.notifier.Success("Live feed paused")
			continue
		}
		a.Feed.SetPaused(false)
		a.notifier.Success("Live feed resumed")
		if err := p.RefreshNow(ctx); err != nil {
			a.logger.Debug("refresh after resume failed", logger.Err(err))
			continue
		}
		emitNew(a.Feed.Logs())
	}
}

func followKey(l core.AttackLog) string {
	if l.ID != "" {
		return l.ID
	}
	return l.Timestamp.Format(time.RFC3339Nano) + "|" + l.IP + "|" + l.RequestPath
}
