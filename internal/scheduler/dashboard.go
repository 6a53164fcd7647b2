package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"web-app-firewall-console/internal/core"
	"web-app-firewall-console/internal/logger"
	"web-app-firewall-console/internal/metrics"
)

// RecentLogsLimit is the size of the dashboard's recent activity list.
const RecentLogsLimit = 10

// DomainLister is satisfied by the domain store and by the API client.
type DomainLister interface {
	ListDomains(ctx context.Context) ([]core.Domain, error)
}

// Overview is what the dashboard shows.
type Overview struct {
	Status      *core.SystemStatus
	RecentLogs  []core.AttackLog
	Domains     []core.Domain
	Traffic     []TrafficPoint
	LastUpdated time.Time
	// Paused is set by a watch loop whose refreshes are suspended.
	Paused bool
}

// Dashboard fetches the overview. Each part is stored independently, so one
// failing call does not blank the others.
type Dashboard struct {
	status  core.StatusAPI
	logs    core.LogAPI
	domains DomainLister
	traffic *TrafficTracker
	logger  logger.Logger
	now     func() time.Time

	mu       sync.RWMutex
	overview Overview
	started  uint64 // refreshes begun
	applied  uint64 // newest refresh whose results are stored
}

func NewDashboard(status core.StatusAPI, logs core.LogAPI, domains DomainLister, log logger.Logger) *Dashboard {
	return &Dashboard{
		status:  status,
		logs:    logs,
		domains: domains,
		traffic: NewTrafficTracker(),
		logger:  log,
		now:     time.Now,
	}
}

// Refresh fetches status, the first page of logs and the domains in
// parallel. The returned error joins the failures; whatever succeeded is
// stored anyway.
func (d *Dashboard) Refresh(ctx context.Context) error {
	d.mu.Lock()
	d.started++
	gen := d.started
	d.mu.Unlock()

	var (
		status  *core.SystemStatus
		logs    *core.PaginatedLogs
		domains []core.Domain
		errs    [3]error
		wg      sync.WaitGroup
	)
	wg.Go(func() { status, errs[0] = d.status.SystemStatus(ctx) })
	wg.Go(func() { logs, errs[1] = d.logs.Logs(ctx, core.LogQuery{Page: 1, Limit: RecentLogsLimit}) })
	wg.Go(func() { domains, errs[2] = d.domains.ListDomains(ctx) })
	wg.Wait()
	err := errors.Join(errs[:]...)

	now := d.now()

	d.mu.Lock()
	// A refresh that began earlier but finished later is dropped, so traffic
	// deltas are always taken in request order.
	if gen < d.applied {
		d.mu.Unlock()
		d.logger.Debug("dropped stale dashboard refresh")
		return err
	}
	d.applied = gen
	if errs[0] == nil && status != nil {
		d.overview.Status = status
	}
	if errs[1] == nil && logs != nil {
		d.overview.RecentLogs = logs.Data
	}
	if errs[2] == nil && domains != nil {
		d.overview.Domains = domains
		d.traffic.Observe(domains, now)
		d.overview.Traffic = d.traffic.History()
	}
	d.overview.LastUpdated = now
	d.mu.Unlock()

	if err != nil {
		d.logger.Debug("dashboard refresh incomplete", logger.Err(err))
	}
	return err
}

func (d *Dashboard) Overview() Overview {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.overview
}

// Poller wraps the dashboard in a visibility-aware poller.
func (d *Dashboard) Poller(interval time.Duration, m *metrics.Metrics) *Poller {
	return NewPoller("dashboard", interval, d.logger, m, Task{Name: "overview", Run: d.Refresh})
}
