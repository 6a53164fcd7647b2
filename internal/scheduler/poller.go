// Package scheduler drives periodic refreshes: a visibility-aware poller, the
// dashboard overview and the traffic delta history.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"web-app-firewall-console/internal/logger"
	"web-app-firewall-console/internal/metrics"
)

const DefaultInterval = 5 * time.Second

// Task is one refresh a poller runs on every tick.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
	// Enabled gates scheduled runs; nil means always. Manual refreshes
	// ignore it.
	Enabled func() bool
}

// Poller runs its tasks once on Start and then every interval while visible.
type Poller struct {
	name     string
	tasks    []Task
	interval time.Duration
	logger   logger.Logger
	metrics  *metrics.Metrics

	mu      sync.RWMutex
	visible bool
	onTick  func()

	wake      chan struct{}
	stopCh    chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	done      chan struct{}
}

// NewPoller creates a poller. A non-positive interval falls back to
// DefaultInterval.
func NewPoller(name string, interval time.Duration, log logger.Logger, m *metrics.Metrics, tasks ...Task) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		name:     name,
		tasks:    tasks,
		interval: interval,
		logger:   log,
		metrics:  m,
		visible:  true,
		wake:     make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs every task once, then ticks in the background until ctx is
// cancelled or Stop is called. Only the first call does anything.
func (p *Poller) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.mu.Lock()
		p.started = true
		p.mu.Unlock()
		p.tick(ctx)
		go p.loop(ctx)
	})
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.tick(ctx)
		case <-p.wake:
			p.logger.Debug("poller woken", logger.String("poller", p.name))
			p.tick(ctx)
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends the background loop and waits for it. Safe to call twice, and
// before Start, after which Start does nothing.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	// Claim Start so a later call cannot spawn a loop.
	p.startOnce.Do(func() {})

	p.mu.RLock()
	started := p.started
	p.mu.RUnlock()
	if started {
		<-p.done
	}
}

// SetVisible mirrors the page visibility. Hidden pollers skip ticks;
// becoming visible again refreshes right away.
func (p *Poller) SetVisible(visible bool) {
	p.mu.Lock()
	was := p.visible
	p.visible = visible
	p.mu.Unlock()

	if visible && !was {
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
}

// OnTick registers fn to run after every scheduled tick that ran at least
// one task.
func (p *Poller) OnTick(fn func()) {
	p.mu.Lock()
	p.onTick = fn
	p.mu.Unlock()
}

// Paused reports whether ticks are being skipped for visibility.
func (p *Poller) Paused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.visible
}

// RefreshNow runs every task immediately regardless of visibility and gates.
func (p *Poller) RefreshNow(ctx context.Context) error {
	var errs []error
	for _, t := range p.tasks {
		if err := t.Run(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Poller) tick(ctx context.Context) {
	if p.Paused() {
		p.metrics.PollTick(p.name, metrics.PollSkipped)
		return
	}

	ran := false
	for _, t := range p.tasks {
		if ctx.Err() != nil {
			return
		}
		if t.Enabled != nil && !t.Enabled() {
			p.metrics.PollTick(p.name, metrics.PollSkipped)
			continue
		}
		ran = true
		p.metrics.PollTick(p.name, metrics.PollRan)
		if err := t.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Warn("poll task failed",
				logger.String("poller", p.name),
				logger.String("task", t.Name),
				logger.Err(err))
		}
	}

	p.mu.RLock()
	onTick := p.onTick
	p.mu.RUnlock()
	if ran && onTick != nil {
		onTick()
	}
}
