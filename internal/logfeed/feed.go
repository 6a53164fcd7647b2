// Package logfeed keeps the current page of attack logs: paginated fetches,
// the client-side search/action filter, page stats and the live tail that
// merges streamed events into page one.
package logfeed

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"web-app-firewall-console/internal/client"
	"web-app-firewall-console/internal/core"
	"web-app-firewall-console/internal/logger"
	"web-app-firewall-console/internal/metrics"
	"web-app-firewall-console/internal/notify"
)

// AllDomains is the domain filter value meaning "no filter".
const AllDomains = "all"

const DefaultPageSize = 20

// View is what the user is looking at. Any change of view invalidates
// in-flight fetches and restarts the live tail.
type View struct {
	Page         int
	PageSize     int
	DomainFilter string // "" or AllDomains = every domain
}

func (v View) normalized() View {
	if v.Page < 1 {
		v.Page = 1
	}
	if v.PageSize < 1 {
		v.PageSize = DefaultPageSize
	}
	if v.DomainFilter == AllDomains {
		v.DomainFilter = ""
	}
	return v
}

// Filter narrows the fetched page on the client. Empty fields match anything.
type Filter struct {
	Search string
	Action string // Blocked, Flagged, Monitor or "all"
}

// Stats summarizes the fetched page.
type Stats struct {
	Total     int
	Blocked   int
	Flagged   int
	TopReason string
}

type Controller struct {
	api      core.LogAPI
	notifier notify.Notifier
	log      logger.Logger
	metrics  *metrics.Metrics

	mu         sync.RWMutex
	view       View
	gen        uint64
	logs       []core.AttackLog
	pagination core.Pagination
	paused     bool
	onMerge    func(core.AttackLog)
	tail       *liveTail
	tailCtx    context.Context
	tailEpoch  uint64 // bumped by StartLiveTail and StopLiveTail
}

func New(api core.LogAPI, n notify.Notifier, l logger.Logger, m *metrics.Metrics) *Controller {
	return &Controller{
		api:        api,
		notifier:   n,
		log:        l,
		metrics:    m,
		view:       View{Page: 1, PageSize: DefaultPageSize},
		logs:       []core.AttackLog{},
		pagination: core.Pagination{CurrentPage: 1, TotalPages: 1, PerPage: DefaultPageSize},
	}
}

// OnMerge registers fn to be called with every streamed entry that made it
// onto the page. fn runs on the stream goroutine.
func (c *Controller) OnMerge(fn func(core.AttackLog)) {
	c.mu.Lock()
	c.onMerge = fn
	c.mu.Unlock()
}

// FetchPage switches to the given view and loads it. A response that arrives
// after a newer fetch was started is discarded.
func (c *Controller) FetchPage(ctx context.Context, page, pageSize int, domainFilter string) error {
	view := View{Page: page, PageSize: pageSize, DomainFilter: domainFilter}.normalized()

	c.mu.Lock()
	changed := view != c.view
	c.view = view
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	if changed {
		c.restartTail()
	}
	return c.fetch(ctx, view, gen)
}

// Refresh reloads the current view.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.gen++
	view, gen := c.view, c.gen
	c.mu.Unlock()

	return c.fetch(ctx, view, gen)
}

func (c *Controller) fetch(ctx context.Context, view View, gen uint64) error {
	res, err := c.api.Logs(ctx, core.LogQuery{
		Page:     view.Page,
		Limit:    view.PageSize,
		DomainID: view.DomainFilter,
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		c.log.Debug("discarding stale log page", logger.Int("page", view.Page))
		return nil
	}
	c.logs = res.Data
	c.pagination = res.Pagination
	return nil
}

func (c *Controller) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view
}

// Logs returns the fetched page, newest merges first.
func (c *Controller) Logs() []core.AttackLog {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.logs)
}

func (c *Controller) Pagination() core.Pagination {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pagination
}

// Filtered applies f to the fetched page. Search is a case-insensitive
// substring match over ip, path and reason; Action compares case-insensitively.
func (c *Controller) Filtered(f Filter) []core.AttackLog {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]core.AttackLog, 0, len(c.logs))
	for _, l := range c.logs {
		if f.Matches(l) {
			out = append(out, l)
		}
	}
	return out
}

// Matches applies the filter to a single entry.
func (f Filter) Matches(l core.AttackLog) bool {
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" &&
		!strings.Contains(strings.ToLower(l.IP), q) &&
		!strings.Contains(strings.ToLower(l.RequestPath), q) &&
		!strings.Contains(strings.ToLower(l.Reason), q) {
		return false
	}
	action := strings.TrimSpace(f.Action)
	return action == "" || strings.EqualFold(action, AllDomains) || strings.EqualFold(l.Action, action)
}

// Stats counts the fetched page. TopReason is the most frequent reason, the
// first seen winning ties, or "None" for an empty page.
func (c *Controller) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Stats{Total: len(c.logs), TopReason: "None"}
	counts := make(map[string]int)
	var order []string
	for _, l := range c.logs {
		switch l.Action {
		case core.LogBlocked:
			st.Blocked++
		case core.LogFlagged:
			st.Flagged++
		}
		if _, seen := counts[l.Reason]; !seen {
			order = append(order, l.Reason)
		}
		counts[l.Reason]++
	}

	best := 0
	for _, reason := range order {
		if counts[reason] > best && reason != "" {
			best = counts[reason]
			st.TopReason = reason
		}
	}
	return st
}

func (c *Controller) SetPaused(paused bool) {
	c.mu.Lock()
	c.paused = paused
	c.mu.Unlock()
}

func (c *Controller) Paused() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.paused
}

// HandleEvent merges one streamed entry. It lands at the top of the list only
// on page one, only when it matches the domain filter and only while not
// paused; entries already on screen are ignored. The list never grows past
// the page size.
func (c *Controller) HandleEvent(entry core.AttackLog) string {
	c.mu.Lock()
	result := c.merge(entry)
	onMerge := c.onMerge
	c.mu.Unlock()

	c.metrics.StreamEvent(result)
	if result == metrics.StreamMerged && onMerge != nil {
		onMerge(entry)
	}
	return result
}

func (c *Controller) merge(entry core.AttackLog) string {
	if c.paused || c.view.Page != 1 {
		return metrics.StreamDropped
	}
	if c.view.DomainFilter != "" && entry.DomainID != c.view.DomainFilter {
		return metrics.StreamDropped
	}
	if entry.ID != "" && slices.ContainsFunc(c.logs, func(l core.AttackLog) bool { return l.ID == entry.ID }) {
		return metrics.StreamDuplicate
	}

	merged := make([]core.AttackLog, 0, min(len(c.logs)+1, c.view.PageSize))
	merged = append(merged, entry)
	for _, l := range c.logs {
		if len(merged) == c.view.PageSize {
			break
		}
		merged = append(merged, l)
	}
	c.logs = merged
	return metrics.StreamMerged
}

// liveTail is one open stream connection.
type liveTail struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartLiveTail opens the live stream unless one is already open. The stream
// lives until ctx is cancelled, StopLiveTail is called or it faults; a fault
// is reported and not retried.
func (c *Controller) StartLiveTail(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tail != nil {
		return
	}
	c.tailCtx = ctx
	c.tailEpoch++
	c.tail = c.openLocked(ctx)
}

// StopLiveTail closes the stream and waits for its goroutine.
func (c *Controller) StopLiveTail() {
	c.mu.Lock()
	t := c.tail
	c.tail = nil
	c.tailCtx = nil
	c.tailEpoch++
	c.mu.Unlock()

	if t != nil {
		t.cancel()
		<-t.done
	}
}

// Tailing reports whether a stream is open.
func (c *Controller) Tailing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tail != nil
}

// TailDone is closed when the current stream ends. It returns a closed
// channel when no stream is open.
func (c *Controller) TailDone() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tail == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.tail.done
}

// restartTail closes the open stream, waits for it, then opens a new one, so
// there is never more than one connection.
func (c *Controller) restartTail() {
	c.mu.Lock()
	old, parent, epoch := c.tail, c.tailCtx, c.tailEpoch
	c.tail = nil
	c.mu.Unlock()
	if old == nil {
		return
	}

	old.cancel()
	<-old.done

	c.mu.Lock()
	defer c.mu.Unlock()
	// Stopped or restarted by someone else meanwhile.
	if c.tailEpoch != epoch || c.tail != nil || parent.Err() != nil {
		return
	}
	c.tail = c.openLocked(parent)
	c.log.Debug("live tail restarted after view change")
}

func (c *Controller) openLocked(parent context.Context) *liveTail {
	ctx, cancel := context.WithCancel(parent)
	t := &liveTail{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(t.done)
		defer cancel()
		err := c.api.StreamLogs(ctx, func(entry core.AttackLog) { c.HandleEvent(entry) })

		c.mu.Lock()
		if c.tail == t {
			c.tail = nil
			c.tailCtx = nil
		}
		c.mu.Unlock()

		if err != nil && !errors.Is(err, context.Canceled) {
			c.notifier.Error(client.UserMessage(err))
			c.log.Warn("live tail closed", logger.Err(err))
		}
	}()
	return t
}
