package scheduler

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"web-app-firewall-console/internal/core"
)

// HistorySize bounds the traffic history.
const HistorySize = 20

// TrafficPoint is the traffic seen between two observations.
type TrafficPoint struct {
	Time    string `json:"time"`
	Total   int64  `json:"total"`
	Threats int64  `json:"threats"`
}

// TrafficTracker turns the cumulative per-domain counters into per-interval
// deltas. The first observation only sets the baseline and records 0/0.
type TrafficTracker struct {
	mu          sync.Mutex
	seen        bool
	prevTotal   int64
	prevThreats int64
	history     []TrafficPoint
}

func NewTrafficTracker() *TrafficTracker {
	return &TrafficTracker{}
}

// Observe sums the domains' counters and appends the delta since the last
// observation. Counters that went backwards count as zero.
func (t *TrafficTracker) Observe(domains []core.Domain, now time.Time) TrafficPoint {
	var total, threats int64
	for _, d := range domains {
		if d.Stats == nil {
			continue
		}
		total += d.Stats.TotalRequests
		threats += d.Stats.BlockedRequests + d.Stats.FlaggedRequests
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	p := TrafficPoint{Time: timeLabel(now)}
	if t.seen {
		p.Total = max(0, total-t.prevTotal)
		p.Threats = max(0, threats-t.prevThreats)
	}
	t.prevTotal, t.prevThreats, t.seen = total, threats, true

	t.history = append(t.history, p)
	if len(t.history) > HistorySize {
		t.history = slices.Clone(t.history[len(t.history)-HistorySize:])
	}
	return p
}

func (t *TrafficTracker) History() []TrafficPoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.history)
}

// timeLabel renders H:MM:SS with an unpadded hour.
func timeLabel(now time.Time) string {
	return fmt.Sprintf("%d:%02d:%02d", now.Hour(), now.Minute(), now.Second())
}
