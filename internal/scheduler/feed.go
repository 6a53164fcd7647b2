package scheduler

import (
	"time"

	"web-app-firewall-console/internal/logfeed"
	"web-app-firewall-console/internal/logger"
	"web-app-firewall-console/internal/metrics"
)

// NewFeedPoller refreshes the logs page while the user has not paused it and
// is looking at page one. Later pages stay put so rows do not shift under
// the reader.
func NewFeedPoller(feed *logfeed.Controller, interval time.Duration, log logger.Logger, m *metrics.Metrics) *Poller {
	return NewPoller("logs", interval, log, m, Task{
		Name: "page",
		Run:  feed.Refresh,
		Enabled: func() bool {
			return !feed.Paused() && feed.View().Page == 1
		},
	})
}
