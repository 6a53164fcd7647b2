package logfeed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"web-app-firewall-console/internal/client"
	"web-app-firewall-console/internal/core"
	"web-app-firewall-console/internal/logger"
	"web-app-firewall-console/internal/metrics"
	"web-app-firewall-console/internal/notify"
)

type fakeLogAPI struct {
	mu      sync.Mutex
	queries []core.LogQuery
	pages   func(q core.LogQuery) (*core.PaginatedLogs, error)

	streams atomic.Int32
	open    atomic.Int32
	events  chan core.AttackLog
	fault   chan error
}

func newFakeLogAPI() *fakeLogAPI {
	return &fakeLogAPI{
		events: make(chan core.AttackLog),
		fault:  make(chan error, 1),
		pages: func(q core.LogQuery) (*core.PaginatedLogs, error) {
			return &core.PaginatedLogs{Data: []core.AttackLog{}, Pagination: core.Pagination{CurrentPage: int64(q.Page), TotalPages: 1}}, nil
		},
	}
}

func (f *fakeLogAPI) Logs(ctx context.Context, q core.LogQuery) (*core.PaginatedLogs, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	pages := f.pages
	f.mu.Unlock()
	return pages(q)
}

func (f *fakeLogAPI) StreamLogs(ctx context.Context, onLog func(core.AttackLog)) error {
	f.streams.Add(1)
	f.open.Add(1)
	defer f.open.Add(-1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-f.fault:
			return err
		case l := <-f.events:
			onLog(l)
		}
	}
}

func (f *fakeLogAPI) lastQuery() core.LogQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

func entries(n int, prefix string) []core.AttackLog {
	out := make([]core.AttackLog, n)
	for i := range out {
		out[i] = core.AttackLog{ID: fmt.Sprintf("%s%d", prefix, i), Action: core.LogMonitor, Reason: "ok"}
	}
	return out
}

func newController(api core.LogAPI) (*Controller, *notify.Recorder, *metrics.Metrics) {
	rec := &notify.Recorder{}
	m := metrics.New()
	return New(api, rec, logger.NewNop(), m), rec, m
}

func TestFetchPageOmitsAllFilter(t *testing.T) {
	api := newFakeLogAPI()
	c, _, _ := newController(api)

	require.NoError(t, c.FetchPage(context.Background(), 2, 50, AllDomains))
	assert.Equal(t, core.LogQuery{Page: 2, Limit: 50}, api.lastQuery())

	require.NoError(t, c.FetchPage(context.Background(), 0, 0, "d1"))
	assert.Equal(t, core.LogQuery{Page: 1, Limit: DefaultPageSize, DomainID: "d1"}, api.lastQuery())
	assert.Equal(t, View{Page: 1, PageSize: DefaultPageSize, DomainFilter: "d1"}, c.View())
}

func TestFetchPageReplacesListAndPagination(t *testing.T) {
	api := newFakeLogAPI()
	api.pages = func(q core.LogQuery) (*core.PaginatedLogs, error) {
		return &core.PaginatedLogs{
			Data:       entries(3, "p"),
			Pagination: core.Pagination{CurrentPage: 1, TotalPages: 7, TotalItems: 130, PerPage: 20},
		}, nil
	}
	c, _, _ := newController(api)

	require.NoError(t, c.FetchPage(context.Background(), 1, 20, ""))
	assert.Len(t, c.Logs(), 3)
	assert.Equal(t, int64(7), c.Pagination().TotalPages)
}

func TestFailedFetchKeepsPreviousPage(t *testing.T) {
	api := newFakeLogAPI()
	api.pages = func(core.LogQuery) (*core.PaginatedLogs, error) {
		return &core.PaginatedLogs{Data: entries(2, "a")}, nil
	}
	c, _, _ := newController(api)
	require.NoError(t, c.FetchPage(context.Background(), 1, 20, ""))

	api.pages = func(core.LogQuery) (*core.PaginatedLogs, error) {
		return nil, &client.Error{Kind: client.KindNetwork}
	}
	require.Error(t, c.Refresh(context.Background()))
	assert.Len(t, c.Logs(), 2)
}

func TestStalePageIsDiscarded(t *testing.T) {
	api := newFakeLogAPI()
	slow := make(chan struct{})
	api.pages = func(q core.LogQuery) (*core.PaginatedLogs, error) {
		if q.Page == 1 {
			<-slow
			return &core.PaginatedLogs{Data: entries(1, "page1-")}, nil
		}
		return &core.PaginatedLogs{Data: entries(1, "page2-")}, nil
	}
	c, _, _ := newController(api)

	done := make(chan error, 1)
	go func() { done <- c.FetchPage(context.Background(), 1, 20, "") }()
	require.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return len(api.queries) == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, c.FetchPage(context.Background(), 2, 20, ""))
	close(slow)
	require.NoError(t, <-done)

	require.Len(t, c.Logs(), 1)
	assert.Equal(t, "page2-0", c.Logs()[0].ID)
}

func TestFiltered(t *testing.T) {
	api := newFakeLogAPI()
	api.pages = func(core.LogQuery) (*core.PaginatedLogs, error) {
		return &core.PaginatedLogs{Data: []core.AttackLog{
			{ID: "1", IP: "10.0.0.1", RequestPath: "/login", Reason: "SQL Injection", Action: core.LogBlocked},
			{ID: "2", IP: "192.168.1.5", RequestPath: "/ADMIN", Reason: "Path scan", Action: core.LogFlagged},
			{ID: "3", IP: "172.16.0.9", RequestPath: "/", Reason: "Clean", Action: core.LogMonitor},
		}}, nil
	}
	c, _, _ := newController(api)
	require.NoError(t, c.FetchPage(context.Background(), 1, 20, ""))

	ids := func(logs []core.AttackLog) []string {
		var out []string
		for _, l := range logs {
			out = append(out, l.ID)
		}
		return out
	}

	assert.Equal(t, []string{"1", "2", "3"}, ids(c.Filtered(Filter{})))
	assert.Equal(t, []string{"1"}, ids(c.Filtered(Filter{Search: "sql"})))
	assert.Equal(t, []string{"2"}, ids(c.Filtered(Filter{Search: "admin"})))
	assert.Equal(t, []string{"2"}, ids(c.Filtered(Filter{Search: "192.168"})))
	assert.Equal(t, []string{"2"}, ids(c.Filtered(Filter{Action: "flagged"})))
	assert.Equal(t, []string{"1", "2", "3"}, ids(c.Filtered(Filter{Action: "all"})))
	assert.Empty(t, c.Filtered(Filter{Search: "sql", Action: "Monitor"}))

	assert.True(t, Filter{Search: "LOGIN"}.Matches(core.AttackLog{RequestPath: "/login"}))
	assert.False(t, Filter{Action: "blocked"}.Matches(core.AttackLog{Action: core.LogMonitor}))
}

func TestStats(t *testing.T) {
	api := newFakeLogAPI()
	c, _, _ := newController(api)
	assert.Equal(t, Stats{TopReason: "None"}, c.Stats())

	api.pages = func(core.LogQuery) (*core.PaginatedLogs, error) {
		return &core.PaginatedLogs{Data: []core.AttackLog{
			{Action: core.LogBlocked, Reason: "XSS"},
			{Action: core.LogFlagged, Reason: "SQLi"},
			{Action: core.LogBlocked, Reason: "SQLi"},
			{Action: core.LogMonitor, Reason: "XSS"},
		}}, nil
	}
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, Stats{Total: 4, Blocked: 2, Flagged: 1, TopReason: "XSS"}, c.Stats())
}

func TestHandleEventEligibility(t *testing.T) {
	api := newFakeLogAPI()
	api.pages = func(core.LogQuery) (*core.PaginatedLogs, error) {
		return &core.PaginatedLogs{Data: entries(3, "x")}, nil
	}
	c, _, m := newController(api)
	ctx := context.Background()

	require.NoError(t, c.FetchPage(ctx, 2, 20, ""))
	assert.Equal(t, metrics.StreamDropped, c.HandleEvent(core.AttackLog{ID: "new"}))

	require.NoError(t, c.FetchPage(ctx, 1, 20, "d1"))
	assert.Equal(t, metrics.StreamDropped, c.HandleEvent(core.AttackLog{ID: "other", DomainID: "d2"}))
	assert.Equal(t, metrics.StreamMerged, c.HandleEvent(core.AttackLog{ID: "mine", DomainID: "d1"}))
	assert.Equal(t, metrics.StreamDuplicate, c.HandleEvent(core.AttackLog{ID: "mine", DomainID: "d1"}))

	logs := c.Logs()
	require.Len(t, logs, 4)
	assert.Equal(t, "mine", logs[0].ID)

	c.SetPaused(true)
	assert.True(t, c.Paused())
	assert.Equal(t, metrics.StreamDropped, c.HandleEvent(core.AttackLog{ID: "late", DomainID: "d1"}))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.StreamEvents.WithLabelValues(metrics.StreamDropped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StreamEvents.WithLabelValues(metrics.StreamMerged)))
}

func TestHandleEventTrimsToPageSize(t *testing.T) {
	api := newFakeLogAPI()
	api.pages = func(core.LogQuery) (*core.PaginatedLogs, error) {
		return &core.PaginatedLogs{Data: entries(5, "old")}, nil
	}
	c, _, _ := newController(api)
	require.NoError(t, c.FetchPage(context.Background(), 1, 5, ""))

	c.HandleEvent(core.AttackLog{ID: "new"})

	logs := c.Logs()
	require.Len(t, logs, 5)
	assert.Equal(t, "new", logs[0].ID)
	assert.Equal(t, "old3", logs[4].ID)
}

func TestEntriesWithoutIDAreNeverDuplicates(t *testing.T) {
	c, _, _ := newController(newFakeLogAPI())
	assert.Equal(t, metrics.StreamMerged, c.HandleEvent(core.AttackLog{Reason: "a"}))
	assert.Equal(t, metrics.StreamMerged, c.HandleEvent(core.AttackLog{Reason: "a"}))
	assert.Len(t, c.Logs(), 2)
}

func TestLiveTailMergesAndRestartsOnViewChange(t *testing.T) {
	api := newFakeLogAPI()
	c, _, _ := newController(api)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	merged := make(chan string, 4)
	c.OnMerge(func(l core.AttackLog) { merged <- l.ID })

	c.StartLiveTail(ctx)
	c.StartLiveTail(ctx)
	require.Eventually(t, func() bool { return api.open.Load() == 1 }, time.Second, time.Millisecond)
	assert.True(t, c.Tailing())

	api.events <- core.AttackLog{ID: "e1"}
	assert.Equal(t, "e1", <-merged)

	require.NoError(t, c.FetchPage(ctx, 1, 20, "d9"))
	require.Eventually(t, func() bool {
		return api.streams.Load() == 2 && api.open.Load() == 1
	}, time.Second, time.Millisecond)

	// Same view again: no restart.
	require.NoError(t, c.FetchPage(ctx, 1, 20, "d9"))
	assert.Equal(t, int32(2), api.streams.Load())

	c.StopLiveTail()
	assert.False(t, c.Tailing())
	assert.Equal(t, int32(0), api.open.Load())
}

func TestLiveTailFaultIsReportedOnce(t *testing.T) {
	api := newFakeLogAPI()
	c, rec, _ := newController(api)

	c.StartLiveTail(context.Background())
	done := c.TailDone()
	api.fault <- &client.Error{Kind: client.KindStream, Message: "live stream closed"}
	<-done

	assert.False(t, c.Tailing())
	assert.Equal(t, []string{"live stream closed"}, rec.Errors())
	assert.Equal(t, int32(1), api.streams.Load())

	// A view change after a fault does not reconnect.
	require.NoError(t, c.FetchPage(context.Background(), 1, 10, ""))
	assert.Equal(t, int32(1), api.streams.Load())
}

func TestExportJSON(t *testing.T) {
	api := newFakeLogAPI()
	api.pages = func(core.LogQuery) (*core.PaginatedLogs, error) {
		return &core.PaginatedLogs{Data: []core.AttackLog{
			{ID: "1", Action: core.LogBlocked},
			{ID: "2", Action: core.LogMonitor},
		}}, nil
	}
	c, _, _ := newController(api)
	require.NoError(t, c.FetchPage(context.Background(), 1, 20, ""))

	var buf bytes.Buffer
	require.NoError(t, c.Export(&buf, FormatJSON))
	assert.Contains(t, buf.String(), "\n  {\n    \"_id\": \"1\"")

	var back []core.AttackLog
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	assert.Len(t, back, 2, "export ignores the client-side filter")
}

func TestExportBSON(t *testing.T) {
	oid := primitive.NewObjectID()
	api := newFakeLogAPI()
	api.pages = func(core.LogQuery) (*core.PaginatedLogs, error) {
		return &core.PaginatedLogs{Data: []core.AttackLog{
			{ID: oid.Hex(), IP: "10.0.0.1", Action: core.LogBlocked},
			{ID: "not-an-oid", IP: "10.0.0.2"},
		}}, nil
	}
	c, _, _ := newController(api)
	require.NoError(t, c.FetchPage(context.Background(), 1, 20, ""))

	var buf bytes.Buffer
	require.NoError(t, c.Export(&buf, FormatBSON))

	data := buf.Bytes()
	n := rawLen(data)
	first := bson.Raw(data[:n])
	require.NoError(t, first.Validate())
	assert.Equal(t, oid, first.Lookup("_id").ObjectID())
	assert.Equal(t, "10.0.0.1", first.Lookup("ip").StringValue())

	second := bson.Raw(data[n:])
	require.NoError(t, second.Validate())
	_, err := second.LookupErr("_id")
	assert.Error(t, err)

	assert.Error(t, c.Export(&buf, "xml"))
}

// rawLen reads the length prefix of the BSON document at the start of b.
func rawLen(b []byte) int32 {
	return int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16 | int32(b[3])<<24
}

func TestExportFilename(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "waf_logs_2024-05-01T10:00:00.000Z.json", ExportFilename(ts, "json"))
	assert.Equal(t, "waf_logs_2024-05-01T10:00:00.000Z.bson", ExportFilename(ts, "BSON"))
}
