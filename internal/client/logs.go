package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"web-app-firewall-console/internal/core"
	"web-app-firewall-console/internal/logger"
)

const streamPath = "/api/logs/stream"

// Logs fetches one page. The gateway answers either with the bare
// {data, pagination} body or with a success envelope whose data is the log
// array and whose pagination sits next to it; both are accepted.
func (c *Client) Logs(ctx context.Context, q core.LogQuery) (*core.PaginatedLogs, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 20
	}
	endpoint := "/api/logs" + query(
		"page", strconv.Itoa(q.Page),
		"limit", strconv.Itoa(q.Limit),
		"domain_id", q.DomainID,
	)

	res, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var out core.PaginatedLogs
	payload := res.Data
	if d := bytes.TrimSpace(res.Data); len(d) > 0 && d[0] == '[' {
		payload = res.Raw
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, c.fail(ctx, &Error{
			Kind:    KindDecode,
			Status:  res.Status,
			Message: "Unexpected response format from /api/logs",
			Err:     err,
		})
	}

	if out.Pagination.CurrentPage < 1 {
		out.Pagination.CurrentPage = int64(q.Page)
	}
	if out.Pagination.TotalPages < 1 {
		out.Pagination.TotalPages = 1
	}
	if out.Pagination.PerPage < 1 {
		out.Pagination.PerPage = int64(q.Limit)
	}
	if out.Data == nil {
		out.Data = []core.AttackLog{}
	}
	return &out, nil
}

// StreamLogs holds the live log stream open and calls onLog for each event
// until ctx is cancelled (nil error) or the connection faults (KindStream).
// Malformed events are skipped. There is no reconnect.
func (c *Client) StreamLogs(ctx context.Context, onLog func(core.AttackLog)) error {
	if c.baseURL == "" {
		return c.fail(ctx, ErrNotConfigured)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+streamPath, nil)
	if err != nil {
		return &Error{Kind: KindConfig, Message: "invalid API URL", Err: err}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.stream.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return &Error{Kind: KindStream, Message: "could not open live stream", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &Error{Kind: KindStream, Status: resp.StatusCode, Message: "live stream refused"}
	}

	c.log.Debug("live stream connected", logger.String("url", c.baseURL+streamPath))

	err = readEvents(resp.Body, func(data []byte) {
		var entry core.AttackLog
		if err := json.Unmarshal(data, &entry); err != nil {
			c.log.Debug("skipping malformed stream event", logger.Err(err))
			return
		}
		onLog(entry)
	})
	if ctx.Err() != nil {
		return nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return &Error{Kind: KindStream, Message: "live stream closed", Err: err}
}

// readEvents parses a text/event-stream body, calling fn with the data of
// every dispatched event. Comment lines (heartbeats) and other fields are
// ignored. It returns nil at a clean EOF.
func readEvents(r io.Reader, fn func(data []byte)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var data bytes.Buffer
	hasData := false
	for sc.Scan() {
		line := sc.Bytes()
		switch {
		case len(line) == 0:
			if hasData {
				fn(bytes.Clone(data.Bytes()))
			}
			data.Reset()
			hasData = false
		case line[0] == ':':
		default:
			field, value, found := bytes.Cut(line, []byte(":"))
			if found && len(value) > 0 && value[0] == ' ' {
				value = value[1:]
			}
			if string(field) != "data" {
				continue
			}
			if hasData {
				data.WriteByte('\n')
			}
			data.Write(value)
			hasData = true
		}
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return fmt.Errorf("stream event too large: %w", err)
		}
		return err
	}
	return nil
}
