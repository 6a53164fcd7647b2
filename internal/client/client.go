// Package client talks to the MiniShield gateway REST/SSE API. Every call goes
// through the envelope decoder in pkg/response and fails with *Error.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"

	"web-app-firewall-console/internal/logger"
	"web-app-firewall-console/internal/metrics"
	"web-app-firewall-console/internal/notify"
	"web-app-firewall-console/pkg/response"
)

const (
	authCheckPath = "/api/auth/check"
	maxBodySize   = 8 << 20
)

type Client struct {
	baseURL  string
	http     *http.Client
	stream   *http.Client
	notifier notify.Notifier
	log      logger.Logger
	metrics  *metrics.Metrics
}

type Option func(*Client)

// WithHTTPClient replaces the transport client. Its Jar carries the session.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func WithNotifier(n notify.Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New builds a client for baseURL. An empty baseURL is accepted; every call
// then fails with ErrNotConfigured.
func New(baseURL string, opts ...Option) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Jar: jar, Timeout: 15 * time.Second},
		notifier: notify.Nop{},
		log:      logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		c.http.Jar = jar
	}
	// Streams stay open indefinitely; only the context ends them.
	c.stream = &http.Client{Jar: c.http.Jar, Transport: c.http.Transport}
	return c, nil
}

func (c *Client) BaseURL() string { return c.baseURL }

// Jar exposes the session cookies (used to inspect the auth token).
func (c *Client) Jar() http.CookieJar { return c.http.Jar }

type quietKey struct{}

// WithoutErrorNotification marks calls made with ctx as not notifying the
// user on failure. The error is still returned.
func WithoutErrorNotification(ctx context.Context) context.Context {
	return context.WithValue(ctx, quietKey{}, true)
}

func isQuiet(ctx context.Context) bool {
	q, _ := ctx.Value(quietKey{}).(bool)
	return q
}

func (c *Client) fail(ctx context.Context, err *Error) *Error {
	if !isQuiet(ctx) {
		c.notifier.Error(UserMessage(err))
	}
	return err
}

// do performs one request and decodes the envelope. A 401 on the auth check
// endpoint is returned as a non-OK result with a nil error.
func (c *Client) do(ctx context.Context, method, endpoint string, body interface{}) (response.Result, error) {
	if c.baseURL == "" {
		return response.Result{}, c.fail(ctx, ErrNotConfigured)
	}

	path := endpoint
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	label := method + " " + path
	start := time.Now()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return response.Result{}, c.fail(ctx, &Error{Kind: KindDecode, Message: "could not encode request", Err: err})
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return response.Result{}, c.fail(ctx, &Error{Kind: KindConfig, Message: "invalid API URL", Err: err})
	}
	reqID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveCall(label, "network_error", time.Since(start).Seconds())
		nerr := &Error{Kind: KindNetwork, Err: err}
		if ctx.Err() != nil {
			// Cancelled by the caller: the result is no longer wanted.
			return response.Result{}, nerr
		}
		c.log.Warn("api call failed",
			logger.String("endpoint", label),
			logger.String("request_id", reqID),
			logger.Err(err),
		)
		return response.Result{}, c.fail(ctx, nerr)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && path == authCheckPath {
		c.metrics.ObserveCall(label, "unauthenticated", time.Since(start).Seconds())
		return response.Result{Status: resp.StatusCode}, nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		c.metrics.ObserveCall(label, "network_error", time.Since(start).Seconds())
		return response.Result{}, c.fail(ctx, &Error{Kind: KindNetwork, Status: resp.StatusCode, Err: err})
	}

	res := response.Decode(resp.StatusCode, resp.Header.Get("Content-Type"), raw)
	c.log.Debug("api call",
		logger.String("endpoint", label),
		logger.Int("status", resp.StatusCode),
		logger.Duration("duration", time.Since(start)),
		logger.String("request_id", reqID),
	)

	switch {
	case res.OK:
		c.metrics.ObserveCall(label, "ok", time.Since(start).Seconds())
		return res, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		c.metrics.ObserveCall(label, "http_error", time.Since(start).Seconds())
		return res, c.fail(ctx, &Error{Kind: KindHTTP, Status: res.Status, Message: res.Message})
	default:
		c.metrics.ObserveCall(label, "empty", time.Since(start).Seconds())
		return res, c.fail(ctx, &Error{
			Kind:    KindDecode,
			Status:  res.Status,
			Message: fmt.Sprintf("Unexpected response from %s", path),
		})
	}
}

// call performs a request and unmarshals the success payload into T.
func call[T any](ctx context.Context, c *Client, method, endpoint string, body interface{}) (T, error) {
	var out T
	res, err := c.do(ctx, method, endpoint, body)
	if err != nil {
		return out, err
	}
	if err := res.Unmarshal(&out); err != nil {
		return out, c.fail(ctx, &Error{
			Kind:    KindDecode,
			Status:  res.Status,
			Message: fmt.Sprintf("Unexpected response format from %s", endpoint),
			Err:     err,
		})
	}
	return out, nil
}

// exec performs a request whose payload is not needed.
func (c *Client) exec(ctx context.Context, method, endpoint string, body interface{}) error {
	_, err := c.do(ctx, method, endpoint, body)
	return err
}

func query(params ...string) string {
	v := url.Values{}
	for i := 0; i+1 < len(params); i += 2 {
		if params[i+1] != "" {
			v.Set(params[i], params[i+1])
		}
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}
