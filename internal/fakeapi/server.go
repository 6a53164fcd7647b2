// Package fakeapi is an in-memory MiniShield gateway. It serves the same
// REST and event-stream contract as the real gateway, with the gateway's
// validation rules, so the console can be run and tested without one.
package fakeapi

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"web-app-firewall-console/internal/core"
	"web-app-firewall-console/internal/limiter"
	"web-app-firewall-console/internal/logger"
	"web-app-firewall-console/internal/middleware"
	"web-app-firewall-console/pkg/response"
)

const (
	DefaultHeartbeat  = 15 * time.Second
	DefaultAuthLimit  = 20
	DefaultAuthWindow = time.Minute
)

type Server struct {
	state     *state
	hub       *hub
	secret    []byte
	verifier  Verifier
	log       logger.Logger
	limiter   *limiter.RateLimiter
	heartbeat time.Duration
	origins   string
	secure    bool
	now       func() time.Time

	authLimit  int
	authWindow time.Duration

	meter requestMeter

	mu       sync.Mutex
	failures map[string]failure
}

type failure struct {
	status  int
	message string
}

type Option func(*Server)

// WithVerifier sets how registrar nameservers are looked up on verify.
func WithVerifier(v Verifier) Option {
	return func(s *Server) { s.verifier = v }
}

func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithHeartbeat sets the keep-alive interval of the log stream.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) { s.heartbeat = d }
}

// WithAuthRateLimit bounds login and register attempts per client address.
func WithAuthRateLimit(limit int, window time.Duration) Option {
	return func(s *Server) { s.authLimit, s.authWindow = limit, window }
}

// WithCORS enables CORS for the comma separated origins.
func WithCORS(origins string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithSecureCookies marks the session cookie Secure and SameSite=None, as in
// production behind TLS.
func WithSecureCookies(secure bool) Option {
	return func(s *Server) { s.secure = secure }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func New(secret string, opts ...Option) *Server {
	s := &Server{
		state:      newState(),
		hub:        newHub(),
		secret:     []byte(secret),
		verifier:   DelegatedVerifier,
		log:        logger.NewNop(),
		heartbeat:  DefaultHeartbeat,
		now:        time.Now,
		authLimit:  DefaultAuthLimit,
		authWindow: DefaultAuthWindow,
		failures:   make(map[string]failure),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.limiter = limiter.New(s.authLimit, s.authWindow, limiter.WithClock(s.now))
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(s.log))
	if s.origins != "" {
		r.Use(middleware.CORS(middleware.DefaultCORSConfig(s.origins)))
	}
	r.Use(s.countRequests)
	r.Use(s.injectFailures)

	auth := middleware.Auth(s.secret)
	limited := middleware.RateLimit(s.limiter)

	r.Get("/api/system/status", s.systemStatus)

	r.Route("/api/auth", func(r chi.Router) {
		r.With(limited).Post("/register", s.register)
		r.With(limited).Post("/login", s.login)
		r.Post("/logout", s.logout)
		r.With(auth).Get("/check", s.checkAuth)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth)

		r.Get("/api/domains", s.listDomains)
		r.Post("/api/domains/add", s.addDomain)
		r.Post("/api/domains/verify", s.verifyDomain)

		r.Get("/api/dns/records", s.listRecords)
		r.Post("/api/dns/records", s.addRecord)
		r.Put("/api/dns/records", s.updateRecord)
		r.Delete("/api/dns/records", s.deleteRecord)

		r.Get("/api/rules/global", s.globalRules)
		r.Get("/api/rules/custom", s.customRules)
		r.Post("/api/rules/custom/add", s.addCustomRule)
		r.Delete("/api/rules/custom/delete", s.deleteCustomRule)
		r.Post("/api/rules/toggle", s.toggleRule)

		r.Get("/api/logs", s.listLogs)
		r.Get("/api/logs/stream", s.streamLogs)
	})

	return r
}

// InjectFailure makes every later method+path request fail with status and
// message until ClearFailures. A 2xx status with an empty message answers
// with an empty body.
func (s *Server) InjectFailure(method, path string, status int, message string) {
	s.mu.Lock()
	s.failures[method+" "+path] = failure{status: status, message: message}
	s.mu.Unlock()
}

func (s *Server) ClearFailures() {
	s.mu.Lock()
	clear(s.failures)
	s.mu.Unlock()
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		f, ok := s.failures[r.Method+" "+r.URL.Path]
		s.mu.Unlock()
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		switch {
		case f.status >= 300:
			response.Error(w, f.message, f.status)
		case f.message == "":
			w.WriteHeader(f.status)
		default:
			response.Message(w, f.message, f.status)
		}
	})
}

// PruneRateLimits drops idle clients from the auth rate limiter every
// interval until ctx is done.
func (s *Server) PruneRateLimits(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.limiter.Prune(); n > 0 {
				s.log.Debug("rate limiter pruned", logger.Int("clients", n))
			}
		}
	}
}

// Subscribers reports how many log streams are open.
func (s *Server) Subscribers() int { return s.hub.count() }

// --- System ---

// requestMeter counts requests in the current wall-clock minute.
type requestMeter struct {
	mu     sync.Mutex
	minute time.Time
	count  int
}

func (m *requestMeter) mark(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if minute := now.Truncate(time.Minute); !minute.Equal(m.minute) {
		m.minute, m.count = minute, 0
	}
	m.count++
}

func (m *requestMeter) perMinute(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !now.Truncate(time.Minute).Equal(m.minute) {
		return 0
	}
	return m.count
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.meter.mark(s.now())
		next.ServeHTTP(w, r)
	})
}

func (s *Server) systemStatus(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response.Success(w, core.SystemStatus{
		Gateway: core.ComponentStatus{
			Status:  "Online",
			Memory:  fmt.Sprintf("%v MB", m.Alloc/1024/1024),
			CPU:     fmt.Sprintf("%d Goroutines", runtime.NumGoroutine()),
			Network: fmt.Sprintf("%d Req/min", s.meter.perMinute(s.now())),
		},
		Database: core.ComponentStatus{
			Status:  "Online",
			Memory:  "In-memory",
			CPU:     "N/A",
			Network: "N/A",
		},
		MLScorer: core.ComponentStatus{
			Status:  "Offline",
			Memory:  "0 MB",
			CPU:     "0%",
			Network: "0 Req/min",
		},
	}, "")
}
