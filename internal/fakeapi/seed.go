package fakeapi

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"web-app-firewall-console/internal/core"
	"web-app-firewall-console/internal/logger"
)

// AddGlobalRule installs a rule every user sees in the global tier.
func (s *Server) AddGlobalRule(rule core.NewRule) core.Rule {
	if rule.OnMatch.Tags == nil {
		rule.OnMatch.Tags = []string{}
	}
	return s.state.addRule(core.Rule{
		Name:       rule.Name,
		Conditions: rule.Conditions,
		OnMatch:    rule.OnMatch,
	})
}

// DefaultGlobalRules is the managed rule set the gateway ships with.
func DefaultGlobalRules() []core.NewRule {
	return []core.NewRule{
		{
			Name: "SQL Injection",
			Conditions: []core.Condition{{
				Field: core.Custom("request.combined"), Operator: core.OpRegex,
				Value: `(?i)(union\s+select|or\s+1=1|sleep\()`,
			}},
			OnMatch: core.MatchAction{ScoreAdd: 10, Tags: []string{"sqli"}, HardBlock: true},
		},
		{
			Name: "Cross-Site Scripting",
			Conditions: []core.Condition{{
				Field: core.Custom("request.combined"), Operator: core.OpRegex,
				Value: `(?i)(<script|javascript:|onerror=)`,
			}},
			OnMatch: core.MatchAction{ScoreAdd: 8, Tags: []string{"xss"}},
		},
		{
			Name: "Path Traversal",
			Conditions: []core.Condition{{
				Field: core.Preset(core.FieldPath), Operator: core.OpContains, Value: "../",
			}},
			OnMatch: core.MatchAction{ScoreAdd: 6, Tags: []string{"lfi"}},
		},
	}
}

// Register creates a user directly, for seeding.
func (s *Server) Register(name, email, password string) (core.User, error) {
	return s.state.createUser(name, email, password)
}

// AddActiveDomain gives userID an already verified domain, for seeding.
func (s *Server) AddActiveDomain(userID, name string) (core.Domain, error) {
	d, err := s.state.createDomain(core.Domain{
		UserID:      userID,
		Name:        strings.ToLower(name),
		Nameservers: assignNameservers(),
		Status:      core.DomainPending,
	})
	if err != nil {
		return core.Domain{}, err
	}
	if err := s.state.activate(d.ID); err != nil {
		return core.Domain{}, err
	}
	return s.state.domainByID(d.ID)
}

type sample struct {
	path, method, reason, action string
	score                        float64
	tags                         []string
}

var samples = []sample{
	{"/products?id=1%20UNION%20SELECT%20password%20FROM%20users", http.MethodGet, "SQL Injection", core.LogBlocked, 10, []string{"sqli"}},
	{"/search?q=<script>alert(1)</script>", http.MethodGet, "Cross-Site Scripting", core.LogBlocked, 8, []string{"xss"}},
	{"/static/../../etc/passwd", http.MethodGet, "Path Traversal", core.LogFlagged, 6, []string{"lfi"}},
	{"/login", http.MethodPost, "ML anomaly score", core.LogFlagged, 4.5, []string{"ml"}},
	{"/", http.MethodGet, "Clean", core.LogMonitor, 0, []string{}},
}

// Simulate publishes a random attack log against a random active domain
// every interval until ctx is done.
func (s *Server) Simulate(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if entry, ok := s.randomLog(); ok {
				s.Publish(entry)
			}
		}
	}
}

func (s *Server) randomLog() (core.AttackLog, bool) {
	s.state.mu.RLock()
	var active []core.Domain
	for _, d := range s.state.domains {
		if d.Active() {
			active = append(active, d)
		}
	}
	s.state.mu.RUnlock()
	if len(active) == 0 {
		return core.AttackLog{}, false
	}

	d := active[rand.IntN(len(active))]
	smp := samples[rand.IntN(len(samples))]
	ip := fmt.Sprintf("203.0.113.%d", rand.IntN(254)+1)
	entry := core.AttackLog{
		IP:          ip,
		RequestPath: smp.path,
		Reason:      smp.reason,
		Action:      smp.action,
		Source:      "simulator",
		Tags:        smp.tags,
		Score:       smp.score,
		DomainID:    d.ID,
		Request: &core.FullRequest{
			Method:  smp.method,
			URL:     smp.path,
			Headers: map[string][]string{"Host": {d.Name}, "User-Agent": {"sqlmap/1.7"}, "X-Forwarded-For": {ip}},
			Proto:   "HTTP/1.1",
		},
	}
	if smp.action == core.LogFlagged {
		conf := 0.5 + rand.Float64()/2
		entry.MLConfidence = &conf
	}
	s.log.Debug("simulated request", logger.String("domain", d.Name), logger.String("action", smp.action))
	return entry, true
}
