package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"web-app-firewall-console/internal/client"
	"web-app-firewall-console/internal/core"
	"web-app-firewall-console/internal/logger"
	"web-app-firewall-console/internal/notify"
)

// ErrNoDomainSelected is returned by rule toggles before a domain is chosen.
var ErrNoDomainSelected = errors.New("Please select a domain first")

// RuleStore caches the global and custom rule tiers for the selected domain.
// Rule mutations are never optimistic: each one is followed by a full refetch.
type RuleStore struct {
	api      core.RuleAPI
	notifier notify.Notifier
	log      logger.Logger

	mu       sync.RWMutex
	domainID string
	gen      uint64
	global   []core.Rule
	custom   []core.Rule
}

func NewRuleStore(api core.RuleAPI, n notify.Notifier, l logger.Logger) *RuleStore {
	return &RuleStore{api: api, notifier: n, log: l}
}

// SelectDomain switches the scope, drops both cached tiers and refetches them.
// Results for a domain that has since been deselected are discarded.
func (s *RuleStore) SelectDomain(ctx context.Context, domainID string) error {
	s.mu.Lock()
	s.domainID = domainID
	s.gen++
	gen := s.gen
	s.global, s.custom = nil, nil
	s.mu.Unlock()

	return s.fetch(ctx, domainID, gen)
}

// Refresh refetches both tiers for the current selection.
func (s *RuleStore) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.gen++
	domainID, gen := s.domainID, s.gen
	s.mu.Unlock()

	return s.fetch(ctx, domainID, gen)
}

func (s *RuleStore) fetch(ctx context.Context, domainID string, gen uint64) error {
	var global, custom []core.Rule

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		global, err = s.api.ListRules(gctx, core.TierGlobal, domainID)
		return err
	})
	g.Go(func() (err error) {
		custom, err = s.api.ListRules(gctx, core.TierCustom, domainID)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		s.log.Debug("discarding stale rule fetch", logger.String("domain_id", domainID))
		return nil
	}
	s.global = nonNil(global)
	s.custom = nonNil(custom)
	return nil
}

func nonNil(rules []core.Rule) []core.Rule {
	if rules == nil {
		return []core.Rule{}
	}
	return rules
}

func (s *RuleStore) Global() []core.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.global)
}

func (s *RuleStore) Custom() []core.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.custom)
}

func (s *RuleStore) SelectedDomain() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.domainID
}

// AddCustomRule requires a name and a value on every condition; fields and
// operators are otherwise opaque.
func (s *RuleStore) AddCustomRule(ctx context.Context, rule core.NewRule) error {
	if err := validateRule(rule); err != nil {
		ve := client.Validation(err)
		s.notifier.Error(ve.Message)
		return ve
	}
	if rule.OnMatch.Tags == nil {
		rule.OnMatch.Tags = []string{}
	}

	if err := s.api.AddCustomRule(ctx, rule); err != nil {
		return err
	}
	s.notifier.Success("Custom rule created")
	return s.Refresh(ctx)
}

func validateRule(rule core.NewRule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return errors.New("Rule name is required")
	}
	if len(rule.Conditions) == 0 {
		return errors.New("At least one condition is required")
	}
	for i, c := range rule.Conditions {
		if strings.TrimSpace(c.Value) == "" {
			return fmt.Errorf("Condition %d: value is required", i+1)
		}
		if c.Field.String() == "" {
			return fmt.Errorf("Condition %d: field is required", i+1)
		}
		if !c.Operator.Valid() {
			return fmt.Errorf("Condition %d: unknown operator %q", i+1, c.Operator)
		}
	}
	if rule.OnMatch.ScoreAdd < 0 {
		return errors.New("Score must not be negative")
	}
	return nil
}

// ToggleRule sets a rule's enabled state for the selected domain, then
// refetches both tiers.
func (s *RuleStore) ToggleRule(ctx context.Context, id string, enabled bool) error {
	domainID := s.SelectedDomain()
	if domainID == "" {
		ve := client.Validation(ErrNoDomainSelected)
		s.notifier.Error(ve.Message)
		return ve
	}

	req := core.ToggleRuleRequest{ID: id, DomainID: domainID, Enabled: enabled}
	if err := s.api.ToggleRule(ctx, req); err != nil {
		return err
	}
	s.notifier.Success("Rule status updated")
	return s.Refresh(ctx)
}

// DeleteCustomRule removes a custom rule, then refetches both tiers.
func (s *RuleStore) DeleteCustomRule(ctx context.Context, id string) error {
	if err := s.api.DeleteCustomRule(ctx, id); err != nil {
		return err
	}
	s.notifier.Success("Rule deleted")
	return s.Refresh(ctx)
}
