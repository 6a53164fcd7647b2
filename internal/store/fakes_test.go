package store

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"web-app-firewall-console/internal/client"
	"web-app-firewall-console/internal/core"
)

var errGateway = &client.Error{Kind: client.KindHTTP, Status: 500, Message: "Failed to update DNS record"}

type fakeDomainAPI struct {
	mu        sync.Mutex
	domains   []core.Domain
	records   map[string][]core.DNSRecord
	verify    core.VerifyResult
	listCalls atomic.Int32
	recCalls  atomic.Int32
	addCalls  atomic.Int32
	added     []core.AddDNSRecordRequest

	// toggle, if set, handles SetRecordProxy / SetRecordOriginSSL.
	toggle    func(ctx context.Context, recordID string, v bool) error
	deleteErr error
	recordsIn chan struct{} // closed-over gate for ListRecords, optional
}

func newFakeDomainAPI() *fakeDomainAPI {
	return &fakeDomainAPI{records: make(map[string][]core.DNSRecord)}
}

func (f *fakeDomainAPI) ListDomains(ctx context.Context) ([]core.Domain, error) {
	f.listCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.domains), nil
}

func (f *fakeDomainAPI) AddDomain(ctx context.Context, name string) (*core.Domain, error) {
	f.addCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	d := core.Domain{ID: "dom-" + name, Name: name, Status: core.DomainPending}
	f.domains = append([]core.Domain{d}, f.domains...)
	return &d, nil
}

func (f *fakeDomainAPI) VerifyDomain(ctx context.Context, id string) (*core.VerifyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := f.verify
	if res.Status == core.DomainActive {
		for i := range f.domains {
			if f.domains[i].ID == id {
				f.domains[i].Status = core.DomainActive
			}
		}
	}
	return &res, nil
}

func (f *fakeDomainAPI) ListRecords(ctx context.Context, domainID string) ([]core.DNSRecord, error) {
	f.recCalls.Add(1)
	if f.recordsIn != nil {
		select {
		case <-f.recordsIn:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.records[domainID]), nil
}

func (f *fakeDomainAPI) AddRecord(ctx context.Context, req core.AddDNSRecordRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, req)
	f.records[req.DomainID] = append(f.records[req.DomainID], core.DNSRecord{
		ID: "rec-new", DomainID: req.DomainID, Name: req.Name, Type: req.Type,
		Content: req.Content, TTL: req.TTL, Proxied: req.Proxied,
	})
	return nil
}

func (f *fakeDomainAPI) DeleteRecord(ctx context.Context, domainID, recordID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[domainID] = slices.DeleteFunc(f.records[domainID], func(r core.DNSRecord) bool { return r.ID == recordID })
	return nil
}

func (f *fakeDomainAPI) SetRecordProxy(ctx context.Context, domainID, recordID string, proxied bool) error {
	if f.toggle != nil {
		return f.toggle(ctx, recordID, proxied)
	}
	return nil
}

func (f *fakeDomainAPI) SetRecordOriginSSL(ctx context.Context, domainID, recordID string, ssl bool) error {
	if f.toggle != nil {
		return f.toggle(ctx, recordID, ssl)
	}
	return nil
}

type fakeRuleAPI struct {
	mu      sync.Mutex
	rules   map[string][]core.Rule // key: tier + "/" + domainID
	toggled []core.ToggleRuleRequest
	created []core.NewRule
	deleted []string
	calls   atomic.Int32
	block   map[string]chan struct{} // per domain gate
}

func newFakeRuleAPI() *fakeRuleAPI {
	return &fakeRuleAPI{rules: make(map[string][]core.Rule), block: make(map[string]chan struct{})}
}

func (f *fakeRuleAPI) ListRules(ctx context.Context, tier core.RuleTier, domainID string) ([]core.Rule, error) {
	f.calls.Add(1)
	f.mu.Lock()
	gate := f.block[domainID]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.rules[string(tier)+"/"+domainID]), nil
}

func (f *fakeRuleAPI) AddCustomRule(ctx context.Context, rule core.NewRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, rule)
	return nil
}

func (f *fakeRuleAPI) ToggleRule(ctx context.Context, req core.ToggleRuleRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggled = append(f.toggled, req)
	key := string(core.TierGlobal) + "/" + req.DomainID
	for i := range f.rules[key] {
		if f.rules[key][i].ID == req.ID {
			f.rules[key][i].Enabled = req.Enabled
		}
	}
	return nil
}

func (f *fakeRuleAPI) DeleteCustomRule(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == "" {
		return errors.New("missing id")
	}
	f.deleted = append(f.deleted, id)
	return nil
}
