package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"web-app-firewall-console/internal/client"
	"web-app-firewall-console/internal/core"
	"web-app-firewall-console/internal/logger"
	"web-app-firewall-console/internal/metrics"
	"web-app-firewall-console/internal/notify"
	"web-app-firewall-console/pkg/validator"
)

const (
	fieldProxied   = "proxied"
	fieldOriginSSL = "origin_ssl"

	defaultTTL = 300
)

// ErrVerificationPending is returned when the gateway answers a verify with a
// status other than active.
var ErrVerificationPending = errors.New("domain verification pending")

// DomainStore owns the domain list and the per-domain DNS record lists.
// Nothing else writes them.
type DomainStore struct {
	api      core.DomainAPI
	notifier notify.Notifier
	log      logger.Logger
	metrics  *metrics.Metrics

	mu      sync.RWMutex
	domains []core.Domain
	records map[string][]core.DNSRecord

	loads   singleflight.Group
	toggles *generations
}

func NewDomainStore(api core.DomainAPI, n notify.Notifier, l logger.Logger, m *metrics.Metrics) *DomainStore {
	return &DomainStore{
		api:      api,
		notifier: n,
		log:      l,
		metrics:  m,
		records:  make(map[string][]core.DNSRecord),
		toggles:  newGenerations(),
	}
}

// invalid reports a local validation failure without touching the network.
func (s *DomainStore) invalid(err error) error {
	ve := client.Validation(err)
	s.notifier.Error(ve.Message)
	return ve
}

func localError(msg string) error { return client.Validation(errors.New(msg)) }

// --- Domains ---

// ListDomains replaces the local list with the gateway's.
func (s *DomainStore) ListDomains(ctx context.Context) ([]core.Domain, error) {
	domains, err := s.api.ListDomains(ctx)
	if err != nil {
		return nil, err
	}
	if domains == nil {
		domains = []core.Domain{}
	}

	s.mu.Lock()
	s.domains = domains
	s.mu.Unlock()
	return slices.Clone(domains), nil
}

func (s *DomainStore) Domains() []core.Domain {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.domains)
}

// Domain looks a domain up by id or by name.
func (s *DomainStore) Domain(ref string) (core.Domain, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.domains {
		if d.ID == ref || strings.EqualFold(d.Name, ref) {
			return d, true
		}
	}
	return core.Domain{}, false
}

// AddDomain validates the hostname locally and prepends the created domain.
func (s *DomainStore) AddDomain(ctx context.Context, name string) (*core.Domain, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, s.invalid(errors.New("Domain name required"))
	}
	if err := validator.Domain(name); err != nil {
		return nil, s.invalid(err)
	}

	created, err := s.api.AddDomain(ctx, name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.domains = append([]core.Domain{*created}, s.domains...)
	s.mu.Unlock()

	s.notifier.Success("Domain added successfully")
	s.log.Info("domain added", logger.String("domain", created.Name), logger.String("id", created.ID))
	return created, nil
}

// VerifyDomain asks the gateway to check delegation. On "active" the whole
// list is refreshed; any other verdict leaves the domain pending.
func (s *DomainStore) VerifyDomain(ctx context.Context, id string) (*core.VerifyResult, error) {
	result, err := s.api.VerifyDomain(ctx, id)
	if err != nil {
		return nil, err
	}

	if result.Status != core.DomainActive {
		s.notifier.Error(result.Message)
		return result, fmt.Errorf("%w: %s", ErrVerificationPending, result.Message)
	}

	s.notifier.Success("Domain verified successfully")
	if _, err := s.ListDomains(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// --- DNS records ---

// LoadRecords returns the cached records of a domain, fetching them the
// first time. Concurrent first loads share one request.
func (s *DomainStore) LoadRecords(ctx context.Context, domainID string) ([]core.DNSRecord, error) {
	s.mu.RLock()
	cached, ok := s.records[domainID]
	s.mu.RUnlock()
	if ok {
		return slices.Clone(cached), nil
	}

	// The shared fetch outlives any one caller; each caller stops waiting on
	// its own context.
	shared := context.WithoutCancel(ctx)
	ch := s.loads.DoChan(domainID, func() (interface{}, error) {
		s.mu.RLock()
		cached, ok := s.records[domainID]
		s.mu.RUnlock()
		if ok {
			return cached, nil
		}
		return s.fetchRecords(shared, domainID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]core.DNSRecord)), nil
	}
}

// RefreshRecords always refetches.
func (s *DomainStore) RefreshRecords(ctx context.Context, domainID string) ([]core.DNSRecord, error) {
	records, err := s.fetchRecords(ctx, domainID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(records), nil
}

func (s *DomainStore) fetchRecords(ctx context.Context, domainID string) ([]core.DNSRecord, error) {
	records, err := s.api.ListRecords(ctx, domainID)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []core.DNSRecord{}
	}

	s.mu.Lock()
	s.records[domainID] = records
	s.mu.Unlock()
	return records, nil
}

// Records returns the cached records, or nil if never loaded.
func (s *DomainStore) Records(domainID string) []core.DNSRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.records[domainID])
}

func (s *DomainStore) Loaded(domainID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[domainID]
	return ok
}

// AddDNSRecord validates, submits, then refetches the domain's records so
// server-assigned fields are present.
func (s *DomainStore) AddDNSRecord(ctx context.Context, req core.AddDNSRecordRequest) error {
	if err := validateRecord(&req); err != nil {
		return s.invalid(err)
	}

	if err := s.api.AddRecord(ctx, req); err != nil {
		return err
	}
	s.notifier.Success("Record added")

	if _, err := s.fetchRecords(ctx, req.DomainID); err != nil {
		return fmt.Errorf("record added but refresh failed: %w", err)
	}
	return nil
}

func validateRecord(req *core.AddDNSRecordRequest) error {
	if req.DomainID == "" {
		return errors.New("domain is required")
	}
	if err := validator.RecordName(req.Name); err != nil {
		return err
	}
	if _, err := core.ParseRecordType(string(req.Type)); err != nil {
		return err
	}
	req.Type = core.RecordType(strings.ToUpper(string(req.Type)))
	if err := validator.RecordContent(string(req.Type), req.Content); err != nil {
		return err
	}
	if req.TTL == 0 {
		req.TTL = defaultTTL
	}
	if err := validator.TTL(req.TTL); err != nil {
		return err
	}
	if !req.Type.Proxiable() {
		req.Proxied = false
		req.OriginSSL = false
	}
	return nil
}

// DeleteDNSRecord removes the record locally once the gateway confirms.
func (s *DomainStore) DeleteDNSRecord(ctx context.Context, domainID, recordID string) error {
	if err := s.api.DeleteRecord(ctx, domainID, recordID); err != nil {
		return err
	}

	s.mu.Lock()
	if list, ok := s.records[domainID]; ok {
		s.records[domainID] = slices.DeleteFunc(slices.Clone(list), func(r core.DNSRecord) bool {
			return r.ID == recordID
		})
	}
	s.mu.Unlock()

	s.notifier.Success("Record deleted")
	return nil
}

// ToggleProxy flips proxied locally, then on the gateway.
func (s *DomainStore) ToggleProxy(ctx context.Context, domainID, recordID string) error {
	return s.toggle(ctx, domainID, recordID, fieldProxied,
		func(r *core.DNSRecord) *bool { return &r.Proxied },
		s.api.SetRecordProxy,
		"Failed to update proxy status")
}

// ToggleOriginSSL flips origin_ssl locally, then on the gateway.
func (s *DomainStore) ToggleOriginSSL(ctx context.Context, domainID, recordID string) error {
	return s.toggle(ctx, domainID, recordID, fieldOriginSSL,
		func(r *core.DNSRecord) *bool { return &r.OriginSSL },
		s.api.SetRecordOriginSSL,
		"Failed to update SSL status")
}

func (s *DomainStore) toggle(
	ctx context.Context,
	domainID, recordID, field string,
	fieldOf func(*core.DNSRecord) *bool,
	remote func(ctx context.Context, domainID, recordID string, v bool) error,
	failMsg string,
) error {
	op := optimistic[bool]{
		key: mutationKey{id: domainID + "/" + recordID, field: field},
		apply: func() (bool, bool, error) {
			prev, err := s.setField(domainID, recordID, fieldOf, nil)
			if err != nil {
				return false, false, err
			}
			next := !prev
			if _, err := s.setField(domainID, recordID, fieldOf, &next); err != nil {
				return false, false, err
			}
			return prev, next, nil
		},
		set: func(v bool) { _, _ = s.setField(domainID, recordID, fieldOf, &v) },
		remote: func(ctx context.Context, next bool) error {
			return remote(ctx, domainID, recordID, next)
		},
	}

	rolledBack, err := op.run(ctx, s.toggles)
	if err == nil {
		return nil
	}
	if client.IsKind(err, client.KindValidation) {
		s.notifier.Error(client.UserMessage(err))
		return err
	}

	if rolledBack {
		s.metrics.Rollback(field)
		s.notifier.Error(failMsg)
	}
	s.log.Warn("record toggle failed",
		logger.String("record_id", recordID),
		logger.String("field", field),
		logger.Bool("rolled_back", rolledBack),
		logger.Err(err),
	)
	return err
}

// setField reads the field and, if v is non-nil, writes it. Only the targeted
// record is touched; the list itself is copied so earlier snapshots handed to
// callers stay unchanged.
func (s *DomainStore) setField(domainID, recordID string, fieldOf func(*core.DNSRecord) *bool, v *bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, ok := s.records[domainID]
	if !ok {
		return false, localError("records for this domain are not loaded")
	}
	i := slices.IndexFunc(list, func(r core.DNSRecord) bool { return r.ID == recordID })
	if i < 0 {
		return false, localError("record not found")
	}
	if !list[i].Type.Proxiable() {
		return false, localError(fmt.Sprintf("%s records cannot be proxied", list[i].Type))
	}

	cur := *fieldOf(&list[i])
	if v != nil {
		updated := slices.Clone(list)
		*fieldOf(&updated[i]) = *v
		s.records[domainID] = updated
	}
	return cur, nil
}
