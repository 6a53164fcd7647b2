package fakeapi

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"web-app-firewall-console/internal/core"
)

var (
	errNotFound  = errors.New("not found")
	errDuplicate = errors.New("duplicate")
)

type account struct {
	user core.User
	hash []byte
}

type policyKey struct {
	userID, domainID, ruleID string
}

// state is the gateway's database: users, domains, DNS records, rules with
// per-domain policies and attack logs. Ids are ObjectID hex like the real
// collections.
type state struct {
	mu       sync.RWMutex
	accounts map[string]*account // by lowercased email
	domains  []core.Domain       // insertion order
	records  map[string][]core.DNSRecord
	rules    []core.Rule
	policies map[policyKey]bool
	logs     []core.AttackLog // oldest first
}

func newState() *state {
	return &state{
		accounts: make(map[string]*account),
		records:  make(map[string][]core.DNSRecord),
		policies: make(map[policyKey]bool),
	}
}

func newID() string { return primitive.NewObjectID().Hex() }

// --- Users ---

func (s *state) createUser(name, email, password string) (core.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return core.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(email)
	if _, exists := s.accounts[key]; exists {
		return core.User{}, errDuplicate
	}
	u := core.User{ID: newID(), Name: name, Email: email}
	s.accounts[key] = &account{user: u, hash: hash}
	return u, nil
}

// authenticate returns the user when password matches. Unknown email and
// wrong password are indistinguishable.
func (s *state) authenticate(email, password string) (core.User, bool) {
	s.mu.RLock()
	acc, ok := s.accounts[strings.ToLower(email)]
	s.mu.RUnlock()
	if !ok {
		return core.User{}, false
	}
	if bcrypt.CompareHashAndPassword(acc.hash, []byte(password)) != nil {
		return core.User{}, false
	}
	return acc.user, true
}

func (s *state) userByID(id string) (core.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, acc := range s.accounts {
		if acc.user.ID == id {
			return acc.user, true
		}
	}
	return core.User{}, false
}

// --- Domains ---

func (s *state) createDomain(d core.Domain) (core.Domain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.domains {
		if existing.UserID == d.UserID && strings.EqualFold(existing.Name, d.Name) {
			return core.Domain{}, errDuplicate
		}
	}
	d.ID = newID()
	d.CreatedAt = time.Now().UTC()
	if d.Stats == nil {
		d.Stats = &core.DomainStats{}
	}
	s.domains = append(s.domains, d)
	return cloneDomain(d), nil
}

func (s *state) domainsByUser(userID string) []core.Domain {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []core.Domain{}
	for _, d := range s.domains {
		if d.UserID == userID {
			out = append(out, cloneDomain(d))
		}
	}
	return out
}

func (s *state) domainByID(id string) (core.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.domainIndex(id); i >= 0 {
		return cloneDomain(s.domains[i]), nil
	}
	return core.Domain{}, errNotFound
}

// activeDomainByName only considers verified domains.
func (s *state) activeDomainByName(name string) (core.Domain, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.domains {
		if d.Active() && strings.EqualFold(d.Name, name) {
			return cloneDomain(d), true
		}
	}
	return core.Domain{}, false
}

// activate marks id active and drops every other claim on the same name,
// together with their records.
func (s *state) activate(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.domainIndex(id)
	if i < 0 {
		return errNotFound
	}
	name := s.domains[i].Name
	s.domains[i].Status = core.DomainActive

	s.domains = slices.DeleteFunc(s.domains, func(d core.Domain) bool {
		if d.ID != id && strings.EqualFold(d.Name, name) {
			delete(s.records, d.ID)
			return true
		}
		return false
	})
	return nil
}

func (s *state) domainIndex(id string) int {
	return slices.IndexFunc(s.domains, func(d core.Domain) bool { return d.ID == id })
}

func (s *state) countRequest(domainID, action string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.domainIndex(domainID)
	if i < 0 {
		return
	}
	st := s.domains[i].Stats
	st.TotalRequests++
	switch action {
	case core.LogBlocked:
		st.BlockedRequests++
	case core.LogFlagged:
		st.FlaggedRequests++
	}
}

func cloneDomain(d core.Domain) core.Domain {
	d.Nameservers = slices.Clone(d.Nameservers)
	if d.Stats != nil {
		st := *d.Stats
		d.Stats = &st
	}
	return d
}

// --- DNS records ---

func (s *state) recordsOf(domainID string) []core.DNSRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Clone(s.records[domainID])
	if out == nil {
		out = []core.DNSRecord{}
	}
	return out
}

// hasRecord reports whether a record named name exists with one of types, or
// with any type when types is empty. A non-empty content also has to match.
func (s *state) hasRecord(domainID, name, content string, types ...core.RecordType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records[domainID] {
		if !strings.EqualFold(r.Name, name) {
			continue
		}
		if len(types) > 0 && !slices.Contains(types, r.Type) {
			continue
		}
		if content != "" && r.Content != content {
			continue
		}
		return true
	}
	return false
}

func (s *state) createRecord(r core.DNSRecord) core.DNSRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = newID()
	r.CreatedAt = time.Now().UTC()
	s.records[r.DomainID] = append(s.records[r.DomainID], r)
	return r
}

// updateRecord applies fn to the record in place.
func (s *state) updateRecord(domainID, recordID string, fn func(*core.DNSRecord)) (core.DNSRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.records[domainID]
	i := slices.IndexFunc(recs, func(r core.DNSRecord) bool { return r.ID == recordID })
	if i < 0 {
		return core.DNSRecord{}, errNotFound
	}
	fn(&recs[i])
	return recs[i], nil
}

func (s *state) deleteRecord(domainID, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.records[domainID]
	i := slices.IndexFunc(recs, func(r core.DNSRecord) bool { return r.ID == recordID })
	if i < 0 {
		return errNotFound
	}
	s.records[domainID] = slices.Delete(recs, i, i+1)
	return nil
}

// --- Rules ---

// rulesFor returns the rules owned by ownerID ("" for global) with the
// user's policy for domainID applied. Rules without a policy are enabled.
func (s *state) rulesFor(ownerID, userID, domainID string) []core.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []core.Rule{}
	for _, r := range s.rules {
		if r.OwnerID != ownerID {
			continue
		}
		r.Conditions = slices.Clone(r.Conditions)
		r.OnMatch.Tags = slices.Clone(r.OnMatch.Tags)
		if r.OnMatch.Tags == nil {
			r.OnMatch.Tags = []string{}
		}
		enabled, ok := s.policies[policyKey{userID, domainID, r.ID}]
		r.Enabled = !ok || enabled
		out = append(out, r)
	}
	return out
}

func (s *state) addRule(r core.Rule) core.Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = newID()
	r.Enabled = true
	s.rules = append(s.rules, r)
	return r
}

// deleteRule removes a rule owned by ownerID along with its policies.
func (s *state) deleteRule(id, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.rules, func(r core.Rule) bool { return r.ID == id && r.OwnerID == ownerID })
	if i < 0 {
		return errNotFound
	}
	s.rules = slices.Delete(s.rules, i, i+1)
	for k := range s.policies {
		if k.ruleID == id {
			delete(s.policies, k)
		}
	}
	return nil
}

// upsertPolicy records the user's choice for a rule on one domain. The rule
// has to be global or owned by the user.
func (s *state) upsertPolicy(userID, domainID, ruleID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.ContainsFunc(s.rules, func(r core.Rule) bool {
		return r.ID == ruleID && (r.OwnerID == "" || r.OwnerID == userID)
	}) {
		return errNotFound
	}
	s.policies[policyKey{userID, domainID, ruleID}] = enabled
	return nil
}

// --- Logs ---

func (s *state) appendLog(l core.AttackLog) core.AttackLog {
	s.mu.Lock()
	if l.ID == "" {
		l.ID = newID()
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now().UTC()
	}
	if l.Tags == nil {
		l.Tags = []string{}
	}
	s.logs = append(s.logs, l)
	s.mu.Unlock()

	if l.DomainID != "" {
		s.countRequest(l.DomainID, l.Action)
	}
	return l
}

// logsFor pages the logs of the given domains, newest first.
func (s *state) logsFor(domainIDs map[string]bool, page, limit int64) ([]core.AttackLog, core.Pagination) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []core.AttackLog
	for i := len(s.logs) - 1; i >= 0; i-- {
		if domainIDs[s.logs[i].DomainID] {
			matched = append(matched, s.logs[i])
		}
	}

	total := int64(len(matched))
	pg := core.Pagination{
		CurrentPage: page,
		TotalPages:  (total + limit - 1) / limit,
		TotalItems:  total,
		PerPage:     limit,
	}

	start := (page - 1) * limit
	if start >= total {
		return []core.AttackLog{}, pg
	}
	end := min(start+limit, total)
	return slices.Clone(matched[start:end]), pg
}
