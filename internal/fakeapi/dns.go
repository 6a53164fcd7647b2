package fakeapi

import (
	"errors"
	"net/http"
	"strings"

	"web-app-firewall-console/internal/core"
	"web-app-firewall-console/internal/logger"
	"web-app-firewall-console/pkg/response"
	"web-app-firewall-console/pkg/validator"
)

const defaultTTL = 300

// GET /api/dns/records?domain_id=
func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	domainID := r.URL.Query().Get("domain_id")
	if domainID == "" {
		response.BadRequest(w, "domain_id is required")
		return
	}
	if _, ok := s.ownedDomain(w, r, domainID); !ok {
		return
	}
	response.JSON(w, s.state.recordsOf(domainID), http.StatusOK)
}

// POST /api/dns/records
func (s *Server) addRecord(w http.ResponseWriter, r *http.Request) {
	var req core.AddDNSRecordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Content = strings.TrimSpace(req.Content)
	req.Type = core.RecordType(strings.ToUpper(strings.TrimSpace(string(req.Type))))

	if req.DomainID == "" || req.Type == "" || req.Content == "" {
		response.BadRequest(w, "domain_id, type, and content are required")
		return
	}

	if req.TTL == 0 {
		req.TTL = defaultTTL
	}
	if validator.TTL(req.TTL) != nil {
		response.BadRequest(w, "TTL must be between 60 and 86400 seconds")
		return
	}

	if msg := contentProblem(&req); msg != "" {
		response.BadRequest(w, msg)
		return
	}

	domain, ok := s.ownedDomain(w, r, req.DomainID)
	if !ok {
		return
	}
	if !domain.Active() {
		response.BadRequest(w, "Domain must be verified before adding records")
		return
	}

	recordName := domain.Name
	if req.Name != "" && req.Name != "@" {
		if validator.Domain(req.Name) != nil {
			response.BadRequest(w, "Record name contains invalid characters")
			return
		}
		recordName = strings.ToLower(req.Name) + "." + domain.Name
	}

	if req.Type == core.RecordCNAME {
		if recordName == domain.Name {
			response.BadRequest(w, "Root domain (@) cannot be a CNAME record. Use A/AAAA instead.")
			return
		}
		if strings.EqualFold(req.Content, recordName) {
			response.BadRequest(w, "CNAME cannot point to itself")
			return
		}
		// A CNAME owns its hostname: nothing else may exist there, not even
		// another CNAME.
		if s.state.hasRecord(req.DomainID, recordName, "") {
			response.Conflict(w, "CNAME record cannot coexist with other records (including other CNAMEs)")
			return
		}
	} else {
		if s.state.hasRecord(req.DomainID, recordName, "", core.RecordCNAME) {
			response.Conflict(w, "Cannot add record: A CNAME record already exists for this hostname")
			return
		}
		// Same name and type are fine (round robin) as long as content differs.
		if s.state.hasRecord(req.DomainID, recordName, req.Content, req.Type) {
			response.Conflict(w, "Duplicate record already exists")
			return
		}
	}

	rec := s.state.createRecord(core.DNSRecord{
		DomainID:  req.DomainID,
		Name:      recordName,
		Type:      req.Type,
		Content:   req.Content,
		TTL:       req.TTL,
		Proxied:   req.Proxied && req.Type.Proxiable(),
		OriginSSL: req.OriginSSL && req.Type.Proxiable(),
	})

	s.log.Info("dns record added",
		logger.String("name", rec.Name),
		logger.String("type", string(rec.Type)),
		logger.Bool("proxied", rec.Proxied),
	)
	response.Success(w, map[string]interface{}{"record": rec}, "DNS record added successfully")
}

// contentProblem checks content against the record type, normalizing
// hostname targets. It returns the message to answer with, or "".
func contentProblem(req *core.AddDNSRecordRequest) string {
	switch req.Type {
	case core.RecordA:
		if validator.IPv4(req.Content) != nil {
			return "Content must be a valid IPv4 address"
		}
	case core.RecordAAAA:
		if validator.IPv6(req.Content) != nil {
			return "Content must be a valid IPv6 address"
		}
	case core.RecordCNAME:
		req.Content = strings.TrimSuffix(req.Content, ".")
		if !validator.IsNotIP(req.Content) {
			return "CNAME content must be a domain name, not an IP address"
		}
		if validator.Domain(req.Content) != nil {
			return "Invalid domain format in CNAME content"
		}
	case core.RecordMX, core.RecordNS:
		req.Content = strings.TrimSuffix(req.Content, ".")
		if validator.Domain(req.Content) != nil {
			return "Invalid domain format"
		}
	case core.RecordTXT:
		if len(req.Content) > validator.MaxTXTLength {
			return "TXT record too long"
		}
	default:
		return "Unsupported record type"
	}
	return ""
}

// PUT /api/dns/records?domain_id=&record_id=
func (s *Server) updateRecord(w http.ResponseWriter, r *http.Request) {
	domainID := r.URL.Query().Get("domain_id")
	recordID := r.URL.Query().Get("record_id")
	if domainID == "" || recordID == "" {
		response.BadRequest(w, "domain_id and record_id are required")
		return
	}

	var req core.DNSUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, ok := s.ownedDomain(w, r, domainID); !ok {
		return
	}

	var (
		apply   func(*core.DNSRecord)
		value   bool
		field   string
		message string
	)
	switch req.Action {
	case core.ActionToggleOriginSSL:
		if req.OriginSSL == nil {
			response.BadRequest(w, "origin_ssl is required")
			return
		}
		value, field, message = *req.OriginSSL, "origin_ssl", "Origin SSL status updated"
		apply = func(rec *core.DNSRecord) { rec.OriginSSL = value }
	case "", core.ActionToggleProxy:
		if req.Proxied == nil {
			response.BadRequest(w, "proxied is required")
			return
		}
		value, field, message = *req.Proxied, "proxied", "Proxy status updated"
		apply = func(rec *core.DNSRecord) { rec.Proxied = value }
	default:
		response.BadRequest(w, "Unknown action")
		return
	}

	var notProxiable bool
	_, err := s.state.updateRecord(domainID, recordID, func(rec *core.DNSRecord) {
		if !rec.Type.Proxiable() {
			notProxiable = true
			return
		}
		apply(rec)
	})
	if errors.Is(err, errNotFound) {
		response.NotFound(w, "Record not found")
		return
	}
	if notProxiable {
		response.BadRequest(w, "Only A, AAAA and CNAME records can be proxied")
		return
	}

	response.Success(w, map[string]interface{}{field: value}, message)
}

// DELETE /api/dns/records?domain_id=&record_id=
func (s *Server) deleteRecord(w http.ResponseWriter, r *http.Request) {
	domainID := r.URL.Query().Get("domain_id")
	recordID := r.URL.Query().Get("record_id")
	if domainID == "" || recordID == "" {
		response.BadRequest(w, "domain_id and record_id are required")
		return
	}
	if _, ok := s.ownedDomain(w, r, domainID); !ok {
		return
	}

	if err := s.state.deleteRecord(domainID, recordID); err != nil {
		response.NotFound(w, "Record not found")
		return
	}
	response.Success(w, nil, "Record deleted successfully")
}
