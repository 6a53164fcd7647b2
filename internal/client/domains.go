package client

import (
	"context"
	"net/http"

	"web-app-firewall-console/internal/core"
)

// --- Domains ---

func (c *Client) ListDomains(ctx context.Context) ([]core.Domain, error) {
	return call[[]core.Domain](ctx, c, http.MethodGet, "/api/domains", nil)
}

func (c *Client) AddDomain(ctx context.Context, name string) (*core.Domain, error) {
	out, err := call[core.Domain](ctx, c, http.MethodPost, "/api/domains/add", core.AddDomainRequest{Name: name})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyDomain returns the gateway's verdict. A still-pending domain comes back
// from the gateway as HTTP 409 and therefore as a KindHTTP error.
func (c *Client) VerifyDomain(ctx context.Context, id string) (*core.VerifyResult, error) {
	out, err := call[core.VerifyResult](ctx, c, http.MethodPost, "/api/domains/verify"+query("id", id), nil)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// --- DNS records ---

func (c *Client) ListRecords(ctx context.Context, domainID string) ([]core.DNSRecord, error) {
	return call[[]core.DNSRecord](ctx, c, http.MethodGet, "/api/dns/records"+query("domain_id", domainID), nil)
}

func (c *Client) AddRecord(ctx context.Context, req core.AddDNSRecordRequest) error {
	return c.exec(ctx, http.MethodPost, "/api/dns/records", req)
}

func (c *Client) DeleteRecord(ctx context.Context, domainID, recordID string) error {
	return c.exec(ctx, http.MethodDelete, "/api/dns/records"+query("domain_id", domainID, "record_id", recordID), nil)
}

func (c *Client) SetRecordProxy(ctx context.Context, domainID, recordID string, proxied bool) error {
	return c.exec(ctx, http.MethodPut, "/api/dns/records"+query("domain_id", domainID, "record_id", recordID),
		core.DNSUpdateRequest{Action: core.ActionToggleProxy, Proxied: &proxied})
}

func (c *Client) SetRecordOriginSSL(ctx context.Context, domainID, recordID string, ssl bool) error {
	return c.exec(ctx, http.MethodPut, "/api/dns/records"+query("domain_id", domainID, "record_id", recordID),
		core.DNSUpdateRequest{Action: core.ActionToggleOriginSSL, OriginSSL: &ssl})
}
