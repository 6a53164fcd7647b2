package core

import (
	"context"
)

// AuthAPI handles the session endpoints of the gateway
type AuthAPI interface {
	CheckAuth(ctx context.Context) (*AuthCheck, error)
	Login(ctx context.Context, req LoginRequest) (*AuthResult, error)
	Register(ctx context.Context, req RegisterRequest) (*AuthResult, error)
	Logout(ctx context.Context) error
}

// StatusAPI reports gateway component health
type StatusAPI interface {
	SystemStatus(ctx context.Context) (*SystemStatus, error)
}

// DomainAPI handles domains and DNS records
type DomainAPI interface {
	// Domain Methods
	ListDomains(ctx context.Context) ([]Domain, error)
	AddDomain(ctx context.Context, name string) (*Domain, error)
	VerifyDomain(ctx context.Context, id string) (*VerifyResult, error)

	// DNS Methods
	ListRecords(ctx context.Context, domainID string) ([]DNSRecord, error)
	AddRecord(ctx context.Context, req AddDNSRecordRequest) error
	DeleteRecord(ctx context.Context, domainID, recordID string) error
	SetRecordProxy(ctx context.Context, domainID, recordID string, proxied bool) error
	SetRecordOriginSSL(ctx context.Context, domainID, recordID string, ssl bool) error
}

// RuleAPI handles WAF rules and per-domain policies
type RuleAPI interface {
	ListRules(ctx context.Context, tier RuleTier, domainID string) ([]Rule, error)
	AddCustomRule(ctx context.Context, rule NewRule) error
	ToggleRule(ctx context.Context, req ToggleRuleRequest) error
	DeleteCustomRule(ctx context.Context, id string) error
}

// LogAPI handles paginated attack logs and the live stream
type LogAPI interface {
	Logs(ctx context.Context, q LogQuery) (*PaginatedLogs, error)
	StreamLogs(ctx context.Context, onLog func(AttackLog)) error
}
