package core

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- User Models ---

type User struct {
	ID    string `json:"id" bson:"_id,omitempty"`
	Name  string `json:"name" bson:"name"`
	Email string `json:"email" bson:"email"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is the data payload of login/register.
type AuthResult struct {
	Message string `json:"message"`
	User    *User  `json:"user,omitempty"`
}

type AuthCheck struct {
	Authenticated bool  `json:"authenticated"`
	User          *User `json:"user,omitempty"`
}

// --- System Models ---

type ComponentStatus struct {
	Status  string `json:"status"`
	CPU     string `json:"cpu"`
	Memory  string `json:"memory"`
	Network string `json:"network"`
}

type SystemStatus struct {
	Gateway  ComponentStatus `json:"gateway"`
	Database ComponentStatus `json:"database"`
	MLScorer ComponentStatus `json:"ml_scorer"`
}

// --- Domain & DNS Models ---

const (
	DomainPending = "pending_verification"
	DomainActive  = "active"
)

type DomainStats struct {
	TotalRequests   int64 `json:"total_requests"`
	FlaggedRequests int64 `json:"flagged_requests"`
	BlockedRequests int64 `json:"blocked_requests"`
}

type Domain struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	Name        string       `json:"name"`
	Nameservers []string     `json:"nameservers"`
	Status      string       `json:"status"` // pending_verification, active
	Stats       *DomainStats `json:"stats,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

func (d Domain) Active() bool { return d.Status == DomainActive }

type AddDomainRequest struct {
	Name string `json:"name"`
}

// VerifyResult is the body the gateway answers on /api/domains/verify.
type VerifyResult struct {
	Status           string   `json:"status"`
	Message          string   `json:"message"`
	AssignedNS       []string `json:"assigned_ns,omitempty"`
	FoundAtRegistrar []string `json:"found_at_registrar,omitempty"`
}

type RecordType string

const (
	RecordA     RecordType = "A"
	RecordAAAA  RecordType = "AAAA"
	RecordCNAME RecordType = "CNAME"
	RecordMX    RecordType = "MX"
	RecordTXT   RecordType = "TXT"
	RecordNS    RecordType = "NS"
)

// RecordTypes lists the types the console can create.
var RecordTypes = []RecordType{RecordA, RecordAAAA, RecordCNAME, RecordMX, RecordTXT, RecordNS}

func ParseRecordType(s string) (RecordType, error) {
	t := RecordType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range RecordTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unsupported record type %q", s)
}

// Proxiable reports whether proxied/origin_ssl apply to the type.
func (t RecordType) Proxiable() bool {
	return t == RecordA || t == RecordAAAA || t == RecordCNAME
}

type DNSRecord struct {
	ID        string     `json:"id"`
	DomainID  string     `json:"domain_id"`
	Name      string     `json:"name"`
	Type      RecordType `json:"type"`
	Content   string     `json:"content"`
	TTL       int        `json:"ttl"`
	Proxied   bool       `json:"proxied"`
	OriginSSL bool       `json:"origin_ssl,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type AddDNSRecordRequest struct {
	DomainID  string     `json:"domain_id"`
	Name      string     `json:"name"`
	Type      RecordType `json:"type"`
	Content   string     `json:"content"`
	TTL       int        `json:"ttl"`
	Proxied   bool       `json:"proxied"`
	OriginSSL bool       `json:"origin_ssl,omitempty"`
}

const (
	ActionToggleProxy     = "toggle_proxy"
	ActionToggleOriginSSL = "toggle_origin_ssl"
)

// DNSUpdateRequest is the PUT body for record toggles. Only the field named
// by Action is sent.
type DNSUpdateRequest struct {
	Action    string `json:"action"`
	Proxied   *bool  `json:"proxied,omitempty"`
	OriginSSL *bool  `json:"origin_ssl,omitempty"`
}

// --- WAF Rule Models ---

type RuleTier string

const (
	TierGlobal RuleTier = "global"
	TierCustom RuleTier = "custom"
)

type Operator string

const (
	OpContains Operator = "contains"
	OpRegex    Operator = "regex"
	OpEquals   Operator = "equals"
)

func (o Operator) Valid() bool {
	return o == OpContains || o == OpRegex || o == OpEquals
}

type PresetField string

const (
	FieldPath   PresetField = "path"
	FieldQuery  PresetField = "query"
	FieldBody   PresetField = "body"
	FieldHeader PresetField = "header"
)

var presetFields = []PresetField{FieldPath, FieldQuery, FieldBody, FieldHeader}

// Field is either one of the preset request fields or a free-form field name
// such as "request.combined". It travels as a plain JSON string.
type Field struct {
	preset PresetField
	custom string
}

func Preset(p PresetField) Field { return Field{preset: p} }

func Custom(name string) Field { return Field{custom: name} }

// ParseField maps known names to presets and anything else to Custom.
func ParseField(s string) Field {
	for _, p := range presetFields {
		if string(p) == s {
			return Preset(p)
		}
	}
	return Custom(s)
}

func (f Field) IsPreset() bool { return f.preset != "" }

func (f Field) Preset() (PresetField, bool) { return f.preset, f.preset != "" }

func (f Field) String() string {
	if f.preset != "" {
		return string(f.preset)
	}
	return f.custom
}

func (f Field) MarshalJSON() ([]byte, error) { return json.Marshal(f.String()) }

func (f *Field) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*f = ParseField(s)
	return nil
}

type Condition struct {
	Field    Field    `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
}

type MatchAction struct {
	ScoreAdd  int      `json:"score_add"`
	Tags      []string `json:"tags"`
	HardBlock bool     `json:"hard_block"`
}

type Rule struct {
	ID         string      `json:"id"`
	OwnerID    string      `json:"owner_id"`
	Name       string      `json:"name"`
	Conditions []Condition `json:"conditions"`
	OnMatch    MatchAction `json:"on_match"`
	Enabled    bool        `json:"enabled"`
}

type NewRule struct {
	Name       string      `json:"name"`
	Conditions []Condition `json:"conditions"`
	OnMatch    MatchAction `json:"on_match"`
}

type ToggleRuleRequest struct {
	ID       string `json:"id"`
	DomainID string `json:"domain_id,omitempty"`
	Enabled  bool   `json:"enabled"`
}

// --- Log Models ---

const (
	LogBlocked = "Blocked"
	LogFlagged = "Flagged"
	LogMonitor = "Monitor"
)

type FullRequest struct {
	Method  string              `json:"method" bson:"method"`
	URL     string              `json:"url" bson:"url"`
	Headers map[string][]string `json:"headers" bson:"headers"`
	Body    string              `json:"body" bson:"body"`
	Proto   string              `json:"proto,omitempty" bson:"proto,omitempty"`
}

type AttackLog struct {
	ID             string       `json:"_id,omitempty" bson:"-"`
	Timestamp      time.Time    `json:"timestamp" bson:"timestamp"`
	IP             string       `json:"ip" bson:"ip"`
	RequestPath    string       `json:"request_path" bson:"request_path"`
	Reason         string       `json:"reason" bson:"reason"`
	Action         string       `json:"action" bson:"action"` // Blocked, Flagged, Monitor
	Source         string       `json:"source" bson:"source"`
	Tags           []string     `json:"tags" bson:"tags"`
	Score          float64      `json:"score" bson:"score"`
	MLConfidence   *float64     `json:"ml_confidence,omitempty" bson:"ml_confidence,omitempty"`
	TriggerPayload string       `json:"trigger_payload,omitempty" bson:"trigger_payload,omitempty"`
	DomainID       string       `json:"domain_id,omitempty" bson:"domain_id,omitempty"`
	Request        *FullRequest `json:"request,omitempty" bson:"request,omitempty"`
}

// Key identifies a log row; entries without an id fall back to their position.
func (l AttackLog) Key(index int) string {
	if l.ID != "" {
		return l.ID
	}
	return fmt.Sprintf("idx-%d", index)
}

// IDTime returns the creation time embedded in an ObjectID-shaped id.
func (l AttackLog) IDTime() (time.Time, bool) {
	oid, err := primitive.ObjectIDFromHex(l.ID)
	if err != nil {
		return time.Time{}, false
	}
	return oid.Timestamp(), true
}

// RawRequest renders the captured request the way it went over the wire.
func (l AttackLog) RawRequest() string {
	if l.Request == nil {
		return ""
	}
	proto := l.Request.Proto
	if proto == "" {
		proto = "HTTP/1.1"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\n", l.Request.Method, l.Request.URL, proto)
	for _, name := range slices.Sorted(maps.Keys(l.Request.Headers)) {
		fmt.Fprintf(&b, "%s: %s\n", name, strings.Join(l.Request.Headers[name], ", "))
	}
	if l.Request.Body != "" {
		b.WriteString("\n")
		b.WriteString(l.Request.Body)
	}
	return b.String()
}

type Pagination struct {
	CurrentPage int64 `json:"current_page"`
	TotalPages  int64 `json:"total_pages"`
	TotalItems  int64 `json:"total_items"`
	PerPage     int64 `json:"per_page"`
}

type PaginatedLogs struct {
	Data       []AttackLog `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

type LogQuery struct {
	Page     int
	Limit    int
	DomainID string // empty = all domains
}
