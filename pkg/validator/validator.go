package validator

import (
	"errors"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrInvalidEmail is returned when email format is invalid
	ErrInvalidEmail = errors.New("invalid email format")
	// ErrEmptyField is returned when a required field is empty
	ErrEmptyField = errors.New("field cannot be empty")
	// ErrInvalidIPv4 is returned when an A record does not hold a dotted quad
	ErrInvalidIPv4 = errors.New("invalid IPv4 address")
	// ErrInvalidIPv6 is returned when an AAAA record does not hold an IPv6 literal
	ErrInvalidIPv6 = errors.New("invalid IPv6 address")
	// ErrInvalidDomain is returned when domain format is invalid
	ErrInvalidDomain = errors.New("invalid domain format")
	// ErrInvalidRecordName is returned for names outside the safe charset
	ErrInvalidRecordName = errors.New("invalid record name: use letters, digits, '-', '.', '*' or '@'")
	// ErrHostnameIsIP is returned when CNAME/MX/NS content is an IP literal
	ErrHostnameIsIP = errors.New("target must be a hostname, not an IP address")
	// ErrTXTTooLong is returned when TXT content exceeds MaxTXTLength
	ErrTXTTooLong = errors.New("TXT content must not exceed 2048 characters")
	// ErrInvalidTTL is returned when TTL is out of range
	ErrInvalidTTL = errors.New("TTL must be between 60 and 86400 seconds")
)

// MaxTXTLength bounds TXT record content.
const MaxTXTLength = 2048

var (
	emailRegex      = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	domainRegex     = regexp.MustCompile(`^(?i)[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)*$`)
	recordNameRegex = regexp.MustCompile(`^[A-Za-z0-9.*-]+$`)
	ipv4Regex       = regexp.MustCompile(`^((25[0-5]|2[0-4][0-9]|1[0-9]{2}|[1-9]?[0-9])\.){3}(25[0-5]|2[0-4][0-9]|1[0-9]{2}|[1-9]?[0-9])$`)
)

// Email validates email format
func Email(email string) error {
	if email == "" {
		return ErrEmptyField
	}
	if !emailRegex.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

// Required checks if a string field is not empty
func Required(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return errors.New(fieldName + " is required")
	}
	return nil
}

// IPv4 accepts only an anchored dotted quad without leading zeros.
func IPv4(ip string) error {
	if !ipv4Regex.MatchString(ip) {
		return ErrInvalidIPv4
	}
	return nil
}

// IPv6 validates IPv6 address format
func IPv6(ip string) error {
	addr, err := netip.ParseAddr(ip)
	if err != nil || !addr.Is6() || addr.Is4In6() {
		return ErrInvalidIPv6
	}
	return nil
}

// Domain validates domain name format
func Domain(domain string) error {
	if domain == "" {
		return ErrEmptyField
	}

	// Remove trailing dot if present
	domain = strings.TrimSuffix(domain, ".")

	if !domainRegex.MatchString(domain) {
		return ErrInvalidDomain
	}
	return nil
}

// RecordName accepts "@" for the zone apex or a name in the safe charset.
func RecordName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name is required")
	}
	if name == "@" {
		return nil
	}
	if !recordNameRegex.MatchString(name) {
		return ErrInvalidRecordName
	}
	return nil
}

// RecordContent checks content against the record type. Types are passed as
// their wire names (A, AAAA, CNAME, MX, NS, TXT).
func RecordContent(recordType, content string) error {
	if err := Required(content, "content"); err != nil {
		return err
	}

	switch strings.ToUpper(recordType) {
	case "A":
		return IPv4(content)
	case "AAAA":
		return IPv6(content)
	case "CNAME", "MX", "NS":
		if !IsNotIP(content) {
			return ErrHostnameIsIP
		}
		return Domain(content)
	case "TXT":
		if len(content) > MaxTXTLength {
			return ErrTXTTooLong
		}
		return nil
	default:
		return errors.New("unsupported record type " + strconv.Quote(recordType))
	}
}

// TTL validates TTL value (must be between 60 and 86400)
func TTL(ttl int) error {
	if ttl < 60 || ttl > 86400 {
		return ErrInvalidTTL
	}
	return nil
}

// MinLength checks if string meets minimum length requirement
func MinLength(value string, min int, fieldName string) error {
	if len(value) < min {
		return errors.New(fieldName + " must be at least " + strconv.Itoa(min) + " characters")
	}
	return nil
}

// MaxLength checks if string doesn't exceed maximum length
func MaxLength(value string, max int, fieldName string) error {
	if len(value) > max {
		return errors.New(fieldName + " must not exceed " + strconv.Itoa(max) + " characters")
	}
	return nil
}

// IsNotIP checks if the value is not an IP address
func IsNotIP(value string) bool {
	_, err := netip.ParseAddr(value)
	return err != nil
}
