// Package validator classifies and normalizes lookup targets.
//
// It implements the single entry point every lookup target passes through
// before a job is created or a worker attempts a lookup: classify the raw
// string as an IP address or a DNS name, or reject it with a reason.
package validator

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"golang.org/x/net/idna"

	"github.com/netreach/lookupd/internal/domain"
)

// Result is the outcome of validating a target.
type Result struct {
	Kind       domain.TargetKind
	Normalized string
}

// ValidationError is returned when a target is rejected; Reason is safe to
// surface to API callers.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func reject(format string, args ...any) (Result, error) {
	return Result{}, fmt.Errorf("%w: %w", domain.ErrInvalidArgument, &ValidationError{Reason: fmt.Sprintf(format, args...)})
}

// Validate classifies target as an IP address or a DNS name per the rules in
// SPEC_FULL.md §4.1. allowSingleLabel relaxes the >=2 label requirement for
// DNS names (e.g. to permit bare hostnames on a private network).
func Validate(target string, allowSingleLabel bool) (Result, error) {
	raw := strings.TrimSpace(target)
	if raw == "" {
		return reject("target required")
	}

	// Strip an IPv6 zone suffix before attempting to parse as an IP.
	ipCandidate := raw
	if idx := strings.IndexByte(ipCandidate, '%'); idx >= 0 {
		ipCandidate = ipCandidate[:idx]
	}

	if addr, err := netip.ParseAddr(ipCandidate); err == nil {
		if addr.Is4() || addr.Is4In6() {
			if !strictDottedQuad(ipCandidate) {
				return reject("malformed IPv4 address: %s", raw)
			}
		}
		return Result{Kind: domain.TargetIP, Normalized: addr.String()}, nil
	}

	if looksLikeDottedNumeric(ipCandidate) {
		return reject("malformed IPv4 address: %s", raw)
	}

	return validateDNS(raw, allowSingleLabel)
}

// looksLikeDottedNumeric reports whether s consists solely of digits and dots
// (candidate for a dotted-quad IPv4 address that failed strict parsing).
func looksLikeDottedNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r != '.' && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// strictDottedQuad requires exactly four decimal octets in [0,255] with no
// leading zero on a multi-digit octet, even though netip.ParseAddr would
// otherwise canonicalise more permissive forms (e.g. octal-looking octets).
func strictDottedQuad(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if p == "" || len(p) > 3 {
			return false
		}
		if len(p) > 1 && p[0] == '0' {
			return false
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return false
		}
	}
	return true
}

func validateDNS(raw string, allowSingleLabel bool) (Result, error) {
	s := strings.TrimSuffix(raw, ".")
	if len(s) < 1 || len(s) > 253 {
		return reject("DNS name length must be between 1 and 253 characters")
	}
	if strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") || strings.Contains(s, "..") {
		return reject("DNS name must not have leading, trailing, or consecutive dots")
	}

	ascii, err := idna.Lookup.ToASCII(s)
	if err != nil {
		return reject("DNS name is not a valid internationalized domain name: %v", err)
	}

	labels := strings.Split(ascii, ".")
	if !allowSingleLabel && len(labels) < 2 {
		return reject("DNS name must have at least two labels")
	}
	for _, label := range labels {
		if !validLabel(label) {
			return reject("DNS label %q is invalid", label)
		}
	}
	if allDigits(labels[len(labels)-1]) {
		return reject("DNS name's rightmost label must not be all digits")
	}

	return Result{Kind: domain.TargetDNS, Normalized: ascii}, nil
}

func validLabel(label string) bool {
	if len(label) < 1 || len(label) > 63 {
		return false
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return false
		}
	}
	return true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
