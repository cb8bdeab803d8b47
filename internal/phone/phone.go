// Package phone converts South African phone numbers into the canonical
// +27XXXXXXXXX form used as the contact uniqueness key.
package phone

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// CountryCode is the dialing code every canonical number starts with.
	CountryCode = "27"
	// CanonicalLength is len("+27") plus nine subscriber digits.
	CanonicalLength = 12

	subscriberDigits = CanonicalLength - 1 - len(CountryCode)
)

// ErrInvalidFormat is the sentinel wrapped by every normalization failure.
var ErrInvalidFormat = errors.New("invalid phone format")

// FormatError names the offending input and the rule it broke.
type FormatError struct {
	Input string
	Rule  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid phone number %q: %s", e.Input, e.Rule)
}

func (e *FormatError) Unwrap() error { return ErrInvalidFormat }

// Normalize returns the canonical form of raw. Accepted shapes:
//
//	0821234567       national trunk prefix
//	27821234567      international without '+'
//	+27 82 123 4567  international with separators
//	821234567        bare subscriber number
//
// Normalizing an already canonical number returns it unchanged.
func Normalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", &FormatError{Input: raw, Rule: "empty"}
	}

	international := strings.HasPrefix(trimmed, "+") || strings.HasPrefix(trimmed, "00")
	digits := digitsOnly(trimmed)
	if strings.HasPrefix(trimmed, "00") {
		digits = digits[2:]
	}
	if digits == "" {
		return "", &FormatError{Input: raw, Rule: "no digits"}
	}

	var subscriber string
	switch {
	case international:
		if !strings.HasPrefix(digits, CountryCode) {
			return "", &FormatError{Input: raw, Rule: "country code must be +" + CountryCode}
		}
		subscriber = digits[len(CountryCode):]
	case strings.HasPrefix(digits, "0"):
		subscriber = digits[1:]
	case strings.HasPrefix(digits, CountryCode) && len(digits) == len(CountryCode)+subscriberDigits:
		subscriber = digits[len(CountryCode):]
	default:
		subscriber = digits
	}

	if strings.HasPrefix(subscriber, "0") {
		return "", &FormatError{Input: raw, Rule: "subscriber number must not start with 0"}
	}
	if len(subscriber) != subscriberDigits {
		return "", &FormatError{
			Input: raw,
			Rule:  fmt.Sprintf("expected %d characters, got %d", CanonicalLength, len(subscriber)+1+len(CountryCode)),
		}
	}
	return "+" + CountryCode + subscriber, nil
}

// Vendor returns the gateway form of a canonical number: no leading '+'.
func Vendor(canonical string) string {
	return strings.TrimPrefix(canonical, "+")
}

// IsCanonical reports whether p is already in canonical form.
func IsCanonical(p string) bool {
	n, err := Normalize(p)
	return err == nil && n == p
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
