// Package phone canonicalizes free-form phone numbers into a comparable
// international form used for validation and dedup keys.
package phone

import (
	"fmt"
	"strings"
)

// Country prefix applied to bare local mobile numbers.
const countryPrefix = "+237"

const (
	minDigits = 8
	maxDigits = 15
)

// Normalize canonicalizes a raw phone string into +<digits> form.
// The same rules applied twice yield the same result, so normalized
// numbers can be fed back in safely.
//
// Rules:
//   - everything but digits and a leading "+" is stripped
//   - a "00" international prefix becomes "+"
//   - a bare 9-digit local mobile number (leading 6-9) gets the country prefix
//   - a bare 12-digit number already carrying the country code gets a "+"
//
// Strings that are empty after stripping (including "nan"/"none" artifacts
// from spreadsheet exports), have a digit count outside [8, 15], or consist
// of a single repeated digit are rejected.
func Normalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	switch strings.ToLower(trimmed) {
	case "", "nan", "none":
		return "", fmt.Errorf("empty phone number")
	}

	var b strings.Builder
	for i, r := range trimmed {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()

	if strings.HasPrefix(cleaned, "00") {
		cleaned = "+" + cleaned[2:]
	}

	digits := strings.TrimPrefix(cleaned, "+")
	if digits == "" {
		return "", fmt.Errorf("no digits in phone number %q", raw)
	}

	if !strings.HasPrefix(cleaned, "+") {
		switch {
		case len(digits) == 9 && digits[0] >= '6' && digits[0] <= '9':
			// Local mobile number without country code.
			cleaned = countryPrefix + digits
		case len(digits) == 12 && strings.HasPrefix(digits, countryPrefix[1:]):
			cleaned = "+" + digits
		default:
			cleaned = "+" + digits
		}
		digits = cleaned[1:]
	}

	if len(digits) < minDigits || len(digits) > maxDigits {
		return "", fmt.Errorf("phone number %q has %d digits, want %d-%d", raw, len(digits), minDigits, maxDigits)
	}

	if allSame(digits) {
		return "", fmt.Errorf("phone number %q is a repeated digit", raw)
	}

	return cleaned, nil
}

// ForProvider returns the gateway wire format: digits only, no "+".
func ForProvider(normalized string) string {
	return strings.TrimPrefix(normalized, "+")
}

// Valid reports whether raw normalizes without error.
func Valid(raw string) bool {
	_, err := Normalize(raw)
	return err == nil
}

func allSame(digits string) bool {
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return false
		}
	}
	return true
}
