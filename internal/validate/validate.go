// Package validate holds the field validators shared by the HTTP handlers and the
// listing form controller.
package validate

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	indianMobRgx   = regexp.MustCompile(`^[6-9]\d{9}$`)
	usernameRgx    = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	time24Rgx      = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
	urlRgx         = regexp.MustCompile(`(?i)^https?://.+`)
	gstinRgx       = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][1-9A-Z]Z[0-9A-Z]$`)
	nonDigitRgx    = regexp.MustCompile(`\D`)
	ErrMobileEmpty = errors.New("mobile is required")
	ErrMobile      = errors.New("mobile must be a 10-digit Indian number starting with 6-9")
)

// FormatMobile strips non-digits, keeps the last ten and requires an Indian mobile prefix.
func FormatMobile(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrMobileEmpty
	}
	digits := DigitsOnly(raw)
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	if !indianMobRgx.MatchString(digits) {
		return "", ErrMobile
	}
	return digits, nil
}

// DigitsOnly removes every non-digit character.
func DigitsOnly(s string) string { return nonDigitRgx.ReplaceAllString(s, "") }

func Phone10(s string) bool { return Var(s, "len=10,number") }
func ZipCode(s string) bool { return Var(s, "len=6,number") }
func Time24(s string) bool { return time24Rgx.MatchString(s) }
func URL(s string) bool { return urlRgx.MatchString(s) }
func GSTIN(s string) bool { return gstinRgx.MatchString(s) }
func Username(s string) bool { return len(s) >= 3 && len(s) <= 20 && usernameRgx.MatchString(s) }

// Email reports whether s looks like an address after trimming and lowercasing.
func Email(s string) bool {
	return Var(NormalizeEmail(s), "email")
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// NormalizeUsername lowercases and trims a username.
func NormalizeUsername(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// StrongPassword requires at least 8 characters including an ASCII lowercase
// letter, an ASCII uppercase letter and an ASCII digit.
func StrongPassword(p string) bool {
	if utf8.RuneCountInString(p) < 8 {
		return false
	}
	var lower, upper, digit bool
	for _, r := range p {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}
	return lower && upper && digit
}

// IdentifierKind classifies a login identifier.
type IdentifierKind int

const (
	IdentifierUsername IdentifierKind = iota
	IdentifierMobile
	IdentifierEmail
)

// ClassifyIdentifier decides whether a login identifier is a mobile, an email or a username.
func ClassifyIdentifier(id string) IdentifierKind {
	switch {
	case Phone10(id):
		return IdentifierMobile
	case Email(id):
		return IdentifierEmail
	default:
		return IdentifierUsername
	}
}
