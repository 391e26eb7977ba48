package utils

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

var (
	ErrRequired     = errors.New("is required")
	ErrInvalidEmail = errors.New("invalid email address")

	ErrPhoneInvalid   = errors.New("invalid phone number")
	ErrPhoneTooShort  = errors.New("phone number is too short")
	ErrPhoneTooLong   = errors.New("phone number is too long")
	ErrPhoneBadPrefix = errors.New("phone number has an invalid prefix")
)

var (
	emailDomainRe = regexp.MustCompile(`^[a-zA-Z0-9-]+(\.[a-zA-Z0-9-]+)*\.[a-zA-Z]{2,}$`)
	phoneStripRe  = regexp.MustCompile(`[\s\-\.\(\)]`)
	digitsRe      = regexp.MustCompile(`^[0-9]+$`)
)

// ValidationError ties a validation failure to the input field it belongs to.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func FieldError(field string, err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Field: field, Err: err}
}

// RequireFields checks name/value pairs in order and reports the first empty one.
func RequireFields(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return FieldError(pairs[i], ErrRequired)
		}
	}
	return nil
}

func ValidateEmail(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return ErrRequired
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return ErrInvalidEmail
	}
	at := strings.LastIndex(s, "@")
	if at <= 0 || !emailDomainRe.MatchString(s[at+1:]) {
		return ErrInvalidEmail
	}
	return nil
}

type phoneRule struct {
	code    string
	length  int
	leading string
}

// Calling codes with a fixed national significant number layout.
var phoneRules = []phoneRule{
	{code: "90", length: 10, leading: "5"},
	{code: "44", length: 10, leading: "7"},
	{code: "49", length: 11, leading: "1"},
	{code: "971", length: 9, leading: "5"},
	{code: "1", length: 10},
	{code: "7", length: 10, leading: "9"},
}

const (
	e164MinDigits = 8
	e164MaxDigits = 15
)

// NormalizePhone strips separators and rewrites an international 00 prefix to +.
// A national number with a trunk 0 gets defaultCode prepended when one is given.
func NormalizePhone(raw, defaultCode string) string {
	s := phoneStripRe.ReplaceAllString(strings.TrimSpace(raw), "")
	if strings.HasPrefix(s, "00") {
		return "+" + s[2:]
	}
	if strings.HasPrefix(s, "+") || s == "" {
		return s
	}
	code := strings.TrimPrefix(strings.TrimSpace(defaultCode), "+")
	if code == "" {
		return s
	}
	return "+" + code + strings.TrimPrefix(s, "0")
}

// ValidatePhone normalizes raw and checks it against the rule for its calling
// code. When countryCode is set the number must belong to that country.
// The normalized E.164 form is returned on success.
func ValidatePhone(raw, countryCode string) (string, error) {
	n := NormalizePhone(raw, countryCode)
	if n == "" {
		return "", ErrRequired
	}
	if !strings.HasPrefix(n, "+") || !digitsRe.MatchString(n[1:]) {
		return "", ErrPhoneInvalid
	}
	digits := n[1:]
	code := strings.TrimPrefix(strings.TrimSpace(countryCode), "+")
	if code != "" && !strings.HasPrefix(digits, code) {
		return "", ErrPhoneInvalid
	}
	rule, ok := matchPhoneRule(digits, code)
	if !ok {
		if len(digits) < e164MinDigits {
			return "", ErrPhoneTooShort
		}
		if len(digits) > e164MaxDigits {
			return "", ErrPhoneTooLong
		}
		return n, nil
	}
	national := digits[len(rule.code):]
	switch {
	case len(national) < rule.length:
		return "", ErrPhoneTooShort
	case len(national) > rule.length:
		return "", ErrPhoneTooLong
	case rule.leading != "" && !strings.HasPrefix(national, rule.leading):
		return "", fmt.Errorf("%w: must start with %s", ErrPhoneBadPrefix, rule.leading)
	}
	return n, nil
}

func matchPhoneRule(digits, code string) (phoneRule, bool) {
	var best phoneRule
	found := false
	for _, r := range phoneRules {
		if code != "" && r.code != code {
			continue
		}
		if strings.HasPrefix(digits, r.code) && len(r.code) > len(best.code) {
			best = r
			found = true
		}
	}
	return best, found
}
