package service

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	// minPasswordLength counts characters, not bytes.
	minPasswordLength = 8
	// bcrypt only reads the first 72 bytes of a password.
	maxPasswordBytes = 72
	maxNameLength    = 255
	maxEmailLength   = 320
)

// NormalizeEmail trims surrounding whitespace and lowercases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	if email == "" || len(email) > maxEmailLength {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	// Reject display-name forms like "Jane <jane@x.com>".
	if addr.Address != email {
		return false
	}
	// Require a dotted domain: "jane@x" is not deliverable.
	domain := email[strings.LastIndex(email, "@")+1:]
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if label == "" {
			return false
		}
	}
	return true
}

func validateEmail(v *ValidationError, email string) {
	switch {
	case email == "":
		v.add("email", "Email is required")
	case !validEmail(email):
		v.add("email", "Enter a valid email address")
	}
}

func validatePassword(v *ValidationError, field, password string) {
	switch {
	case utf8.RuneCountInString(password) < minPasswordLength:
		v.add(field, "Password must be at least 8 characters")
	case len(password) > maxPasswordBytes:
		v.add(field, "Password must be at most 72 bytes")
	}
}

func validateCode(v *ValidationError, code string) {
	if strings.TrimSpace(code) == "" {
		v.add("code", "Code is required")
	}
}
