package model

import (
	"fmt"
	"time"
)

// Purpose tags why a one-time code was issued and which operation may consume it.
type Purpose string

const (
	PurposeEmailVerification Purpose = "EMAIL_VERIFICATION"
	PurposePasswordReset     Purpose = "PASSWORD_RESET"
)

// Valid reports whether p is one of the known purposes.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeEmailVerification, PurposePasswordReset:
		return true
	}
	return false
}

// ParsePurpose converts a wire value into a Purpose.
func ParsePurpose(s string) (Purpose, error) {
	p := Purpose(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown otp purpose %q", s)
	}
	return p, nil
}

// OTPCode is a stored one-time code. Only the hash of the plaintext is kept.
type OTPCode struct {
	ID         string
	UserID     string
	CodeHash   string
	Purpose    Purpose
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// Usable reports whether the code can still be presented at now.
func (c *OTPCode) Usable(now time.Time) bool {
	return c.ConsumedAt == nil && now.Before(c.ExpiresAt)
}
