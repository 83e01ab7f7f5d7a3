package service

import (
	"context"
	"errors"
	"time"

	"github.com/goquote/goquote-go/internal/crypto"
	"github.com/goquote/goquote-go/internal/model"
	"github.com/goquote/goquote-go/internal/repository"
)

// DefaultOTPTTL is how long an issued code stays usable. Email verification
// and password reset share it.
const DefaultOTPTTL = 10 * time.Minute

// OTPEngine issues one-time codes and adjudicates their use.
type OTPEngine struct {
	store    repository.Store
	ttl      time.Duration
	now      func() time.Time
	generate func() (string, error)
}

// NewOTPEngine creates an OTPEngine. ttl <= 0 selects DefaultOTPTTL.
func NewOTPEngine(store repository.Store, ttl time.Duration) *OTPEngine {
	if ttl <= 0 {
		ttl = DefaultOTPTTL
	}
	return &OTPEngine{
		store:    store,
		ttl:      ttl,
		now:      time.Now,
		generate: crypto.GenerateOTP,
	}
}

func (e *OTPEngine) withStore(s repository.Store) *OTPEngine {
	cp := *e
	cp.store = s
	return &cp
}

// TTL returns the lifetime of issued codes.
func (e *OTPEngine) TTL() time.Duration {
	return e.ttl
}

// Generate returns a fresh plaintext code and the digest that gets stored.
func (e *OTPEngine) Generate() (plaintext, hash string, err error) {
	plaintext, err = e.generate()
	if err != nil {
		return "", "", err
	}
	return plaintext, crypto.HashOTP(plaintext), nil
}

// Expiry returns when a code issued at now stops being valid.
func (e *OTPEngine) Expiry(now time.Time) time.Time {
	return now.Add(e.ttl)
}

// Issue creates and stores a new code for the user. Outstanding codes for the
// same user and purpose stay valid until they expire or are consumed.
func (e *OTPEngine) Issue(ctx context.Context, userID string, purpose model.Purpose) (string, *model.OTPCode, error) {
	plaintext, hash, err := e.Generate()
	if err != nil {
		return "", nil, err
	}

	now := e.now().UTC()
	code := &model.OTPCode{
		UserID:    userID,
		CodeHash:  hash,
		Purpose:   purpose,
		CreatedAt: now,
		ExpiresAt: e.Expiry(now),
	}
	if err := e.store.CreateOTP(ctx, code); err != nil {
		return "", nil, err
	}
	return plaintext, code, nil
}

// Verify looks for an unconsumed, unexpired code of the user matching
// plaintext, newest first. An empty purpose accepts any purpose. Verify never
// consumes; a miss of any kind is (nil, false, nil).
func (e *OTPEngine) Verify(ctx context.Context, userID, plaintext string, purpose model.Purpose) (*model.OTPCode, bool, error) {
	if len(plaintext) != crypto.OTPLength {
		return nil, false, nil
	}

	now := e.now().UTC()
	hash := crypto.HashOTP(plaintext)

	code, err := e.store.FindActiveOTP(ctx, userID, hash, purpose, now)
	if err != nil {
		if errors.Is(err, repository.ErrOTPNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	if !crypto.OTPHashEqual(code.CodeHash, hash) || !code.Usable(now) {
		return nil, false, nil
	}
	if purpose != "" && code.Purpose != purpose {
		return nil, false, nil
	}
	return code, true, nil
}

// Consume marks the code used. Consuming an already consumed code is a no-op.
func (e *OTPEngine) Consume(ctx context.Context, otpID string) error {
	_, err := e.store.ConsumeOTP(ctx, otpID, e.now().UTC())
	return err
}

// claim consumes the code and fails with ErrInvalidCode when another request
// got there first.
func (e *OTPEngine) claim(ctx context.Context, otpID string) error {
	ok, err := e.store.ConsumeOTP(ctx, otpID, e.now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCode
	}
	return nil
}
