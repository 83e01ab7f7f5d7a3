package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goquote/goquote-go/internal/crypto"
	"github.com/goquote/goquote-go/internal/model"
	"github.com/goquote/goquote-go/internal/repository"
)

// Credentials owns user identities and their password hashes.
type Credentials struct {
	store  repository.Store
	hasher *crypto.PasswordHasher
	now    func() time.Time
	dummy  *dummyHash
}

// dummyHash is compared against when an email is unknown, so a sign-in for a
// missing account costs the same as one with a wrong password.
type dummyHash struct {
	once sync.Once
	hash string
	err  error
}

// NewCredentials creates a Credentials service.
func NewCredentials(store repository.Store, hasher *crypto.PasswordHasher) *Credentials {
	return &Credentials{
		store:  store,
		hasher: hasher,
		now:    time.Now,
		dummy:  &dummyHash{},
	}
}

// withStore returns a copy bound to another store, typically a transaction.
func (c *Credentials) withStore(s repository.Store) *Credentials {
	cp := *c
	cp.store = s
	return &cp
}

// CreateUser registers a new, unverified user. A second account for the same
// normalized email fails with ErrEmailTaken.
func (c *Credentials) CreateUser(ctx context.Context, fullName, email, password string) (*model.User, error) {
	email = NormalizeEmail(email)
	if err := c.ensureAvailable(ctx, email); err != nil {
		return nil, err
	}

	hash, err := c.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	return c.insertUser(ctx, fullName, email, hash)
}

// ensureAvailable fails with ErrEmailTaken when email is registered.
func (c *Credentials) ensureAvailable(ctx context.Context, email string) error {
	_, err := c.store.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return ErrEmailTaken
	case errors.Is(err, repository.ErrUserNotFound):
		return nil
	default:
		return err
	}
}

// insertUser stores a user with an already computed password hash. A lost
// race on the unique email maps to ErrEmailTaken.
func (c *Credentials) insertUser(ctx context.Context, fullName, email, passwordHash string) (*model.User, error) {
	now := c.now().UTC()
	user := &model.User{
		Email:        email,
		FullName:     fullName,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := c.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return user, nil
}

// FindByEmail looks a user up by normalized email. Unknown addresses yield
// repository.ErrUserNotFound.
func (c *Credentials) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return c.store.GetUserByEmail(ctx, NormalizeEmail(email))
}

// CheckPassword reports whether password is correct for email. An unknown
// email is (nil, false, nil), the same shape as a wrong password.
func (c *Credentials) CheckPassword(ctx context.Context, email, password string) (*model.User, bool, error) {
	user, err := c.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, false, err
		}
		c.burnDummyCompare(password)
		return nil, false, nil
	}

	ok, err := c.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, false, fmt.Errorf("verify password for user %s: %w", user.ID, err)
	}
	if !ok {
		return nil, false, nil
	}
	return user, true, nil
}

// HashPassword hashes a new password without touching storage.
func (c *Credentials) HashPassword(password string) (string, error) {
	return c.hasher.Hash(password)
}

// SetPassword rehashes and replaces the password for email. The email is
// marked verified as well.
func (c *Credentials) SetPassword(ctx context.Context, email, password string) error {
	user, err := c.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	hash, err := c.HashPassword(password)
	if err != nil {
		return err
	}
	return c.setPasswordHash(ctx, user.ID, hash)
}

// SetEmailVerified flips the verified flag for email. It is idempotent.
func (c *Credentials) SetEmailVerified(ctx context.Context, email string) error {
	user, err := c.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	return c.markVerified(ctx, user.ID)
}

func (c *Credentials) setPasswordHash(ctx context.Context, userID, hash string) error {
	return c.store.UpdatePassword(ctx, userID, hash, c.now().UTC())
}

func (c *Credentials) markVerified(ctx context.Context, userID string) error {
	return c.store.MarkEmailVerified(ctx, userID, c.now().UTC())
}

func (c *Credentials) burnDummyCompare(password string) {
	c.dummy.once.Do(func() {
		c.dummy.hash, c.dummy.err = c.hasher.Hash("goquote-unknown-account")
	})
	if c.dummy.err == nil {
		_, _ = c.hasher.Verify(password, c.dummy.hash)
	}
}
