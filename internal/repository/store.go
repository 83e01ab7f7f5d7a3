package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/goquote/goquote-go/internal/model"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already exists")
	ErrOTPNotFound    = errors.New("otp code not found")
)

// Store is the persistence contract for users and one-time codes.
type Store interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string, at time.Time) error
	MarkEmailVerified(ctx context.Context, userID string, at time.Time) error

	CreateOTP(ctx context.Context, code *model.OTPCode) error
	FindActiveOTP(ctx context.Context, userID, codeHash string, purpose model.Purpose, now time.Time) (*model.OTPCode, error)
	ConsumeOTP(ctx context.Context, id string, at time.Time) (bool, error)

	// WithTx runs fn against a Store bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// SQLStore implements Store over database/sql for every supported dialect.
type SQLStore struct {
	db      DBTX
	conn    *sql.DB
	dialect Dialect
}

// NewSQLStore creates a SQLStore on top of a connection pool.
func NewSQLStore(conn *sql.DB, d Dialect) *SQLStore {
	return &SQLStore{db: conn, conn: conn, dialect: d}
}

// WithTx implements Store. Calls on a store that is already transactional
// reuse the running transaction.
func (s *SQLStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.conn == nil {
		return fn(ctx, s)
	}
	return withTx(ctx, s.conn, func(ctx context.Context, tx DBTX) error {
		return fn(ctx, &SQLStore{db: tx, dialect: s.dialect})
	})
}

func (s *SQLStore) q(query string) string {
	return s.dialect.rebind(query)
}
