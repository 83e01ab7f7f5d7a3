package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/goquote/goquote-go/internal/model"
)

const userColumns = `id, email, full_name, password_hash, is_email_verified, created_at, updated_at`

// CreateUser inserts a new user. A missing ID is generated as a time-ordered
// UUID and missing timestamps default to now.
func (s *SQLStore) CreateUser(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate user id: %w", err)
		}
		user.ID = id.String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	query := `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, s.q(query),
		user.ID,
		user.Email,
		user.FullName,
		user.PasswordHash,
		user.IsEmailVerified,
		toMillis(user.CreatedAt),
		toMillis(user.UpdatedAt),
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

// GetUserByEmail retrieves a user by their stored (normalized) email address.
func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, s.q(query), email))
}

// GetUserByID retrieves a user by their ID.
func (s *SQLStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, s.q(query), id))
}

// UpdatePassword replaces the password hash. A completed reset proves the
// email channel, so the verified flag is set in the same statement.
func (s *SQLStore) UpdatePassword(ctx context.Context, userID, passwordHash string, at time.Time) error {
	query := `UPDATE users SET password_hash = ?, is_email_verified = ?, updated_at = ? WHERE id = ?`

	if _, err := s.db.ExecContext(ctx, s.q(query), passwordHash, true, toMillis(at), userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// MarkEmailVerified sets the verified flag. Repeating it is harmless.
func (s *SQLStore) MarkEmailVerified(ctx context.Context, userID string, at time.Time) error {
	query := `UPDATE users SET is_email_verified = ?, updated_at = ? WHERE id = ?`

	if _, err := s.db.ExecContext(ctx, s.q(query), true, toMillis(at), userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *SQLStore) scanUser(row *sql.Row) (*model.User, error) {
	var (
		user                 model.User
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&user.ID, &user.Email, &user.FullName, &user.PasswordHash,
		&user.IsEmailVerified, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	user.CreatedAt = fromMillis(createdAt)
	user.UpdatedAt = fromMillis(updatedAt)
	return &user, nil
}
