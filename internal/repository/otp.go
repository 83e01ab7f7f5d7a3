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

// CreateOTP inserts a new one-time code row. Earlier codes for the same user
// and purpose are left untouched.
func (s *SQLStore) CreateOTP(ctx context.Context, code *model.OTPCode) error {
	if code.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate otp id: %w", err)
		}
		code.ID = id.String()
	}

	query := `INSERT INTO otp_codes (id, user_id, code_hash, purpose, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, s.q(query),
		code.ID,
		code.UserID,
		code.CodeHash,
		string(code.Purpose),
		toMillis(code.CreatedAt),
		toMillis(code.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// FindActiveOTP returns the most recently created code owned by userID whose
// hash matches, that is unconsumed and not expired at now. An empty purpose
// matches any purpose.
func (s *SQLStore) FindActiveOTP(ctx context.Context, userID, codeHash string, purpose model.Purpose, now time.Time) (*model.OTPCode, error) {
	query := `SELECT id, user_id, code_hash, purpose, created_at, expires_at, consumed_at
		FROM otp_codes
		WHERE user_id = ? AND code_hash = ? AND consumed_at IS NULL AND expires_at > ?`
	args := []any{userID, codeHash, toMillis(now)}
	if purpose != "" {
		query += ` AND purpose = ?`
		args = append(args, string(purpose))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT 1`

	var (
		code                 model.OTPCode
		purposeValue         string
		createdAt, expiresAt int64
		consumedAt           sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, s.q(query), args...).Scan(
		&code.ID, &code.UserID, &code.CodeHash, &purposeValue,
		&createdAt, &expiresAt, &consumedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOTPNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	code.Purpose = model.Purpose(purposeValue)
	code.CreatedAt = fromMillis(createdAt)
	code.ExpiresAt = fromMillis(expiresAt)
	if consumedAt.Valid {
		t := fromMillis(consumedAt.Int64)
		code.ConsumedAt = &t
	}
	return &code, nil
}

// ConsumeOTP stamps consumed_at on an unconsumed code. It reports whether this
// call made the transition; an already consumed or unknown code yields false.
func (s *SQLStore) ConsumeOTP(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `UPDATE otp_codes SET consumed_at = ? WHERE id = ? AND consumed_at IS NULL`

	result, err := s.db.ExecContext(ctx, s.q(query), toMillis(at), id)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}
