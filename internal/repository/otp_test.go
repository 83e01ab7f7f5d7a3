package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/goquote/goquote-go/internal/model"
)

var otpRowColumns = []string{"id", "user_id", "code_hash", "purpose", "created_at", "expires_at", "consumed_at"}

func TestCreateOTP(t *testing.T) {
	store, mock := newStoreWithMock(t, DialectPostgres)
	created := time.UnixMilli(1_700_000_000_000)

	mock.ExpectExec(`INSERT INTO otp_codes \(id, user_id, code_hash, purpose, created_at, expires_at\)\s+VALUES \(\$1, \$2, \$3, \$4, \$5, \$6\)`).
		WithArgs("otp-1", "u-1", "abc", "PASSWORD_RESET", created.UnixMilli(), created.Add(10*time.Minute).UnixMilli()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.CreateOTP(context.Background(), &model.OTPCode{
		ID:        "otp-1",
		UserID:    "u-1",
		CodeHash:  "abc",
		Purpose:   model.PurposePasswordReset,
		CreatedAt: created,
		ExpiresAt: created.Add(10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("CreateOTP error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindActiveOTP_WithPurpose(t *testing.T) {
	store, mock := newStoreWithMock(t, DialectMySQL)
	now := time.UnixMilli(1_700_000_000_000)

	rows := sqlmock.NewRows(otpRowColumns).
		AddRow("otp-2", "u-1", "abc", "PASSWORD_RESET", now.Add(-time.Minute).UnixMilli(), now.Add(9*time.Minute).UnixMilli(), nil)
	mock.ExpectQuery(`WHERE user_id = \? AND code_hash = \? AND consumed_at IS NULL AND expires_at > \? AND purpose = \? ORDER BY created_at DESC, id DESC LIMIT 1`).
		WithArgs("u-1", "abc", now.UnixMilli(), "PASSWORD_RESET").
		WillReturnRows(rows)

	got, err := store.FindActiveOTP(context.Background(), "u-1", "abc", model.PurposePasswordReset, now)
	if err != nil {
		t.Fatalf("FindActiveOTP error: %v", err)
	}
	if got.ID != "otp-2" || got.Purpose != model.PurposePasswordReset || got.ConsumedAt != nil {
		t.Fatalf("unexpected code: %+v", got)
	}
}

func TestFindActiveOTP_AnyPurpose(t *testing.T) {
	store, mock := newStoreWithMock(t, DialectMySQL)
	now := time.UnixMilli(1_700_000_000_000)

	rows := sqlmock.NewRows(otpRowColumns).
		AddRow("otp-1", "u-1", "abc", "EMAIL_VERIFICATION", now.UnixMilli(), now.Add(time.Minute).UnixMilli(), nil)
	mock.ExpectQuery(`expires_at > \? ORDER BY created_at DESC, id DESC LIMIT 1`).
		WithArgs("u-1", "abc", now.UnixMilli()).
		WillReturnRows(rows)

	got, err := store.FindActiveOTP(context.Background(), "u-1", "abc", "", now)
	if err != nil {
		t.Fatalf("FindActiveOTP error: %v", err)
	}
	if got.Purpose != model.PurposeEmailVerification {
		t.Fatalf("unexpected purpose: %s", got.Purpose)
	}
}

func TestFindActiveOTP_NotFound(t *testing.T) {
	store, mock := newStoreWithMock(t, DialectMySQL)

	mock.ExpectQuery(`FROM otp_codes`).WillReturnError(sql.ErrNoRows)

	_, err := store.FindActiveOTP(context.Background(), "u-1", "abc", "", time.Now())
	if !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("want ErrOTPNotFound, got %v", err)
	}
}

func TestConsumeOTP(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "first consumption", affected: 1, want: true},
		{name: "already consumed", affected: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newStoreWithMock(t, DialectPostgres)
			at := time.UnixMilli(1_700_000_000_000)

			mock.ExpectExec(`UPDATE otp_codes SET consumed_at = \$1 WHERE id = \$2 AND consumed_at IS NULL`).
				WithArgs(at.UnixMilli(), "otp-1").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			got, err := store.ConsumeOTP(context.Background(), "otp-1", at)
			if err != nil {
				t.Fatalf("ConsumeOTP error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ConsumeOTP() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	store, mock := newStoreWithMock(t, DialectMySQL)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE users SET is_email_verified`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE otp_codes SET consumed_at`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(ctx context.Context, tx Store) error {
		if err := tx.MarkEmailVerified(ctx, "u-1", time.Now()); err != nil {
			return err
		}
		_, err := tx.ConsumeOTP(ctx, "otp-1", time.Now())
		return err
	})
	if err != nil {
		t.Fatalf("WithTx error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWithTx_RollsBackOnFailure(t *testing.T) {
	store, mock := newStoreWithMock(t, DialectMySQL)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE users SET password_hash`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE otp_codes SET consumed_at`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), func(ctx context.Context, tx Store) error {
		if err := tx.UpdatePassword(ctx, "u-1", "new-hash", time.Now()); err != nil {
			return err
		}
		_, err := tx.ConsumeOTP(ctx, "otp-1", time.Now())
		return err
	})
	if err == nil {
		t.Fatal("expected error from WithTx")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	store, mock := newStoreWithMock(t, DialectMySQL)

	mock.ExpectBegin()
	mock.ExpectRollback()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic to propagate")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	}()

	_ = store.WithTx(context.Background(), func(ctx context.Context, tx Store) error {
		panic("boom")
	})
}
