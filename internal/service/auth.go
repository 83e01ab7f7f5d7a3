package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/goquote/goquote-go/internal/crypto"
	"github.com/goquote/goquote-go/internal/mailer"
	"github.com/goquote/goquote-go/internal/model"
	"github.com/goquote/goquote-go/internal/repository"
)

const (
	msgAccountCreated = "Account created. Check your email for a verification code."
	msgResetRequested = "If an account exists for this email, a reset code has been sent."
	msgCodeResent     = "If an unverified account exists for this email, a new code has been sent."
	msgEmailVerified  = "Email verified successfully."
	msgResetCodeValid = "Code verified. You can now reset your password."
	msgPasswordReset  = "Password has been reset successfully."
)

var tracer = otel.Tracer("github.com/goquote/goquote-go/internal/service")

// Options tunes an AuthService.
type Options struct {
	// OTPTTL is the lifetime of issued codes. Zero selects DefaultOTPTTL.
	OTPTTL time.Duration
	// ExposeDebugOTP returns plaintext codes in responses. Never set it in
	// production.
	ExposeDebugOTP bool
}

// AuthService orchestrates sign-up, sign-in and the code based flows.
type AuthService struct {
	store       repository.Store
	credentials *Credentials
	otp         *OTPEngine
	tokens      *crypto.TokenIssuer
	mail        mailer.Mailer
	exposeOTP   bool
}

// NewAuthService creates a new AuthService.
func NewAuthService(store repository.Store, hasher *crypto.PasswordHasher, tokens *crypto.TokenIssuer, mail mailer.Mailer, opts Options) *AuthService {
	return &AuthService{
		store:       store,
		credentials: NewCredentials(store, hasher),
		otp:         NewOTPEngine(store, opts.OTPTTL),
		tokens:      tokens,
		mail:        mail,
		exposeOTP:   opts.ExposeDebugOTP,
	}
}

// setClock pins the time source of every component.
func (s *AuthService) setClock(now func() time.Time) {
	s.credentials.now = now
	s.otp.now = now
}

// SignUp creates an unverified account and emails an email-verification code.
func (s *AuthService) SignUp(ctx context.Context, req model.SignUpRequest) (resp model.MessageResponse, err error) {
	ctx, span := tracer.Start(ctx, "auth.SignUp")
	defer func() { endSpan(span, err) }()

	fullName := strings.TrimSpace(req.FullName)
	email := NormalizeEmail(req.Email)

	v := &ValidationError{}
	switch {
	case fullName == "":
		v.add("fullName", "Full name is required")
	case len(fullName) > maxNameLength:
		v.add("fullName", "Full name is too long")
	}
	validateEmail(v, email)
	validatePassword(v, "password", req.Password)
	if err := v.errOrNil(); err != nil {
		return model.MessageResponse{}, err
	}

	if err := s.credentials.ensureAvailable(ctx, email); err != nil {
		return model.MessageResponse{}, err
	}
	hash, err := s.credentials.HashPassword(req.Password)
	if err != nil {
		return model.MessageResponse{}, err
	}

	// The account and its first code commit together, so a failed issue
	// leaves the email free for a retry.
	var (
		user *model.User
		code string
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		var err error
		user, err = s.credentials.withStore(tx).insertUser(ctx, fullName, email, hash)
		if err != nil {
			return err
		}
		code, _, err = s.otp.withStore(tx).Issue(ctx, user.ID, model.PurposeEmailVerification)
		return err
	})
	if err != nil {
		return model.MessageResponse{}, err
	}
	span.SetAttributes(attribute.String("user.id", user.ID))

	if err := s.mail.SendVerificationCode(ctx, user.Email, user.FullName, code); err != nil {
		slog.Error("failed to send verification email", "user_id", user.ID, "error", err)
	}

	slog.Info("user signed up", "user_id", user.ID)
	return s.codeResponse(msgAccountCreated, user.Email, code), nil
}

// SignIn checks credentials and issues a session token. Unknown emails and
// wrong passwords both fail with ErrInvalidCredentials.
func (s *AuthService) SignIn(ctx context.Context, req model.SignInRequest) (resp model.AuthResponse, err error) {
	ctx, span := tracer.Start(ctx, "auth.SignIn")
	defer func() { endSpan(span, err) }()

	email := NormalizeEmail(req.Email)

	v := &ValidationError{}
	validateEmail(v, email)
	if req.Password == "" {
		v.add("password", "Password is required")
	}
	if err := v.errOrNil(); err != nil {
		return model.AuthResponse{}, err
	}

	user, ok, err := s.credentials.CheckPassword(ctx, email, req.Password)
	if err != nil {
		return model.AuthResponse{}, err
	}
	if !ok {
		return model.AuthResponse{}, ErrInvalidCredentials
	}

	token, _, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return model.AuthResponse{}, err
	}

	return model.AuthResponse{
		Token: token,
		User:  user.ToResponse(),
	}, nil
}

// ForgotPassword issues a password-reset code when the account exists. The
// response is identical either way.
func (s *AuthService) ForgotPassword(ctx context.Context, req model.ForgotPasswordRequest) (resp model.MessageResponse, err error) {
	ctx, span := tracer.Start(ctx, "auth.ForgotPassword")
	defer func() { endSpan(span, err) }()

	email := NormalizeEmail(req.Email)

	v := &ValidationError{}
	validateEmail(v, email)
	if err := v.errOrNil(); err != nil {
		return model.MessageResponse{}, err
	}

	user, err := s.credentials.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.MessageResponse{Message: msgResetRequested}, nil
		}
		return model.MessageResponse{}, err
	}

	code, _, err := s.otp.Issue(ctx, user.ID, model.PurposePasswordReset)
	if err != nil {
		return model.MessageResponse{}, err
	}

	if err := s.mail.SendPasswordResetCode(ctx, user.Email, code); err != nil {
		slog.Error("failed to send password reset email", "user_id", user.ID, "error", err)
	}

	return s.codeResponse(msgResetRequested, "", code), nil
}

// ResendVerification issues a fresh email-verification code for an account
// that is not verified yet. The response does not reveal whether one was sent.
func (s *AuthService) ResendVerification(ctx context.Context, req model.ResendOTPRequest) (resp model.MessageResponse, err error) {
	ctx, span := tracer.Start(ctx, "auth.ResendVerification")
	defer func() { endSpan(span, err) }()

	email := NormalizeEmail(req.Email)

	v := &ValidationError{}
	validateEmail(v, email)
	if err := v.errOrNil(); err != nil {
		return model.MessageResponse{}, err
	}

	user, err := s.credentials.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.MessageResponse{Message: msgCodeResent}, nil
		}
		return model.MessageResponse{}, err
	}
	if user.IsEmailVerified {
		return model.MessageResponse{Message: msgCodeResent}, nil
	}

	code, _, err := s.otp.Issue(ctx, user.ID, model.PurposeEmailVerification)
	if err != nil {
		return model.MessageResponse{}, err
	}

	if err := s.mail.SendVerificationCode(ctx, user.Email, user.FullName, code); err != nil {
		slog.Error("failed to send verification email", "user_id", user.ID, "error", err)
	}

	return s.codeResponse(msgCodeResent, "", code), nil
}

// VerifyOTP checks a code. An email-verification code is consumed and the
// account marked verified in one transaction. A password-reset code is only
// confirmed; it is consumed by ResetPassword.
func (s *AuthService) VerifyOTP(ctx context.Context, req model.VerifyOTPRequest) (resp model.MessageResponse, err error) {
	ctx, span := tracer.Start(ctx, "auth.VerifyOTP")
	defer func() { endSpan(span, err) }()

	email := NormalizeEmail(req.Email)
	code := strings.TrimSpace(req.Code)

	v := &ValidationError{}
	validateEmail(v, email)
	validateCode(v, code)
	var purpose model.Purpose
	if req.Purpose != "" {
		p, perr := model.ParsePurpose(req.Purpose)
		if perr != nil {
			v.add("purpose", "Purpose must be EMAIL_VERIFICATION or PASSWORD_RESET")
		}
		purpose = p
	}
	if err := v.errOrNil(); err != nil {
		return model.MessageResponse{}, err
	}

	user, err := s.credentials.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.MessageResponse{}, ErrInvalidCode
		}
		return model.MessageResponse{}, err
	}

	otp, ok, err := s.otp.Verify(ctx, user.ID, code, purpose)
	if err != nil {
		return model.MessageResponse{}, err
	}
	if !ok {
		return model.MessageResponse{}, ErrInvalidCode
	}
	span.SetAttributes(attribute.String("otp.purpose", string(otp.Purpose)))

	if otp.Purpose == model.PurposePasswordReset {
		return model.MessageResponse{Message: msgResetCodeValid}, nil
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		if err := s.otp.withStore(tx).claim(ctx, otp.ID); err != nil {
			return err
		}
		return s.credentials.withStore(tx).markVerified(ctx, user.ID)
	})
	if err != nil {
		return model.MessageResponse{}, err
	}

	slog.Info("email verified", "user_id", user.ID)
	return model.MessageResponse{Message: msgEmailVerified}, nil
}

// ResetPassword replaces the password using a password-reset code. The new
// hash and the code consumption commit together or not at all.
func (s *AuthService) ResetPassword(ctx context.Context, req model.ResetPasswordRequest) (resp model.MessageResponse, err error) {
	ctx, span := tracer.Start(ctx, "auth.ResetPassword")
	defer func() { endSpan(span, err) }()

	email := NormalizeEmail(req.Email)
	code := strings.TrimSpace(req.Code)

	v := &ValidationError{}
	validateEmail(v, email)
	validateCode(v, code)
	validatePassword(v, "newPassword", req.NewPassword)
	if req.NewPassword != req.ConfirmPassword {
		v.add("confirmPassword", "Passwords do not match")
	}
	if err := v.errOrNil(); err != nil {
		return model.MessageResponse{}, err
	}

	user, err := s.credentials.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.MessageResponse{}, ErrInvalidCode
		}
		return model.MessageResponse{}, err
	}

	otp, ok, err := s.otp.Verify(ctx, user.ID, code, model.PurposePasswordReset)
	if err != nil {
		return model.MessageResponse{}, err
	}
	if !ok {
		return model.MessageResponse{}, ErrInvalidCode
	}

	hash, err := s.credentials.HashPassword(req.NewPassword)
	if err != nil {
		return model.MessageResponse{}, err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		if err := s.otp.withStore(tx).claim(ctx, otp.ID); err != nil {
			return err
		}
		return s.credentials.withStore(tx).setPasswordHash(ctx, user.ID, hash)
	})
	if err != nil {
		return model.MessageResponse{}, err
	}

	slog.Info("password reset", "user_id", user.ID)
	return model.MessageResponse{Message: msgPasswordReset}, nil
}

// Me returns the public profile of the authenticated user.
func (s *AuthService) Me(ctx context.Context, userID string) (resp model.UserResponse, err error) {
	ctx, span := tracer.Start(ctx, "auth.Me")
	defer func() { endSpan(span, err) }()

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.UserResponse{}, ErrUnauthorized
		}
		return model.UserResponse{}, err
	}
	return user.ToResponse(), nil
}

func (s *AuthService) codeResponse(message, email, code string) model.MessageResponse {
	resp := model.MessageResponse{Message: message, Email: email}
	if s.exposeOTP {
		resp.DebugOTPCode = code
	}
	return resp
}

// endSpan records unexpected failures on the span. Client errors are not
// span errors.
func endSpan(span trace.Span, err error) {
	if err != nil && !isClientError(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func isClientError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrEmailTaken) ||
		errors.Is(err, ErrInvalidCode) ||
		errors.Is(err, ErrUnauthorized)
}
