package model

import "time"

// User represents a user in the database.
type User struct {
	ID              string
	Email           string
	FullName        string
	PasswordHash    string
	IsEmailVerified bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SignUpRequest represents an account creation request.
type SignUpRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInRequest represents a credential check request.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ForgotPasswordRequest asks for a password reset code.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResendOTPRequest asks for a fresh email verification code.
type ResendOTPRequest struct {
	Email string `json:"email"`
}

// VerifyOTPRequest presents a code. Purpose is optional; when set, only codes
// issued for that purpose are considered.
type VerifyOTPRequest struct {
	Email   string `json:"email"`
	Code    string `json:"code"`
	Purpose string `json:"purpose,omitempty"`
}

// ResetPasswordRequest completes a password reset with a code.
type ResetPasswordRequest struct {
	Email           string `json:"email"`
	Code            string `json:"code"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// MessageResponse is the generic response for flows that issue or check codes.
// DebugOTPCode is only populated outside production.
type MessageResponse struct {
	Message      string `json:"message"`
	Email        string `json:"email,omitempty"`
	DebugOTPCode string `json:"debugOtpCode,omitempty"`
}

// AuthResponse represents a sign-in response with a session token and user info.
type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// UserResponse represents user data safe for API responses (no sensitive fields).
type UserResponse struct {
	Email           string `json:"email"`
	FullName        string `json:"fullName"`
	IsEmailVerified bool   `json:"isEmailVerified"`
}

// ToResponse strips the user down to its public fields.
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		Email:           u.Email,
		FullName:        u.FullName,
		IsEmailVerified: u.IsEmailVerified,
	}
}
