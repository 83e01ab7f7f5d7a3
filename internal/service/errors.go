package service

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrInvalidCode        = errors.New("invalid or expired code")
	ErrUnauthorized       = errors.New("unauthorized")
)

// Issue describes one invalid input field.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports malformed input. It carries every failing field.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "validation failed"
	}
	return e.Issues[0].Message
}

func (e *ValidationError) add(field, message string) {
	e.Issues = append(e.Issues, Issue{Field: field, Message: message})
}

// errOrNil returns e as an error only when at least one issue was recorded.
func (e *ValidationError) errOrNil() error {
	if len(e.Issues) == 0 {
		return nil
	}
	return e
}
